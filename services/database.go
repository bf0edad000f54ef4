package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"transcriber/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcription_jobs (
  id TEXT PRIMARY KEY,
  owner_id TEXT,
  source_url TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  transcript_text TEXT,
  duration_seconds DOUBLE PRECISION,
  word_count INTEGER,
  accuracy_percent DOUBLE PRECISION,
  processing_time_seconds DOUBLE PRECISION,
  error_message TEXT,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL DEFAULT '',
  subscription_tier TEXT NOT NULL DEFAULT 'free',
  jobs_used INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  job_id TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL DEFAULT '',
  detail TEXT NOT NULL DEFAULT '',
  read BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL
);
`

type DatabaseService struct {
	db *sql.DB
}

func NewDatabaseService(databaseURL string) (*DatabaseService, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DatabaseService{db: db}, nil
}

const jobColumns = `id, owner_id, source_url, title, status, transcript_text,
	duration_seconds, word_count, accuracy_percent, processing_time_seconds,
	error_message, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (models.Job, error) {
	var job models.Job
	err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&job.SourceURL,
		&job.Title,
		&job.Status,
		&job.TranscriptText,
		&job.DurationSeconds,
		&job.WordCount,
		&job.AccuracyPercent,
		&job.ProcessingTimeSeconds,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Job{}, models.ErrNotFound
		}
		return models.Job{}, err
	}
	return job, nil
}

func (d *DatabaseService) InsertJob(ctx context.Context, job *models.Job) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO transcription_jobs (id, owner_id, source_url, title, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.OwnerID, job.SourceURL, job.Title, job.Status, job.CreatedAt, job.UpdatedAt,
	)
	return err
}

func (d *DatabaseService) GetJob(ctx context.Context, jobID string) (models.Job, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM transcription_jobs WHERE id = $1`, jobID)
	return scanJob(row)
}

func (d *DatabaseService) ListJobs(ctx context.Context, ownerID *string, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 25
	}

	query := `SELECT ` + jobColumns + ` FROM transcription_jobs`
	args := []interface{}{}
	if ownerID != nil {
		query += ` WHERE owner_id = $1`
		args = append(args, *ownerID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// MarkProcessing moves a job from pending to processing. It reports false
// when the job was not in pending, leaving the row untouched.
func (d *DatabaseService) MarkProcessing(ctx context.Context, jobID string) (bool, error) {
	res, err := d.db.ExecContext(ctx,
		`UPDATE transcription_jobs SET status = $1, updated_at = $2
		 WHERE id = $3 AND status = $4`,
		models.StatusProcessing, time.Now(), jobID, models.StatusPending,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CompleteJob applies the terminal completed transition with a compare-and-set
// on the current status. Concurrent duplicate deliveries race on the row; only
// one caller observes true.
func (d *DatabaseService) CompleteJob(ctx context.Context, jobID string, result models.TranscriptionResult) (bool, error) {
	res, err := d.db.ExecContext(ctx,
		`UPDATE transcription_jobs
		 SET status = $1, transcript_text = $2, duration_seconds = $3,
		     word_count = $4, accuracy_percent = $5, processing_time_seconds = $6,
		     updated_at = $7
		 WHERE id = $8 AND status NOT IN ($9, $10)`,
		models.StatusCompleted,
		result.Transcript,
		result.DurationSeconds,
		result.WordCount,
		result.AccuracyPercent,
		result.ProcessingTimeSeconds,
		time.Now(),
		jobID,
		models.StatusCompleted, models.StatusFailed,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FailJob applies the terminal failed transition under the same
// compare-and-set guard as CompleteJob.
func (d *DatabaseService) FailJob(ctx context.Context, jobID string, reason string) (bool, error) {
	query := `UPDATE transcription_jobs SET status = $1, updated_at = $2`
	args := []interface{}{models.StatusFailed, time.Now()}
	argIndex := 3

	if reason != "" {
		query += fmt.Sprintf(`, error_message = $%d`, argIndex)
		args = append(args, reason)
		argIndex++
	}

	query += fmt.Sprintf(` WHERE id = $%d AND status NOT IN ($%d, $%d)`,
		argIndex, argIndex+1, argIndex+2)
	args = append(args, jobID, models.StatusCompleted, models.StatusFailed)

	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListStaleProcessing returns jobs stuck in processing since before cutoff.
func (d *DatabaseService) ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM transcription_jobs
		 WHERE status = $1 AND updated_at < $2`,
		models.StatusProcessing, cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (d *DatabaseService) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, email, subscription_tier, jobs_used FROM accounts WHERE id = $1`,
		accountID,
	)
	var acct models.Account
	if err := row.Scan(&acct.ID, &acct.Email, &acct.Tier, &acct.JobsUsed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Account{}, models.ErrNotFound
		}
		return models.Account{}, err
	}
	return acct, nil
}

func (d *DatabaseService) IncrementJobsUsed(ctx context.Context, accountID string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE accounts SET jobs_used = jobs_used + 1 WHERE id = $1`, accountID)
	return err
}

func (d *DatabaseService) InsertNotification(ctx context.Context, n *models.Notification) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO notifications (id, account_id, kind, job_id, title, detail, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.AccountID, n.Kind, n.JobID, n.Title, n.Detail, n.Read, n.CreatedAt,
	)
	return err
}

func (d *DatabaseService) ListNotifications(ctx context.Context, accountID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, account_id, kind, job_id, title, detail, read, created_at
		 FROM notifications WHERE account_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		accountID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.AccountID, &n.Kind, &n.JobID, &n.Title, &n.Detail, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (d *DatabaseService) UnreadCount(ctx context.Context, accountID string) (int, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE account_id = $1 AND read = FALSE`,
		accountID,
	)
	var count int
	err := row.Scan(&count)
	return count, err
}

func (d *DatabaseService) MarkNotificationRead(ctx context.Context, notificationID string) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1`, notificationID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (d *DatabaseService) Close() error {
	return d.db.Close()
}
