package lifecycle

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/google/uuid"

	"transcriber/models"
)

// JobStore is the persistence contract the orchestrator drives. The terminal
// transition methods are compare-and-set: they report false when another
// caller already moved the job, leaving the row untouched.
type JobStore interface {
	InsertJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (models.Job, error)
	MarkProcessing(ctx context.Context, jobID string) (bool, error)
	CompleteJob(ctx context.Context, jobID string, result models.TranscriptionResult) (bool, error)
	FailJob(ctx context.Context, jobID string, reason string) (bool, error)
}

type UsageCounter interface {
	IncrementJobsUsed(ctx context.Context, accountID string) error
}

type QuotaPolicy interface {
	CanCreate(ctx context.Context, accountID string) (bool, error)
}

type QueuePublisher interface {
	Enqueue(ctx context.Context, jobID, sourceURL, callbackURL string) error
}

type Notifier interface {
	Emit(ctx context.Context, accountID string, kind models.NotificationKind, jobID, title, detail string)
}

type TitleResolver interface {
	Resolve(ctx context.Context, sourceURL string) string
}

type StatusMirror interface {
	Set(ctx context.Context, jobID string, status models.JobStatus, errorMsg string) error
}

// Orchestrator owns the job state machine. Every status mutation in the
// system goes through its transition methods.
type Orchestrator struct {
	store    JobStore
	usage    UsageCounter
	quota    QuotaPolicy
	queue    QueuePublisher
	notifier Notifier
	titles   TitleResolver
	mirror   StatusMirror
	baseURL  string
}

func NewOrchestrator(
	store JobStore,
	usage UsageCounter,
	quota QuotaPolicy,
	queue QueuePublisher,
	notifier Notifier,
	titles TitleResolver,
	mirror StatusMirror,
	baseURL string,
) *Orchestrator {
	return &Orchestrator{
		store:    store,
		usage:    usage,
		quota:    quota,
		queue:    queue,
		notifier: notifier,
		titles:   titles,
		mirror:   mirror,
		baseURL:  baseURL,
	}
}

// Create validates the source URL, enforces quota for owned jobs, and
// persists a new job in pending. Anonymous jobs (nil ownerID) skip the quota
// check entirely.
func (o *Orchestrator) Create(ctx context.Context, ownerID *string, sourceURL string) (models.Job, error) {
	if err := validateSourceURL(sourceURL); err != nil {
		return models.Job{}, err
	}

	if ownerID != nil {
		ok, err := o.quota.CanCreate(ctx, *ownerID)
		if err != nil {
			return models.Job{}, fmt.Errorf("quota check failed: %w", err)
		}
		if !ok {
			return models.Job{}, models.ErrQuotaExceeded
		}
	}

	title := o.titles.Resolve(ctx, sourceURL)

	now := time.Now()
	job := models.Job{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		SourceURL: sourceURL,
		Title:     title,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := o.store.InsertJob(ctx, &job); err != nil {
		return models.Job{}, fmt.Errorf("failed to persist job: %w", err)
	}

	o.mirrorStatus(ctx, job.ID, models.StatusPending, "")
	return job, nil
}

// Submit moves a pending job to processing and hands it to the queue. It is
// deliberately not idempotent: submitting a non-pending job is a caller bug
// and surfaces as ErrInvalidState. If the publish fails the job goes straight
// to failed, never back to pending, and the publish error is re-raised.
func (o *Orchestrator) Submit(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.StatusPending {
		return fmt.Errorf("%w: cannot submit job in status %q", models.ErrInvalidState, job.Status)
	}

	moved, err := o.store.MarkProcessing(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	if !moved {
		// Lost a race: something else already moved the job.
		return fmt.Errorf("%w: job %s left pending concurrently", models.ErrInvalidState, jobID)
	}
	o.mirrorStatus(ctx, jobID, models.StatusProcessing, "")

	callbackURL := fmt.Sprintf("%s/v1/jobs/%s/webhook", o.baseURL, jobID)
	if err := o.queue.Enqueue(ctx, jobID, job.SourceURL, callbackURL); err != nil {
		// A job that cannot be queued will never complete. Mark it failed
		// rather than leaving it in processing limbo, then re-raise.
		reason := fmt.Sprintf("enqueue failed: %v", err)
		if _, failErr := o.Fail(ctx, jobID, reason); failErr != nil {
			log.Printf("[Orchestrator] Failed to mark job %s failed after publish error: %v", jobID, failErr)
		}
		return err
	}

	log.Printf("[Orchestrator] Job %s submitted to queue", jobID)
	return nil
}

// Complete applies the terminal completed transition. Duplicate deliveries
// (the webhook may retry) are no-ops returning the stored job. Completion is
// also accepted from pending: the webhook can legitimately beat Submit.
func (o *Orchestrator) Complete(ctx context.Context, jobID string, result models.TranscriptionResult) (models.Job, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return models.Job{}, err
	}

	applied, err := o.store.CompleteJob(ctx, jobID, result)
	if err != nil {
		return models.Job{}, fmt.Errorf("failed to complete job: %w", err)
	}
	if !applied {
		// Re-read rather than returning the earlier snapshot: a concurrent
		// caller may have won the race after our first load.
		stored, err := o.store.GetJob(ctx, jobID)
		if err != nil {
			return models.Job{}, err
		}
		log.Printf("[Orchestrator] Duplicate delivery for job %s ignored (status=%s)", jobID, stored.Status)
		return stored, nil
	}

	// The losing side of a concurrent duplicate never reaches this point,
	// so the counter moves exactly once per job.
	if job.OwnerID != nil {
		if err := o.usage.IncrementJobsUsed(ctx, *job.OwnerID); err != nil {
			log.Printf("[Orchestrator] Failed to increment usage for account %s: %v", *job.OwnerID, err)
		}
	}

	o.mirrorStatus(ctx, jobID, models.StatusCompleted, "")

	if job.OwnerID != nil {
		o.notifier.Emit(ctx, *job.OwnerID, models.NotifyCompleted, jobID, job.Title, "Your transcription is ready.")
	}

	updated, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return models.Job{}, err
	}
	log.Printf("[Orchestrator] Job %s completed", jobID)
	return updated, nil
}

// Fail applies the terminal failed transition from any non-terminal state,
// with the same duplicate-delivery guard as Complete.
func (o *Orchestrator) Fail(ctx context.Context, jobID string, reason string) (models.Job, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return models.Job{}, err
	}

	applied, err := o.store.FailJob(ctx, jobID, reason)
	if err != nil {
		return models.Job{}, fmt.Errorf("failed to fail job: %w", err)
	}
	if !applied {
		stored, err := o.store.GetJob(ctx, jobID)
		if err != nil {
			return models.Job{}, err
		}
		log.Printf("[Orchestrator] Duplicate delivery for job %s ignored (status=%s)", jobID, stored.Status)
		return stored, nil
	}

	o.mirrorStatus(ctx, jobID, models.StatusFailed, reason)

	if job.OwnerID != nil {
		detail := reason
		if detail == "" {
			detail = "The transcription could not be processed."
		}
		o.notifier.Emit(ctx, *job.OwnerID, models.NotifyFailed, jobID, job.Title, detail)
	}

	updated, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return models.Job{}, err
	}
	log.Printf("[Orchestrator] Job %s failed: %s", jobID, reason)
	return updated, nil
}

func (o *Orchestrator) mirrorStatus(ctx context.Context, jobID string, status models.JobStatus, errorMsg string) {
	if o.mirror == nil {
		return
	}
	if err := o.mirror.Set(ctx, jobID, status, errorMsg); err != nil {
		log.Printf("[Orchestrator] Failed to mirror status for job %s: %v", jobID, err)
	}
}

func validateSourceURL(sourceURL string) error {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return fmt.Errorf("%w: malformed source URL", models.ErrInvalidInput)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: source URL must be http or https", models.ErrInvalidInput)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: source URL missing host", models.ErrInvalidInput)
	}
	return nil
}
