package models

import "time"

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are accepted from s.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one transcription request and its lifecycle record. The result
// fields are nil until the job reaches "completed".
type Job struct {
	ID                    string     `json:"id"`
	OwnerID               *string    `json:"ownerId,omitempty"`
	SourceURL             string     `json:"sourceUrl"`
	Title                 string     `json:"title"`
	Status                JobStatus  `json:"status"`
	TranscriptText        *string    `json:"transcriptText,omitempty"`
	DurationSeconds       *float64   `json:"durationSeconds,omitempty"`
	WordCount             *int       `json:"wordCount,omitempty"`
	AccuracyPercent       *float64   `json:"accuracyPercent,omitempty"`
	ProcessingTimeSeconds *float64   `json:"processingTimeSeconds,omitempty"`
	ErrorMessage          *string    `json:"errorMessage,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// TranscriptionResult is the outcome payload reported by the external worker.
type TranscriptionResult struct {
	Transcript            string   `json:"transcript"`
	DurationSeconds       *float64 `json:"duration,omitempty"`
	WordCount             *int     `json:"wordCount,omitempty"`
	AccuracyPercent       *float64 `json:"accuracy,omitempty"`
	ProcessingTimeSeconds *float64 `json:"processingTime,omitempty"`
}
