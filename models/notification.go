package models

import "time"

type NotificationKind string

const (
	NotifyCompleted NotificationKind = "completed"
	NotifyFailed    NotificationKind = "failed"
	NotifySystem    NotificationKind = "system"
)

type Notification struct {
	ID        string           `json:"id"`
	AccountID string           `json:"accountId"`
	Kind      NotificationKind `json:"kind"`
	JobID     string           `json:"jobId,omitempty"`
	Title     string           `json:"title"`
	Detail    string           `json:"detail,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}
