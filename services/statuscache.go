package services

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"transcriber/config"
	"transcriber/models"
)

// StatusCache mirrors each job's current status into a Redis hash so status
// polling never hits the database. It is advisory: the store stays the source
// of truth and cache write failures are the caller's to ignore.
type StatusCache struct {
	client *redis.Client
	cfg    *config.Config
}

func NewStatusCache(cfg *config.Config, client *redis.Client) *StatusCache {
	return &StatusCache{client: client, cfg: cfg}
}

func (s *StatusCache) Set(ctx context.Context, jobID string, status models.JobStatus, errorMsg string) error {
	fields := map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now().Format(time.RFC3339),
	}
	if errorMsg != "" {
		fields["error"] = errorMsg
	}
	return s.client.HSet(ctx, s.cfg.StatusKey(jobID), fields).Err()
}

func (s *StatusCache) Get(ctx context.Context, jobID string) (string, error) {
	status, err := s.client.HGet(ctx, s.cfg.StatusKey(jobID), "status").Result()
	if err == redis.Nil {
		return "", models.ErrNotFound
	}
	return status, err
}
