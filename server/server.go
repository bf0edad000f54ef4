package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"transcriber/models"
)

// Lifecycle is the slice of the orchestrator the HTTP surface drives.
type Lifecycle interface {
	Create(ctx context.Context, ownerID *string, sourceURL string) (models.Job, error)
	Submit(ctx context.Context, jobID string) error
	Complete(ctx context.Context, jobID string, result models.TranscriptionResult) (models.Job, error)
	Fail(ctx context.Context, jobID string, reason string) (models.Job, error)
}

type JobReader interface {
	GetJob(ctx context.Context, jobID string) (models.Job, error)
	ListJobs(ctx context.Context, ownerID *string, limit int) ([]models.Job, error)
}

type NotificationStore interface {
	ListNotifications(ctx context.Context, accountID string, limit int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, accountID string) (int, error)
	MarkNotificationRead(ctx context.Context, notificationID string) error
}

type Server struct {
	Jobs          Lifecycle
	Reader        JobReader
	Notifications NotificationStore
	WebhookSecret string
}

func (s Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Post("/jobs/{id}/webhook", s.handleWebhook)
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleListNotifications)
			r.Get("/unread-count", s.handleUnreadCount)
			r.Post("/{id}/read", s.handleMarkRead)
		})
	})

	return r
}

type createJobRequest struct {
	SourceURL string  `json:"sourceUrl"`
	OwnerID   *string `json:"ownerId,omitempty"`
}

func (s Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	job, err := s.Jobs.Create(ctx, req.OwnerID, req.SourceURL)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}

	if err := s.Jobs.Submit(ctx, job.ID); err != nil {
		// The job row exists (and is failed on publish errors), so hand the
		// caller its id alongside the error.
		writeJSON(w, statusFor(err), map[string]any{
			"jobId": job.ID,
			"error": err.Error(),
		})
		return
	}

	created, err := s.Reader.GetJob(ctx, job.ID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.Reader.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var ownerID *string
	if raw := strings.TrimSpace(r.URL.Query().Get("ownerId")); raw != "" {
		ownerID = &raw
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"), 25)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	jobs, err := s.Reader.ListJobs(r.Context(), ownerID, limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(r.URL.Query().Get("accountId"))
	if accountID == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("missing accountId"))
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"), 20)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	notifications, err := s.Notifications.ListNotifications(r.Context(), accountID, limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (s Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(r.URL.Query().Get("accountId"))
	if accountID == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("missing accountId"))
		return
	}

	count, err := s.Notifications.UnreadCount(r.Context(), accountID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.Notifications.MarkNotificationRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseLimit(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid limit: %s", raw)
	}
	if value > 100 {
		value = 100
	}
	return value, nil
}

func statusFor(err error) int {
	var publishErr *models.PublishError
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrQuotaExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, models.ErrInvalidState):
		return http.StatusConflict
	case errors.As(err, &publishErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}
