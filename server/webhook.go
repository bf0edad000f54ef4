package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"transcriber/models"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

type webhookPayload struct {
	Success        bool     `json:"success"`
	Transcript     string   `json:"transcript,omitempty"`
	Duration       *float64 `json:"duration,omitempty"`
	WordCount      *int     `json:"wordCount,omitempty"`
	Accuracy       *float64 `json:"accuracy,omitempty"`
	ProcessingTime *float64 `json:"processingTime,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// handleWebhook is the callback the external transcription worker invokes.
// The sender retries on its own schedule, so duplicate and out-of-order
// deliveries are expected here; the orchestrator absorbs them.
func (s Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return
	}

	if !verifySignature(s.WebhookSecret, body, r.Header.Get(SignatureHeader)) {
		writeErr(w, http.StatusUnauthorized, fmt.Errorf("invalid webhook signature"))
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid webhook payload: %w", err))
		return
	}

	jobID := chi.URLParam(r, "id")

	var job models.Job
	if payload.Success {
		job, err = s.Jobs.Complete(r.Context(), jobID, models.TranscriptionResult{
			Transcript:            payload.Transcript,
			DurationSeconds:       payload.Duration,
			WordCount:             payload.WordCount,
			AccuracyPercent:       payload.Accuracy,
			ProcessingTimeSeconds: payload.ProcessingTime,
		})
	} else {
		reason := payload.Error
		if reason == "" {
			reason = "transcription failed"
		}
		job, err = s.Jobs.Fail(r.Context(), jobID, reason)
	}
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// Sign computes the hex HMAC-SHA256 signature the webhook expects. Exported
// for callers that need to produce valid deliveries.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifySignature(secret string, body []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	expected, err := hex.DecodeString(header)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(expected, mac.Sum(nil))
}
