package lifecycle

import (
	"context"
	"log"
	"time"

	"transcriber/models"
)

type staleLister interface {
	ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]models.Job, error)
}

// Sweeper reconciles jobs stuck in processing: the external worker offers no
// delivery guarantee, so a job whose webhook never arrives would otherwise
// sit in processing forever. Enabled by configuration; the lifecycle itself
// never times jobs out.
type Sweeper struct {
	store      staleLister
	orch       *Orchestrator
	interval   time.Duration
	staleAfter time.Duration
}

func NewSweeper(store staleLister, orch *Orchestrator, interval, staleAfter time.Duration) *Sweeper {
	return &Sweeper{
		store:      store,
		orch:       orch,
		interval:   interval,
		staleAfter: staleAfter,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Println("[Sweeper] Starting stale job recovery loop")

	for {
		select {
		case <-ctx.Done():
			log.Println("[Sweeper] Shutting down")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.staleAfter)
	jobs, err := s.store.ListStaleProcessing(ctx, cutoff)
	if err != nil {
		log.Printf("[Sweeper] Failed to list stale jobs: %v", err)
		return
	}

	for _, job := range jobs {
		if _, err := s.orch.Fail(ctx, job.ID, "processing timed out"); err != nil {
			log.Printf("[Sweeper] Failed to fail stale job %s: %v", job.ID, err)
		}
	}

	if len(jobs) > 0 {
		log.Printf("[Sweeper] Failed %d stale jobs", len(jobs))
	}
}
