package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"transcriber/models"
	"transcriber/services"
)

type fakeStore struct {
	mu        sync.Mutex
	jobs      map[string]*models.Job
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]*models.Job)}
}

func (f *fakeStore) InsertJob(_ context.Context, job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeStore) GetJob(_ context.Context, jobID string) (models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return models.Job{}, models.ErrNotFound
	}
	return *job, nil
}

func (f *fakeStore) MarkProcessing(_ context.Context, jobID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok || job.Status != models.StatusPending {
		return false, nil
	}
	job.Status = models.StatusProcessing
	return true, nil
}

func (f *fakeStore) CompleteJob(_ context.Context, jobID string, result models.TranscriptionResult) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok || job.Status.Terminal() {
		return false, nil
	}
	job.Status = models.StatusCompleted
	job.TranscriptText = &result.Transcript
	job.DurationSeconds = result.DurationSeconds
	job.WordCount = result.WordCount
	job.AccuracyPercent = result.AccuracyPercent
	job.ProcessingTimeSeconds = result.ProcessingTimeSeconds
	return true, nil
}

func (f *fakeStore) FailJob(_ context.Context, jobID string, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok || job.Status.Terminal() {
		return false, nil
	}
	job.Status = models.StatusFailed
	if reason != "" {
		job.ErrorMessage = &reason
	}
	return true, nil
}

type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]models.Account
}

func newFakeAccounts(accounts ...models.Account) *fakeAccounts {
	f := &fakeAccounts{accounts: make(map[string]models.Account)}
	for _, a := range accounts {
		f.accounts[a.ID] = a
	}
	return f
}

func (f *fakeAccounts) GetAccount(_ context.Context, accountID string) (models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[accountID]
	if !ok {
		return models.Account{}, models.ErrNotFound
	}
	return acct, nil
}

func (f *fakeAccounts) IncrementJobsUsed(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[accountID]
	if !ok {
		return models.ErrNotFound
	}
	acct.JobsUsed++
	f.accounts[accountID] = acct
	return nil
}

func (f *fakeAccounts) jobsUsed(accountID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[accountID].JobsUsed
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakePublisher) Enqueue(_ context.Context, jobID, sourceURL, callbackURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, jobID)
	if f.err != nil {
		return &models.PublishError{Err: f.err}
	}
	if !strings.Contains(callbackURL, jobID) {
		return &models.PublishError{Err: fmt.Errorf("callback URL %q missing job id", callbackURL)}
	}
	return nil
}

func (f *fakePublisher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type emittedEvent struct {
	accountID string
	kind      models.NotificationKind
	jobID     string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []emittedEvent
}

func (f *fakeNotifier) Emit(_ context.Context, accountID string, kind models.NotificationKind, jobID, title, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emittedEvent{accountID: accountID, kind: kind, jobID: jobID})
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type stubResolver struct{ title string }

func (s stubResolver) Resolve(context.Context, string) string { return s.title }

type testHarness struct {
	orch      *Orchestrator
	store     *fakeStore
	accounts  *fakeAccounts
	publisher *fakePublisher
	notifier  *fakeNotifier
}

func newHarness(accounts ...models.Account) *testHarness {
	store := newFakeStore()
	accts := newFakeAccounts(accounts...)
	publisher := &fakePublisher{}
	notifier := &fakeNotifier{}
	orch := NewOrchestrator(
		store,
		accts,
		services.NewQuotaPolicy(accts),
		publisher,
		notifier,
		stubResolver{title: "Test Video"},
		nil,
		"http://localhost:8080",
	)
	return &testHarness{orch: orch, store: store, accounts: accts, publisher: publisher, notifier: notifier}
}

func strPtr(s string) *string { return &s }

func TestCreate_InvalidSourceURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		sourceURL string
	}{
		{"empty", ""},
		{"no scheme", "video.example/abc"},
		{"bad scheme", "ftp://video.example/abc"},
		{"no host", "https://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			_, err := h.orch.Create(context.Background(), nil, tt.sourceURL)
			if !errors.Is(err, models.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if len(h.store.jobs) != 0 {
				t.Fatalf("expected no job persisted, got %d", len(h.store.jobs))
			}
		})
	}
}

func TestCreate_QuotaEnforcement(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		tier     models.SubscriptionTier
		jobsUsed int
		wantErr  bool
	}{
		{"free at ceiling", models.TierFree, 3, true},
		{"free under ceiling", models.TierFree, 2, false},
		{"pro with free-level usage", models.TierPro, 3, false},
		{"pro at ceiling", models.TierPro, 100, true},
		{"enterprise unlimited", models.TierEnterprise, 100000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(models.Account{ID: "acct-1", Tier: tt.tier, JobsUsed: tt.jobsUsed})
			_, err := h.orch.Create(context.Background(), strPtr("acct-1"), "https://video.example/abc")

			if tt.wantErr {
				if !errors.Is(err, models.ErrQuotaExceeded) {
					t.Fatalf("expected ErrQuotaExceeded, got %v", err)
				}
				if len(h.store.jobs) != 0 {
					t.Fatal("expected no job row on quota rejection")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected create to succeed, got %v", err)
			}
		})
	}
}

func TestCreate_UnknownAccountFailsClosed(t *testing.T) {
	t.Parallel()

	h := newHarness()
	_, err := h.orch.Create(context.Background(), strPtr("ghost"), "https://video.example/abc")
	if !errors.Is(err, models.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded for unknown account, got %v", err)
	}
}

func TestCreate_AnonymousBypassesQuota(t *testing.T) {
	t.Parallel()

	h := newHarness(models.Account{ID: "acct-1", Tier: models.TierFree, JobsUsed: 3})

	job, err := h.orch.Create(context.Background(), nil, "https://video.example/abc")
	if err != nil {
		t.Fatalf("anonymous create failed: %v", err)
	}
	if job.Status != models.StatusPending {
		t.Fatalf("expected pending, got %s", job.Status)
	}
	if job.OwnerID != nil {
		t.Fatal("expected nil owner")
	}
	if used := h.accounts.jobsUsed("acct-1"); used != 3 {
		t.Fatalf("anonymous create mutated usage: %d", used)
	}
}

func TestSubmit_NotFound(t *testing.T) {
	t.Parallel()

	h := newHarness()
	err := h.orch.Submit(context.Background(), "missing")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmit_NotIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness()
	job, err := h.orch.Create(context.Background(), nil, "https://video.example/abc")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := h.orch.Submit(context.Background(), job.ID); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	err = h.orch.Submit(context.Background(), job.ID)
	if !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on double submit, got %v", err)
	}
	if h.publisher.callCount() != 1 {
		t.Fatalf("expected exactly one enqueue, got %d", h.publisher.callCount())
	}
}

func TestSubmit_PublishFailureMarksJobFailed(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.publisher.err = errors.New("transport down")

	job, err := h.orch.Create(context.Background(), nil, "https://video.example/abc")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	err = h.orch.Submit(context.Background(), job.ID)
	var publishErr *models.PublishError
	if !errors.As(err, &publishErr) {
		t.Fatalf("expected PublishError, got %v", err)
	}

	stored, err := h.store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Status != models.StatusFailed {
		t.Fatalf("expected failed after publish error, got %s", stored.Status)
	}
}

func TestComplete_FromProcessing(t *testing.T) {
	t.Parallel()

	h := newHarness(models.Account{ID: "acct-1", Tier: models.TierFree, JobsUsed: 0})
	job, _ := h.orch.Create(context.Background(), strPtr("acct-1"), "https://video.example/abc")
	if err := h.orch.Submit(context.Background(), job.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	wordCount := 1
	updated, err := h.orch.Complete(context.Background(), job.ID, models.TranscriptionResult{
		Transcript: "hello",
		WordCount:  &wordCount,
	})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	if updated.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
	if updated.TranscriptText == nil || *updated.TranscriptText != "hello" {
		t.Fatalf("transcript not stored: %+v", updated.TranscriptText)
	}
	if used := h.accounts.jobsUsed("acct-1"); used != 1 {
		t.Fatalf("expected usage 1, got %d", used)
	}
	if h.notifier.count() != 1 {
		t.Fatalf("expected one notification, got %d", h.notifier.count())
	}
	if h.notifier.events[0].kind != models.NotifyCompleted {
		t.Fatalf("expected completed notification, got %s", h.notifier.events[0].kind)
	}
}

func TestComplete_AcceptedFromPending(t *testing.T) {
	t.Parallel()

	// The webhook can arrive before Submit finishes; completion from
	// pending is valid.
	h := newHarness()
	job, _ := h.orch.Create(context.Background(), nil, "https://video.example/abc")

	updated, err := h.orch.Complete(context.Background(), job.ID, models.TranscriptionResult{Transcript: "early"})
	if err != nil {
		t.Fatalf("complete from pending failed: %v", err)
	}
	if updated.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
}

func TestComplete_DuplicateDeliveryIsNoOp(t *testing.T) {
	t.Parallel()

	h := newHarness(models.Account{ID: "acct-1", Tier: models.TierFree, JobsUsed: 0})
	job, _ := h.orch.Create(context.Background(), strPtr("acct-1"), "https://video.example/abc")
	_ = h.orch.Submit(context.Background(), job.ID)

	first, err := h.orch.Complete(context.Background(), job.ID, models.TranscriptionResult{Transcript: "hello"})
	if err != nil {
		t.Fatalf("first complete failed: %v", err)
	}

	second, err := h.orch.Complete(context.Background(), job.ID, models.TranscriptionResult{Transcript: "different payload"})
	if err != nil {
		t.Fatalf("duplicate complete returned error: %v", err)
	}
	if second.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", second.Status)
	}
	if *second.TranscriptText != *first.TranscriptText {
		t.Fatalf("duplicate delivery overwrote transcript: %q", *second.TranscriptText)
	}
	if used := h.accounts.jobsUsed("acct-1"); used != 1 {
		t.Fatalf("duplicate delivery changed usage: %d", used)
	}
	if h.notifier.count() != 1 {
		t.Fatalf("duplicate delivery emitted extra notification: %d", h.notifier.count())
	}

	// fail() after completed is equally a no-op.
	failed, err := h.orch.Fail(context.Background(), job.ID, "late failure report")
	if err != nil {
		t.Fatalf("fail on completed job returned error: %v", err)
	}
	if failed.Status != models.StatusCompleted {
		t.Fatalf("fail mutated a completed job: %s", failed.Status)
	}
}

func TestComplete_ConcurrentDuplicatesCountUsageOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(models.Account{ID: "acct-1", Tier: models.TierPro, JobsUsed: 0})
	job, _ := h.orch.Create(context.Background(), strPtr("acct-1"), "https://video.example/abc")
	_ = h.orch.Submit(context.Background(), job.ID)

	const deliveries = 20
	var wg sync.WaitGroup
	wg.Add(deliveries)
	for i := 0; i < deliveries; i++ {
		go func() {
			defer wg.Done()
			_, _ = h.orch.Complete(context.Background(), job.ID, models.TranscriptionResult{Transcript: "hello"})
		}()
	}
	wg.Wait()

	if used := h.accounts.jobsUsed("acct-1"); used != 1 {
		t.Fatalf("expected usage 1 after concurrent duplicates, got %d", used)
	}
	stored, _ := h.store.GetJob(context.Background(), job.ID)
	if stored.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}
}

func TestFail_RecordsReasonAndNotifies(t *testing.T) {
	t.Parallel()

	h := newHarness(models.Account{ID: "acct-1", Tier: models.TierFree, JobsUsed: 0})
	job, _ := h.orch.Create(context.Background(), strPtr("acct-1"), "https://video.example/abc")
	_ = h.orch.Submit(context.Background(), job.ID)

	updated, err := h.orch.Fail(context.Background(), job.ID, "audio track missing")
	if err != nil {
		t.Fatalf("fail returned error: %v", err)
	}
	if updated.Status != models.StatusFailed {
		t.Fatalf("expected failed, got %s", updated.Status)
	}
	if updated.ErrorMessage == nil || *updated.ErrorMessage != "audio track missing" {
		t.Fatalf("reason not recorded: %+v", updated.ErrorMessage)
	}
	if used := h.accounts.jobsUsed("acct-1"); used != 0 {
		t.Fatalf("failed job counted against usage: %d", used)
	}
	if h.notifier.count() != 1 || h.notifier.events[0].kind != models.NotifyFailed {
		t.Fatalf("expected one failed notification, got %+v", h.notifier.events)
	}
}

func TestComplete_AnonymousJobSkipsUsage(t *testing.T) {
	t.Parallel()

	h := newHarness(models.Account{ID: "acct-1", Tier: models.TierFree, JobsUsed: 0})
	job, _ := h.orch.Create(context.Background(), nil, "https://video.example/abc")
	_ = h.orch.Submit(context.Background(), job.ID)

	if _, err := h.orch.Complete(context.Background(), job.ID, models.TranscriptionResult{Transcript: "hi"}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if used := h.accounts.jobsUsed("acct-1"); used != 0 {
		t.Fatalf("anonymous completion mutated usage: %d", used)
	}
	if h.notifier.count() != 0 {
		t.Fatalf("anonymous completion emitted account notification: %d", h.notifier.count())
	}
}

func TestFreeTierLifecycleScenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(models.Account{ID: "acct-1", Tier: models.TierFree, JobsUsed: 2})

	job, err := h.orch.Create(ctx, strPtr("acct-1"), "https://video.example/abc")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if job.Status != models.StatusPending {
		t.Fatalf("expected pending, got %s", job.Status)
	}

	if err := h.orch.Submit(ctx, job.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	stored, _ := h.store.GetJob(ctx, job.ID)
	if stored.Status != models.StatusProcessing {
		t.Fatalf("expected processing, got %s", stored.Status)
	}
	if h.publisher.callCount() != 1 {
		t.Fatalf("expected one enqueue, got %d", h.publisher.callCount())
	}

	wordCount := 1
	completed, err := h.orch.Complete(ctx, job.ID, models.TranscriptionResult{
		Transcript: "hello",
		WordCount:  &wordCount,
	})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if completed.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}
	if used := h.accounts.jobsUsed("acct-1"); used != 3 {
		t.Fatalf("expected usage 3/3, got %d", used)
	}

	// Duplicate identical webhook delivery changes nothing.
	dup, err := h.orch.Complete(ctx, job.ID, models.TranscriptionResult{
		Transcript: "hello",
		WordCount:  &wordCount,
	})
	if err != nil {
		t.Fatalf("duplicate complete failed: %v", err)
	}
	if dup.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", dup.Status)
	}
	if used := h.accounts.jobsUsed("acct-1"); used != 3 {
		t.Fatalf("duplicate changed usage: %d", used)
	}

	// The account is now at its ceiling.
	_, err = h.orch.Create(ctx, strPtr("acct-1"), "https://video.example/next")
	if !errors.Is(err, models.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded at 3/3, got %v", err)
	}
}
