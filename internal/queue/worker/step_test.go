package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bellcorp/events/internal/domain/job"
	"github.com/bellcorp/events/internal/domain/user"
	"github.com/bellcorp/events/internal/jobs"
	"github.com/bellcorp/events/internal/notifications"
)

type fakeJobsRepo struct {
	claimFn      func(ctx context.Context, workerID string) (job.Job, error)
	doneIDs      []string
	failed       map[string]string
	rescheduled  map[string]time.Time
	requeueCalls int
}

func newFakeJobsRepo() *fakeJobsRepo {
	return &fakeJobsRepo{
		failed:      make(map[string]string),
		rescheduled: make(map[string]time.Time),
	}
}

func (f *fakeJobsRepo) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	if f.claimFn != nil {
		return f.claimFn(ctx, workerID)
	}
	return job.Job{}, job.ErrJobNotFound
}

func (f *fakeJobsRepo) MarkDone(ctx context.Context, id string) error {
	f.doneIDs = append(f.doneIDs, id)
	return nil
}

func (f *fakeJobsRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	f.failed[id] = errMsg
	return nil
}

func (f *fakeJobsRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	f.rescheduled[id] = runAt
	return nil
}

func (f *fakeJobsRepo) RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error) {
	f.requeueCalls++
	return 0, nil
}

type fakeUsers struct {
	u   user.User
	err error
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (user.User, error) {
	if f.err != nil {
		return user.User{}, f.err
	}
	return f.u, nil
}

type fakeNotifier struct {
	confirmations []notifications.RegistrationNoticeInput
	cancellations []notifications.RegistrationNoticeInput
	err           error
}

func (f *fakeNotifier) SendRegistrationConfirmation(ctx context.Context, in notifications.RegistrationNoticeInput) error {
	if f.err != nil {
		return f.err
	}
	f.confirmations = append(f.confirmations, in)
	return nil
}

func (f *fakeNotifier) SendCancellationNotice(ctx context.Context, in notifications.RegistrationNoticeInput) error {
	if f.err != nil {
		return f.err
	}
	f.cancellations = append(f.cancellations, in)
	return nil
}

func testWorker(repo *fakeJobsRepo, users *fakeUsers, notifier *fakeNotifier) *Worker {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(Config{
		PollInterval: time.Millisecond,
		WorkerID:     "test-worker",
	}, repo, users, notifier, nil, log, nil)
}

func noticeJob(t *testing.T, typ string, attempts, maxAttempts int) job.Job {
	t.Helper()

	raw, err := jobs.RegistrationNoticePayload{
		RegistrationID: "reg-1",
		UserID:         "user-1",
		EventID:        "event-1",
		EventName:      "Go Conference",
		RequestedAt:    time.Now().UTC(),
	}.JSON()
	if err != nil {
		t.Fatalf("payload: %v", err)
	}

	j := job.New(job.CreateRequest{
		Type:        typ,
		Payload:     raw,
		MaxAttempts: maxAttempts,
	})
	j.Attempts = attempts
	return j
}

func TestProcessOneNoJob(t *testing.T) {
	repo := newFakeJobsRepo()
	w := testWorker(repo, &fakeUsers{}, &fakeNotifier{})

	claimed, err := w.ProcessOne(context.Background())

	if err != nil {
		t.Fatalf("got error: %v", err)
	}
	if claimed {
		t.Fatal("reported a claim with an empty queue")
	}
}

func TestProcessOneConfirmationDelivered(t *testing.T) {
	j := noticeJob(t, jobs.TypeRegistrationConfirmed, 0, 10)

	repo := newFakeJobsRepo()
	repo.claimFn = func(ctx context.Context, workerID string) (job.Job, error) {
		return j, nil
	}

	notifier := &fakeNotifier{}
	users := &fakeUsers{u: user.User{ID: "user-1", Email: "u@example.com", Name: "Uma"}}

	w := testWorker(repo, users, notifier)

	claimed, err := w.ProcessOne(context.Background())

	if err != nil || !claimed {
		t.Fatalf("got (%v, %v), want (true, nil)", claimed, err)
	}

	if len(notifier.confirmations) != 1 {
		t.Fatalf("confirmations = %d, want 1", len(notifier.confirmations))
	}

	got := notifier.confirmations[0]
	if got.Email != "u@example.com" || got.EventName != "Go Conference" {
		t.Fatalf("unexpected notice input: %+v", got)
	}

	if len(repo.doneIDs) != 1 || repo.doneIDs[0] != j.ID {
		t.Fatalf("job not marked done: %+v", repo.doneIDs)
	}
}

func TestProcessOneCancellationDelivered(t *testing.T) {
	j := noticeJob(t, jobs.TypeRegistrationCancelled, 0, 10)

	repo := newFakeJobsRepo()
	repo.claimFn = func(ctx context.Context, workerID string) (job.Job, error) {
		return j, nil
	}

	notifier := &fakeNotifier{}
	w := testWorker(repo, &fakeUsers{u: user.User{ID: "user-1", Email: "u@example.com"}}, notifier)

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(notifier.cancellations) != 1 {
		t.Fatalf("cancellations = %d, want 1", len(notifier.cancellations))
	}
}

func TestProcessOneUnknownTypeFailsPermanently(t *testing.T) {
	j := noticeJob(t, jobs.TypeRegistrationConfirmed, 0, 10)
	j.Type = "billing.invoice"

	repo := newFakeJobsRepo()
	repo.claimFn = func(ctx context.Context, workerID string) (job.Job, error) {
		return j, nil
	}

	w := testWorker(repo, &fakeUsers{}, &fakeNotifier{})

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}

	if _, ok := repo.failed[j.ID]; !ok {
		t.Fatal("unknown type should be marked failed, not retried")
	}
	if len(repo.rescheduled) != 0 {
		t.Fatal("unknown type should never be rescheduled")
	}
}

func TestProcessOneRetriesWithBackoff(t *testing.T) {
	j := noticeJob(t, jobs.TypeRegistrationConfirmed, 2, 10)

	repo := newFakeJobsRepo()
	repo.claimFn = func(ctx context.Context, workerID string) (job.Job, error) {
		return j, nil
	}

	notifier := &fakeNotifier{err: errors.New("smtp down")}
	w := testWorker(repo, &fakeUsers{u: user.User{ID: "user-1"}}, notifier)

	before := time.Now().UTC()

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}

	runAt, ok := repo.rescheduled[j.ID]
	if !ok {
		t.Fatal("expected a reschedule")
	}

	if !runAt.After(before) {
		t.Fatalf("runAt %v should be in the future", runAt)
	}

	if len(repo.failed) != 0 {
		t.Fatal("should not be marked failed while attempts remain")
	}
}

func TestProcessOneExhaustedAttemptsFail(t *testing.T) {
	j := noticeJob(t, jobs.TypeRegistrationConfirmed, 9, 10)

	repo := newFakeJobsRepo()
	repo.claimFn = func(ctx context.Context, workerID string) (job.Job, error) {
		return j, nil
	}

	notifier := &fakeNotifier{err: errors.New("smtp down")}
	w := testWorker(repo, &fakeUsers{u: user.User{ID: "user-1"}}, notifier)

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}

	if _, ok := repo.failed[j.ID]; !ok {
		t.Fatal("final attempt should mark the job failed")
	}
	if len(repo.rescheduled) != 0 {
		t.Fatal("final attempt should not reschedule")
	}
}

func TestExponentialBackoffGrowsAndCaps(t *testing.T) {
	for attempt := 0; attempt < 12; attempt++ {
		d := ExponentialBackoff(attempt)

		if d <= 0 {
			t.Fatalf("attempt %d: non-positive backoff %v", attempt, d)
		}

		// jitter aside, the cap bounds everything
		if d > 5*time.Minute+time.Second {
			t.Fatalf("attempt %d: backoff %v above cap", attempt, d)
		}
	}

	// later attempts sit at the cap regardless of jitter
	if ExponentialBackoff(20) < 5*time.Minute {
		t.Fatal("deep attempts should hit the cap")
	}
}
