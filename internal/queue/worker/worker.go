package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bellcorp/events/internal/domain/job"
	"github.com/bellcorp/events/internal/domain/user"
	"github.com/bellcorp/events/internal/notifications"
	"github.com/bellcorp/events/internal/observability"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
}

type UserReader interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

type Config struct {
	PollInterval  time.Duration
	WorkerID      string
	Concurrency   int
	ShutdownGrace time.Duration
	LockTTL       time.Duration
}

type Worker struct {
	cfg      Config
	repo     JobsRepository
	users    UserReader
	notifier notifications.Notifier
	prom     *observability.Prom
	stats    *observability.JobStats
	log      *slog.Logger

	// nudge wakes the loops ahead of the next poll tick; may be nil, the
	// ticker alone is enough for correctness
	nudge <-chan struct{}

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, repo JobsRepository, users UserReader, notifier notifications.Notifier, prom *observability.Prom, log *slog.Logger, nudge <-chan struct{}) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}

	return &Worker{
		cfg:      cfg,
		repo:     repo,
		users:    users,
		notifier: notifier,
		prom:     prom,
		stats:    observability.NewJobStats(),
		log:      log,
		nudge:    nudge,
	}
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	var wg sync.WaitGroup

	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}

	// janitor: put back jobs whose worker died while holding the lock
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.janitor(ctx)
	}()

	<-ctx.Done()
	w.log.Info("worker received shutdown signal")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.log.Info("worker shutdown complete")
	case <-time.After(w.cfg.ShutdownGrace):
		w.log.Error("worker shutdown grace exceeded")
	}

	return nil
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	nudge := w.nudge

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			w.drain(ctx)

		case _, ok := <-nudge:
			if !ok {
				// nudge channel closed; keep polling
				nudge = nil
				continue
			}
			w.drain(ctx)
		}
	}
}

// drain processes jobs until the queue reports empty.
func (w *Worker) drain(ctx context.Context) {
	for {
		processed, err := w.ProcessOne(ctx)

		if err != nil {
			w.log.Error("job processing error", "err", err)
			return
		}

		if !processed {
			return
		}

		if ctx.Err() != nil {
			return
		}
	}
}

func (w *Worker) janitor(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.LockTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.repo.RequeueStaleProcessing(ctx, w.cfg.LockTTL)
			if err != nil {
				w.log.Error("requeue stale failed", "err", err)
				continue
			}
			if n > 0 {
				w.log.Warn("requeued stale jobs", "count", n)
			}
		}
	}
}
