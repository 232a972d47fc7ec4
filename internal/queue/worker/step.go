package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bellcorp/events/internal/domain/job"
	"github.com/bellcorp/events/internal/jobs"
	"github.com/bellcorp/events/internal/notifications"
)

// ProcessOne claims and runs a single job. The bool reports whether a job
// was available at all.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)

	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return false, nil
		}

		return false, err
	}

	start := time.Now()
	w.stats.IncClaimed()

	if w.prom != nil {
		w.prom.JobsInFlight.Inc()
	}

	err = w.execute(ctx, j)

	if w.prom != nil {
		w.prom.JobsInFlight.Dec()
	}

	if err != nil {
		result := w.handleFailure(ctx, j, err)
		w.observeJob(j.Type, result, time.Since(start))
		return true, nil
	}

	err = w.repo.MarkDone(ctx, j.ID)

	if err != nil {
		_ = w.repo.MarkFailed(ctx, j.ID, "mark_done_failed: "+err.Error())
		w.observeJob(j.Type, "failed", time.Since(start))
		return true, err
	}

	w.observeJob(j.Type, "done", time.Since(start))
	return true, nil
}

func (w *Worker) execute(ctx context.Context, j job.Job) error {
	payload, err := jobs.DecodeNotice(j)

	if err != nil {
		return err
	}

	u, err := w.users.GetByID(ctx, payload.UserID)

	if err != nil {
		return fmt.Errorf("load user %s: %w", payload.UserID, err)
	}

	input := notifications.RegistrationNoticeInput{
		Email:          u.Email,
		Name:           u.Name,
		EventName:      payload.EventName,
		RegistrationID: payload.RegistrationID,
	}

	switch j.Type {
	case jobs.TypeRegistrationConfirmed:
		return w.notifier.SendRegistrationConfirmation(ctx, input)
	case jobs.TypeRegistrationCancelled:
		return w.notifier.SendCancellationNotice(ctx, input)
	default:
		return jobs.ErrUnknownJobType
	}
}

// handleFailure decides between a retry with backoff and a permanent
// failure, and returns the result label for metrics.
func (w *Worker) handleFailure(ctx context.Context, j job.Job, execErr error) string {
	// malformed payloads never heal; retrying burns attempts for nothing
	if errors.Is(execErr, jobs.ErrUnknownJobType) || errors.Is(execErr, jobs.ErrInvalidPayload) {
		_ = w.repo.MarkFailed(ctx, j.ID, execErr.Error())
		return "failed"
	}

	if j.Attempts+1 >= j.MaxAttempts {
		if err := w.repo.MarkFailed(ctx, j.ID, execErr.Error()); err != nil {
			w.log.Error("mark failed error", "job", j.ID, "err", err)
		}
		return "failed"
	}

	runAt := time.Now().UTC().Add(ExponentialBackoff(j.Attempts))

	if err := w.repo.Reschedule(ctx, j.ID, runAt, execErr.Error()); err != nil {
		w.log.Error("reschedule error", "job", j.ID, "err", err)
		return "failed"
	}

	return "retry"
}

func (w *Worker) observeJob(jobType, result string, d time.Duration) {
	w.stats.ObserveDuration(d)

	switch result {
	case "done":
		w.stats.IncDone()
	case "retry":
		w.stats.IncRetried()
	case "failed":
		w.stats.IncFailed()
	}

	if w.prom == nil {
		return
	}

	w.prom.JobResults.WithLabelValues(jobType, result).Inc()
	w.prom.JobDuration.WithLabelValues(jobType, result).Observe(d.Seconds())
}
