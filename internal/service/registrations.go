package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bellcorp/events/internal/domain/event"
	"github.com/bellcorp/events/internal/domain/job"
	"github.com/bellcorp/events/internal/domain/registration"
	"github.com/bellcorp/events/internal/jobs"
	"github.com/bellcorp/events/internal/repo/postgres"
	"github.com/jackc/pgx/v5"
)

// EventStore is the slice of the events repo the registration flow needs:
// a locked read plus the guarded seat adjustment, both inside an
// externally-supplied transaction.
type EventStore interface {
	GetForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (event.Event, error)
	AdjustSeatsTx(ctx context.Context, tx pgx.Tx, id string, delta int) error
}

type RegistrationStore interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	FindActiveTx(ctx context.Context, tx pgx.Tx, userID, eventID string) (registration.Registration, error)
	CreateTx(ctx context.Context, tx pgx.Tx, reg registration.Registration) error
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id string, status registration.Status) error
	FindActive(ctx context.Context, userID, eventID string) (registration.Registration, error)
	ListActiveForUser(ctx context.Context, userID string) ([]registration.Registration, error)
}

type JobEnqueuer interface {
	CreateTx(ctx context.Context, tx pgx.Tx, req job.CreateRequest) (job.Job, error)
}

// QueueNudger wakes the notification worker after a commit. Best effort;
// the worker's poll loop picks up anything a lost nudge leaves behind.
type QueueNudger interface {
	NotifyJobEnqueued(ctx context.Context) error
}

// Registrations owns the seat-consistency invariant: for every event,
// available_seats plus the number of active registrations equals capacity.
// Both sides of that equation are only ever touched inside one transaction,
// with the event row locked first; correctness rests on the storage layer's
// isolation plus the partial unique index on active (user_id, event_id)
// pairs, not on any in-process lock.
type Registrations struct {
	log    *slog.Logger
	events EventStore
	regs   RegistrationStore
	jobs   JobEnqueuer
	nudge  QueueNudger
}

func NewRegistrations(log *slog.Logger, events EventStore, regs RegistrationStore, jobs JobEnqueuer, nudge QueueNudger) *Registrations {
	return &Registrations{
		log:    log,
		events: events,
		regs:   regs,
		jobs:   jobs,
		nudge:  nudge,
	}
}

// Register claims one seat on the event for the user.
//
// Preconditions are validated in order inside the transaction: the event
// exists, a seat is left, and the user holds no active registration for it.
// On commit exactly one seat was consumed and exactly one active
// registration exists for the pair; on any failure nothing is visible.
func (s *Registrations) Register(ctx context.Context, userID, eventID string) (registration.Registration, error) {
	tx, err := s.regs.BeginTx(ctx)

	if err != nil {
		return registration.Registration{}, s.storageErr(err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	ev, err := s.events.GetForUpdateTx(ctx, tx, eventID)

	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			return registration.Registration{}, err
		}
		return registration.Registration{}, s.storageErr(err)
	}

	if ev.AvailableSeats <= 0 {
		return registration.Registration{}, registration.ErrSoldOut
	}

	_, err = s.regs.FindActiveTx(ctx, tx, userID, eventID)

	if err == nil {
		return registration.Registration{}, registration.ErrAlreadyRegistered
	}

	if !errors.Is(err, registration.ErrNotFound) {
		return registration.Registration{}, s.storageErr(err)
	}

	// re-registration after a cancellation always inserts a fresh row; the
	// cancelled history stays untouched
	reg := registration.New(userID, eventID)

	err = s.regs.CreateTx(ctx, tx, reg)

	if err != nil {
		if errors.Is(err, registration.ErrAlreadyRegistered) {
			return registration.Registration{}, err
		}
		return registration.Registration{}, s.storageErr(err)
	}

	err = s.events.AdjustSeatsTx(ctx, tx, eventID, -1)

	if err != nil {
		if errors.Is(err, postgres.ErrSeatAdjustmentRejected) {
			// the locked read said a seat was left, so this only fires if
			// the counter drifted; refuse rather than commit a bad state
			return registration.Registration{}, registration.ErrSoldOut
		}
		return registration.Registration{}, s.storageErr(err)
	}

	if err := s.enqueueNotice(ctx, tx, jobs.TypeRegistrationConfirmed, reg, ev); err != nil {
		return registration.Registration{}, s.storageErr(err)
	}

	err = tx.Commit(ctx)

	if err != nil {
		return registration.Registration{}, s.storageErr(err)
	}

	s.nudgeWorker(ctx)

	ev.AvailableSeats--
	reg.Event = &ev

	return reg, nil
}

// Cancel releases the user's seat on the event. Symmetric to Register:
// the active registration flips to cancelled and exactly one seat is
// restored, or nothing happens at all.
func (s *Registrations) Cancel(ctx context.Context, userID, eventID string) error {
	tx, err := s.regs.BeginTx(ctx)

	if err != nil {
		return s.storageErr(err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	// lock the event row first, same order as Register, so the two paths
	// never deadlock against each other
	ev, err := s.events.GetForUpdateTx(ctx, tx, eventID)

	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			return registration.ErrNotFound
		}
		return s.storageErr(err)
	}

	reg, err := s.regs.FindActiveTx(ctx, tx, userID, eventID)

	if err != nil {
		if errors.Is(err, registration.ErrNotFound) {
			return err
		}
		return s.storageErr(err)
	}

	err = s.regs.UpdateStatusTx(ctx, tx, reg.ID, registration.StatusCancelled)

	if err != nil {
		return s.storageErr(err)
	}

	err = s.events.AdjustSeatsTx(ctx, tx, eventID, +1)

	if err != nil {
		return s.storageErr(err)
	}

	if err := s.enqueueNotice(ctx, tx, jobs.TypeRegistrationCancelled, reg, ev); err != nil {
		return s.storageErr(err)
	}

	err = tx.Commit(ctx)

	if err != nil {
		return s.storageErr(err)
	}

	s.nudgeWorker(ctx)

	return nil
}

// IsRegistered reports whether an active registration exists for the pair.
// Read committed; a result may be momentarily stale next to an in-flight
// transaction, which is acceptable for the membership badge.
func (s *Registrations) IsRegistered(ctx context.Context, userID, eventID string) (bool, error) {
	_, err := s.regs.FindActive(ctx, userID, eventID)

	if err != nil {
		if errors.Is(err, registration.ErrNotFound) {
			return false, nil
		}
		return false, s.storageErr(err)
	}

	return true, nil
}

// ListForUser partitions the user's active registrations into upcoming and
// past using one snapshot of now; within each partition the most recent
// registration comes first (the store already orders by recency).
func (s *Registrations) ListForUser(ctx context.Context, userID string) (registration.MyEvents, error) {
	regs, err := s.regs.ListActiveForUser(ctx, userID)

	if err != nil {
		return registration.MyEvents{}, s.storageErr(err)
	}

	now := time.Now()

	out := registration.MyEvents{
		Upcoming: make([]registration.Registration, 0),
		Past:     make([]registration.Registration, 0),
		Total:    len(regs),
	}

	for _, r := range regs {
		if r.Event != nil && !r.Event.Date.Before(now) {
			out.Upcoming = append(out.Upcoming, r)
		} else {
			out.Past = append(out.Past, r)
		}
	}

	return out, nil
}

func (s *Registrations) enqueueNotice(ctx context.Context, tx pgx.Tx, noticeType string, reg registration.Registration, ev event.Event) error {
	if s.jobs == nil {
		return nil
	}

	payload := jobs.RegistrationNoticePayload{
		RegistrationID: reg.ID,
		UserID:         reg.UserID,
		EventID:        ev.ID,
		EventName:      ev.Name,
		RequestedAt:    time.Now().UTC(),
	}

	raw, err := payload.JSON()

	if err != nil {
		return err
	}

	key := noticeType + ":" + reg.ID

	_, err = s.jobs.CreateTx(ctx, tx, job.CreateRequest{
		Type:           noticeType,
		Payload:        raw,
		RunAt:          time.Now().UTC(),
		MaxAttempts:    10,
		IdempotencyKey: &key,
	})

	if err != nil {
		// duplicate idempotency key inside the same tx: notice already
		// queued, nothing to do
		if postgres.IsUniqueViolation(err) {
			return nil
		}
		return err
	}

	return nil
}

func (s *Registrations) nudgeWorker(ctx context.Context) {
	if s.nudge == nil {
		return
	}

	if err := s.nudge.NotifyJobEnqueued(ctx); err != nil {
		s.log.Warn("worker nudge failed", "err", err)
	}
}

// storageErr folds retryable storage aborts into ErrTransient so callers can
// tell "retry me" apart from a real conflict; everything else passes through.
func (s *Registrations) storageErr(err error) error {
	if postgres.IsTransient(err) {
		return fmt.Errorf("%w: %v", registration.ErrTransient, err)
	}
	return err
}
