package postgres

import (
	"context"
	"errors"

	"github.com/bellcorp/events/internal/domain/event"
	"github.com/bellcorp/events/internal/domain/registration"
	"github.com/bellcorp/events/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RegistrationsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewRegistrationsRepo(pool *pgxpool.Pool, prom *observability.Prom) *RegistrationsRepo {
	return &RegistrationsRepo{
		pool: pool,
		prom: prom,
	}
}

func (repo *RegistrationsRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (repo *RegistrationsRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return repo.pool.BeginTx(ctx, pgx.TxOptions{})
}

const regColumns = `id, user_id, event_id, status, registered_at, created_at, updated_at`

// FindActiveTx looks up the single active registration for a (user, event)
// pair inside the supplied transaction.
func (repo *RegistrationsRepo) FindActiveTx(ctx context.Context, tx pgx.Tx, userID, eventID string) (reg registration.Registration, err error) {
	err = repo.observe("registrations.find_active_tx", func() error {
		return tx.QueryRow(ctx, `
			SELECT `+regColumns+`
			FROM registrations
			WHERE user_id = $1 AND event_id = $2 AND status = 'active'
		`, userID, eventID).Scan(
			&reg.ID, &reg.UserID, &reg.EventID, &reg.Status,
			&reg.RegisteredAt, &reg.CreatedAt, &reg.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = registration.ErrNotFound
		}
		return
	}

	return
}

// CreateTx inserts a fresh active registration within the supplied
// transaction. The partial unique index on (user_id, event_id) for active
// rows is the backstop against duplicate registrations racing past the
// read check.
func (repo *RegistrationsRepo) CreateTx(ctx context.Context, tx pgx.Tx, reg registration.Registration) (err error) {
	err = repo.observe("registrations.create_tx", func() error {
		_, e := tx.Exec(ctx, `
			INSERT INTO registrations (`+regColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, reg.ID, reg.UserID, reg.EventID, reg.Status, reg.RegisteredAt, reg.CreatedAt, reg.UpdatedAt)
		return e
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "registrations_user_event_active_uniq" {
			err = registration.ErrAlreadyRegistered
			return
		}
		return
	}

	return
}

// UpdateStatusTx flips a registration's status within the supplied transaction.
func (repo *RegistrationsRepo) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id string, status registration.Status) error {
	var tag pgconn.CommandTag

	err := repo.observe("registrations.update_status_tx", func() error {
		var err error
		tag, err = tx.Exec(ctx, `
			UPDATE registrations
			SET status = $2,
			    updated_at = NOW()
			WHERE id = $1
		`, id, status)
		return err
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return registration.ErrNotFound
	}

	return nil
}

// FindActive is the read-committed variant used by the membership check; it
// may observe a slightly stale state relative to in-flight transactions.
func (repo *RegistrationsRepo) FindActive(ctx context.Context, userID, eventID string) (reg registration.Registration, err error) {
	err = repo.observe("registrations.find_active", func() error {
		return repo.pool.QueryRow(ctx, `
			SELECT `+regColumns+`
			FROM registrations
			WHERE user_id = $1 AND event_id = $2 AND status = 'active'
		`, userID, eventID).Scan(
			&reg.ID, &reg.UserID, &reg.EventID, &reg.Status,
			&reg.RegisteredAt, &reg.CreatedAt, &reg.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = registration.ErrNotFound
		}
		return
	}

	return
}

// ListActiveForUser returns a user's active registrations with the event
// joined in, most recent registration first.
func (repo *RegistrationsRepo) ListActiveForUser(ctx context.Context, userID string) (regs []registration.Registration, err error) {
	var rows pgx.Rows

	err = repo.observe("registrations.list_active_for_user", func() error {
		rows, err = repo.pool.Query(ctx, `
			SELECT r.id, r.user_id, r.event_id, r.status, r.registered_at, r.created_at, r.updated_at,
			       e.id, e.name, e.organizer, e.location, e.date, e.description,
			       e.capacity, e.available_seats, e.category, e.tags, e.image_url, e.created_at, e.updated_at
			FROM registrations r
			JOIN events e ON e.id = r.event_id
			WHERE r.user_id = $1 AND r.status = 'active'
			ORDER BY r.registered_at DESC, r.id DESC
		`, userID)
		return err
	})

	if err != nil {
		return
	}

	defer rows.Close()

	regs = make([]registration.Registration, 0)

	for rows.Next() {
		var r registration.Registration
		var ev event.Event

		scanErr := rows.Scan(
			&r.ID, &r.UserID, &r.EventID, &r.Status, &r.RegisteredAt, &r.CreatedAt, &r.UpdatedAt,
			&ev.ID, &ev.Name, &ev.Organizer, &ev.Location, &ev.Date, &ev.Description,
			&ev.Capacity, &ev.AvailableSeats, &ev.Category, &ev.Tags, &ev.ImageURL, &ev.CreatedAt, &ev.UpdatedAt,
		)

		if scanErr != nil {
			err = scanErr
			return
		}

		r.Event = &ev
		regs = append(regs, r)
	}

	e := rows.Err()

	if e != nil {
		if repo.prom != nil {
			repo.prom.DbErrorsTotal.WithLabelValues("registrations.list_active_for_user", "rows_err").Inc()
		}
		err = e
		return
	}

	return
}
