package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/bellcorp/events/internal/domain/job"
	"github.com/bellcorp/events/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewJobsRepo(pool *pgxpool.Pool, prom *observability.Prom) *JobsRepo {
	return &JobsRepo{pool: pool, prom: prom}
}

func (r *JobsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const jobColumns = `id, type, payload, status, attempts, max_attempts, run_at, locked_at, locked_by, last_error, idempotency_key, created_at, updated_at`

// CreateTx inserts a job inside the caller's transaction, so the notice row
// commits (or rolls back) together with the registration mutation.
func (r *JobsRepo) CreateTx(ctx context.Context, tx pgx.Tx, req job.CreateRequest) (job.Job, error) {
	j := job.New(req)

	err := r.observe("jobs.create_tx", func() error {
		_, err := tx.Exec(ctx, `INSERT INTO jobs (`+jobColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, j.ID, j.Type, j.Payload, string(j.Status), j.Attempts, j.MaxAttempts,
			j.RunAt, j.LockedAt, j.LockedBy, j.LastError, j.IdempotencyKey, j.CreatedAt, j.UpdatedAt)
		return err
	})

	if err != nil {
		return job.Job{}, err
	}
	return j, nil
}

func (r *JobsRepo) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	// Single statement claim using SKIP LOCKED pattern.
	// Only claims jobs ready to run (pending, run_at <= now), and not exceeded max_attempts.
	var j job.Job
	var status string

	err := r.observe("jobs.claim_next", func() error {
		return r.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id
			FROM jobs
			WHERE status = 'pending'
			  AND run_at <= NOW()
			  AND attempts < max_attempts
			ORDER BY run_at ASC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE jobs
		SET status = 'processing',
		    locked_at = NOW(),
		    locked_by = $1,
		    updated_at = NOW()
		WHERE id = (SELECT id FROM next)
		RETURNING `+jobColumns+`
	`, workerID).Scan(
			&j.ID, &j.Type, &j.Payload, &status,
			&j.Attempts, &j.MaxAttempts,
			&j.RunAt, &j.LockedAt, &j.LockedBy,
			&j.LastError, &j.IdempotencyKey, &j.CreatedAt, &j.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Job{}, job.ErrJobNotFound // treat as "no job available"
		}
		return job.Job{}, err
	}

	j.Status = job.Status(status)
	return j, nil
}

func (r *JobsRepo) MarkDone(ctx context.Context, id string) error {
	var tag pgconn.CommandTag

	err := r.observe("jobs.mark_done", func() error {
		var err error
		tag, err = r.pool.Exec(ctx,
			`UPDATE jobs
		SET status = 'done',
			locked_at = NULL,
			locked_by = NULL,
			last_error = NULL,
			updated_at = NOW()
		WHERE id = $1
		`, id)
		return err
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

func (r *JobsRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	var tag pgconn.CommandTag

	err := r.observe("jobs.mark_failed", func() error {
		var err error
		tag, err = r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'failed',
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = $2,
		    updated_at = NOW()
		WHERE id = $1
	`, id, errMsg)
		return err
	})

	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

// Reschedule puts a failed attempt back on the queue at a later run_at.
func (r *JobsRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	var tag pgconn.CommandTag

	err := r.observe("jobs.reschedule", func() error {
		var err error
		tag, err = r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending',
		    attempts = attempts + 1,
		    run_at = $2,
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = $3,
		    updated_at = NOW()
		WHERE id = $1
	`, id, runAt, errMsg)
		return err
	})

	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

// Requeue a stale processing job i.e. a worker died while holding the lock

func (r *JobsRepo) RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error) {
	secs := int64(lockTTL.Seconds())
	if secs <= 0 {
		secs = 30
	}
	var rows int64

	err := r.observe("jobs.requeue_stale", func() error {
		tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending',
		    locked_at = NULL,
		    locked_by = NULL,
		    updated_at = NOW()
		WHERE status = 'processing'
		  AND locked_at IS NOT NULL
		  AND locked_at < NOW() - ($1 * INTERVAL '1 second')
	`, secs)

		if err != nil {
			return err
		}
		rows = tag.RowsAffected()
		return nil
	})

	return rows, err
}
