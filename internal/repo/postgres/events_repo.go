package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bellcorp/events/internal/domain/event"
	"github.com/bellcorp/events/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrSeatAdjustmentRejected = errors.New("seat adjustment rejected")

type EventsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewEventsRepo(pool *pgxpool.Pool, prom *observability.Prom) *EventsRepo {
	return &EventsRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *EventsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const eventColumns = `id, name, organizer, location, date, description, capacity, available_seats, category, tags, image_url, created_at, updated_at`

func scanEvent(row pgx.Row, e *event.Event) error {
	return row.Scan(
		&e.ID, &e.Name, &e.Organizer, &e.Location, &e.Date, &e.Description,
		&e.Capacity, &e.AvailableSeats, &e.Category, &e.Tags, &e.ImageURL,
		&e.CreatedAt, &e.UpdatedAt,
	)
}

func (r *EventsRepo) Create(ctx context.Context, req event.CreateEventRequest) (event.Event, error) {
	e := event.NewFromCreateRequest(req)

	err := r.observe("events.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO events (`+eventColumns+`)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			e.ID, e.Name, e.Organizer, e.Location, e.Date, e.Description,
			e.Capacity, e.AvailableSeats, e.Category, e.Tags, e.ImageURL,
			e.CreatedAt, e.UpdatedAt,
		)
		return err
	})

	if err != nil {
		return event.Event{}, err
	}

	return e, nil
}

func (r *EventsRepo) List(ctx context.Context, filter event.ListEventsFilter) ([]event.Event, int, error) {
	baseQuery := `SELECT ` + eventColumns + `, COUNT(*) OVER() AS total FROM events`

	var conds []string
	var args []interface{}

	argsPosition := 1

	// search hits name, organizer and description
	if filter.Search != nil {
		conds = append(conds, fmt.Sprintf(
			"(name ILIKE '%%' || $%d || '%%' OR organizer ILIKE '%%' || $%d || '%%' OR description ILIKE '%%' || $%d || '%%')",
			argsPosition, argsPosition, argsPosition,
		))
		args = append(args, *filter.Search)
		argsPosition++
	}

	if filter.Category != nil {
		conds = append(conds, fmt.Sprintf("category = $%d", argsPosition))
		args = append(args, *filter.Category)
		argsPosition++
	}

	// location is a substring match, mirroring the catalog search box
	if filter.Location != nil {
		conds = append(conds, fmt.Sprintf("location ILIKE '%%' || $%d || '%%'", argsPosition))
		args = append(args, *filter.Location)
		argsPosition++
	}

	if filter.From != nil {
		conds = append(conds, fmt.Sprintf("date >= $%d", argsPosition))
		args = append(args, *filter.From)
		argsPosition++
	}

	if filter.To != nil {
		conds = append(conds, fmt.Sprintf("date <= $%d", argsPosition))
		args = append(args, *filter.To)
		argsPosition++
	}

	query := baseQuery

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	// stable ordering for pagination
	query += fmt.Sprintf(" ORDER BY date ASC, id ASC LIMIT $%d OFFSET $%d", argsPosition, argsPosition+1)

	offset := (filter.Page - 1) * filter.Limit
	args = append(args, filter.Limit, offset)

	var rows pgx.Rows
	err := r.observe("events.list", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, query, args...)
		return qerr
	})

	if err != nil {
		return nil, 0, err
	}

	defer rows.Close()

	output := make([]event.Event, 0, filter.Limit)
	total := 0

	for rows.Next() {
		var e event.Event
		var t int

		err = rows.Scan(
			&e.ID, &e.Name, &e.Organizer, &e.Location, &e.Date, &e.Description,
			&e.Capacity, &e.AvailableSeats, &e.Category, &e.Tags, &e.ImageURL,
			&e.CreatedAt, &e.UpdatedAt, &t,
		)

		if err != nil {
			return nil, 0, err
		}

		total = t
		output = append(output, e)
	}

	err = rows.Err()

	if err != nil {
		return nil, 0, err
	}

	return output, total, nil
}

func (r *EventsRepo) GetByID(ctx context.Context, id string) (event.Event, error) {
	var e event.Event

	err := r.observe("events.get_by_id", func() error {
		return scanEvent(r.pool.QueryRow(ctx,
			`SELECT `+eventColumns+` FROM events WHERE id = $1`, id), &e)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return event.Event{}, event.ErrNotFound
		}
		return event.Event{}, err
	}

	return e, nil
}

// GetForUpdateTx loads the event inside the supplied transaction and takes a
// row lock, serializing concurrent seat mutations on the same event.
func (r *EventsRepo) GetForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (event.Event, error) {
	var e event.Event

	err := r.observe("events.get_for_update_tx", func() error {
		return scanEvent(tx.QueryRow(ctx,
			`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id), &e)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return event.Event{}, event.ErrNotFound
		}
		return event.Event{}, err
	}

	return e, nil
}

// AdjustSeatsTx moves available_seats by delta within the supplied
// transaction. The WHERE clause refuses to leave the [0, capacity] range, so
// a rejected adjustment surfaces instead of committing a negative counter.
func (r *EventsRepo) AdjustSeatsTx(ctx context.Context, tx pgx.Tx, id string, delta int) error {
	var tag pgconn.CommandTag

	err := r.observe("events.adjust_seats_tx", func() error {
		var err error
		tag, err = tx.Exec(ctx, `
			UPDATE events
			SET available_seats = available_seats + $2,
			    updated_at = NOW()
			WHERE id = $1
			  AND available_seats + $2 BETWEEN 0 AND capacity
		`, id, delta)
		return err
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrSeatAdjustmentRejected
	}

	return nil
}

func (r *EventsRepo) Update(ctx context.Context, id string, req event.UpdateEventRequest) (event.Event, error) {
	var e event.Event

	err := r.observe("events.update", func() error {
		return scanEvent(r.pool.QueryRow(
			ctx,
			`UPDATE events
				SET name = $2,
						organizer = $3,
						location = $4,
						date = $5,
						description = $6,
						category = $7,
						tags = $8,
						image_url = $9,
						updated_at = NOW()
			WHERE id = $1
			RETURNING `+eventColumns,
			id,
			req.Name,
			req.Organizer,
			req.Location,
			req.Date,
			req.Description,
			req.Category,
			req.Tags,
			req.ImageURL,
		), &e)
	})

	if err != nil {
		// if there are no rows matching the id
		if errors.Is(err, pgx.ErrNoRows) {
			return event.Event{}, event.ErrNotFound
		}
		return event.Event{}, err
	}

	return e, nil
}

func (r *EventsRepo) Delete(ctx context.Context, id string) error {
	var affected int64

	err := r.observe("events.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})

	if err != nil {
		return err
	}

	// if no rows were deleted as a result return a not found error
	if affected == 0 {
		return event.ErrNotFound
	}

	return nil
}

// DistinctLocations backs the /events/meta/locations endpoint.
func (r *EventsRepo) DistinctLocations(ctx context.Context) ([]string, error) {
	var rows pgx.Rows

	err := r.observe("events.distinct_locations", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, `SELECT DISTINCT location FROM events ORDER BY location ASC`)
		return qerr
	})

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	locations := make([]string, 0)

	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return locations, nil
}
