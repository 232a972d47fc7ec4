package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrRefreshTokenNotFound = errors.New("refresh token not found")

// RefreshTokenRow is keyed by the token's jti claim. Only the HMAC of the
// raw token is stored; ReplacedBy links to the jti minted during rotation.
type RefreshTokenRow struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *string
	CreatedAt  time.Time
}

type RefreshTokensRepo struct {
	pool *pgxpool.Pool
}

func NewRefreshTokensRepo(pool *pgxpool.Pool) *RefreshTokensRepo {
	return &RefreshTokensRepo{pool: pool}
}

func (r *RefreshTokensRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.BeginTx(ctx, pgx.TxOptions{})
}

func (r *RefreshTokensRepo) Create(ctx context.Context, tx pgx.Tx, row RefreshTokenRow) error {
	const q = `INSERT INTO refresh_tokens
		(id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, q,
		row.ID, row.UserID, row.TokenHash, row.ExpiresAt,
		row.RevokedAt, row.ReplacedBy, row.CreatedAt)
	return err
}

// GetForUpdate locks the row so concurrent refreshes of the same token
// serialize instead of both rotating it.
func (r *RefreshTokensRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (RefreshTokenRow, error) {
	const q = `SELECT id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at
		FROM refresh_tokens
		WHERE id = $1
		FOR UPDATE`

	var row RefreshTokenRow
	err := tx.QueryRow(ctx, q, id).Scan(
		&row.ID, &row.UserID, &row.TokenHash, &row.ExpiresAt,
		&row.RevokedAt, &row.ReplacedBy, &row.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshTokenRow{}, ErrRefreshTokenNotFound
	}
	if err != nil {
		return RefreshTokenRow{}, err
	}
	return row, nil
}

func (r *RefreshTokensRepo) Revoke(ctx context.Context, tx pgx.Tx, id string, replacedBy *string) error {
	const q = `UPDATE refresh_tokens
		SET revoked_at = NOW(), replaced_by = $2
		WHERE id = $1 AND revoked_at IS NULL`

	_, err := tx.Exec(ctx, q, id, replacedBy)
	return err
}
