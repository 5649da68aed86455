package pending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/db"
)

var (
	ErrNotFound         = errors.New("pending order not found")
	ErrDuplicateSession = errors.New("checkout session already staged")
	ErrValidation       = errors.New("invalid pending order")
)

type Repository interface {
	// Insert stores p unless a live entry exists for the session. An entry
	// that expired before p.CreatedAt is replaced.
	Insert(ctx context.Context, p *PendingOrder) error
	Get(ctx context.Context, sessionID string) (*PendingOrder, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteIfExpired(ctx context.Context, sessionID string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Insert(ctx context.Context, p *PendingOrder) error {
	query := `
		INSERT INTO pending_orders (checkout_session_id, payload, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (checkout_session_id) DO UPDATE
		SET payload = EXCLUDED.payload,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at
		WHERE pending_orders.expires_at < EXCLUDED.created_at
	`

	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx, query, p.CheckoutSessionID, []byte(p.Payload), p.ExpiresAt, p.CreatedAt)
	if err != nil {
		log.Error().Err(err).Str("checkout_session_id", p.CheckoutSessionID).Msg("repository: failed to insert pending order")
		return fmt.Errorf("repository: failed to insert pending order %s: %w", p.CheckoutSessionID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrDuplicateSession
	}

	return nil
}

func (r *postgresRepository) Get(ctx context.Context, sessionID string) (*PendingOrder, error) {
	query := `
		SELECT checkout_session_id, payload, expires_at, created_at
		FROM pending_orders
		WHERE checkout_session_id = $1
	`

	var p PendingOrder
	var payload []byte
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, sessionID).Scan(&p.CheckoutSessionID, &payload, &p.ExpiresAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select pending order %s: %w", sessionID, err)
	}
	p.Payload = payload

	return &p, nil
}

func (r *postgresRepository) Delete(ctx context.Context, sessionID string) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM pending_orders WHERE checkout_session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete pending order %s: %w", sessionID, err)
	}
	return nil
}

func (r *postgresRepository) DeleteIfExpired(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM pending_orders WHERE checkout_session_id = $1 AND expires_at < $2`,
		sessionID, now,
	)
	if err != nil {
		return false, fmt.Errorf("repository: failed to delete expired pending order %s: %w", sessionID, err)
	}
	return cmdTag.RowsAffected() > 0, nil
}

func (r *postgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM pending_orders WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to delete expired pending orders: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}
