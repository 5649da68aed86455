package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/db"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrSizeStockNotFound = errors.New("size stock not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidLineItem   = errors.New("invalid line item")
)

// Repository exposes the two stock pools and the ledger. The Decrement*
// methods are conditional updates: on ErrInsufficientStock the returned int
// is the stock currently available, otherwise it is the remaining stock.
type Repository interface {
	FindSizeStock(ctx context.Context, productID int64, size string) (*SizeStock, error)
	DecrementSizeStock(ctx context.Context, sizeStockID int64, quantity int) (int, error)
	IncrementSizeStock(ctx context.Context, sizeStockID int64, quantity int) (int, error)
	DecrementProductStock(ctx context.Context, productID int64, quantity int) (int, error)
	IncrementProductStock(ctx context.Context, productID int64, quantity int) (int, error)
	AppendLedger(ctx context.Context, entry *LedgerEntry) error
	ListLedger(ctx context.Context, productID int64) ([]LedgerEntry, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) FindSizeStock(ctx context.Context, productID int64, size string) (*SizeStock, error) {
	query := `
		SELECT id, product_id, size, stock
		FROM size_stocks
		WHERE product_id = $1 AND size = $2
	`

	var s SizeStock
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, productID, size).Scan(&s.ID, &s.ProductID, &s.Size, &s.Stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSizeStockNotFound
		}
		return nil, fmt.Errorf("repository: failed to select size stock for product %d size %q: %w", productID, size, err)
	}

	return &s, nil
}

func (r *postgresRepository) DecrementSizeStock(ctx context.Context, sizeStockID int64, quantity int) (int, error) {
	query := `
		UPDATE size_stocks
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
		RETURNING stock
	`

	conn := db.Conn(ctx, r.pool)

	var remaining int
	err := conn.QueryRow(ctx, query, sizeStockID, quantity).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("repository: failed to decrement size stock %d: %w", sizeStockID, err)
	}

	var available int
	err = conn.QueryRow(ctx, `SELECT stock FROM size_stocks WHERE id = $1`, sizeStockID).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrSizeStockNotFound
		}
		return 0, fmt.Errorf("repository: failed to read size stock %d: %w", sizeStockID, err)
	}

	return available, ErrInsufficientStock
}

func (r *postgresRepository) IncrementSizeStock(ctx context.Context, sizeStockID int64, quantity int) (int, error) {
	query := `
		UPDATE size_stocks
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING stock
	`

	var stock int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, sizeStockID, quantity).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrSizeStockNotFound
		}
		return 0, fmt.Errorf("repository: failed to increment size stock %d: %w", sizeStockID, err)
	}

	return stock, nil
}

func (r *postgresRepository) DecrementProductStock(ctx context.Context, productID int64, quantity int) (int, error) {
	query := `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
		RETURNING stock
	`

	conn := db.Conn(ctx, r.pool)

	var remaining int
	err := conn.QueryRow(ctx, query, productID, quantity).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("repository: failed to decrement stock for product %d: %w", productID, err)
	}

	// Либо товара нет, либо не хватает остатка
	var available int
	err = conn.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("repository: failed to read stock for product %d: %w", productID, err)
	}

	return available, ErrInsufficientStock
}

func (r *postgresRepository) IncrementProductStock(ctx context.Context, productID int64, quantity int) (int, error) {
	query := `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING stock
	`

	var stock int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, productID, quantity).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("repository: failed to increment stock for product %d: %w", productID, err)
	}

	return stock, nil
}

func (r *postgresRepository) AppendLedger(ctx context.Context, entry *LedgerEntry) error {
	if entry.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate ledger entry ID: %w", err)
		}
		entry.ID = id
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO inventory (id, product_id, size, quantity_delta, change_type, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		entry.ID,
		entry.ProductID,
		entry.Size,
		entry.QuantityDelta,
		string(entry.ChangeType),
		entry.Note,
		entry.CreatedAt,
	)
	if err != nil {
		log.Error().Err(err).Int64("product_id", entry.ProductID).Msg("repository: failed to append ledger entry")
		return fmt.Errorf("repository: failed to insert ledger entry for product %d: %w", entry.ProductID, err)
	}

	return nil
}

func (r *postgresRepository) ListLedger(ctx context.Context, productID int64) ([]LedgerEntry, error) {
	query := `
		SELECT id, product_id, size, quantity_delta, change_type, note, created_at
		FROM inventory
		WHERE product_id = $1
		ORDER BY created_at DESC
	`

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query ledger for product %d: %w", productID, err)
	}
	defer rows.Close()

	entries := make([]LedgerEntry, 0)
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Size, &e.QuantityDelta, &e.ChangeType, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan ledger entry for product %d: %w", productID, err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating ledger for product %d: %w", productID, err)
	}

	return entries, nil
}
