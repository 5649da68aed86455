package order

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
	ErrOrderNotFound            = errors.New("order not found")
	ErrDuplicateCheckoutSession = errors.New("order already exists for checkout session")
)

type Repository interface {
	CreateOrder(ctx context.Context, order *Order) (int64, error)
	GetOrderByID(ctx context.Context, id int64) (*Order, error)
	GetOrderByCheckoutSession(ctx context.Context, sessionID string) (*Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]Order, error)
	GetOrdersByEmail(ctx context.Context, email string) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, update StatusUpdate) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const orderColumns = `
	id, user_id, email, first_name, last_name, address, city, state, postal_code, country, phone,
	status, total_price, shipping_cost, checkout_session_id, tracking_number, shipped_date,
	delivered_date, payment_method, created_at, updated_at`

// CreateOrder inserts the order and its items as one unit. It joins the
// transaction carried by ctx when there is one.
func (r *postgresRepository) CreateOrder(ctx context.Context, orderInput *Order) (int64, error) {
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		tx := db.Conn(ctx, r.pool)
		now := time.Now().UTC()

		queryOrder := `
			INSERT INTO orders (user_id, email, first_name, last_name, address, city, state, postal_code,
				country, phone, status, total_price, shipping_cost, checkout_session_id, payment_method,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
			RETURNING id, created_at, updated_at
		`
		err := tx.QueryRow(ctx, queryOrder,
			orderInput.UserID,
			orderInput.Email,
			orderInput.FirstName,
			orderInput.LastName,
			orderInput.Address,
			orderInput.City,
			orderInput.State,
			orderInput.PostalCode,
			orderInput.Country,
			orderInput.Phone,
			string(orderInput.Status),
			orderInput.TotalPrice,
			orderInput.ShippingCost,
			nullIfEmpty(orderInput.CheckoutSessionID),
			orderInput.PaymentMethod,
			now,
		).Scan(&orderInput.ID, &orderInput.CreatedAt, &orderInput.UpdatedAt)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return ErrDuplicateCheckoutSession
			}
			return fmt.Errorf("repository: failed to insert order: %w", err)
		}

		queryItem := `
			INSERT INTO order_items (order_id, product_id, quantity, price, size, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at
		`
		for i := range orderInput.OrderItems {
			item := &orderInput.OrderItems[i]
			item.OrderID = orderInput.ID

			err := tx.QueryRow(ctx, queryItem,
				item.OrderID,
				item.ProductID,
				item.Quantity,
				item.Price,
				item.Size,
				now,
			).Scan(&item.ID, &item.CreatedAt)
			if err != nil {
				return fmt.Errorf("repository: failed to insert order item for order %d: %w", orderInput.ID, err)
			}
		}

		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrDuplicateCheckoutSession) {
			log.Warn().Err(err).Str("checkout_session_id", orderInput.CheckoutSessionID).Msg("repository: create order rolled back")
		}
		return 0, err
	}

	return orderInput.ID, nil
}

func (r *postgresRepository) GetOrderByID(ctx context.Context, orderID int64) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(db.Conn(ctx, r.pool).QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %d: %w", orderID, err)
	}

	if err := r.attachItems(ctx, []*Order{order}); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *postgresRepository) GetOrderByCheckoutSession(ctx context.Context, sessionID string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE checkout_session_id = $1`

	order, err := scanOrder(db.Conn(ctx, r.pool).QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by checkout session %s: %w", sessionID, err)
	}

	if err := r.attachItems(ctx, []*Order{order}); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *postgresRepository) GetOrdersByUserID(ctx context.Context, userID int64) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	return r.listOrders(ctx, query, userID)
}

func (r *postgresRepository) GetOrdersByEmail(ctx context.Context, email string) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE lower(email) = lower($1) ORDER BY created_at DESC, id DESC`
	return r.listOrders(ctx, query, email)
}

// UpdateOrderStatus writes the new status. COALESCE keeps an existing
// tracking number or date when the update carries a new one.
func (r *postgresRepository) UpdateOrderStatus(ctx context.Context, orderID int64, update StatusUpdate) error {
	query := `
		UPDATE orders
		SET status = $2,
			tracking_number = COALESCE(tracking_number, $3),
			shipped_date = COALESCE(shipped_date, $4),
			delivered_date = COALESCE(delivered_date, $5),
			updated_at = $6
		WHERE id = $1
	`

	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		orderID,
		string(update.Status),
		update.TrackingNumber,
		update.ShippedDate,
		update.DeliveredDate,
		time.Now().UTC(),
	)
	if err != nil {
		log.Error().Err(err).Int64("order_id", orderID).Stringer("new_status", update.Status).Msg("repository: failed to update order status")
		return fmt.Errorf("repository: failed to update order status %d: %w", orderID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		log.Warn().Int64("order_id", orderID).Stringer("new_status", update.Status).Msg("repository: order not found for status update")
		return ErrOrderNotFound
	}

	return nil
}

func (r *postgresRepository) listOrders(ctx context.Context, query string, arg any) ([]Order, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for %v: %w", arg, err)
	}
	defer rows.Close()

	orders := make([]*Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order for %v: %w", arg, err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders for %v: %w", arg, err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	result := make([]Order, 0, len(orders))
	for _, o := range orders {
		result = append(result, *o)
	}
	return result, nil
}

// attachItems loads items for all orders with a single ANY($1) query.
func (r *postgresRepository) attachItems(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[int64]*Order, len(orders))
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		o.OrderItems = make([]OrderItem, 0)
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	query := `
		SELECT id, order_id, product_id, quantity, price, size, created_at
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id
	`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price, &item.Size, &item.CreatedAt); err != nil {
			return fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		if o, ok := byID[item.OrderID]; ok {
			o.OrderItems = append(o.OrderItems, item)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("repository: error iterating order items: %w", err)
	}

	return nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var sessionID *string
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.Email,
		&o.FirstName,
		&o.LastName,
		&o.Address,
		&o.City,
		&o.State,
		&o.PostalCode,
		&o.Country,
		&o.Phone,
		&o.Status,
		&o.TotalPrice,
		&o.ShippingCost,
		&sessionID,
		&o.TrackingNumber,
		&o.ShippedDate,
		&o.DeliveredDate,
		&o.PaymentMethod,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if sessionID != nil {
		o.CheckoutSessionID = *sessionID
	}
	return &o, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
