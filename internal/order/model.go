package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

func (os OrderStatus) String() string {
	return string(os)
}

// ParseStatus accepts any letter case, e.g. "shipped" or "Shipped".
func ParseStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := allowedTransitions[status]; !ok {
		return "", fmt.Errorf("%w: unknown order status %q", ErrValidation, s)
	}
	return status, nil
}

type OrderItem struct {
	ID        int64           `json:"id" db:"id"`
	OrderID   int64           `json:"order_id" db:"order_id"`
	ProductID int64           `json:"product_id" db:"product_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	Price     decimal.Decimal `json:"price" db:"price"` // цена на момент покупки
	Size      *string         `json:"size,omitempty" db:"size"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

type Order struct {
	ID                int64           `json:"id" db:"id"`
	UserID            *int64          `json:"user_id,omitempty" db:"user_id"`
	Email             string          `json:"email" db:"email"`
	FirstName         string          `json:"first_name" db:"first_name"`
	LastName          string          `json:"last_name" db:"last_name"`
	Address           string          `json:"address" db:"address"`
	City              string          `json:"city" db:"city"`
	State             string          `json:"state" db:"state"`
	PostalCode        string          `json:"postal_code" db:"postal_code"`
	Country           string          `json:"country" db:"country"`
	Phone             string          `json:"phone" db:"phone"`
	Status            OrderStatus     `json:"status" db:"status"`
	TotalPrice        decimal.Decimal `json:"total_price" db:"total_price"`
	ShippingCost      decimal.Decimal `json:"shipping_cost" db:"shipping_cost"`
	CheckoutSessionID string          `json:"checkout_session_id,omitempty" db:"checkout_session_id"`
	TrackingNumber    *string         `json:"tracking_number,omitempty" db:"tracking_number"`
	ShippedDate       *time.Time      `json:"shipped_date,omitempty" db:"shipped_date"`
	DeliveredDate     *time.Time      `json:"delivered_date,omitempty" db:"delivered_date"`
	PaymentMethod     string          `json:"payment_method" db:"payment_method"`
	OrderItems        []OrderItem     `json:"order_items" db:"-"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

type CreateOrderItemInput struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int             `json:"quantity" validate:"required,gt=0"`
	Price     decimal.Decimal `json:"price"`
	Size      string          `json:"size,omitempty" validate:"omitempty,max=32"`
}

// CreateOrderInput is the order-creation request. It is also the payload
// staged in the pending store at checkout time.
type CreateOrderInput struct {
	UserID            *int64                 `json:"user_id,omitempty" validate:"omitempty,gt=0"`
	Email             string                 `json:"email" validate:"required,email"`
	FirstName         string                 `json:"first_name" validate:"required"`
	LastName          string                 `json:"last_name" validate:"required"`
	Address           string                 `json:"address" validate:"required"`
	City              string                 `json:"city,omitempty"`
	State             string                 `json:"state,omitempty"`
	PostalCode        string                 `json:"postal_code,omitempty"`
	Country           string                 `json:"country,omitempty"`
	Phone             string                 `json:"phone,omitempty" validate:"omitempty,max=32"`
	ShippingCost      decimal.Decimal        `json:"shipping_cost"`
	PaymentMethod     string                 `json:"payment_method,omitempty"`
	CheckoutSessionID string                 `json:"checkout_session_id,omitempty"`
	Items             []CreateOrderItemInput `json:"items" validate:"required,min=1,dive"`
}

// StatusUpdate carries the columns written by a status transition. Nil
// fields leave the stored value alone, and stored values are never
// overwritten.
type StatusUpdate struct {
	Status         OrderStatus
	TrackingNumber *string
	ShippedDate    *time.Time
	DeliveredDate  *time.Time
}
