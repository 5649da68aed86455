package inventory

import (
	"time"

	"github.com/gofrs/uuid"
)

type ChangeType string

const (
	ChangeTypeSale    ChangeType = "sale"
	ChangeTypeRestock ChangeType = "restock"
)

func (c ChangeType) String() string {
	return string(c)
}

// LedgerEntry is an immutable audit row for one stock change. Current stock
// lives on products.stock and size_stocks.stock, never summed from here.
type LedgerEntry struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	ProductID     int64      `json:"product_id" db:"product_id"`
	Size          *string    `json:"size,omitempty" db:"size"`
	QuantityDelta int        `json:"quantity_delta" db:"quantity_delta"`
	ChangeType    ChangeType `json:"change_type" db:"change_type"`
	Note          string     `json:"note" db:"note"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

type SizeStock struct {
	ID        int64  `json:"id" db:"id"`
	ProductID int64  `json:"product_id" db:"product_id"`
	Size      string `json:"size" db:"size"`
	Stock     int    `json:"stock" db:"stock"`
}

// LineItem is the stock-relevant part of an order line.
type LineItem struct {
	ProductID int64
	Quantity  int
	Size      string
}
