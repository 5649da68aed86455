package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

const sizeLabelPrefix = "Size "

// Adjuster moves stock for order line items. Each item touches exactly one
// pool: the size pool when one exists for the item's size, the product's
// scalar stock otherwise. Items are processed in order and an error stops
// processing; earlier items are not compensated unless the caller runs
// Decrement inside a transaction (db.WithTx).
type Adjuster struct {
	repo Repository
}

func NewAdjuster(repo Repository) *Adjuster {
	return &Adjuster{repo: repo}
}

func (a *Adjuster) Decrement(ctx context.Context, items []LineItem) error {
	for i, item := range items {
		if err := validateLineItem(item); err != nil {
			return fmt.Errorf("inventory: line %d: %w", i, err)
		}
		if err := a.decrementItem(ctx, item); err != nil {
			return fmt.Errorf("inventory: line %d: %w", i, err)
		}
	}
	return nil
}

// Restock is the compensating counterpart of Decrement: same pool
// selection, positive ledger delta with change type restock.
func (a *Adjuster) Restock(ctx context.Context, items []LineItem, note string) error {
	for i, item := range items {
		if err := validateLineItem(item); err != nil {
			return fmt.Errorf("inventory: restock line %d: %w", i, err)
		}
		if err := a.restockItem(ctx, item, note); err != nil {
			return fmt.Errorf("inventory: restock line %d: %w", i, err)
		}
	}
	return nil
}

func (a *Adjuster) Ledger(ctx context.Context, productID int64) ([]LedgerEntry, error) {
	return a.repo.ListLedger(ctx, productID)
}

func (a *Adjuster) decrementItem(ctx context.Context, item LineItem) error {
	pool, err := a.resolveSizeStock(ctx, item.ProductID, item.Size)
	if err != nil {
		return err
	}

	if pool != nil {
		remaining, err := a.repo.DecrementSizeStock(ctx, pool.ID, item.Quantity)
		if err != nil {
			if errors.Is(err, ErrInsufficientStock) {
				log.Warn().Int64("product_id", item.ProductID).Str("size", pool.Size).
					Int("requested", item.Quantity).Int("available", remaining).
					Msg("inventory: insufficient size stock")
				return fmt.Errorf("%w: product %d size %q: requested %d, available %d",
					ErrInsufficientStock, item.ProductID, pool.Size, item.Quantity, remaining)
			}
			return err
		}

		size := pool.Size
		entry := &LedgerEntry{
			ProductID:     item.ProductID,
			Size:          &size,
			QuantityDelta: -item.Quantity,
			ChangeType:    ChangeTypeSale,
			Note:          fmt.Sprintf("Order sale: %d unit(s) of size %s", item.Quantity, size),
		}
		if err := a.repo.AppendLedger(ctx, entry); err != nil {
			return err
		}

		log.Debug().Int64("product_id", item.ProductID).Str("size", size).Int("remaining", remaining).Msg("inventory: size stock decremented")
		return nil
	}

	remaining, err := a.repo.DecrementProductStock(ctx, item.ProductID, item.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, ErrProductNotFound):
			log.Warn().Int64("product_id", item.ProductID).Msg("inventory: product not found")
			return fmt.Errorf("%w: product %d", ErrProductNotFound, item.ProductID)
		case errors.Is(err, ErrInsufficientStock):
			log.Warn().Int64("product_id", item.ProductID).
				Int("requested", item.Quantity).Int("available", remaining).
				Msg("inventory: insufficient product stock")
			return fmt.Errorf("%w: product %d: requested %d, available %d",
				ErrInsufficientStock, item.ProductID, item.Quantity, remaining)
		default:
			return err
		}
	}

	entry := &LedgerEntry{
		ProductID:     item.ProductID,
		QuantityDelta: -item.Quantity,
		ChangeType:    ChangeTypeSale,
		Note:          fmt.Sprintf("Order sale: %d unit(s)", item.Quantity),
	}
	if err := a.repo.AppendLedger(ctx, entry); err != nil {
		return err
	}

	log.Debug().Int64("product_id", item.ProductID).Int("remaining", remaining).Msg("inventory: product stock decremented")
	return nil
}

func (a *Adjuster) restockItem(ctx context.Context, item LineItem, note string) error {
	pool, err := a.resolveSizeStock(ctx, item.ProductID, item.Size)
	if err != nil {
		return err
	}

	entry := &LedgerEntry{
		ProductID:     item.ProductID,
		QuantityDelta: item.Quantity,
		ChangeType:    ChangeTypeRestock,
		Note:          note,
	}

	if pool != nil {
		if _, err := a.repo.IncrementSizeStock(ctx, pool.ID, item.Quantity); err != nil {
			return err
		}
		size := pool.Size
		entry.Size = &size
	} else {
		if _, err := a.repo.IncrementProductStock(ctx, item.ProductID, item.Quantity); err != nil {
			if errors.Is(err, ErrProductNotFound) {
				return fmt.Errorf("%w: product %d", ErrProductNotFound, item.ProductID)
			}
			return err
		}
	}

	return a.repo.AppendLedger(ctx, entry)
}

// resolveSizeStock returns nil, nil when the item has no size or the
// product keeps no pool for it under either label.
func (a *Adjuster) resolveSizeStock(ctx context.Context, productID int64, size string) (*SizeStock, error) {
	size = strings.TrimSpace(size)
	if size == "" {
		return nil, nil
	}

	for _, label := range []string{size, alternateSizeLabel(size)} {
		pool, err := a.repo.FindSizeStock(ctx, productID, label)
		if err == nil {
			return pool, nil
		}
		if !errors.Is(err, ErrSizeStockNotFound) {
			return nil, err
		}
	}

	return nil, nil
}

// alternateSizeLabel maps "M" to "Size M" and "Size M" to "M"; both
// conventions exist in the catalog.
func alternateSizeLabel(size string) string {
	if len(size) > len(sizeLabelPrefix) && strings.EqualFold(size[:len(sizeLabelPrefix)], sizeLabelPrefix) {
		return strings.TrimSpace(size[len(sizeLabelPrefix):])
	}
	return sizeLabelPrefix + size
}

func validateLineItem(item LineItem) error {
	if item.ProductID <= 0 {
		return fmt.Errorf("%w: product id must be positive, got %d", ErrInvalidLineItem, item.ProductID)
	}
	if item.Quantity <= 0 {
		return fmt.Errorf("%w: quantity for product %d must be greater than zero, got %d", ErrInvalidLineItem, item.ProductID, item.Quantity)
	}
	return nil
}
