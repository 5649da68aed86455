package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/payment"
)

type Confirmer interface {
	Confirm(ctx context.Context, sessionID, paymentMethod string) (Result, error)
}

type OrderCanceller interface {
	GetOrderByCheckoutSession(ctx context.Context, sessionID string) (*order.Order, error)
	CancelByCheckoutSession(ctx context.Context, sessionID string) (*order.Order, error)
}

type MethodLookup interface {
	CheckoutSessionPaymentMethod(ctx context.Context, sessionID string) (string, error)
}

type Restocker interface {
	Restock(ctx context.Context, items []inventory.LineItem, note string) error
}

type ProcessorOption func(*Processor)

// WithRestockOnFailure returns the items of an order cancelled by a
// payment.failed event to stock.
func WithRestockOnFailure(r Restocker) ProcessorOption {
	return func(p *Processor) {
		p.restocker = r
	}
}

func WithMethodLookup(m MethodLookup) ProcessorOption {
	return func(p *Processor) {
		p.methods = m
	}
}

// WithLocker sets the locker guarding payment.failed handling. Pass the
// reconciler's locker so a cancel never interleaves with a confirm.
func WithLocker(l Locker) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.locker = l
		}
	}
}

// Processor dispatches verified webhook events.
type Processor struct {
	confirmer Confirmer
	orders    OrderCanceller
	methods   MethodLookup
	restocker Restocker
	locker    Locker
}

func NewProcessor(confirmer Confirmer, orders OrderCanceller, opts ...ProcessorOption) *Processor {
	p := &Processor{
		confirmer: confirmer,
		orders:    orders,
		locker:    NewMemoryLocker(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) Handle(ctx context.Context, event payment.Event) error {
	ctx = context.WithoutCancel(ctx)

	switch event.Type {
	case payment.EventPaymentPaid, payment.EventCheckoutSessionCompleted:
		return p.handlePaid(ctx, event)
	case payment.EventPaymentFailed:
		return p.handleFailed(ctx, event)
	default:
		log.Info().Str("event_id", event.ID).Str("event_type", event.Type).Msg("processor: ignoring unhandled event type")
		return nil
	}
}

func (p *Processor) handlePaid(ctx context.Context, event payment.Event) error {
	if event.CheckoutSessionID == "" {
		log.Warn().Str("event_id", event.ID).Str("event_type", event.Type).Msg("processor: paid event without checkout session id")
		return fmt.Errorf("%w: event %s has no checkout session id", ErrValidation, event.ID)
	}

	method := p.resolveMethod(ctx, event)

	result, err := p.confirmer.Confirm(ctx, event.CheckoutSessionID, method)
	if err != nil {
		return err
	}

	ev := log.Info().
		Str("event_id", event.ID).
		Str("checkout_session_id", event.CheckoutSessionID).
		Stringer("outcome", result.Outcome)
	if result.Order != nil {
		ev = ev.Int64("order_id", result.Order.ID)
	}
	ev.Msg("processor: payment confirmation handled")
	return nil
}

// resolveMethod reads the method from the event and falls back to the
// provider API. An unresolved method yields an order without one.
func (p *Processor) resolveMethod(ctx context.Context, event payment.Event) string {
	if method := payment.ResolveMethod(event.Attributes); method != "" {
		return method
	}
	if p.methods == nil {
		return ""
	}

	method, err := p.methods.CheckoutSessionPaymentMethod(ctx, event.CheckoutSessionID)
	if err != nil {
		log.Warn().Err(err).Str("checkout_session_id", event.CheckoutSessionID).Msg("processor: could not resolve payment method from provider")
		return ""
	}
	return method
}

func (p *Processor) handleFailed(ctx context.Context, event payment.Event) error {
	sessionID := event.CheckoutSessionID
	if sessionID == "" {
		log.Warn().Str("event_id", event.ID).Msg("processor: payment.failed without checkout session id")
		return nil
	}

	release, acquired, err := p.locker.TryAcquire(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("processor: failed to acquire lock for %s: %w", sessionID, err)
	}
	if !acquired {
		log.Warn().
			Str("event_id", event.ID).
			Str("checkout_session_id", sessionID).
			Msg("processor: session busy, payment.failed dropped, manual follow-up required")
		return nil
	}
	defer release()

	current, err := p.orders.GetOrderByCheckoutSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			log.Info().Str("checkout_session_id", sessionID).Msg("processor: payment failed before any order was created")
			return nil
		}
		return fmt.Errorf("processor: failed to look up order for %s: %w", sessionID, err)
	}
	if current.Status == order.StatusCancelled {
		log.Info().Str("checkout_session_id", sessionID).Int64("order_id", current.ID).Msg("processor: order already cancelled")
		return nil
	}

	cancelled, err := p.orders.CancelByCheckoutSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, order.ErrInvalidStatusTransition) {
			log.Warn().Str("checkout_session_id", sessionID).Stringer("status", current.Status).Msg("processor: order can no longer be cancelled")
			return nil
		}
		return fmt.Errorf("processor: failed to cancel order for %s: %w", sessionID, err)
	}

	log.Info().Str("checkout_session_id", sessionID).Int64("order_id", cancelled.ID).Msg("processor: order cancelled after payment failure")

	if p.restocker == nil {
		return nil
	}

	items := make([]inventory.LineItem, 0, len(cancelled.OrderItems))
	for _, it := range cancelled.OrderItems {
		line := inventory.LineItem{ProductID: it.ProductID, Quantity: it.Quantity}
		if it.Size != nil {
			line.Size = *it.Size
		}
		items = append(items, line)
	}

	note := fmt.Sprintf("Restock after payment failure for order %d", cancelled.ID)
	if err := p.restocker.Restock(ctx, items, note); err != nil {
		log.Error().Err(err).Int64("order_id", cancelled.ID).Msg("processor: restock after cancellation failed")
		return fmt.Errorf("processor: restock for order %d: %w", cancelled.ID, err)
	}
	return nil
}
