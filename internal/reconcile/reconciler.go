package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/pending"
)

var (
	ErrValidation           = errors.New("invalid reconciliation request")
	ErrNoPendingData        = errors.New("no pending data for checkout session")
	ErrReconciliationFailed = errors.New("reconciliation failed")
)

type Outcome string

const (
	OutcomeCreated          Outcome = "created"
	OutcomeAlreadyConfirmed Outcome = "already_confirmed"
	OutcomeInFlight         Outcome = "in_flight"
)

func (o Outcome) String() string {
	return string(o)
}

type Result struct {
	Outcome Outcome      `json:"outcome"`
	Order   *order.Order `json:"order,omitempty"`
}

type OrderService interface {
	GetOrderByCheckoutSession(ctx context.Context, sessionID string) (*order.Order, error)
	CreateOrder(ctx context.Context, input *order.CreateOrderInput) (*order.Order, error)
}

type PendingStore interface {
	Get(ctx context.Context, sessionID string) (*pending.PendingOrder, error)
	Delete(ctx context.Context, sessionID string) error
}

// Reconciler turns a confirmed payment plus its staged payload into exactly
// one order.
type Reconciler struct {
	orders  OrderService
	pending PendingStore
	locker  Locker
}

func NewReconciler(orders OrderService, pendingStore PendingStore, locker Locker) *Reconciler {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &Reconciler{
		orders:  orders,
		pending: pendingStore,
		locker:  locker,
	}
}

// Confirm materializes the order for sessionID. A duplicate delivery
// returns OutcomeAlreadyConfirmed; a delivery racing one already being
// processed returns OutcomeInFlight. Both carry a nil error.
//
// Cancellation of ctx is ignored: once stock is decremented the order must
// be written, otherwise a retry would decrement again.
func (r *Reconciler) Confirm(ctx context.Context, sessionID, paymentMethod string) (Result, error) {
	ctx = context.WithoutCancel(ctx)

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Result{}, fmt.Errorf("%w: checkout session id is required", ErrValidation)
	}

	release, acquired, err := r.locker.TryAcquire(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("checkout_session_id", sessionID).Msg("reconcile: failed to acquire in-flight lock")
		return Result{}, fmt.Errorf("%w: %w", ErrReconciliationFailed, err)
	}
	if !acquired {
		log.Info().Str("checkout_session_id", sessionID).Msg("reconcile: confirmation already in flight, skipping")
		return Result{Outcome: OutcomeInFlight}, nil
	}
	defer release()

	existing, err := r.orders.GetOrderByCheckoutSession(ctx, sessionID)
	if err == nil {
		log.Info().Str("checkout_session_id", sessionID).Int64("order_id", existing.ID).Msg("reconcile: session already confirmed")
		return Result{Outcome: OutcomeAlreadyConfirmed, Order: existing}, nil
	}
	if !errors.Is(err, order.ErrOrderNotFound) {
		log.Error().Err(err).Str("checkout_session_id", sessionID).Msg("reconcile: failed to look up existing order")
		return Result{}, fmt.Errorf("%w: %w", ErrReconciliationFailed, err)
	}

	staged, err := r.pending.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pending.ErrNotFound) {
			log.Error().
				Str("checkout_session_id", sessionID).
				Bool("payload_present", false).
				Str("payment_method", paymentMethod).
				Msg("reconcile: payment confirmed but no pending order data, manual follow-up required")
			return Result{}, fmt.Errorf("%w: %w", ErrReconciliationFailed, ErrNoPendingData)
		}
		log.Error().Err(err).Str("checkout_session_id", sessionID).Msg("reconcile: failed to read pending order")
		return Result{}, fmt.Errorf("%w: %w", ErrReconciliationFailed, err)
	}

	var input order.CreateOrderInput
	if err := json.Unmarshal(staged.Payload, &input); err != nil {
		log.Error().Err(err).Str("checkout_session_id", sessionID).Bool("payload_present", true).Msg("reconcile: staged payload is not a valid order")
		return Result{}, fmt.Errorf("%w: %w: %v", ErrReconciliationFailed, ErrValidation, err)
	}
	// метод оплаты берется только из события, не от клиента
	input.CheckoutSessionID = sessionID
	input.PaymentMethod = paymentMethod

	created, err := r.orders.CreateOrder(ctx, &input)
	if err != nil {
		if errors.Is(err, order.ErrDuplicateCheckoutSession) {
			log.Info().Str("checkout_session_id", sessionID).Msg("reconcile: order created concurrently elsewhere")
			existing, getErr := r.orders.GetOrderByCheckoutSession(ctx, sessionID)
			if getErr != nil {
				existing = nil
			}
			return Result{Outcome: OutcomeAlreadyConfirmed, Order: existing}, nil
		}
		log.Error().
			Err(err).
			Str("checkout_session_id", sessionID).
			Bool("payload_present", true).
			Int("items", len(input.Items)).
			Msg("reconcile: failed to materialize order")
		return Result{}, fmt.Errorf("%w: %w", ErrReconciliationFailed, err)
	}

	if err := r.pending.Delete(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("checkout_session_id", sessionID).Msg("reconcile: failed to delete pending order, it will expire")
	}

	log.Info().
		Str("checkout_session_id", sessionID).
		Int64("order_id", created.ID).
		Str("payment_method", created.PaymentMethod).
		Msg("reconcile: order confirmed")

	return Result{Outcome: OutcomeCreated, Order: created}, nil
}
