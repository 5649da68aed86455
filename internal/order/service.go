package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/clock"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/db"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/inventory"
)

var allowedTransitions = map[OrderStatus]map[OrderStatus]bool{
	StatusPending: {
		StatusProcessing: true,
		StatusShipped:    true,
		StatusDelivered:  true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusShipped:   true,
		StatusDelivered: true,
		StatusCancelled: true,
	},
	StatusShipped: {
		StatusDelivered: true,
		StatusCancelled: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

var (
	ErrValidation               = errors.New("invalid order")
	ErrInvalidStatusTransition  = errors.New("invalid order status transition")
	ErrTrackingAssignmentFailed = errors.New("tracking number assignment failed")
)

var validate = validator.New()

// StockAdjuster decrements stock for the lines of a new order.
type StockAdjuster interface {
	Decrement(ctx context.Context, items []inventory.LineItem) error
}

type Service interface {
	CreateOrder(ctx context.Context, input *CreateOrderInput) (*Order, error)
	GetOrderByID(ctx context.Context, id int64) (*Order, error)
	GetOrderByCheckoutSession(ctx context.Context, sessionID string) (*Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]Order, error)
	GetOrdersByEmail(ctx context.Context, email string) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, newStatus OrderStatus) (*Order, error)
	CancelByCheckoutSession(ctx context.Context, sessionID string) (*Order, error)
}

type ServiceOption func(*service)

// WithAtomicStock runs the stock decrement and the order insert in one
// transaction, so a failing line rolls back the lines before it.
func WithAtomicStock(tx db.TxRunner) ServiceOption {
	return func(s *service) {
		s.tx = tx
	}
}

func WithTrackingGenerator(gen TrackingGenerator) ServiceOption {
	return func(s *service) {
		if gen != nil {
			s.generateTracking = gen
		}
	}
}

func WithClock(c clock.Clock) ServiceOption {
	return func(s *service) {
		if c != nil {
			s.clock = c
		}
	}
}

type service struct {
	orderRepo        Repository
	stock            StockAdjuster
	tx               db.TxRunner
	generateTracking TrackingGenerator
	clock            clock.Clock
}

func NewService(orderRepo Repository, stock StockAdjuster, opts ...ServiceOption) Service {
	s := &service{
		orderRepo:        orderRepo,
		stock:            stock,
		generateTracking: GenerateTrackingNumber,
		clock:            clock.NewSystem(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) CreateOrder(ctx context.Context, input *CreateOrderInput) (*Order, error) {
	if input == nil {
		return nil, fmt.Errorf("%w: order input is required", ErrValidation)
	}
	if err := validateCreateInput(input); err != nil {
		log.Warn().Err(err).Str("checkout_session_id", input.CheckoutSessionID).Msg("service: rejected order input")
		return nil, err
	}

	newOrder := buildOrder(input)
	lines := make([]inventory.LineItem, 0, len(input.Items))
	for _, item := range input.Items {
		lines = append(lines, inventory.LineItem{ProductID: item.ProductID, Quantity: item.Quantity, Size: item.Size})
	}

	create := func(ctx context.Context) error {
		if err := s.stock.Decrement(ctx, lines); err != nil {
			return err
		}
		_, err := s.orderRepo.CreateOrder(ctx, newOrder)
		return err
	}

	var err error
	if s.tx != nil {
		err = s.tx.WithTx(ctx, create)
	} else {
		err = create(ctx)
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateCheckoutSession):
			log.Info().Str("checkout_session_id", input.CheckoutSessionID).Msg("service: order already exists for checkout session")
			return nil, ErrDuplicateCheckoutSession
		case errors.Is(err, inventory.ErrInsufficientStock),
			errors.Is(err, inventory.ErrProductNotFound),
			errors.Is(err, inventory.ErrInvalidLineItem):
			log.Warn().Err(err).Str("checkout_session_id", input.CheckoutSessionID).Msg("service: stock check failed, order not created")
			return nil, fmt.Errorf("service: failed to reserve stock: %w", err)
		default:
			log.Error().Err(err).Str("checkout_session_id", input.CheckoutSessionID).Msg("service: failed to create order in repository")
			return nil, fmt.Errorf("service: failed to create order: %w", err)
		}
	}

	log.Info().
		Int64("order_id", newOrder.ID).
		Str("checkout_session_id", newOrder.CheckoutSessionID).
		Stringer("total_price", newOrder.TotalPrice).
		Msg("service: order created successfully")

	return newOrder, nil
}

func (s *service) GetOrderByID(ctx context.Context, id int64) (*Order, error) {
	order, err := s.orderRepo.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Int64("order_id", id).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Msg("service: failed to fetch order by id in repository")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	return order, nil
}

func (s *service) GetOrderByCheckoutSession(ctx context.Context, sessionID string) (*Order, error) {
	order, err := s.orderRepo.GetOrderByCheckoutSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Str("checkout_session_id", sessionID).Msg("service: failed to fetch order by checkout session")
		return nil, fmt.Errorf("service: failed to fetch order by checkout session: %w", err)
	}

	return order, nil
}

func (s *service) GetOrdersByUserID(ctx context.Context, userID int64) ([]Order, error) {
	orders, err := s.orderRepo.GetOrdersByUserID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("service: failed to fetch user orders in repository")
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}

	return orders, nil
}

func (s *service) GetOrdersByEmail(ctx context.Context, email string) ([]Order, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	}

	orders, err := s.orderRepo.GetOrdersByEmail(ctx, email)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to fetch orders by email in repository")
		return nil, fmt.Errorf("service: failed to fetch orders by email: %w", err)
	}

	return orders, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, orderID int64, newStatus OrderStatus) (*Order, error) {
	if _, ok := allowedTransitions[newStatus]; !ok {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrValidation, newStatus)
	}

	currentOrder, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Int64("order_id", orderID).Stringer("new_status", newStatus).Msg("service: order not found, cannot update status")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Int64("order_id", orderID).Msg("service: failed to get order for status update")
		return nil, fmt.Errorf("service: failed to get order for status update: %w", err)
	}

	if currentOrder.Status == newStatus && !(newStatus == StatusShipped && currentOrder.TrackingNumber == nil) {
		log.Info().Int64("order_id", orderID).Stringer("status", newStatus).Msg("service: order status is already the same, no update needed")
		return currentOrder, nil
	}

	if currentOrder.Status != newStatus && !allowedTransitions[currentOrder.Status][newStatus] {
		log.Warn().
			Int64("order_id", orderID).
			Stringer("current_status", currentOrder.Status).
			Stringer("new_status", newStatus).
			Msg("service: invalid status transition attempt")
		return nil, fmt.Errorf("%w: from %s to %s", ErrInvalidStatusTransition, currentOrder.Status, newStatus)
	}

	update := StatusUpdate{Status: newStatus}
	now := s.clock.Now()

	switch newStatus {
	case StatusShipped:
		if currentOrder.TrackingNumber == nil {
			trackingNumber, err := s.generateTracking()
			if err != nil {
				log.Error().Err(err).Int64("order_id", orderID).Msg("service: failed to generate tracking number")
				return nil, fmt.Errorf("%w: %w", ErrTrackingAssignmentFailed, err)
			}
			if len(trackingNumber) < minTrackingNumberLength {
				log.Error().Int64("order_id", orderID).Str("tracking_number", trackingNumber).Msg("service: generated tracking number too short")
				return nil, fmt.Errorf("%w: %q is shorter than %d characters", ErrTrackingAssignmentFailed, trackingNumber, minTrackingNumberLength)
			}
			update.TrackingNumber = &trackingNumber
		}
		if currentOrder.ShippedDate == nil {
			update.ShippedDate = &now
		}
	case StatusDelivered:
		if currentOrder.DeliveredDate == nil {
			update.DeliveredDate = &now
		}
	}

	if err := s.orderRepo.UpdateOrderStatus(ctx, orderID, update); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Int64("order_id", orderID).Stringer("new_status", newStatus).Msg("service: failed to update order status in repository")
		return nil, fmt.Errorf("service: failed to update order status: %w", err)
	}

	updated, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to reload order after status update: %w", err)
	}

	log.Info().Int64("order_id", orderID).Stringer("old_status", currentOrder.Status).Stringer("new_status", newStatus).Msg("service: order status updated successfully")
	return updated, nil
}

func (s *service) CancelByCheckoutSession(ctx context.Context, sessionID string) (*Order, error) {
	existing, err := s.GetOrderByCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.UpdateOrderStatus(ctx, existing.ID, StatusCancelled)
}

func validateCreateInput(input *CreateOrderInput) error {
	if err := validate.Struct(input); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	if input.ShippingCost.IsNegative() {
		return fmt.Errorf("%w: shipping cost cannot be negative", ErrValidation)
	}
	for _, item := range input.Items {
		if item.Price.IsNegative() {
			return fmt.Errorf("%w: price for product %d cannot be negative", ErrValidation, item.ProductID)
		}
	}
	return nil
}

func buildOrder(input *CreateOrderInput) *Order {
	total := input.ShippingCost
	items := make([]OrderItem, 0, len(input.Items))
	for _, in := range input.Items {
		item := OrderItem{
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			Price:     in.Price,
		}
		if size := strings.TrimSpace(in.Size); size != "" {
			item.Size = &size
		}
		items = append(items, item)
		total = total.Add(in.Price.Mul(decimal.NewFromInt(int64(in.Quantity))))
	}

	return &Order{
		UserID:            input.UserID,
		Email:             strings.TrimSpace(input.Email),
		FirstName:         input.FirstName,
		LastName:          input.LastName,
		Address:           input.Address,
		City:              input.City,
		State:             input.State,
		PostalCode:        input.PostalCode,
		Country:           input.Country,
		Phone:             input.Phone,
		Status:            StatusPending,
		TotalPrice:        total,
		ShippingCost:      input.ShippingCost,
		CheckoutSessionID: input.CheckoutSessionID,
		PaymentMethod:     input.PaymentMethod,
		OrderItems:        items,
	}
}
