package http_test

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/payment"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/pending"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/reconcile"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateOrder(ctx context.Context, input *order.CreateOrderInput) (*order.Order, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetOrderByID(ctx context.Context, id int64) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetOrderByCheckoutSession(ctx context.Context, sessionID string) (*order.Order, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetOrdersByUserID(ctx context.Context, userID int64) ([]order.Order, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderService) GetOrdersByEmail(ctx context.Context, email string) ([]order.Order, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderService) UpdateOrderStatus(ctx context.Context, orderID int64, newStatus order.OrderStatus) (*order.Order, error) {
	args := m.Called(ctx, orderID, newStatus)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) CancelByCheckoutSession(ctx context.Context, sessionID string) (*order.Order, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

type MockPendingStore struct {
	mock.Mock
}

func (m *MockPendingStore) Put(ctx context.Context, sessionID string, payload json.RawMessage) (*pending.PendingOrder, error) {
	args := m.Called(ctx, sessionID, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pending.PendingOrder), args.Error(1)
}

func (m *MockPendingStore) Get(ctx context.Context, sessionID string) (*pending.PendingOrder, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pending.PendingOrder), args.Error(1)
}

type MockEventProcessor struct {
	mock.Mock
}

func (m *MockEventProcessor) Handle(ctx context.Context, event payment.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type MockSweeper struct {
	mock.Mock
}

func (m *MockSweeper) Sweep(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockConfirmer struct {
	mock.Mock
}

func (m *MockConfirmer) Confirm(ctx context.Context, sessionID, paymentMethod string) (reconcile.Result, error) {
	args := m.Called(ctx, sessionID, paymentMethod)
	return args.Get(0).(reconcile.Result), args.Error(1)
}
