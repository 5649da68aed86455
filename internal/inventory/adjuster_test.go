package inventory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/inventory"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) FindSizeStock(ctx context.Context, productID int64, size string) (*inventory.SizeStock, error) {
	args := m.Called(ctx, productID, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.SizeStock), args.Error(1)
}

func (m *MockRepository) DecrementSizeStock(ctx context.Context, id int64, quantity int) (int, error) {
	args := m.Called(ctx, id, quantity)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) IncrementSizeStock(ctx context.Context, id int64, quantity int) (int, error) {
	args := m.Called(ctx, id, quantity)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) DecrementProductStock(ctx context.Context, productID int64, quantity int) (int, error) {
	args := m.Called(ctx, productID, quantity)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) IncrementProductStock(ctx context.Context, productID int64, quantity int) (int, error) {
	args := m.Called(ctx, productID, quantity)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) AppendLedger(ctx context.Context, entry *inventory.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRepository) ListLedger(ctx context.Context, productID int64) ([]inventory.LedgerEntry, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]inventory.LedgerEntry), args.Error(1)
}

func ledgerMatches(productID int64, delta int, size *string, changeType inventory.ChangeType) interface{} {
	return mock.MatchedBy(func(e *inventory.LedgerEntry) bool {
		if e.ProductID != productID || e.QuantityDelta != delta || e.ChangeType != changeType {
			return false
		}
		if size == nil {
			return e.Size == nil
		}
		return e.Size != nil && *e.Size == *size
	})
}

func strPtr(s string) *string { return &s }

func TestAdjuster_Decrement_SizePool(t *testing.T) {
	mockRepo := new(MockRepository)
	adjuster := inventory.NewAdjuster(mockRepo)

	mockRepo.On("FindSizeStock", mock.Anything, int64(7), "M").
		Return(&inventory.SizeStock{ID: 70, ProductID: 7, Size: "M", Stock: 5}, nil).Once()
	mockRepo.On("DecrementSizeStock", mock.Anything, int64(70), 2).Return(3, nil).Once()
	mockRepo.On("AppendLedger", mock.Anything, ledgerMatches(7, -2, strPtr("M"), inventory.ChangeTypeSale)).Return(nil).Once()

	err := adjuster.Decrement(context.Background(), []inventory.LineItem{{ProductID: 7, Quantity: 2, Size: "M"}})
	require.NoError(t, err)

	mockRepo.AssertExpectations(t)
	mockRepo.AssertNotCalled(t, "DecrementProductStock", mock.Anything, mock.Anything, mock.Anything)
}

func TestAdjuster_Decrement_SizeLabelFallback(t *testing.T) {
	tests := []struct {
		name      string
		size      string
		alternate string
	}{
		{name: "bare_to_prefixed", size: "M", alternate: "Size M"},
		{name: "prefixed_to_bare", size: "Size M", alternate: "M"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockRepository)
			adjuster := inventory.NewAdjuster(mockRepo)

			mockRepo.On("FindSizeStock", mock.Anything, int64(7), tt.size).Return(nil, inventory.ErrSizeStockNotFound).Once()
			mockRepo.On("FindSizeStock", mock.Anything, int64(7), tt.alternate).
				Return(&inventory.SizeStock{ID: 71, ProductID: 7, Size: tt.alternate, Stock: 4}, nil).Once()
			mockRepo.On("DecrementSizeStock", mock.Anything, int64(71), 1).Return(3, nil).Once()
			mockRepo.On("AppendLedger", mock.Anything, ledgerMatches(7, -1, strPtr(tt.alternate), inventory.ChangeTypeSale)).Return(nil).Once()

			err := adjuster.Decrement(context.Background(), []inventory.LineItem{{ProductID: 7, Quantity: 1, Size: tt.size}})
			require.NoError(t, err)
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestAdjuster_Decrement_ProductPool(t *testing.T) {
	t.Run("no_size_supplied", func(t *testing.T) {
		mockRepo := new(MockRepository)
		adjuster := inventory.NewAdjuster(mockRepo)

		mockRepo.On("DecrementProductStock", mock.Anything, int64(3), 4).Return(6, nil).Once()
		mockRepo.On("AppendLedger", mock.Anything, ledgerMatches(3, -4, nil, inventory.ChangeTypeSale)).Return(nil).Once()

		err := adjuster.Decrement(context.Background(), []inventory.LineItem{{ProductID: 3, Quantity: 4}})
		require.NoError(t, err)
		mockRepo.AssertExpectations(t)
		mockRepo.AssertNotCalled(t, "FindSizeStock", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("size_without_pool", func(t *testing.T) {
		mockRepo := new(MockRepository)
		adjuster := inventory.NewAdjuster(mockRepo)

		mockRepo.On("FindSizeStock", mock.Anything, int64(3), mock.AnythingOfType("string")).Return(nil, inventory.ErrSizeStockNotFound).Twice()
		mockRepo.On("DecrementProductStock", mock.Anything, int64(3), 1).Return(0, nil).Once()
		mockRepo.On("AppendLedger", mock.Anything, ledgerMatches(3, -1, nil, inventory.ChangeTypeSale)).Return(nil).Once()

		err := adjuster.Decrement(context.Background(), []inventory.LineItem{{ProductID: 3, Quantity: 1, Size: "XL"}})
		require.NoError(t, err)
		mockRepo.AssertExpectations(t)
	})
}

func TestAdjuster_Decrement_Errors(t *testing.T) {
	tests := []struct {
		name      string
		items     []inventory.LineItem
		setup     func(m *MockRepository)
		wantErrIs error
		wantMsg   string
	}{
		{
			name:      "zero_quantity",
			items:     []inventory.LineItem{{ProductID: 1, Quantity: 0}},
			setup:     func(m *MockRepository) {},
			wantErrIs: inventory.ErrInvalidLineItem,
		},
		{
			name:      "missing_product_id",
			items:     []inventory.LineItem{{ProductID: 0, Quantity: 1}},
			setup:     func(m *MockRepository) {},
			wantErrIs: inventory.ErrInvalidLineItem,
		},
		{
			name:  "product_not_found",
			items: []inventory.LineItem{{ProductID: 99, Quantity: 1}},
			setup: func(m *MockRepository) {
				m.On("DecrementProductStock", mock.Anything, int64(99), 1).Return(0, inventory.ErrProductNotFound).Once()
			},
			wantErrIs: inventory.ErrProductNotFound,
		},
		{
			name:  "insufficient_product_stock",
			items: []inventory.LineItem{{ProductID: 5, Quantity: 10}},
			setup: func(m *MockRepository) {
				m.On("DecrementProductStock", mock.Anything, int64(5), 10).Return(3, inventory.ErrInsufficientStock).Once()
			},
			wantErrIs: inventory.ErrInsufficientStock,
			wantMsg:   "requested 10, available 3",
		},
		{
			name:  "insufficient_size_stock",
			items: []inventory.LineItem{{ProductID: 7, Quantity: 6, Size: "M"}},
			setup: func(m *MockRepository) {
				m.On("FindSizeStock", mock.Anything, int64(7), "M").
					Return(&inventory.SizeStock{ID: 70, ProductID: 7, Size: "M", Stock: 5}, nil).Once()
				m.On("DecrementSizeStock", mock.Anything, int64(70), 6).Return(5, inventory.ErrInsufficientStock).Once()
			},
			wantErrIs: inventory.ErrInsufficientStock,
			wantMsg:   `size "M"`,
		},
		{
			name:  "size_lookup_failure",
			items: []inventory.LineItem{{ProductID: 7, Quantity: 1, Size: "M"}},
			setup: func(m *MockRepository) {
				m.On("FindSizeStock", mock.Anything, int64(7), "M").Return(nil, errors.New("connection reset")).Once()
			},
			wantMsg: "connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockRepository)
			tt.setup(mockRepo)
			adjuster := inventory.NewAdjuster(mockRepo)

			err := adjuster.Decrement(context.Background(), tt.items)
			require.Error(t, err)
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
			mockRepo.AssertExpectations(t)
			mockRepo.AssertNotCalled(t, "AppendLedger", mock.Anything, mock.Anything)
		})
	}
}

// A failure on a later line leaves earlier decrements in place and never
// reaches the lines after it.
func TestAdjuster_Decrement_PartialFailureKeepsEarlierItems(t *testing.T) {
	mockRepo := new(MockRepository)
	adjuster := inventory.NewAdjuster(mockRepo)

	mockRepo.On("DecrementProductStock", mock.Anything, int64(1), 2).Return(8, nil).Once()
	mockRepo.On("AppendLedger", mock.Anything, ledgerMatches(1, -2, nil, inventory.ChangeTypeSale)).Return(nil).Once()
	mockRepo.On("DecrementProductStock", mock.Anything, int64(2), 5).Return(1, inventory.ErrInsufficientStock).Once()

	err := adjuster.Decrement(context.Background(), []inventory.LineItem{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 5},
		{ProductID: 3, Quantity: 1},
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "line 1")

	mockRepo.AssertExpectations(t)
	mockRepo.AssertNotCalled(t, "DecrementProductStock", mock.Anything, int64(3), mock.Anything)
	mockRepo.AssertNotCalled(t, "IncrementProductStock", mock.Anything, mock.Anything, mock.Anything)
}

func TestAdjuster_Restock(t *testing.T) {
	mockRepo := new(MockRepository)
	adjuster := inventory.NewAdjuster(mockRepo)

	mockRepo.On("FindSizeStock", mock.Anything, int64(7), "M").
		Return(&inventory.SizeStock{ID: 70, ProductID: 7, Size: "M", Stock: 3}, nil).Once()
	mockRepo.On("IncrementSizeStock", mock.Anything, int64(70), 2).Return(5, nil).Once()
	mockRepo.On("AppendLedger", mock.Anything, ledgerMatches(7, 2, strPtr("M"), inventory.ChangeTypeRestock)).Return(nil).Once()
	mockRepo.On("IncrementProductStock", mock.Anything, int64(3), 1).Return(4, nil).Once()
	mockRepo.On("AppendLedger", mock.Anything, ledgerMatches(3, 1, nil, inventory.ChangeTypeRestock)).Return(nil).Once()

	err := adjuster.Restock(context.Background(), []inventory.LineItem{
		{ProductID: 7, Quantity: 2, Size: "M"},
		{ProductID: 3, Quantity: 1},
	}, "payment failed for cs_9")
	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestAdjuster_Restock_ProductNotFound(t *testing.T) {
	mockRepo := new(MockRepository)
	adjuster := inventory.NewAdjuster(mockRepo)

	mockRepo.On("IncrementProductStock", mock.Anything, int64(404), 1).Return(0, inventory.ErrProductNotFound).Once()

	err := adjuster.Restock(context.Background(), []inventory.LineItem{{ProductID: 404, Quantity: 1}}, "")
	require.ErrorIs(t, err, inventory.ErrProductNotFound)
	mockRepo.AssertNotCalled(t, "AppendLedger", mock.Anything, mock.Anything)
}
