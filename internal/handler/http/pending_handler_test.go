package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	pendingHandler "github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/handler/http"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/pending"
)

const stagedOrder = `{"email":"buyer@example.com","first_name":"Ana","last_name":"Reyes","address":"12 Mabini St","items":[{"product_id":7,"quantity":2,"size":"M"}]}`

func newPendingRouter(store pendingHandler.PendingStore) *chi.Mux {
	router := chi.NewRouter()
	pendingHandler.NewPendingHandler(store).RegisterRoutes(router)
	return router
}

func TestPendingHandler_handleStagePendingOrder(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	testCases := []struct {
		name       string
		body       string
		setupMock  func(m *MockPendingStore)
		wantStatus int
	}{
		{
			name: "staged",
			body: `{"checkout_session_id":"cs_1","order":` + stagedOrder + `}`,
			setupMock: func(m *MockPendingStore) {
				m.On("Put", mock.Anything, "cs_1", mock.MatchedBy(func(p json.RawMessage) bool {
					return bytes.Contains(p, []byte(`"product_id":7`))
				})).Return(&pending.PendingOrder{CheckoutSessionID: "cs_1", ExpiresAt: now.Add(time.Hour), CreatedAt: now}, nil).Once()
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "duplicate live session",
			body: `{"checkout_session_id":"cs_1","order":` + stagedOrder + `}`,
			setupMock: func(m *MockPendingStore) {
				m.On("Put", mock.Anything, "cs_1", mock.Anything).Return(nil, pending.ErrDuplicateSession).Once()
			},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "missing session id",
			body:       `{"order":` + stagedOrder + `}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "order without items",
			body:       `{"checkout_session_id":"cs_1","order":{"email":"buyer@example.com","first_name":"Ana","last_name":"Reyes","address":"x","items":[]}}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "order is not an object",
			body:       `{"checkout_session_id":"cs_1","order":[1,2]}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := new(MockPendingStore)
			if tc.setupMock != nil {
				tc.setupMock(store)
			}

			req := httptest.NewRequest(http.MethodPost, "/pending-orders", bytes.NewBufferString(tc.body))
			rr := httptest.NewRecorder()
			newPendingRouter(store).ServeHTTP(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code, rr.Body.String())
			if tc.wantStatus == http.StatusCreated {
				var got pendingHandler.PendingOrderResponse
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
				assert.Equal(t, "cs_1", got.CheckoutSessionID)
				assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))
			}
			store.AssertExpectations(t)
		})
	}
}

func TestPendingHandler_handleGetPendingOrder(t *testing.T) {
	store := new(MockPendingStore)
	store.On("Get", mock.Anything, "cs_1").Return(&pending.PendingOrder{
		CheckoutSessionID: "cs_1",
		Payload:           json.RawMessage(stagedOrder),
	}, nil).Once()
	store.On("Get", mock.Anything, "cs_gone").Return(nil, pending.ErrNotFound).Once()

	router := newPendingRouter(store)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/pending-orders/cs_1", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got pendingHandler.PendingOrderResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.JSONEq(t, stagedOrder, string(got.Order))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/pending-orders/cs_gone", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	store.AssertExpectations(t)
}
