package http_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	adminHandler "github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/handler/http"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/reconcile"
)

func TestAdminHandler_handleSweep(t *testing.T) {
	sweeper := new(MockSweeper)
	sweeper.On("Sweep", mock.Anything).Return(int64(3), nil).Once()

	router := adminHandler.NewRouter(nil, adminHandler.NewAdminHandler(sweeper, new(MockConfirmer), false))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/pending-orders/sweep", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"removed":3}`, rr.Body.String())
	sweeper.AssertExpectations(t)
}

func TestAdminHandler_DevRoutesOnlyWhenEnabled(t *testing.T) {
	confirmer := new(MockConfirmer)
	router := adminHandler.NewRouter(nil, adminHandler.NewAdminHandler(new(MockSweeper), confirmer, false))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/dev/checkout-sessions/cs_1/complete", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	confirmer.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything, mock.Anything)
}

func TestAdminHandler_handleCompleteSession(t *testing.T) {
	testCases := []struct {
		name       string
		body       string
		setupMock  func(m *MockConfirmer)
		wantStatus int
	}{
		{
			name: "created",
			body: `{"payment_method":"gcash"}`,
			setupMock: func(m *MockConfirmer) {
				m.On("Confirm", mock.Anything, "cs_1", "gcash").
					Return(reconcile.Result{Outcome: reconcile.OutcomeCreated, Order: &order.Order{ID: 1}}, nil).Once()
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "empty body, already confirmed",
			setupMock: func(m *MockConfirmer) {
				m.On("Confirm", mock.Anything, "cs_1", "").
					Return(reconcile.Result{Outcome: reconcile.OutcomeAlreadyConfirmed, Order: &order.Order{ID: 1}}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "no pending data",
			body: `{}`,
			setupMock: func(m *MockConfirmer) {
				m.On("Confirm", mock.Anything, "cs_1", "").
					Return(reconcile.Result{}, errors.Join(reconcile.ErrReconciliationFailed, reconcile.ErrNoPendingData)).Once()
			},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			confirmer := new(MockConfirmer)
			tc.setupMock(confirmer)

			router := adminHandler.NewRouter(nil, adminHandler.NewAdminHandler(new(MockSweeper), confirmer, true))

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/dev/checkout-sessions/cs_1/complete", bytes.NewBufferString(tc.body)))

			assert.Equal(t, tc.wantStatus, rr.Code, rr.Body.String())
			confirmer.AssertExpectations(t)
		})
	}
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestRouter_Health(t *testing.T) {
	rr := httptest.NewRecorder()
	adminHandler.NewRouter(stubPinger{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	adminHandler.NewRouter(stubPinger{err: errors.New("refused")}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
