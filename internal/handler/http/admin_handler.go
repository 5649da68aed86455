package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/reconcile"
)

type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

type Confirmer interface {
	Confirm(ctx context.Context, sessionID, paymentMethod string) (reconcile.Result, error)
}

type SweepResponse struct {
	Removed int64 `json:"removed"`
}

type CompleteSessionRequest struct {
	PaymentMethod string `json:"payment_method,omitempty"`
}

// AdminHandler exposes operator endpoints. The dev routes simulate a paid
// checkout without the payment provider and are never mounted in
// production.
type AdminHandler struct {
	sweeper   Sweeper
	confirmer Confirmer
	devRoutes bool
}

func NewAdminHandler(sweeper Sweeper, confirmer Confirmer, devRoutes bool) *AdminHandler {
	return &AdminHandler{
		sweeper:   sweeper,
		confirmer: confirmer,
		devRoutes: devRoutes,
	}
}

func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Post("/admin/pending-orders/sweep", h.handleSweep)
	if h.devRoutes {
		router.Post("/dev/checkout-sessions/{sessionID}/complete", h.handleCompleteSession)
	}
}

func (h *AdminHandler) handleSweep(w http.ResponseWriter, r *http.Request) {
	removed, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to sweep pending orders")
		respondWithError(w, http.StatusInternalServerError, "Failed to sweep pending orders")
		return
	}

	respondWithJSON(w, http.StatusOK, SweepResponse{Removed: removed})
}

func (h *AdminHandler) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var requestPayload CompleteSessionRequest
	if err := decodeJSON(w, r, &requestPayload); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	result, err := h.confirmer.Confirm(context.WithoutCancel(r.Context()), sessionID, requestPayload.PaymentMethod)
	if err != nil {
		log.Error().Err(err).Str("checkout_session_id", sessionID).Msg("Failed to complete checkout session")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	statusCode := http.StatusOK
	if result.Outcome == reconcile.OutcomeCreated {
		statusCode = http.StatusCreated
	}
	respondWithJSON(w, statusCode, result)
}
