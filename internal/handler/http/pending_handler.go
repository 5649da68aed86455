package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/pending"
)

type PendingStore interface {
	Put(ctx context.Context, sessionID string, payload json.RawMessage) (*pending.PendingOrder, error)
	Get(ctx context.Context, sessionID string) (*pending.PendingOrder, error)
}

type StagePendingOrderRequest struct {
	CheckoutSessionID string          `json:"checkout_session_id" validate:"required,max=255"`
	Order             json.RawMessage `json:"order" validate:"required"`
}

type PendingOrderResponse struct {
	CheckoutSessionID string          `json:"checkout_session_id"`
	Order             json.RawMessage `json:"order,omitempty"`
	ExpiresAt         time.Time       `json:"expires_at"`
	CreatedAt         time.Time       `json:"created_at"`
}

type PendingHandler struct {
	store    PendingStore
	validate *validator.Validate
}

func NewPendingHandler(store PendingStore) *PendingHandler {
	return &PendingHandler{
		store:    store,
		validate: validator.New(),
	}
}

func (h *PendingHandler) RegisterRoutes(router chi.Router) {
	router.Post("/pending-orders", h.handleStagePendingOrder)
	router.Get("/pending-orders/{sessionID}", h.handleGetPendingOrder)
}

func (h *PendingHandler) handleStagePendingOrder(w http.ResponseWriter, r *http.Request) {
	var requestPayload StagePendingOrderRequest
	if err := decodeJSON(w, r, &requestPayload); err != nil {
		log.Error().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload %v", err))
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	// The staged order is checked up front so a bad payload fails at
	// checkout rather than after the customer has paid.
	var staged order.CreateOrderInput
	if err := json.Unmarshal(requestPayload.Order, &staged); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid order payload %v", err))
		return
	}
	if err := h.validate.Struct(staged); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	created, err := h.store.Put(r.Context(), requestPayload.CheckoutSessionID, requestPayload.Order)
	if err != nil {
		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		switch {
		case errors.Is(err, pending.ErrDuplicateSession):
			clientMessage = "Checkout session already staged"
		case errors.Is(err, pending.ErrValidation):
			clientMessage = err.Error()
		default:
			log.Error().Err(err).Str("checkout_session_id", requestPayload.CheckoutSessionID).Msg("Failed to stage pending order via store")
			clientMessage = "Failed to stage pending order"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	respondWithJSON(w, http.StatusCreated, PendingOrderResponse{
		CheckoutSessionID: created.CheckoutSessionID,
		ExpiresAt:         created.ExpiresAt,
		CreatedAt:         created.CreatedAt,
	})
}

func (h *PendingHandler) handleGetPendingOrder(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	found, err := h.store.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, pending.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Pending order not found")
			return
		}
		log.Error().Err(err).Str("checkout_session_id", sessionID).Msg("Failed to get pending order via store")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to get pending order")
		return
	}

	respondWithJSON(w, http.StatusOK, PendingOrderResponse{
		CheckoutSessionID: found.CheckoutSessionID,
		Order:             found.Payload,
		ExpiresAt:         found.ExpiresAt,
		CreatedAt:         found.CreatedAt,
	})
}
