package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
)

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.handleCreateOrder)
	router.Get("/orders", h.handleGetOrdersByEmail)
	router.Get("/orders/{id}", h.handleGetOrderByID)
	router.Get("/orders/checkout-session/{sessionID}", h.handleGetOrderByCheckoutSession)
	router.Patch("/orders/{id}/status", h.handleUpdateOrderStatus)
	router.Get("/users/{userID}/orders", h.handleGetOrdersByUserID)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var requestPayload order.CreateOrderInput
	if err := decodeJSON(w, r, &requestPayload); err != nil {
		log.Error().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload %v", err))
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	created, err := h.service.CreateOrder(r.Context(), &requestPayload)
	if err != nil {
		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		switch {
		case errors.Is(err, inventory.ErrInsufficientStock):
			clientMessage = "Insufficient stock"
		case errors.Is(err, inventory.ErrProductNotFound):
			clientMessage = "Product not found"
		case errors.Is(err, order.ErrDuplicateCheckoutSession):
			clientMessage = "Order already exists for checkout session"
		case errors.Is(err, order.ErrValidation), errors.Is(err, inventory.ErrInvalidLineItem):
			clientMessage = err.Error()
		default:
			log.Error().Err(err).Msg("Failed to create order via service")
			clientMessage = "Failed to create order"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) handleGetOrderByID(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.GetOrderByID(r.Context(), orderID)
	if err != nil {
		h.respondWithLookupError(w, err, "Failed to get order")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *OrderHandler) handleGetOrderByCheckoutSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	found, err := h.service.GetOrderByCheckoutSession(r.Context(), sessionID)
	if err != nil {
		h.respondWithLookupError(w, err, "Failed to get order")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *OrderHandler) handleGetOrdersByEmail(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		respondWithError(w, http.StatusBadRequest, "email query parameter is required")
		return
	}

	orders, err := h.service.GetOrdersByEmail(r.Context(), email)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get orders by email via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to get orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleGetOrdersByUserID(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseIDParam(w, r, "userID")
	if !ok {
		return
	}

	orders, err := h.service.GetOrdersByUserID(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to get user orders via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to get orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var requestPayload UpdateStatusRequest
	if err := decodeJSON(w, r, &requestPayload); err != nil {
		log.Error().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload %v", err))
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	newStatus, err := order.ParseStatus(requestPayload.Status)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.service.UpdateOrderStatus(r.Context(), orderID, newStatus)
	if err != nil {
		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			clientMessage = "Order not found"
		case errors.Is(err, order.ErrInvalidStatusTransition):
			clientMessage = err.Error()
		case errors.Is(err, order.ErrTrackingAssignmentFailed):
			log.Error().Err(err).Int64("order_id", orderID).Msg("Tracking number assignment failed")
			clientMessage = "Failed to assign tracking number"
		default:
			log.Error().Err(err).Int64("order_id", orderID).Msg("Failed to update order status via service")
			clientMessage = "Failed to update order status"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) respondWithLookupError(w http.ResponseWriter, err error, fallback string) {
	if errors.Is(err, order.ErrOrderNotFound) {
		respondWithError(w, http.StatusNotFound, "Order not found")
		return
	}
	log.Error().Err(err).Msg(fallback + " via service")
	respondWithError(w, mapErrorToStatusCode(err), fallback)
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	idParam := chi.URLParam(r, name)
	id, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil || id <= 0 {
		log.Warn().Str(name, idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s parameter", name))
		return 0, false
	}
	return id, true
}
