package http

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/payment"
)

type EventProcessor interface {
	Handle(ctx context.Context, event payment.Event) error
}

type WebhookResponse struct {
	Received bool `json:"received"`
}

// WebhookHandler acknowledges every delivery with 200 so the provider does
// not retry into a known failure. Failures are logged for follow-up.
type WebhookHandler struct {
	processor EventProcessor
	verify    func(http.Handler) http.Handler
}

func NewWebhookHandler(processor EventProcessor, verify func(http.Handler) http.Handler) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		verify:    verify,
	}
}

func (h *WebhookHandler) RegisterRoutes(router chi.Router) {
	r := router
	if h.verify != nil {
		r = router.With(h.verify)
	}
	r.Post("/webhooks/payment", h.handlePaymentWebhook)
}

func (h *WebhookHandler) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Error().Err(err).Msg("Failed to read webhook body")
		respondWithJSON(w, http.StatusOK, WebhookResponse{Received: true})
		return
	}

	event, err := payment.ParseEvent(body)
	if err != nil {
		log.Error().Err(err).Int("body_bytes", len(body)).Msg("Failed to parse webhook event")
		respondWithJSON(w, http.StatusOK, WebhookResponse{Received: true})
		return
	}

	log.Info().
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Str("checkout_session_id", event.CheckoutSessionID).
		Msg("Webhook event received")

	if err := h.processor.Handle(context.WithoutCancel(r.Context()), event); err != nil {
		log.Error().
			Err(err).
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Str("checkout_session_id", event.CheckoutSessionID).
			Msg("Failed to process webhook event")
	}

	respondWithJSON(w, http.StatusOK, WebhookResponse{Received: true})
}
