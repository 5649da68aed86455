package http

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/clock"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/payment"
)

// VerifySignature rejects webhook requests whose signature header does not
// match the body. An empty secret disables the check. The body is restored
// for the next handler.
func VerifySignature(secret string, tolerance time.Duration, c clock.Clock) func(http.Handler) http.Handler {
	if c == nil {
		c = clock.NewSystem()
	}
	if secret == "" {
		log.Warn().Msg("Webhook signature verification is disabled")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				log.Warn().Err(err).Msg("Failed to read webhook body")
				respondWithError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			header := r.Header.Get(payment.SignatureHeader)
			if err := payment.VerifySignature(secret, header, body, c.Now(), tolerance); err != nil {
				log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Rejected webhook with invalid signature")
				respondWithError(w, http.StatusUnauthorized, "Invalid signature")
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
