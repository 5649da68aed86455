package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/pending"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/reconcile"
)

const maxBodyBytes = 1 << 20

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

// respondWithError отправляет JSON ошибку
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondWithValidationErrors(w http.ResponseWriter, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:   "Validation failed",
			Details: formatValidationErrors(validationErrors),
		})
		return
	}
	log.Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
	respondWithError(w, http.StatusInternalServerError, "Internal validation error")
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		field := fieldPath(fe.Namespace())
		switch fe.Tag() {
		case "required":
			details[field] = "is required"
		case "email":
			details[field] = "must be a valid email address"
		case "min":
			details[field] = fmt.Sprintf("must have at least %s element(s)", fe.Param())
		case "max":
			details[field] = fmt.Sprintf("must be at most %s characters", fe.Param())
		case "gt":
			details[field] = fmt.Sprintf("must be greater than %s", fe.Param())
		default:
			details[field] = fmt.Sprintf("failed on '%s'", fe.Tag())
		}
	}
	return details
}

// fieldPath drops the top-level struct name: "CreateOrderInput.Items[0].Quantity"
// becomes "Items[0].Quantity".
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, pending.ErrNotFound),
		errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, reconcile.ErrNoPendingData):
		return http.StatusNotFound
	case errors.Is(err, order.ErrDuplicateCheckoutSession),
		errors.Is(err, pending.ErrDuplicateSession),
		errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, order.ErrValidation),
		errors.Is(err, order.ErrInvalidStatusTransition),
		errors.Is(err, pending.ErrValidation),
		errors.Is(err, reconcile.ErrValidation),
		errors.Is(err, inventory.ErrInvalidLineItem):
		return http.StatusBadRequest
	case errors.Is(err, reconcile.ErrReconciliationFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
