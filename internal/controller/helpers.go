package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

type errorMapping struct {
	err    error
	status int
	code   string
	// message replaces err.Error() when the detail must not reach the client
	message string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{err: domainErrors.ErrIdempotencyKeyInvalid, status: http.StatusBadRequest, code: "idempotency_key_invalid"},
	{err: domainErrors.ErrIdempotencyKeyInFlight, status: http.StatusConflict, code: "idempotency_key_in_flight"},
	{err: domainErrors.ErrIdempotencyKeyMismatch, status: http.StatusUnprocessableEntity, code: "idempotency_key_mismatch"},
	{err: domainErrors.ErrOrderNotFound, status: http.StatusNotFound, code: "not_found"},
	{err: domainErrors.ErrPaymentNotFound, status: http.StatusNotFound, code: "not_found"},
	{err: domainErrors.ErrPaymentConfigNotFound, status: http.StatusNotFound, code: "not_found"},
	{err: domainErrors.ErrPaymentConfigIncomplete, status: http.StatusBadRequest, code: "configuration_error"},
	{err: domainErrors.ErrInvalidStateTransition, status: http.StatusConflict, code: "invalid_state_transition"},
	{err: domainErrors.ErrForbidden, status: http.StatusForbidden, code: "forbidden"},
	{err: domainErrors.ErrUnauthorized, status: http.StatusUnauthorized, code: "unauthorized"},
	{err: domainErrors.ErrProviderTimeout, status: http.StatusGatewayTimeout, code: "provider_timeout", message: "payment provider timed out"},
	{err: domainErrors.ErrProviderUnavailable, status: http.StatusServiceUnavailable, code: "provider_unavailable", message: "payment provider unavailable"},
	{err: domainErrors.ErrProviderRejected, status: http.StatusBadGateway, code: "provider_rejected", message: "payment provider rejected the request"},
	{err: domainErrors.ErrValidationFailed, status: http.StatusBadRequest, code: "validation_error"},
	{err: domainErrors.ErrInvalidInput, status: http.StatusBadRequest, code: "invalid_input"},
}

// checkoutErrorMappings take precedence on endpoints that open a payment
// session: a missing config is the tenant's to fix, not a missing resource.
var checkoutErrorMappings = []errorMapping{
	{err: domainErrors.ErrPaymentConfigNotFound, status: http.StatusBadRequest, code: "configuration_error", message: "payment provider is not configured"},
	{err: domainErrors.ErrPaymentConfigIncomplete, status: http.StatusBadRequest, code: "configuration_error", message: "payment provider is not configured"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error, overrides ...errorMapping) {
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	for _, mappings := range [][]errorMapping{overrides, errorMappings} {
		for _, m := range mappings {
			if !errors.Is(err, m.err) {
				continue
			}
			resp.Code = m.code
			var domainErr *domainErrors.DomainError
			if errors.As(err, &domainErr) && domainErr.Code != "" {
				resp.Code = domainErr.Code
				resp.Error = domainErr.Message
			}
			if m.message != "" {
				resp.Error = m.message
			}
			writeJSON(w, m.status, resp)
			return
		}
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = domainErr.Code
		resp.Error = domainErr.Message
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	writeJSON(w, http.StatusInternalServerError, resp)
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON")
	}
	return validateStruct(dst)
}

// decodeOptional accepts an empty body and leaves dst at its zero value.
func decodeOptional(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return domainErrors.NewValidationError("body", "invalid JSON")
	}
	return validateStruct(dst)
}

func validateStruct(dst any) error {
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}

func principalFrom(r *http.Request) (middleware.Principal, error) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		return middleware.Principal{}, domainErrors.ErrUnauthorized
	}
	return p, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domainErrors.NewValidationError(name, "must be a valid UUID")
	}
	return id, nil
}
