package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/apperr"
)

type successEnvelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
	Message string    `json:"message,omitempty"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteData writes the success envelope.
func WriteData(w http.ResponseWriter, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(successEnvelope{Success: true, Data: data, Message: message}); err != nil {
		log.Error().Err(err).Msg("httpx: failed to encode response")
	}
}

// WriteError maps a domain error to the error envelope and status code.
// Unexpected errors are collapsed to a generic internal payload; the cause
// stays in the log, not in the response.
func WriteError(w http.ResponseWriter, err error) {
	e := apperr.From(err)
	if e.Kind == apperr.KindInternal {
		log.Error().Err(err).Msg("httpx: internal error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	env := errorEnvelope{
		Error:   errorBody{Code: e.Code, Details: e.Details},
		Message: e.Message,
	}
	if encodeErr := json.NewEncoder(w).Encode(env); encodeErr != nil {
		log.Error().Err(encodeErr).Msg("httpx: failed to encode error response")
	}
}
