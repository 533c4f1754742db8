// Package transport contains the HTTP router, middleware chain, and all
// request handlers for the relay API.
package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/relayops/relay/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:        http.StatusBadRequest,
	model.ErrAuth:              http.StatusUnauthorized,
	model.ErrReplay:            http.StatusUnauthorized,
	model.ErrForbidden:         http.StatusForbidden,
	model.ErrNotFound:          http.StatusNotFound,
	model.ErrConflict:          http.StatusConflict,
	model.ErrValidationError:   http.StatusUnprocessableEntity,
	model.ErrState:             http.StatusBadRequest,
	model.ErrRateLimited:       http.StatusTooManyRequests,
	model.ErrInternalError:     http.StatusInternalServerError,
	model.ErrWorkerUnavailable: http.StatusBadGateway,
	model.ErrWorkerTimeout:     http.StatusGatewayTimeout,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes an ErrorEnvelope as a JSON response with the correct
// HTTP status code. If err is not an *ErrorEnvelope, a generic 500 is returned.
func WriteError(w http.ResponseWriter, err error) {
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok {
		ee = model.NewInternalError()
	}

	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if ee.Code == model.ErrRateLimited && ee.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(ee.RetryAfter))
	}

	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, status, errorResponse{Error: ee})
}
