// Package respond centralizes JSON responses and domain-error mapping.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aweb-dev/aweb/internal/model"
)

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// ConflictResponse names the current holder of a contested reservation.
type ConflictResponse struct {
	ErrorResponse
	ResourceKey   string `json:"resource_key"`
	HolderAgentID string `json:"holder_agent_id"`
	HolderAlias   string `json:"holder_alias"`
	ExpiresAt     string `json:"expires_at"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteError writes a standardized error response.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Code:    statusCode,
		Message: message,
	})
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// WriteServiceError maps domain sentinels onto HTTP statuses. Reservation
// conflicts carry the holder in the body.
func WriteServiceError(w http.ResponseWriter, err error) {
	var conflict *model.ReservationConflictError
	if errors.As(err, &conflict) {
		WriteJSON(w, http.StatusConflict, ConflictResponse{
			ErrorResponse: ErrorResponse{
				Error:   http.StatusText(http.StatusConflict),
				Code:    http.StatusConflict,
				Message: conflict.Error(),
			},
			ResourceKey:   conflict.ResourceKey,
			HolderAgentID: conflict.HolderAgentID,
			HolderAlias:   conflict.HolderAlias,
			ExpiresAt:     conflict.ExpiresAt.UTC().Format(time.RFC3339),
		})
		return
	}

	switch {
	case errors.Is(err, model.ErrValidation):
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrUnauthenticated):
		WriteError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, model.ErrForbidden):
		WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, model.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrConflict):
		WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrGone):
		WriteError(w, http.StatusGone, err.Error())
	case errors.Is(err, model.ErrUnavailable):
		WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
