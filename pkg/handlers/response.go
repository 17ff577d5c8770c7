package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ieu-analytics/event2table/pkg/apperrors"
	"github.com/ieu-analytics/event2table/pkg/logging"
)

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse writes a JSON error envelope and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteError maps a service error onto its HTTP status and envelope. Server
// errors are scrubbed so internal identifiers never reach the caller.
func WriteError(w http.ResponseWriter, logger *zap.Logger, err error) {
	code := apperrors.ErrorType(err)
	message := err.Error()

	var status int
	switch {
	case errors.Is(err, apperrors.ErrValidation), errors.Is(err, apperrors.ErrHQLGeneration):
		status = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrConflict):
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
		message = logging.ScrubInternal(logging.SanitizeError(err))
	}

	if werr := ErrorResponse(w, status, code, message); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}
