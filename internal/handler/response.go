package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError, so the API has one
// content type and one error shape:
//
//	{"error": "validation_error", "message": "title must be at least 3 characters",
//	 "fields": [{"field": "title", "message": "..."}]}
//
// "fields" only appears on validation errors and lists every rejected input,
// not just the first.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/blog-api/internal/apperror"
)

// internalErrorMessage is the only thing a client learns about a 500.
const internalErrorMessage = "An internal error occurred"

// maxJSONBody caps request bodies decoded by decodeJSON.
const maxJSONBody = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string                `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string                `json:"message"` // Human-readable description
	Fields  []apperror.FieldError `json:"fields,omitempty"`
}

// SuccessResponse acknowledges writes that return no document.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// writeJSON sends a JSON response with the given status code.
//
// Headers and status go out before the body; once Encode writes, they are fixed.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// The status is already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// The service layer returns apperror kinds and knows nothing about HTTP. This
// is the one place those kinds become status codes:
//
//	ErrValidation   → 400
//	ErrUnauthorized → 401
//	ErrForbidden    → 403
//	ErrNotFound     → 404
//	ErrConflict     → 409
//	anything else   → 500, logged, with a fixed message
//
// errors.As walks the whole chain, so a service wrapping an AppError with
// fmt.Errorf("...: %w", err) still maps correctly.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, errorType := http.StatusInternalServerError, "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status, errorType = http.StatusBadRequest, "validation_error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status, errorType = http.StatusUnauthorized, "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status, errorType = http.StatusForbidden, "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status, errorType = http.StatusNotFound, "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status, errorType = http.StatusConflict, "conflict"
		}

		if status != http.StatusInternalServerError {
			writeJSON(w, status, ErrorResponse{
				Error:   errorType,
				Message: appErr.Message,
				Fields:  appErr.Fields,
			})
			return
		}
	}

	// Unknown error: the raw message may carry SQL, paths or driver detail,
	// so it goes to the log and never to the client.
	logger.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: internalErrorMessage,
	})
}

// decodeJSON reads a JSON request body into dst.
//
// Malformed bodies become validation errors, so they answer 400 through
// writeError like any other bad input. An empty body decodes to dst's zero
// value and is left to the service's field checks.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	// Field types with their own UnmarshalJSON report AppErrors.
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperror.ValidationFailed("body",
			fmt.Sprintf("request body must not exceed %d bytes", tooLarge.Limit))
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return apperror.ValidationFailed(typeErr.Field,
			fmt.Sprintf("%s must not be a JSON %s", typeErr.Field, typeErr.Value))
	}

	return apperror.ValidationFailed("body", "invalid JSON request body")
}
