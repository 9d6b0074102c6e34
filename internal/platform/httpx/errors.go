package httpx

import (
	"context"
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrDuplicate  = errors.New("duplicate entry")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Infrastructure failures stay generic; the detail belongs in server logs.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		Problem(w, http.StatusGatewayTimeout, "Timeout", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
