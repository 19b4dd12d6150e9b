// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/veridian-data/veridian/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Unknown errors become an opaque 500; callers log those before
// delegating here.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrRoleCycle):
		Problem(w, http.StatusUnprocessableEntity, "Role Cycle", err.Error())
	case errors.Is(err, shared.ErrInvalidInput):
		Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// IsDomainError reports whether err maps to a 4xx response.
func IsDomainError(err error) bool {
	return errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrConflict) ||
		errors.Is(err, shared.ErrRoleCycle) ||
		errors.Is(err, shared.ErrInvalidInput)
}
