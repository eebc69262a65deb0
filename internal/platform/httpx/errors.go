package httpx

import (
	"errors"
	"net/http"

	"github.com/schooldesk/schooldesk/internal/shared"
)

// Sentinel errors for handlers that have no domain error of their own.
var (
	ErrValidation = errors.New("validation failed")
	ErrDuplicate  = errors.New("duplicate entry")
)

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrInvalidCredentials),
		errors.Is(err, shared.ErrUnauthenticated),
		errors.Is(err, shared.ErrSessionNotFound),
		errors.Is(err, shared.ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes a failed envelope for err. Messages of unexpected
// errors are replaced with a generic one.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	message := shared.UserSafeMessage(err)
	if status == http.StatusBadRequest || status == http.StatusConflict {
		message = err.Error()
	}
	Fail(w, status, message)
}
