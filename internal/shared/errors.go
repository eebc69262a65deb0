package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated occurs when a request carries no usable session.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden occurs when the session's role lacks access.
	ErrForbidden = errors.New("forbidden")
	// ErrSessionNotFound occurs when a token refers to an expired or revoked session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidToken occurs when a bearer token fails signature or claim checks.
	ErrInvalidToken = errors.New("invalid token")
)

// UserSafeMessage returns a message that can be shown to end users.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found"
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrInvalidToken):
		return "Authentication required"
	case errors.Is(err, ErrForbidden):
		return "Access denied"
	default:
		return "Something went wrong, please try again"
	}
}
