package shared

import (
	"context"
	"net/http"
	"strings"
)

// Identity is the authenticated actor resolved from a bearer token.
type Identity struct {
	UserID    int64
	SessionID string
	Role      string
	Email     string
	Name      string
}

// GetID returns the user ID.
func (i *Identity) GetID() int64 {
	if i == nil {
		return 0
	}
	return i.UserID
}

// RoleName returns the role captured when the session was issued.
func (i *Identity) RoleName() string {
	if i == nil {
		return ""
	}
	return i.Role
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
