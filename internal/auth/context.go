// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"

	"github.com/hearthside/agenthub/internal/store"
)

// AuthContext holds the authenticated identity extracted from a request.
type AuthContext struct {
	UserID string
	OrgID  *string // nil when operating outside any organization
	Role   string
	Plan   string
}

// IsPlatformAdmin returns true for platform-level administrators.
func (a *AuthContext) IsPlatformAdmin() bool {
	return a.Role == store.RolePlatformAdmin
}

// IsOrgAdmin returns true for organization administrators (and platform
// admins, who subsume the role).
func (a *AuthContext) IsOrgAdmin() bool {
	return a.Role == store.RoleOrgAdmin || a.Role == store.RolePlatformAdmin
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	val := ctx.Value(authContextKey{})
	if val == nil {
		return nil
	}
	auth, ok := val.(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}
