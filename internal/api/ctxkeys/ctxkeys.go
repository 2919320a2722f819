// Package ctxkeys holds the shared context keys for the API layer. A leaf
// package so api, middleware, and handlers can use the same typed keys
// without import cycles.
package ctxkeys

import "context"

// Key is the unexported named type for all API context keys. context.Value
// compares type and value, so a named type cannot collide with plain string
// keys from other packages.
type Key string

const (
	// UserID is the authenticated user, injected by AuthMiddleware from the
	// JWT claims.
	UserID Key = "user_id"

	// Role is the authenticated user's role, admin or member.
	Role Key = "role"
)

// WithValue adds a ctxkeys.Key value to the context.
func WithValue(ctx context.Context, key Key, value string) context.Context {
	return context.WithValue(ctx, key, value)
}
