// Package identity carries the authenticated user between transport
// middleware and handlers.
package identity

import (
	"context"
	"strings"
)

type contextKey struct{}

func WithUserID(ctx context.Context, userID uint64) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

func UserIDFromContext(ctx context.Context) (uint64, bool) {
	userID, ok := ctx.Value(contextKey{}).(uint64)
	return userID, ok && userID != 0
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. The scheme is case-insensitive.
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
