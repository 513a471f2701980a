// ABOUTME: Authenticated identity carried through request handlers
// ABOUTME: Provides WithIdentity/FromContext and per-chat access checks

package auth

import (
	"context"
	"slices"
)

// Identity is the verified caller of an API request.
type Identity struct {
	Subject string
	Chats   []string // empty means all chats
}

// CanAccess reports whether the identity may act on chatID.
func (i *Identity) CanAccess(chatID string) bool {
	return len(i.Chats) == 0 || slices.Contains(i.Chats, chatID)
}

type identityKey struct{}

// WithIdentity returns a new context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
