package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithAlias adds the selected credential alias to the context.
func WithAlias(ctx context.Context, alias string) context.Context {
	return context.WithValue(ctx, ContextKeyAlias, alias)
}

// WithSurface adds the public API surface name ("openai" or "anthropic")
// to the context.
func WithSurface(ctx context.Context, surface string) context.Context {
	return context.WithValue(ctx, ContextKeySurface, surface)
}

// GenerateRequestID generates a new request ID.
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes) //nolint:errcheck
	return hex.EncodeToString(bytes)
}
