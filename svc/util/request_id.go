package util

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

const RequestIDHeader = "X-Request-ID"

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}
func NewRequestID() string {
	return uuid.New().String()
}

// RequestIDFrom keeps a caller-supplied id only if it is a UUID, so a
// viewer and the service can log the same id for one request.
func RequestIDFrom(header string) string {
	if id, err := uuid.Parse(strings.TrimSpace(header)); err == nil {
		return id.String()
	}
	return NewRequestID()
}
