// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them; services read them without
// pulling in net/http.
package requestcontext

import (
	"context"
	"time"

	id "arbiter/pkg/domain"
)

type (
	officerIDKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// WithOfficerID stores the acting officer in the context.
func WithOfficerID(ctx context.Context, officerID id.OfficerID) context.Context {
	return context.WithValue(ctx, officerIDKey{}, officerID)
}

// OfficerID returns the acting officer, or the zero id when unauthenticated.
func OfficerID(ctx context.Context) id.OfficerID {
	v, _ := ctx.Value(officerIDKey{}).(id.OfficerID)
	return v
}

// WithRequestID stores the request correlation id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request correlation id, or "" when absent.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// WithTime pins the request time; tests use this to make evaluation
// timestamps reproducible.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Now returns the pinned request time, falling back to the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}
