package httputil

import (
	"net/http"

	"github.com/google/uuid"

	id "arbiter/pkg/domain"
	"arbiter/pkg/requestcontext"
)

// RequestContext propagates the caller's request id (or mints one) and the
// acting officer identity into the request context. Officer identity arrives
// via X-Officer-ID; upstream auth is expected to have verified it.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx = requestcontext.WithRequestID(ctx, requestID)
		w.Header().Set("X-Request-ID", requestID)

		if raw := r.Header.Get("X-Officer-ID"); raw != "" {
			officerID, err := id.ParseOfficerID(raw)
			if err == nil {
				ctx = requestcontext.WithOfficerID(ctx, officerID)
			}
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
