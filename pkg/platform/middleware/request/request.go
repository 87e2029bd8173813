// Package request provides middleware that stamps each HTTP request with a
// correlation ID and a request-scoped time.
package request

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"shiptrack/pkg/requestcontext"
)

// HeaderRequestID is echoed back on every response.
const HeaderRequestID = "X-Request-ID"

// Middleware reuses an incoming X-Request-ID or generates one, and pins the
// request start time so every write in the request shares one "now".
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the correlation ID stored by Middleware.
func GetRequestID(r *http.Request) string {
	return requestcontext.RequestID(r.Context())
}
