package middleware

import (
	"context"
	"net/http"
	"regexp"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/angelmondragon/escrow-backend/api/responses"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
)

const (
	requestIDHeader     = "X-Request-Id"
	correlationIDHeader = "X-Correlation-Id"
)

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{8,128}$`)

// RequestID tags every request with an id. A well-formed inbound
// X-Request-Id (or X-Correlation-Id from upstream gateways) is kept;
// anything else is replaced with a time-ordered UUID.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := inboundRequestID(r)
			w.Header().Set(requestIDHeader, reqID)
			next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), logg, reqID)))
		})
	}
}

func inboundRequestID(r *http.Request) string {
	for _, header := range []string{requestIDHeader, correlationIDHeader} {
		if id := r.Header.Get(header); requestIDPattern.MatchString(id) {
			return id
		}
	}
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// withRequestID stores the id where responses, chi and the logger each look
// for it.
func withRequestID(ctx context.Context, logg *logger.Logger, reqID string) context.Context {
	ctx = responses.WithRequestID(ctx, reqID)
	ctx = context.WithValue(ctx, chimw.RequestIDKey, reqID)
	if logg != nil {
		ctx = logg.WithRequestID(ctx, reqID)
	}
	return ctx
}
