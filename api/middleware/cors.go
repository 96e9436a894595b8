package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/escrow-backend/pkg/config"
)

// Headers browsers may send and read. Idempotency-Key is required on money
// routes, so it has to survive preflight.
var (
	corsAllowedHeaders = []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader}
	corsExposedHeaders = []string{requestIDHeader, replayHeader, "Retry-After"}
)

// CORS applies the origin policy. A "*" origin disables credentials, since
// browsers reject credentialed wildcard responses.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	origins := make([]string, 0, len(cfg.AllowedOrigins))
	wildcard := false
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		wildcard = wildcard || origin == "*"
		origins = append(origins, origin)
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   corsAllowedHeaders,
		ExposedHeaders:   corsExposedHeaders,
		AllowCredentials: !wildcard,
		MaxAge:           int(cfg.MaxAge.Seconds()),
	})
}
