package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/escrow-backend/api/responses"
	pkgAuth "github.com/angelmondragon/escrow-backend/pkg/auth"
	"github.com/angelmondragon/escrow-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
)

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy defines the throttling parameters for a traffic surface.
type RateLimitPolicy struct {
	name           string
	window         time.Duration
	principalLimit int
	ipLimit        int
}

// NewRateLimitPolicy builds a policy from configuration.
func NewRateLimitPolicy(name string, cfg config.RateLimitConfig) RateLimitPolicy {
	return RateLimitPolicy{
		name:           strings.ToLower(strings.TrimSpace(name)),
		window:         cfg.Window,
		principalLimit: cfg.PrincipalLimit,
		ipLimit:        cfg.IPLimit,
	}
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.principalLimit > 0)
}

func (p RateLimitPolicy) normalizedName() string {
	if p.name == "" {
		return "api"
	}
	return p.name
}

// scope picks the counter for the request. Authenticated callers are counted
// per principal, everyone else per client IP.
func (p RateLimitPolicy) scope(r *http.Request) (string, int, string) {
	if principal, ok := pkgAuth.PrincipalFromContext(r.Context()); ok && p.principalLimit > 0 {
		return fmt.Sprintf("principal:%s:%s", p.normalizedName(), principal.UserID), p.principalLimit, "principal"
	}
	if ip := clientIP(r); ip != "" && p.ipLimit > 0 {
		return fmt.Sprintf("ip:%s:%s", p.normalizedName(), ip), p.ipLimit, "ip"
	}
	return "", 0, ""
}

// RateLimit enforces fixed-window counters per principal or client IP.
// Counter failures let the request through.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key, limit, kind := policy.scope(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, count, err := store.FixedWindowAllow(ctx, key, int64(limit), policy.window)
			if err != nil {
				if logg != nil {
					logg.WarnErr(ctx, "rate_limit.store_unavailable", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"scope":          kind,
						"policy":         policy.normalizedName(),
						"attempts":       count,
						"limit":          limit,
						"window_seconds": int(policy.window.Seconds()),
					})
					logg.Warn(logCtx, "rate_limit.blocked")
				}
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(policy.window.Seconds())))
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
