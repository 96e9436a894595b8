package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/escrow-backend/api/responses"
	pkgAuth "github.com/angelmondragon/escrow-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/escrow-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "Idempotent-Replayed"

	standardRetention = 24 * time.Hour
	moneyRetention    = 7 * 24 * time.Hour
	// inflightTTL bounds how long a crashed request can block its key.
	inflightTTL = 2 * time.Minute
)

// IdempotencyStore persists replay records. Set overwrites the in-flight
// reservation once the handler has answered.
type IdempotencyStore interface {
	pkgredis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type idempotentRoute struct {
	method    string
	pattern   string
	retention time.Duration
}

// idempotentRoutes lists every write that must not run twice. Routes that
// move money keep their records for a week.
var idempotentRoutes = []idempotentRoute{
	{http.MethodPost, "/api/v1/checkout", moneyRetention},
	{http.MethodPost, "/api/v1/wallet/fund", moneyRetention},
	{http.MethodPost, "/api/v1/payouts", moneyRetention},
	{http.MethodPost, "/api/v1/orders/{orderId}/confirm", moneyRetention},
	{http.MethodPost, "/api/v1/orders/{orderId}/cancel", moneyRetention},
	{http.MethodPost, "/api/v1/orders/{orderId}/reject", moneyRetention},
	{http.MethodPost, "/api/v1/disputes/{disputeId}/resolve", moneyRetention},

	{http.MethodPost, "/api/v1/products", standardRetention},
	{http.MethodPost, "/api/v1/products/{productId}/restock", standardRetention},
	{http.MethodPost, "/api/v1/products/{productId}/price", standardRetention},
	{http.MethodPost, "/api/v1/cart/items", standardRetention},
	{http.MethodPost, "/api/v1/bank-accounts", standardRetention},
	{http.MethodPost, "/api/v1/disputes", standardRetention},
	{http.MethodPost, "/api/v1/disputes/{disputeId}/assign", standardRetention},
	{http.MethodPost, "/api/v1/disputes/{disputeId}/transition", standardRetention},
	{http.MethodPost, "/api/v1/orders/{orderId}/accept", standardRetention},
	{http.MethodPost, "/api/v1/orders/{orderId}/advance", standardRetention},
	{http.MethodPost, "/api/v1/notifications/{notificationId}/read", standardRetention},
}

// replayRecord is stored under the scoped key. A record without Status is a
// reservation held by a request still running.
type replayRecord struct {
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

func (r replayRecord) pending() bool { return r.Status == 0 }

// Idempotency replays the stored response for a repeated Idempotency-Key on
// the routes above. Keys are scoped to the caller and the request path. A
// key whose first request is still running is rejected, and 5xx answers
// release the key so the client can retry.
func Idempotency(store IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			retention, guarded := retentionFor(r.Method, r.URL.Path)
			if !guarded || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			fail := func(err error) { responses.WriteError(ctx, logg, w, err) }

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				fail(pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(callerScope(r), clientKey)
			hash := requestHash(body)

			reservation, _ := json.Marshal(replayRecord{RequestHash: hash})
			reserved, err := store.SetNX(ctx, key, string(reservation), inflightTTL)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayExisting(ctx, store, key, hash, w, fail)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			if capture.statusCode() >= http.StatusInternalServerError {
				if err := store.Del(ctx, key); err != nil && logg != nil {
					logg.WarnErr(ctx, "release idempotency key", err)
				}
				return
			}

			final, _ := json.Marshal(replayRecord{
				RequestHash: hash,
				Status:      capture.statusCode(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			})
			if err := store.Set(ctx, key, string(final), retention); err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

func replayExisting(ctx context.Context, store IdempotencyStore, key, hash string, w http.ResponseWriter, fail func(error)) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// reservation expired between SetNX and Get
		fail(pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is being retried, try again"))
		return
	}
	if err != nil {
		fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}

	var record replayRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		fail(pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}
	switch {
	case record.RequestHash != hash:
		fail(pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.pending():
		fail(pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
	default:
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set(replayHeader, "true")
		w.WriteHeader(record.Status)
		_, _ = w.Write(record.Body)
	}
}

func callerScope(r *http.Request) string {
	caller := "anonymous"
	if principal, ok := pkgAuth.PrincipalFromContext(r.Context()); ok {
		caller = principal.UserID.String()
	}
	return caller + "|" + r.Method + "|" + r.URL.Path
}

func requestHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// retentionFor resolves the request path against idempotentRoutes. Matching
// happens on the raw path because middleware mounted on a sub-router only
// sees a partial route pattern.
func retentionFor(method, path string) (time.Duration, bool) {
	for _, route := range idempotentRoutes {
		if route.method == method && matchRoute(route.pattern, path) {
			return route.retention, true
		}
	}
	return 0, false
}

// matchRoute compares path segments, letting "{name}" match any non-empty
// segment.
func matchRoute(pattern, path string) bool {
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, segment := range want {
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if segment != got[i] {
			return false
		}
	}
	return true
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
