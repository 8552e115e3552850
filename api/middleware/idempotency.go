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

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/sokolink-backend/api/responses"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/sokolink-backend/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour

	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
)

// idempotentOperation is a client-retried write whose first non-5xx
// response is replayed for the same Idempotency-Key.
type idempotentOperation struct {
	name   string
	method string
	match  func(pattern string) bool
	ttl    time.Duration
}

var idempotentOperations = []idempotentOperation{
	// a replayed initiation must never reach the channel twice, so keep it a week
	{name: "payment.initiate", method: http.MethodPost, match: pathIs("/api/v1/payments"), ttl: criticalIdempotencyTTL},
	{name: "payment.confirm", method: http.MethodPost, match: paymentSubresource("confirm"), ttl: defaultIdempotencyTTL},
	{name: "subscription.create", method: http.MethodPost, match: pathIs("/api/v1/subscriptions"), ttl: defaultIdempotencyTTL},
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays stored responses for the payment write endpoints.
// Keys are scoped to the caller and the request path, and a key reused with
// a different body is rejected with IDEMPOTENCY_CONFLICT.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, ok := operationFor(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			sum := sha256.Sum256(body)
			requestHash := hex.EncodeToString(sum[:])

			key := store.IdempotencyKey(strings.Join([]string{UserIDFromContext(ctx), op.name, r.URL.Path}, "|"), clientKey)

			prior, err := lookupResponse(ctx, store, key)
			switch {
			case err != nil:
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			case prior != nil && prior.RequestHash != requestHash:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
				return
			case prior != nil:
				prior.replay(w)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.statusCode() >= http.StatusInternalServerError {
				return
			}

			payload, err := json.Marshal(storedResponse{
				Status:      rec.statusCode(),
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
				RequestHash: requestHash,
			})
			if err == nil {
				_, err = store.SetNX(ctx, key, string(payload), op.ttl)
			}
			if err != nil && logg != nil {
				logg.Error(logg.WithField(ctx, "operation", op.name), "persist idempotent response", err)
			}
		})
	}
}

func lookupResponse(ctx context.Context, store pkgredis.IdempotencyStore, key string) (*storedResponse, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

// routePattern prefers chi's matched pattern. Group middleware only sees the
// wildcard prefix, so it falls back to the request path there.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			return pattern
		}
	}
	if path := strings.TrimSuffix(r.URL.Path, "/"); path != "" {
		return path
	}
	return r.URL.Path
}

func operationFor(method, pattern string) (idempotentOperation, bool) {
	if pattern == "" {
		return idempotentOperation{}, false
	}
	for _, op := range idempotentOperations {
		if op.method == method && op.match(pattern) {
			return op, true
		}
	}
	return idempotentOperation{}, false
}

func pathIs(path string) func(string) bool {
	return func(pattern string) bool { return pattern == path }
}

// paymentSubresource matches /api/v1/payments/{id}/<action> for both the
// chi pattern and a concrete path.
func paymentSubresource(action string) func(string) bool {
	return func(pattern string) bool {
		rest, ok := strings.CutPrefix(pattern, "/api/v1/payments/")
		if !ok {
			return false
		}
		id, tail, ok := strings.Cut(rest, "/")
		return ok && id != "" && tail == action
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
