// Package webhooks holds the pieces shared by the provider callback handlers.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/sokolink-backend/internal/payments"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
)

// CallbackApplier records and applies a verified provider notification.
type CallbackApplier interface {
	ApplyCallback(ctx context.Context, in payments.CallbackInput) (*payments.CallbackResult, error)
}

// EventStore is the Redis surface the guard needs.
type EventStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookEventKey(source, eventID string) string
}

// IdempotencyGuard drops provider retries of an event that is already being
// handled. The payment_callbacks unique index stays the durable dedupe; the
// guard only keeps concurrent retries off the database.
type IdempotencyGuard struct {
	store  EventStore
	ttl    time.Duration
	source enums.CallbackSource
}

func NewIdempotencyGuard(store EventStore, ttl time.Duration, source enums.CallbackSource) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if source == "" {
		return nil, errors.New("source is required")
	}
	return &IdempotencyGuard{
		store:  store,
		ttl:    ttl,
		source: source,
	}, nil
}

// CheckAndMark reports whether eventID was already seen, marking it otherwise.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	key := g.store.WebhookEventKey(string(g.source), eventID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete releases eventID so a provider retry is handled again.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.WebhookEventKey(string(g.source), eventID))
}
