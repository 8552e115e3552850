package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/sokolink-backend/internal/analytics/router"
	"github.com/angelmondragon/sokolink-backend/internal/analytics/types"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
	"github.com/angelmondragon/sokolink-backend/pkg/outbox"
)

const analyticsConsumerName = "payment-analytics"

// Handler records one payment lifecycle envelope.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID string) (bool, error)
	Delete(ctx context.Context, consumer string, eventID string) error
}

// verdict tells the subscription what to do with a delivered message.
type verdict bool

const (
	ack  verdict = false
	nack verdict = true
)

// Service feeds payment lifecycle events from the payments topic into the
// analytics handler. Each event_id is recorded at most once; a handler
// failure releases the Redis marker and nacks so Pub/Sub redelivers.
type Service struct {
	subscription *gcppubsub.Subscriber
	handler      Handler
	manager      idempotencyChecker
	logg         *logger.Logger
}

func NewService(subscription *gcppubsub.Subscriber, handler Handler, manager idempotencyChecker, logg *logger.Logger) (*Service, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case manager == nil:
		return nil, errors.New("idempotency manager is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{subscription: subscription, handler: handler, manager: manager, logg: logg}, nil
}

// Run receives until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if s.process(msgCtx, msg) == nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) verdict {
	fields := map[string]any{"message_id": msg.ID}
	if intentID := attribute(msg, "payment_intent_id"); intentID != "" {
		fields["payment_intent_id"] = intentID
	}
	if status := attribute(msg, "payment_status"); status != "" {
		fields["payment_status"] = status
	}

	envelope, err := decodeEnvelope(msg)
	if err != nil {
		fields["error"] = err.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "undecodable analytics message dropped")
		return ack
	}
	fields["event_id"] = envelope.EventID
	fields["event_type"] = envelope.EventType
	fields["aggregate_id"] = envelope.AggregateID
	ctx = s.logg.WithFields(ctx, fields)

	// Subscription and order events share the topic but have no
	// payment_events row; drop them before they take a Redis marker.
	if envelope.AggregateType != enums.AggregatePaymentIntent {
		s.logg.Info(ctx, "non-payment event skipped")
		return ack
	}

	seen, err := s.manager.CheckAndMarkProcessed(ctx, analyticsConsumerName, envelope.EventID)
	if err != nil {
		s.logg.Error(ctx, "idempotency check failed", err)
		return nack
	}
	if seen {
		s.logg.Info(ctx, "payment event already recorded")
		return ack
	}

	err = s.handler.Handle(ctx, *envelope)
	switch {
	case err == nil:
		s.logg.Info(ctx, "payment event recorded")
		return ack
	case errors.Is(err, router.ErrUnsupportedEventType):
		s.logg.Info(ctx, "payment event type not recorded")
		return ack
	default:
		s.logg.Error(ctx, "payment event handler failed", err)
		if delErr := s.manager.Delete(ctx, analyticsConsumerName, envelope.EventID); delErr != nil {
			s.logg.Error(ctx, "failed to release idempotency marker", delErr)
		}
		return nack
	}
}

// decodeEnvelope rebuilds the outbox envelope from the message body and
// the attributes the outbox publisher sets.
func decodeEnvelope(msg *gcppubsub.Message) (*types.Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	eventType, err := enums.ParseOutboxEventType(attribute(msg, "event_type"))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attribute(msg, "aggregate_type"))
	if err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID := attribute(msg, "aggregate_id")
	if aggregateID == "" {
		return nil, errors.New("aggregate_id missing")
	}

	eventID := strings.TrimSpace(stored.EventID)
	if eventID == "" {
		eventID = attribute(msg, "event_id")
	}
	if eventID == "" {
		return nil, errors.New("event_id missing")
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if parsed, err := time.Parse(time.RFC3339Nano, attribute(msg, "created_at")); err == nil {
			occurredAt = parsed
		}
	}

	return &types.Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       stored.Data,
	}, nil
}

func attribute(msg *gcppubsub.Message, key string) string {
	return strings.TrimSpace(msg.Attributes[key])
}
