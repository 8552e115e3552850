package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/sokolink-backend/pkg/config"
	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
	"github.com/angelmondragon/sokolink-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/sokolink-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	idleBackoffCap        = 10 * time.Second
	idleJitter            = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

// broker is the transport the publisher ships to (Pub/Sub or NATS).
type broker interface {
	Ping(context.Context) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

// eventMessage is the transport-neutral form of an outbox row. Attributes
// carry the payment identifiers subscribers filter on without decoding Data.
type eventMessage struct {
	EventID    string
	EventType  string
	Data       []byte
	Attributes map[string]string
}

type publisher interface {
	Publish(context.Context, *eventMessage) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// delivery is what happened to one outbox row in a batch.
type delivery int

const (
	delivered delivery = iota
	deferred
	deadLettered
)

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	Broker           broker
	BrokerName       string
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
}

// Service drains outbox rows written by the payment engine and ships them
// to the configured broker. A row leaves the outbox once the broker acks,
// after MaxAttempts failed publishes, or when it can never be decoded.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	broker           broker
	brokerName       string
	registry         registryResolver
	dlq              dlqRepository
	publisherFactory publisherFactory
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Broker == nil:
		return nil, errors.New("broker client is required")
	case params.PublisherFactory == nil:
		return nil, errors.New("publisher factory is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	brokerName := params.BrokerName
	if brokerName == "" {
		brokerName = "broker"
	}
	outboxCfg := params.Config.Outbox

	return &Service{
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		broker:           params.Broker,
		brokerName:       brokerName,
		registry:         params.Registry,
		dlq:              params.DLQRepository,
		publisherFactory: params.PublisherFactory,
		batchSize:        positiveOr(outboxCfg.BatchSize, defaultBatchSize),
		maxAttempts:      positiveOr(outboxCfg.MaxAttempts, defaultMaxAttempts),
		pollInterval:     time.Duration(positiveOr(outboxCfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := s.broker.Ping(ctx); err != nil {
		s.logg.Error(ctx, fmt.Sprintf("%s ping failed", s.brokerName), err)
		return fmt.Errorf("%s ping failed: %w", s.brokerName, err)
	}
	return nil
}

// Run polls the outbox until ctx ends. A full batch is followed immediately
// by the next one; an empty batch or a database error backs off
// exponentially up to idleBackoffCap.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	backoff := s.idleBackoff()
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox publisher batch error", err)
		}
		if processed && err == nil {
			backoff = s.idleBackoff()
			continue
		}

		wait, _ := backoff.Next()
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (s *Service) idleBackoff() retry.Backoff {
	b := retry.NewExponential(s.pollInterval)
	b = retry.WithCappedDuration(idleBackoffCap, b)
	return retry.WithJitter(idleJitter, b)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// processBatch claims up to batchSize rows and settles each one inside the
// claiming transaction, so a crash mid-batch leaves the rows for the next
// publisher.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(rows) > 0

		counts := map[delivery]int{}
		for _, row := range rows {
			outcome, err := s.settle(ctx, tx, row)
			if err != nil {
				return err
			}
			counts[outcome]++
		}
		if processed {
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"published":     counts[delivered],
				"deferred":      counts[deferred],
				"dead_lettered": counts[deadLettered],
			}), "outbox batch settled")
		}
		return nil
	})
	return processed, err
}

// settle publishes one row and records the result. Only bookkeeping errors
// are returned; publish failures become a deferred or dead-lettered row.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (delivery, error) {
	resolved, err := s.registry.Resolve(row)
	if err != nil {
		return deadLettered, s.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err, logFields(row, nil))
	}

	msg := newEventMessage(row, resolved)
	fields := logFields(row, resolved)

	pubErr := s.publish(ctx, resolved.Descriptor.Topic, msg)
	if pubErr == nil {
		if err := s.repo.MarkPublishedTx(tx, row.ID); err != nil {
			return delivered, fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
		return delivered, nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(pubErr, &nonRetry) {
		return deadLettered, s.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, pubErr, fields)
	}

	attempt := row.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= s.maxAttempts {
		return deadLettered, s.deadLetter(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", pubErr), fields)
	}

	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", pubErr.Error()), "outbox publish deferred")
	if err := s.repo.MarkFailedTx(tx, row.ID, pubErr); err != nil {
		return deferred, fmt.Errorf("mark failure %s: %w", row.ID, err)
	}
	return deferred, nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error()), "outbox event dead-lettered")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, row.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, topic string, msg *eventMessage) error {
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(ctx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(ctx)
	return err
}

// newEventMessage forwards the stored envelope verbatim and lifts the
// payment identifiers of the typed payload into message attributes.
func newEventMessage(row models.OutboxEvent, resolved *registry.ResolvedEvent) *eventMessage {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"created_at":     row.CreatedAt.Format(time.RFC3339Nano),
	}
	for k, v := range paymentAttributes(resolved.Payload) {
		attrs[k] = v
	}
	return &eventMessage{
		EventID:    resolved.Envelope.EventID,
		EventType:  string(row.EventType),
		Data:       row.Payload,
		Attributes: attrs,
	}
}

func paymentAttributes(payload any) map[string]string {
	attrs := map[string]string{}
	switch p := payload.(type) {
	case *payloads.PaymentIntentEvent:
		putID(attrs, "payment_intent_id", p.IntentID)
		putID(attrs, "subject_id", p.SubjectID)
		putString(attrs, "subject_type", string(p.SubjectType))
		putString(attrs, "payment_method", string(p.Method))
		putString(attrs, "payment_status", string(p.Status))
		if p.Method.IsValid() {
			attrs["channel_class"] = string(p.Method.Class())
		}
		putString(attrs, "currency", p.Currency)
	case *payloads.SubscriptionActivatedEvent:
		putID(attrs, "payment_intent_id", p.PaymentIntentID)
		putID(attrs, "subscription_id", p.SubscriptionID)
		putString(attrs, "plan_id", p.PlanID)
	case *payloads.OrderPaidEvent:
		putID(attrs, "payment_intent_id", p.PaymentIntentID)
		putID(attrs, "order_id", p.OrderID)
		putID(attrs, "vendor_id", p.VendorID)
		putString(attrs, "currency", p.Currency)
	}
	return attrs
}

func putID(attrs map[string]string, key string, id uuid.UUID) {
	if id != uuid.Nil {
		attrs[key] = id.String()
	}
}

func putString(attrs map[string]string, key, v string) {
	if v != "" {
		attrs[key] = v
	}
}

func logFields(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	if resolved == nil {
		return fields
	}
	fields["topic"] = resolved.Descriptor.Topic
	if resolved.Envelope.EventID != "" {
		fields["event_id"] = resolved.Envelope.EventID
		fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	for k, v := range paymentAttributes(resolved.Payload) {
		fields[k] = v
	}
	return fields
}
