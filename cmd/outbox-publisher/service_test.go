package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/sokolink-backend/pkg/config"
	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
	"github.com/angelmondragon/sokolink-backend/pkg/outbox"
	"github.com/angelmondragon/sokolink-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/sokolink-backend/pkg/outbox/registry"
)

func TestProcessBatchSettlesEachPaymentEvent(t *testing.T) {
	tests := []struct {
		name         string
		attempts     int
		maxAttempts  int
		resolveErr   error
		publishErr   error
		noPublisher  bool
		wantOutcome  delivery
		wantDLQ      enums.OutboxDLQErrorReason
		wantAttempts int
	}{
		{name: "broker ack", wantOutcome: delivered},
		{name: "transient broker error", publishErr: errors.New("deadline exceeded"), wantOutcome: deferred},
		{name: "last attempt", attempts: 4, maxAttempts: 5, publishErr: errors.New("deadline exceeded"), wantOutcome: deadLettered, wantDLQ: enums.OutboxDLQReasonMaxAttempts},
		{name: "undecodable row", resolveErr: registry.NewNonRetryableError(errors.New("decode payment.succeeded payload")), wantOutcome: deadLettered, wantDLQ: enums.OutboxDLQReasonNonRetryable},
		{name: "topic without publisher", noPublisher: true, wantOutcome: deadLettered, wantDLQ: enums.OutboxDLQReasonNonRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := paymentRow(t, enums.EventPaymentSucceeded)
			row.AttemptCount = tt.attempts
			repo := &fakeRepo{events: []models.OutboxEvent{row}}
			pub := &fakePublisher{results: []publishResult{fakePublishResult{err: tt.publishErr}}}
			reg := &fakeRegistry{resolved: paymentResolved(row), err: tt.resolveErr}
			if tt.resolveErr != nil {
				reg.resolved = nil
			}
			dlq := &fakeDLQRepo{}
			svc := newTestService(t, repo, pub, reg, dlq, tt.maxAttempts)
			if tt.noPublisher {
				svc.publisherFactory = func(string) publisher { return nil }
			}

			processed, err := svc.processBatch(context.Background())
			require.NoError(t, err)
			assert.True(t, processed)

			switch tt.wantOutcome {
			case delivered:
				assert.Equal(t, []uuid.UUID{row.ID}, repo.published)
				assert.Empty(t, repo.failed)
				assert.Empty(t, dlq.entries)
			case deferred:
				assert.Equal(t, []uuid.UUID{row.ID}, repo.failed)
				assert.Empty(t, repo.terminal)
				assert.Empty(t, dlq.entries)
			case deadLettered:
				assert.Equal(t, []uuid.UUID{row.ID}, repo.terminal)
				assert.Empty(t, repo.published)
				require.Len(t, dlq.entries, 1)
				entry := dlq.entries[0]
				assert.Equal(t, row.ID, entry.EventID)
				assert.Equal(t, tt.wantDLQ, entry.ErrorReason)
				assert.JSONEq(t, string(row.Payload), string(entry.Payload))
				require.NotNil(t, entry.ErrorMessage)
			}
		})
	}
}

func TestProcessBatchContinuesPastFailedRow(t *testing.T) {
	first := paymentRow(t, enums.EventPaymentFailed)
	second := paymentRow(t, enums.EventPaymentSucceeded)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("unavailable")},
		fakePublishResult{},
	}}
	svc := newTestService(t, repo, pub, &fakeRegistry{resolved: paymentResolved(first)}, &fakeDLQRepo{}, 0)

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first.ID}, repo.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, repo.published)
}

func TestPaymentIntentEventCarriesPaymentAttributes(t *testing.T) {
	row := paymentRow(t, enums.EventPaymentSucceeded)
	resolved := paymentResolved(row)
	event := resolved.Payload.(*payloads.PaymentIntentEvent)
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	svc := newTestService(t, &fakeRepo{events: []models.OutboxEvent{row}}, pub, &fakeRegistry{resolved: resolved}, &fakeDLQRepo{}, 0)

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]

	assert.Equal(t, string(enums.EventPaymentSucceeded), msg.EventType)
	assert.Equal(t, row.ID.String(), msg.EventID)
	assert.Equal(t, []byte(row.Payload), msg.Data)
	assert.Equal(t, map[string]string{
		"event_id":          row.ID.String(),
		"event_type":        string(enums.EventPaymentSucceeded),
		"aggregate_type":    string(enums.AggregatePaymentIntent),
		"aggregate_id":      row.AggregateID.String(),
		"created_at":        row.CreatedAt.Format(time.RFC3339Nano),
		"payment_intent_id": event.IntentID.String(),
		"subject_id":        event.SubjectID.String(),
		"subject_type":      string(enums.PaymentSubjectSubscription),
		"payment_method":    string(enums.PaymentMethodMPesa),
		"payment_status":    string(enums.PaymentIntentStatusCompleted),
		"channel_class":     string(enums.PaymentMethodMPesa.Class()),
		"currency":          "TZS",
	}, msg.Attributes)
}

func TestPaymentAttributesForDownstreamEvents(t *testing.T) {
	intentID := uuid.New()
	orderID := uuid.New()
	attrs := paymentAttributes(&payloads.OrderPaidEvent{OrderID: orderID, PaymentIntentID: intentID, Currency: "TZS"})
	assert.Equal(t, intentID.String(), attrs["payment_intent_id"])
	assert.Equal(t, orderID.String(), attrs["order_id"])
	assert.NotContains(t, attrs, "vendor_id")

	attrs = paymentAttributes(&payloads.SubscriptionActivatedEvent{SubscriptionID: uuid.New(), PlanID: "vendor_pro"})
	assert.Equal(t, "vendor_pro", attrs["plan_id"])
	assert.NotContains(t, attrs, "payment_intent_id")

	assert.Empty(t, paymentAttributes(nil))
}

func TestServiceReadinessFailsOnBroker(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, 0)
	svc.broker = &fakeBroker{err: errors.New("unreachable")}
	assert.Error(t, svc.ensureReadiness(context.Background()))
}

func TestNewServiceRequiresPublisherFactory(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config:        &config.Config{},
		Logger:        logger.New(logger.Options{Output: io.Discard}),
		DB:            &fakeDB{},
		Broker:        &fakeBroker{},
		Repository:    &fakeRepo{},
		Registry:      &fakeRegistry{},
		DLQRepository: &fakeDLQRepo{},
	})
	assert.Error(t, err)
}

func TestNATSPublishResult(t *testing.T) {
	id, err := natsPublishResult{seq: 42}.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", id)
	_, err = natsPublishResult{err: errors.New("nak")}.Get(context.Background())
	assert.Error(t, err)
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, reg registryResolver, dlq dlqRepository, maxAttempts int) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: maxAttempts}},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               &fakeDB{},
		Broker:           &fakeBroker{},
		Repository:       repo,
		Registry:         reg,
		PublisherFactory: func(string) publisher { return pub },
		DLQRepository:    dlq,
	})
	require.NoError(t, err)
	return svc
}

func paymentRow(t *testing.T, eventType enums.OutboxEventType) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    id.String(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"status":"completed"}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            id,
		EventType:     eventType,
		AggregateType: enums.AggregatePaymentIntent,
		AggregateID:   uuid.New(),
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
}

func paymentResolved(row models.OutboxEvent) *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: "payments-topic", AggregateType: enums.AggregatePaymentIntent},
		Payload: &payloads.PaymentIntentEvent{
			IntentID:    row.AggregateID,
			SubjectType: enums.PaymentSubjectSubscription,
			SubjectID:   uuid.New(),
			Method:      enums.PaymentMethodMPesa,
			Status:      enums.PaymentIntentStatusCompleted,
			Currency:    "TZS",
		},
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakeBroker struct{ err error }

func (f *fakeBroker) Ping(context.Context) error { return f.err }

type fakePublisher struct {
	results  []publishResult
	messages []*eventMessage
}

func (f *fakePublisher) Publish(_ context.Context, msg *eventMessage) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	next := f.results[0]
	f.results = f.results[1:]
	return next
}

type fakePublishResult struct{ err error }

func (f fakePublishResult) Get(context.Context) (string, error) { return "", f.err }

// fakeRegistry resolves every row to the same payload, stamping the row's
// own id into the envelope.
type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(row models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Envelope = outbox.PayloadEnvelope{EventID: row.ID.String(), OccurredAt: row.CreatedAt}
	return &resolved, f.err
}

type fakeDLQRepo struct{ entries []models.OutboxDLQ }

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
