package router

import (
	"context"
	"fmt"
	"strings"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/sokolink-backend/internal/analytics/types"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
	"github.com/angelmondragon/sokolink-backend/pkg/outbox/payloads"
)

type paymentEventHandler struct {
	writer Writer
	logg   *logger.Logger
}

func newPaymentEventHandler(writer Writer, logg *logger.Logger) Handler {
	return &paymentEventHandler{writer: writer, logg: logg}
}

func (h *paymentEventHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.PaymentIntentEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type": envelope.EventType,
		"intent_id":  event.IntentID.String(),
		"method":     event.Method,
		"status":     event.Status,
	})

	row := buildPaymentEventRow(envelope, event)
	if err := h.writer.InsertPaymentEvent(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert payment event row", err)
		return err
	}
	h.logg.Info(logCtx, "payment event row inserted")
	return nil
}

func buildPaymentEventRow(envelope types.Envelope, event *payloads.PaymentIntentEvent) types.PaymentEventRow {
	occurredAt := envelope.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = event.OccurredAt
	}
	row := types.PaymentEventRow{
		EventID:      envelope.EventID,
		EventType:    string(envelope.EventType),
		OccurredAt:   occurredAt.UTC(),
		IntentID:     event.IntentID.String(),
		SubjectType:  string(event.SubjectType),
		SubjectID:    event.SubjectID.String(),
		OwnerID:      event.OwnerID.String(),
		Method:       string(event.Method),
		ChannelClass: string(event.Method.Class()),
		Provider:     event.Provider,
		Status:       string(event.Status),
		Amount:       event.Amount.StringFixed(2),
		Currency:     strings.ToUpper(event.Currency),
		ErrorDetail:  event.ErrorDetail,
		Payload:      cbigquery.NullJSON{Valid: len(envelope.Payload) > 0, JSONVal: string(envelope.Payload)},
	}
	if event.Status.IsTerminal() && !event.CreatedAt.IsZero() {
		seconds := occurredAt.Sub(event.CreatedAt).Seconds()
		if seconds >= 0 {
			row.SecondsToOutcome = &seconds
		}
	}
	return row
}
