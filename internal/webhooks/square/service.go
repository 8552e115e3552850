package squarewebhook

import (
	"context"
	"encoding/json"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/sokolink-backend/internal/payments"
	"github.com/angelmondragon/sokolink-backend/internal/webhooks"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
)

type ServiceParams struct {
	Payments webhooks.CallbackApplier
}

type Service struct {
	payments webhooks.CallbackApplier
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	return &Service{payments: params.Payments}, nil
}

type SquareWebhookEvent struct {
	EventID string            `json:"event_id"`
	Type    string            `json:"type"`
	Data    SquareWebhookData `json:"data"`
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment json.RawMessage `json:"payment"`
}

// HandleEvent applies Square payment notifications. Other event types are
// acknowledged and ignored, in which case the result is nil.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) (*payments.CallbackResult, error) {
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
	default:
		return nil, nil
	}
	if len(event.Data.Object.Payment) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
	}

	var payment sq.Payment
	if err := json.Unmarshal(event.Data.Object.Payment, &payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode square payment")
	}
	res := payments.SquareResult(&payment)
	if res.PaymentID == "" {
		res.PaymentID = event.Data.ID
	}
	if res.PaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id missing")
	}

	eventID := strings.TrimSpace(event.EventID)
	if eventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id missing")
	}

	return s.payments.ApplyCallback(ctx, payments.CallbackInput{
		Source:            enums.CallbackSourceSquare,
		ExternalEventID:   eventID,
		ProviderReference: res.PaymentID,
		Result:            res.Result,
		Detail:            res.Detail,
		Payload:           event.Data.Object.Payment,
	})
}
