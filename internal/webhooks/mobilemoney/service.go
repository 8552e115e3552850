package mobilemoneywebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/angelmondragon/sokolink-backend/internal/payments"
	"github.com/angelmondragon/sokolink-backend/internal/webhooks"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/mobilemoney"
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

// EventID identifies a callback for deduplication. Aggregators that omit an
// event id are deduplicated on the transaction and status they report.
func EventID(cb *mobilemoney.Callback) string {
	if id := strings.TrimSpace(cb.EventID); id != "" {
		return id
	}
	return cb.TransactionID + ":" + cb.Status
}

// HandleCallback applies a verified aggregator callback. payload is the raw
// body kept for the callback history.
func (s *Service) HandleCallback(ctx context.Context, cb *mobilemoney.Callback, payload []byte) (*payments.CallbackResult, error) {
	if cb == nil || strings.TrimSpace(cb.TransactionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callback transaction id missing")
	}
	return s.payments.ApplyCallback(ctx, payments.CallbackInput{
		Source:            enums.CallbackSourceMobileMoney,
		ExternalEventID:   EventID(cb),
		ProviderReference: cb.TransactionID,
		Result:            payments.MobileMoneyResult(cb.Status),
		Detail:            cb.Message,
		Amount:            cb.Amount,
		Currency:          cb.Currency,
		Payload:           json.RawMessage(payload),
	})
}
