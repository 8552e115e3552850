package webhooks

import (
	"context"
	"net/http"

	"github.com/angelmondragon/sokolink-backend/api/responses"
	"github.com/angelmondragon/sokolink-backend/internal/payments"
	mobilemoneywebhook "github.com/angelmondragon/sokolink-backend/internal/webhooks/mobilemoney"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
	"github.com/angelmondragon/sokolink-backend/pkg/mobilemoney"
)

type MobileMoneyWebhookService interface {
	HandleCallback(ctx context.Context, cb *mobilemoney.Callback, payload []byte) (*payments.CallbackResult, error)
}

type mobileMoneyCallbackParser interface {
	ParseCallback(payload []byte, signature string) (*mobilemoney.Callback, error)
}

// MobileMoneyWebhook handles aggregator push results.
func MobileMoneyWebhook(svc MobileMoneyWebhookService, parser mobileMoneyCallbackParser, guard webhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if !guardsReady(ctx, logg, w, map[string]bool{
			"webhook service":     svc != nil,
			"mobile money client": parser != nil,
			"idempotency guard":   guard != nil,
		}) {
			return
		}

		payload, ok := readPayload(ctx, logg, w, r)
		if !ok {
			return
		}

		cb, err := parser.ParseCallback(payload, r.Header.Get(mobilemoney.SignatureHeader()))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		dispatch(ctx, logg, w, guard, "mobile_money", mobilemoneywebhook.EventID(cb), func(ctx context.Context) (*payments.CallbackResult, error) {
			return svc.HandleCallback(ctx, cb, payload)
		})
	}
}
