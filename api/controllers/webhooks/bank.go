package webhooks

import (
	"context"
	"net/http"

	"github.com/angelmondragon/sokolink-backend/api/responses"
	"github.com/angelmondragon/sokolink-backend/internal/payments"
	bankwebhook "github.com/angelmondragon/sokolink-backend/internal/webhooks/bank"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
)

type BankWebhookService interface {
	Parse(payload []byte, signature string) (*bankwebhook.Notification, error)
	HandleNotification(ctx context.Context, n *bankwebhook.Notification, payload []byte) (*payments.CallbackResult, error)
}

// BankWebhook handles control number and hosted checkout settlement notices.
func BankWebhook(svc BankWebhookService, guard webhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if !guardsReady(ctx, logg, w, map[string]bool{
			"webhook service":   svc != nil,
			"idempotency guard": guard != nil,
		}) {
			return
		}

		payload, ok := readPayload(ctx, logg, w, r)
		if !ok {
			return
		}

		n, err := svc.Parse(payload, r.Header.Get(bankwebhook.SignatureHeader))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		dispatch(ctx, logg, w, guard, "bank", n.EventID, func(ctx context.Context) (*payments.CallbackResult, error) {
			return svc.HandleNotification(ctx, n, payload)
		})
	}
}
