package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/angelmondragon/sokolink-backend/api/responses"
	"github.com/angelmondragon/sokolink-backend/internal/payments"
	squarewebhook "github.com/angelmondragon/sokolink-backend/internal/webhooks/square"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
)

const squareSignatureHeader = "X-Square-Hmacsha256-Signature"

type SquareWebhookService interface {
	HandleEvent(ctx context.Context, event *squarewebhook.SquareWebhookEvent) (*payments.CallbackResult, error)
}

type squareSignatureVerifier interface {
	VerifyWebhookSignature(payload []byte, header string) bool
}

// SquareWebhook handles Square payment notifications.
func SquareWebhook(svc SquareWebhookService, verifier squareSignatureVerifier, guard webhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if !guardsReady(ctx, logg, w, map[string]bool{
			"webhook service":   svc != nil,
			"square client":     verifier != nil,
			"idempotency guard": guard != nil,
		}) {
			return
		}

		payload, ok := readPayload(ctx, logg, w, r)
		if !ok {
			return
		}

		sigHeader := r.Header.Get(squareSignatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "square signature missing"))
			return
		}
		if !verifier.VerifyWebhookSignature(payload, sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid square signature"))
			return
		}

		var event squarewebhook.SquareWebhookEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		eventID := strings.TrimSpace(event.EventID)
		if eventID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "square event id missing"))
			return
		}

		dispatch(ctx, logg, w, guard, "square", eventID, func(ctx context.Context) (*payments.CallbackResult, error) {
			return svc.HandleEvent(ctx, &event)
		})
	}
}
