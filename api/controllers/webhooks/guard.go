package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/sokolink-backend/api/responses"
	"github.com/angelmondragon/sokolink-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
)

// maxPayloadBytes caps provider notification bodies.
const maxPayloadBytes = 1 << 20

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// Ack is the body returned to providers.
type Ack struct {
	EventID   string                   `json:"event_id"`
	Duplicate bool                     `json:"duplicate"`
	Result    *payments.CallbackResult `json:"result,omitempty"`
}

func readPayload(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
		return nil, false
	}
	return payload, true
}

// dispatch runs handle once per event id. A failed handle releases the mark
// so the provider's retry is processed again.
func dispatch(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, guard webhookGuard, source, eventID string, handle func(context.Context) (*payments.CallbackResult, error)) {
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{"webhook_source": source, "event_id": eventID})
	}

	alreadyProcessed, err := guard.CheckAndMark(ctx, eventID)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	if alreadyProcessed {
		if logg != nil {
			logg.Info(ctx, "webhook.duplicate")
		}
		responses.WriteSuccess(w, Ack{EventID: eventID, Duplicate: true})
		return
	}

	result, err := handle(ctx)
	if err != nil {
		if delErr := guard.Delete(ctx, eventID); delErr != nil && logg != nil {
			logg.Warn(logg.WithField(ctx, "guard_error", delErr.Error()), "webhook.guard_release_failed")
		}
		responses.WriteError(ctx, logg, w, err)
		return
	}

	if logg != nil {
		fields := map[string]any{"ignored": result == nil}
		if result != nil {
			fields["applied"] = result.Applied
			fields["duplicate"] = result.Duplicate
			if result.IntentID != nil {
				fields["intent_id"] = result.IntentID.String()
			}
		}
		logg.Info(logg.WithFields(ctx, fields), "webhook.processed")
	}
	responses.WriteSuccess(w, Ack{EventID: eventID, Duplicate: result != nil && result.Duplicate, Result: result})
}

func guardsReady(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, deps map[string]bool) bool {
	for name, ok := range deps {
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, name+" unavailable"))
			return false
		}
	}
	return true
}
