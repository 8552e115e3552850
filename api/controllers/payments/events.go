package payments

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/angelmondragon/sokolink-backend/api/responses"
	paymentsvc "github.com/angelmondragon/sokolink-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
)

const (
	eventUpdate  = "update"
	eventOutcome = "outcome"
)

// StreamPayment pushes every poll observation of the intent as a server-sent
// event until the watch reaches an outcome or the client disconnects. The
// stream is bound to the request context, so a disconnect stops polling and
// leaves the intent untouched.
func StreamPayment(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		actor, id, err := resolveIntentRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if _, err := svc.GetIntent(ctx, id, actor.UserID, actor.Role); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		header := w.Header()
		header.Set("Content-Type", "text/event-stream")
		header.Set("Cache-Control", "no-cache")
		header.Set("Connection", "keep-alive")
		header.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		if logg != nil {
			ctx = logg.WithField(ctx, "intent_id", id.String())
		}

		for update := range svc.Watch(ctx, id) {
			name := eventUpdate
			var body any = update
			if update.Outcome != nil {
				name = eventOutcome
				body = update.Outcome
			}
			if err := writeEvent(w, update.Attempt, name, body); err != nil {
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "payments.stream.write_failed")
				}
				return
			}
			flusher.Flush()
		}

		if logg != nil {
			logg.Debug(ctx, "payments.stream.closed")
		}
	}
}

func writeEvent(w http.ResponseWriter, id int, name string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, name, data)
	return err
}

var _ Service = (*paymentsvc.Service)(nil)
