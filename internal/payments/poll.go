package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
)

// ErrPollExhausted is returned by Poll when every attempt ran without
// reaching a terminal value.
var ErrPollExhausted = errors.New("poll attempts exhausted")

var errNotTerminal = errors.New("not terminal")

// PollPolicy is a fixed interval schedule with an attempt budget.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

func (p PollPolicy) normalized() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = 3 * time.Second
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 40
	}
	return p
}

// Poll calls tick until terminal reports true, tick returns an error, the
// attempts run out or ctx is done. The first tick runs immediately. It
// returns the last value observed and the number of ticks made.
func Poll[T any](ctx context.Context, policy PollPolicy, tick func(ctx context.Context, attempt int) (T, error), terminal func(T) bool) (T, int, error) {
	policy = policy.normalized()
	var last T
	attempts := 0
	backoff := retry.WithMaxRetries(uint64(policy.MaxAttempts-1), retry.NewConstant(policy.Interval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		value, err := tick(ctx, attempts)
		if err != nil {
			return err
		}
		last = value
		if terminal(value) {
			return nil
		}
		return retry.RetryableError(errNotTerminal)
	})
	if errors.Is(err, errNotTerminal) {
		err = ErrPollExhausted
	}
	return last, attempts, err
}

// PollPolicy returns the configured confirmation schedule.
func (s *Service) PollPolicy() PollPolicy {
	return PollPolicy{Interval: s.cfg.PollInterval, MaxAttempts: s.cfg.PollAttempts}
}

// Watch polls the intent on the configured schedule and streams every
// observation. The final update carries the Outcome and the channel is
// closed afterwards. Canceling ctx stops the loop and closes the channel
// without a final update; the intent is left as it is.
func (s *Service) Watch(ctx context.Context, intentID uuid.UUID) <-chan Update {
	return s.WatchWithPolicy(ctx, intentID, s.PollPolicy())
}

// WatchWithPolicy is Watch with an explicit schedule.
func (s *Service) WatchWithPolicy(ctx context.Context, intentID uuid.UUID, policy PollPolicy) <-chan Update {
	out := make(chan Update, 1)
	go func() {
		defer close(out)
		send := func(update Update) bool {
			select {
			case out <- update:
				return true
			case <-ctx.Done():
				return false
			}
		}

		logCtx := s.logg.WithIntentID(ctx, intentID.String())
		tick := func(ctx context.Context, attempt int) (IntentView, error) {
			view, err := s.Refresh(ctx, intentID)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return IntentView{}, ctxErr
				}
				// ledger hiccups are retried on the next tick
				if pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
					s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "payments.poll.refresh_failed")
					return IntentView{}, retry.RetryableError(errNotTerminal)
				}
				return IntentView{}, err
			}
			s.logg.Debug(s.logg.WithFields(logCtx, map[string]any{"attempt": attempt, "status": view.Status}), "payments.poll.tick")
			if _, done := outcomeFor(*view); !done {
				if !send(Update{Intent: *view, Attempt: attempt}) {
					return IntentView{}, ctx.Err()
				}
			}
			return *view, nil
		}
		terminal := func(view IntentView) bool {
			_, done := outcomeFor(view)
			return done
		}

		last, attempts, err := Poll(ctx, policy, tick, terminal)
		if ctx.Err() != nil {
			return
		}
		if last.ID == uuid.Nil {
			// no tick got through; report the intent as stored
			if intent, loadErr := s.repo.FindByID(ctx, intentID); loadErr == nil && intent != nil {
				last = toView(intent)
			}
		}

		outcome := &Outcome{Intent: last, Attempts: attempts}
		switch {
		case err == nil:
			outcome.Kind, _ = outcomeFor(last)
			outcome.Detail = derefString(last.ErrorDetail)
		case errors.Is(err, ErrPollExhausted):
			outcome.Kind = OutcomeTimeout
		default:
			outcome.Kind = OutcomeError
			outcome.Detail = providerMessage(err)
		}
		s.metrics.IncPollOutcome(string(last.Method), string(outcome.Kind))
		s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
			"outcome":  outcome.Kind,
			"attempts": attempts,
		}), "payments.poll.finished")
		send(Update{Intent: last, Attempt: attempts, Outcome: outcome})
	}()
	return out
}

// Await runs a watch to completion and returns its outcome. A watch ended by
// ctx reports OutcomeCanceled.
func (s *Service) Await(ctx context.Context, intentID uuid.UUID) Outcome {
	return AwaitUpdates(s.Watch(ctx, intentID))
}

// AwaitUpdates drains updates and returns the final outcome.
func AwaitUpdates(updates <-chan Update) Outcome {
	var last Update
	for update := range updates {
		last = update
		if update.Outcome != nil {
			return *update.Outcome
		}
	}
	return Outcome{Kind: OutcomeCanceled, Intent: last.Intent, Attempts: last.Attempt}
}
