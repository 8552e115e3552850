package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/sokolink-backend/internal/payments"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
)

type paymentReconciler interface {
	ListStaleIntents(ctx context.Context) ([]uuid.UUID, error)
	ListExpiredIntents(ctx context.Context) ([]uuid.UUID, error)
	Refresh(ctx context.Context, id uuid.UUID) (*payments.IntentView, error)
	ExpireIntent(ctx context.Context, id uuid.UUID) (*payments.IntentView, bool, error)
}

// PaymentReconcileJobParams configures the payment reconciliation job.
type PaymentReconcileJobParams struct {
	Logger   *logger.Logger
	Payments paymentReconciler
}

// NewPaymentReconcileJob builds the job that re-checks awaiting intents whose
// watcher went away and expires intents that outlived the pending TTL.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	return &paymentReconcileJob{logg: params.Logger, payments: params.Payments}, nil
}

type paymentReconcileJob struct {
	logg     *logger.Logger
	payments paymentReconciler
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	var errs error

	stale, err := j.payments.ListStaleIntents(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("list stale intents: %w", err))
	}
	settled := 0
	for _, id := range stale {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		view, err := j.payments.Refresh(ctx, id)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("refresh intent %s: %w", id, err))
			continue
		}
		if view.Status.IsTerminal() {
			settled++
		}
	}

	expiredIDs, err := j.payments.ListExpiredIntents(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("list expired intents: %w", err))
	}
	expired := 0
	for _, id := range expiredIDs {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		_, ok, err := j.payments.ExpireIntent(ctx, id)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire intent %s: %w", id, err))
			continue
		}
		if ok {
			expired++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"stale":         len(stale),
		"settled":       settled,
		"expire_checks": len(expiredIDs),
		"expired":       expired,
		"errors":        len(multierr.Errors(errs)),
	}), "cron.payment_reconcile.complete")
	return errs
}
