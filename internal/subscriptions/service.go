package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sokolink-backend/internal/billing"
	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
	"github.com/angelmondragon/sokolink-backend/pkg/outbox"
	"github.com/angelmondragon/sokolink-backend/pkg/outbox/payloads"
)

type planCatalog interface {
	GetSubscriptionPlan(ctx context.Context, planID string) (*billing.Plan, error)
	GetSubscriptionPlanTx(ctx context.Context, tx *gorm.DB, planID string) (*billing.Plan, error)
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Repo    Repository
	Catalog planCatalog
	Outbox  outbox.Emitter
	Logger  *logger.Logger
	Now     func() time.Time
}

// Service manages subscription upgrades and their activation.
type Service struct {
	repo    Repository
	catalog planCatalog
	outbox  outbox.Emitter
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repo required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("plan catalog required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:    params.Repo,
		catalog: params.Catalog,
		outbox:  params.Outbox,
		logg:    params.Logger,
		now:     now,
	}, nil
}

// CreatePending opens an incomplete subscription for the caller. An existing
// incomplete subscription for the same plan is returned instead of a new row.
func (s *Service) CreatePending(ctx context.Context, ownerID uuid.UUID, role enums.UserRole, planID string) (*models.Subscription, bool, error) {
	ownerType, ok := role.SubscriptionOwnerType()
	if !ok {
		return nil, false, pkgerrors.New(pkgerrors.CodeForbidden, "only vendors and transporters hold subscriptions")
	}
	plan, err := s.catalog.GetSubscriptionPlan(ctx, planID)
	if err != nil {
		return nil, false, err
	}
	if plan.OwnerType != ownerType {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "plan is not offered to this role").
			WithDetails(map[string]any{"plan_id": plan.ID, "owner_type": plan.OwnerType})
	}
	if !plan.Status.IsPurchasable() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "plan is no longer offered")
	}
	if !plan.Price.IsPositive() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "plan does not require payment")
	}

	active, err := s.repo.FindActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active subscription")
	}
	if active != nil && active.PlanID == plan.ID {
		return nil, false, pkgerrors.New(pkgerrors.CodeStateConflict, "plan already active").
			WithDetails(map[string]any{"subscription_id": active.ID})
	}

	existing, err := s.repo.FindIncomplete(ctx, ownerID, plan.ID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pending subscription")
	}
	if existing != nil {
		return existing, false, nil
	}

	sub := &models.Subscription{
		OwnerID:   ownerID,
		OwnerType: ownerType,
		PlanID:    plan.ID,
		Status:    enums.SubscriptionStatusIncomplete,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
	}
	return sub, true, nil
}

// Get returns a subscription by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return sub, nil
}

// GetActive returns the owner's active subscription, or nil.
func (s *Service) GetActive(ctx context.Context, ownerID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.repo.FindActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active subscription")
	}
	return sub, nil
}

// ActivateSubscription switches the owner onto the paid plan inside tx. The
// new billing period follows the plan's recurrence rule and every other
// active subscription of the owner is canceled as superseded.
func (s *Service) ActivateSubscription(ctx context.Context, tx *gorm.DB, subscriptionID, intentID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	sub, err := repo.FindByID(ctx, subscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeActivation, "subscription not found").
			WithDetails(map[string]any{"subscription_id": subscriptionID})
	}
	plan, err := s.catalog.GetSubscriptionPlanTx(ctx, tx, sub.PlanID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeActivation, err, "load subscription plan")
	}

	now := s.now()
	start, end, err := billing.BillingPeriod(plan, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeActivation, err, "compute billing period")
	}

	updated, err := repo.Activate(ctx, sub.ID, start, end, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate subscription")
	}
	if updated == 0 {
		return pkgerrors.New(pkgerrors.CodeActivation, "subscription is not awaiting activation").
			WithDetails(map[string]any{"subscription_id": sub.ID, "status": sub.Status})
	}

	superseded, err := repo.SupersedeActive(ctx, sub.OwnerID, sub.ID, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "supersede previous subscriptions")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionActivated,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		OccurredAt:    now,
		Data: payloads.SubscriptionActivatedEvent{
			SubscriptionID:     sub.ID,
			OwnerID:            sub.OwnerID,
			OwnerType:          sub.OwnerType,
			PlanID:             sub.PlanID,
			PaymentIntentID:    intentID,
			CurrentPeriodStart: start,
			CurrentPeriodEnd:   end,
			Superseded:         superseded,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit subscription activated")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"subscription_id": sub.ID.String(),
			"plan_id":         sub.PlanID,
			"superseded":      len(superseded),
		})
		s.logg.Info(logCtx, "subscriptions.activated")
	}
	return nil
}
