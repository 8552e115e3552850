package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
)

// Activator grants the entitlement an intent paid for. It runs inside the
// transaction that moved the intent into its success status.
type Activator interface {
	Activate(ctx context.Context, tx *gorm.DB, intent *models.PaymentIntent) error
}

type subscriptionActivator interface {
	ActivateSubscription(ctx context.Context, tx *gorm.DB, subscriptionID, intentID uuid.UUID) error
}

type orderActivator interface {
	MarkOrderPaidAndEscrowed(ctx context.Context, tx *gorm.DB, orderID, intentID uuid.UUID) error
}

type entitlementActivator struct {
	subscriptions subscriptionActivator
	orders        orderActivator
}

// NewActivator dispatches on the intent's subject type.
func NewActivator(subscriptions subscriptionActivator, orders orderActivator) (Activator, error) {
	if subscriptions == nil {
		return nil, fmt.Errorf("subscription activator required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order activator required")
	}
	return &entitlementActivator{subscriptions: subscriptions, orders: orders}, nil
}

func (a *entitlementActivator) Activate(ctx context.Context, tx *gorm.DB, intent *models.PaymentIntent) error {
	switch intent.SubjectType {
	case enums.PaymentSubjectSubscription:
		return a.subscriptions.ActivateSubscription(ctx, tx, intent.SubjectID, intent.ID)
	case enums.PaymentSubjectOrder:
		return a.orders.MarkOrderPaidAndEscrowed(ctx, tx, intent.SubjectID, intent.ID)
	}
	return pkgerrors.New(pkgerrors.CodeActivation, "unsupported payment subject").
		WithDetails(map[string]any{"subject_type": intent.SubjectType})
}
