package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sokolink-backend/pkg/enums"
)

// PaymentIntentEvent is shared by every payment.* lifecycle event.
type PaymentIntentEvent struct {
	IntentID         uuid.UUID                 `json:"intent_id"`
	SubjectType      enums.PaymentSubjectType  `json:"subject_type"`
	SubjectID        uuid.UUID                 `json:"subject_id"`
	OwnerID          uuid.UUID                 `json:"owner_id"`
	Method           enums.PaymentMethod       `json:"method"`
	Provider         string                    `json:"provider"`
	Amount           decimal.Decimal           `json:"amount"`
	Currency         string                    `json:"currency"`
	Status           enums.PaymentIntentStatus `json:"status"`
	ChannelReference *string                   `json:"channel_reference,omitempty"`
	ErrorDetail      *string                   `json:"error_detail,omitempty"`
	CreatedAt        time.Time                 `json:"created_at"`
	OccurredAt       time.Time                 `json:"occurred_at"`
}

// SubscriptionActivatedEvent is emitted when a paid upgrade takes effect.
type SubscriptionActivatedEvent struct {
	SubscriptionID     uuid.UUID                   `json:"subscription_id"`
	OwnerID            uuid.UUID                   `json:"owner_id"`
	OwnerType          enums.SubscriptionOwnerType `json:"owner_type"`
	PlanID             string                      `json:"plan_id"`
	PaymentIntentID    uuid.UUID                   `json:"payment_intent_id"`
	CurrentPeriodStart time.Time                   `json:"current_period_start"`
	CurrentPeriodEnd   time.Time                   `json:"current_period_end"`
	Superseded         []uuid.UUID                 `json:"superseded,omitempty"`
}

// OrderPaidEvent is emitted once an order's funds are held in escrow.
type OrderPaidEvent struct {
	OrderID         uuid.UUID       `json:"order_id"`
	BuyerID         uuid.UUID       `json:"buyer_id"`
	VendorID        uuid.UUID       `json:"vendor_id"`
	PaymentIntentID uuid.UUID       `json:"payment_intent_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	PaidAt          time.Time       `json:"paid_at"`
}
