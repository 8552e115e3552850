package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sokolink-backend/pkg/enums"
)

// BillingPlan captures a purchasable vendor or transporter plan.
type BillingPlan struct {
	ID        string                      `gorm:"column:id;primaryKey"`
	Name      string                      `gorm:"column:name;not null"`
	OwnerType enums.SubscriptionOwnerType `gorm:"column:owner_type;type:text;not null"`
	Status    enums.PlanStatus            `gorm:"column:status;type:text;not null"`
	Interval  enums.BillingInterval       `gorm:"column:interval;type:text;not null"`
	// RecurrenceRule overrides the interval default, e.g. "FREQ=MONTHLY;INTERVAL=3".
	RecurrenceRule *string         `gorm:"column:recurrence_rule"`
	PriceAmount    decimal.Decimal `gorm:"column:price_amount;type:numeric(14,2);not null"`
	CurrencyCode   string          `gorm:"column:currency_code;not null"`
	Features       pq.StringArray  `gorm:"column:features;type:text[]"`
	IsDefault      bool            `gorm:"column:is_default;not null;default:false"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (BillingPlan) TableName() string { return "billing_plans" }
