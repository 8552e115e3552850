package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/sokolink-backend/pkg/enums"
)

// Subscription binds a vendor or transporter to a billing plan.
type Subscription struct {
	ID                 uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID            uuid.UUID                   `gorm:"column:owner_id;type:uuid;not null;index"`
	OwnerType          enums.SubscriptionOwnerType `gorm:"column:owner_type;type:text;not null"`
	PlanID             string                      `gorm:"column:plan_id;not null"`
	Status             enums.SubscriptionStatus    `gorm:"column:status;type:text;not null;default:'incomplete'"`
	CurrentPeriodStart *time.Time                  `gorm:"column:current_period_start"`
	CurrentPeriodEnd   *time.Time                  `gorm:"column:current_period_end"`
	ActivatedAt        *time.Time                  `gorm:"column:activated_at"`
	CanceledAt         *time.Time                  `gorm:"column:canceled_at"`
	SupersededBy       *uuid.UUID                  `gorm:"column:superseded_by;type:uuid"`
	CreatedAt          time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (Subscription) TableName() string { return "subscriptions" }
