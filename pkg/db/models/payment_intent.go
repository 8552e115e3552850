package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sokolink-backend/pkg/enums"
)

// PaymentIntent is the durable record of one attempt to pay for a subject.
type PaymentIntent struct {
	ID                    uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SubjectType           enums.PaymentSubjectType  `gorm:"column:subject_type;type:text;not null"`
	SubjectID             uuid.UUID                 `gorm:"column:subject_id;type:uuid;not null"`
	OwnerID               uuid.UUID                 `gorm:"column:owner_id;type:uuid;not null"`
	Amount                decimal.Decimal           `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency              string                    `gorm:"column:currency;not null;default:'TZS'"`
	Method                enums.PaymentMethod       `gorm:"column:method;type:text;not null"`
	Provider              string                    `gorm:"column:provider;not null"`
	Status                enums.PaymentIntentStatus `gorm:"column:status;type:text;not null;default:'initiated'"`
	ChannelReference      *string                   `gorm:"column:channel_reference"`
	ProviderTransactionID *string                   `gorm:"column:provider_transaction_id"`
	ActionURL             *string                   `gorm:"column:action_url"`
	ErrorDetail           *string                   `gorm:"column:error_detail"`
	LastPolledAt          *time.Time                `gorm:"column:last_polled_at"`
	ActivatedAt           *time.Time                `gorm:"column:activated_at"`
	ActivationFailedAt    *time.Time                `gorm:"column:activation_failed_at"`
	CreatedAt             time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentIntent) TableName() string { return "payment_intents" }
