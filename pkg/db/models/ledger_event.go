package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sokolink-backend/pkg/enums"
)

// LedgerEvent records an immutable money lifecycle event tied to a vendor order.
type LedgerEvent struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID             `gorm:"column:order_id;type:uuid;not null"`
	PaymentIntentID *uuid.UUID            `gorm:"column:payment_intent_id;type:uuid"`
	Type            enums.LedgerEventType `gorm:"column:type;type:text;not null"`
	Amount          decimal.Decimal       `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency        string                `gorm:"column:currency;not null"`
	Metadata        json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (LedgerEvent) TableName() string { return "ledger_events" }
