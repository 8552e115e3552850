package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sokolink-backend/pkg/enums"
)

// VendorOrder is the per-vendor order a customer pays for.
type VendorOrder struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID       uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null"`
	VendorID      uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null"`
	Currency      string              `gorm:"column:currency;not null;default:'TZS'"`
	TotalAmount   decimal.Decimal     `gorm:"column:total_amount;type:numeric(14,2);not null"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'unpaid'"`
	EscrowStatus  enums.EscrowStatus  `gorm:"column:escrow_status;type:text;not null;default:'none'"`
	PaidAt        *time.Time          `gorm:"column:paid_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (VendorOrder) TableName() string { return "vendor_orders" }
