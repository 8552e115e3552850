package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/sokolink-backend/pkg/enums"
)

// PaymentCallback stores every provider notification, applied or not.
type PaymentCallback struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Source            enums.CallbackSource `gorm:"column:source;type:text;not null"`
	ExternalEventID   string               `gorm:"column:external_event_id;not null"`
	IntentID          *uuid.UUID           `gorm:"column:intent_id;type:uuid"`
	ProviderReference string               `gorm:"column:provider_reference;not null"`
	Outcome           string               `gorm:"column:outcome;not null"`
	Applied           bool                 `gorm:"column:applied;not null;default:false"`
	Note              *string              `gorm:"column:note"`
	Payload           json.RawMessage      `gorm:"column:payload;type:jsonb"`
	ReceivedAt        time.Time            `gorm:"column:received_at;autoCreateTime"`
}

func (PaymentCallback) TableName() string { return "payment_callbacks" }
