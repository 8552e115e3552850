package types

import (
	"time"

	"encoding/json"

	"github.com/angelmondragon/sokolink-backend/pkg/enums"
)

// Envelope is an outbox message as seen by the analytics consumer.
type Envelope struct {
	EventID       string                    `json:"event_id"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	Payload       json.RawMessage           `json:"payload"`
}
