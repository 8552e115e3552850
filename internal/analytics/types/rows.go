package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// PaymentEventRow mirrors the payment_events BigQuery schema. Amount is kept
// as a decimal string so TZS values round-trip exactly.
type PaymentEventRow struct {
	EventID          string             `bigquery:"event_id"`
	EventType        string             `bigquery:"event_type"`
	OccurredAt       time.Time          `bigquery:"occurred_at"`
	IntentID         string             `bigquery:"intent_id"`
	SubjectType      string             `bigquery:"subject_type"`
	SubjectID        string             `bigquery:"subject_id"`
	OwnerID          string             `bigquery:"owner_id"`
	Method           string             `bigquery:"method"`
	ChannelClass     string             `bigquery:"channel_class"`
	Provider         string             `bigquery:"provider"`
	Status           string             `bigquery:"status"`
	Amount           string             `bigquery:"amount"`
	Currency         string             `bigquery:"currency"`
	ErrorDetail      *string            `bigquery:"error_detail"`
	SecondsToOutcome *float64           `bigquery:"seconds_to_outcome"`
	Payload          cbigquery.NullJSON `bigquery:"payload"`
}
