package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
)

// ChannelRequest is what an adapter needs to contact its provider.
type ChannelRequest struct {
	IntentID    uuid.UUID
	SubjectType enums.PaymentSubjectType
	SubjectID   uuid.UUID
	Method      enums.PaymentMethod
	Amount      decimal.Decimal
	Currency    string
	Description string
	Details     MethodDetails
	// Attempt counts reference allocations for deferred channels, starting at 1.
	Attempt int
}

// ChannelAck is the provider's immediate answer to an initiation.
type ChannelAck struct {
	ProviderTransactionID string
	// ChannelReference is only set by deferred (bank) channels.
	ChannelReference string
	ActionURL        string
	Declined         bool
	DeclineReason    string
}

// ChannelResult is a provider verdict mapped onto the intent lifecycle.
type ChannelResult string

const (
	ChannelPending   ChannelResult = "pending"
	ChannelSucceeded ChannelResult = "succeeded"
	ChannelRejected  ChannelResult = "rejected"
	ChannelFailed    ChannelResult = "failed"
)

// IsValid reports whether r is a known result.
func (r ChannelResult) IsValid() bool {
	switch r {
	case ChannelPending, ChannelSucceeded, ChannelRejected, ChannelFailed:
		return true
	}
	return false
}

// ChannelStatus is a provider's current view of a transaction.
type ChannelStatus struct {
	Result ChannelResult
	Detail string
}

// Channel adapts one settlement class. Initiate may return CodeDependency
// errors when the provider cannot be reached.
type Channel interface {
	Class() enums.PaymentChannelClass
	Provider(method enums.PaymentMethod) string
	Initiate(ctx context.Context, req ChannelRequest) (*ChannelAck, error)
	Query(ctx context.Context, intent *models.PaymentIntent) (*ChannelStatus, error)
}

func statusForResult(subject enums.PaymentSubjectType, result ChannelResult) (enums.PaymentIntentStatus, bool) {
	switch result {
	case ChannelSucceeded:
		return subject.SuccessStatus(), true
	case ChannelRejected:
		return enums.PaymentIntentStatusRejected, true
	case ChannelFailed:
		return enums.PaymentIntentStatusFailed, true
	}
	return "", false
}
