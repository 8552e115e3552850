package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
)

// InitiateRequest is a caller's request to pay for one subject.
type InitiateRequest struct {
	SubjectType enums.PaymentSubjectType
	SubjectID   uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	Method      enums.PaymentMethod
	Details     MethodDetails
	ActorID     uuid.UUID
	ActorRole   enums.UserRole
}

// MethodDetails carries the class specific inputs. Bank methods take none.
type MethodDetails struct {
	Phone string
	Card  *CardInput
}

// CardInput is either a processor token or raw card fields.
type CardInput struct {
	Token    string
	Number   string
	ExpMonth int
	ExpYear  int
	CVV      string
	Holder   string
}

// InitiationResult is returned to the caller once the channel has been contacted.
type InitiationResult struct {
	IntentID         uuid.UUID                 `json:"intent_id"`
	Status           enums.PaymentIntentStatus `json:"status"`
	ChannelReference *string                   `json:"channel_reference,omitempty"`
	ActionURL        *string                   `json:"action_url,omitempty"`
	ErrorDetail      *string                   `json:"error_detail,omitempty"`
}

// IntentView is the public projection of a payment intent. The provider
// transaction id stays internal.
type IntentView struct {
	ID                 uuid.UUID                 `json:"id"`
	SubjectType        enums.PaymentSubjectType  `json:"subject_type"`
	SubjectID          uuid.UUID                 `json:"subject_id"`
	Amount             decimal.Decimal           `json:"amount"`
	Currency           string                    `json:"currency"`
	Method             enums.PaymentMethod       `json:"method"`
	Status             enums.PaymentIntentStatus `json:"status"`
	ChannelReference   *string                   `json:"channel_reference,omitempty"`
	ActionURL          *string                   `json:"action_url,omitempty"`
	ErrorDetail        *string                   `json:"error_detail,omitempty"`
	CreatedAt          time.Time                 `json:"created_at"`
	LastPolledAt       *time.Time                `json:"last_polled_at,omitempty"`
	ActivatedAt        *time.Time                `json:"activated_at,omitempty"`
	ActivationFailedAt *time.Time                `json:"activation_failed_at,omitempty"`
}

func toView(intent *models.PaymentIntent) IntentView {
	return IntentView{
		ID:                 intent.ID,
		SubjectType:        intent.SubjectType,
		SubjectID:          intent.SubjectID,
		Amount:             intent.Amount,
		Currency:           intent.Currency,
		Method:             intent.Method,
		Status:             intent.Status,
		ChannelReference:   intent.ChannelReference,
		ActionURL:          intent.ActionURL,
		ErrorDetail:        intent.ErrorDetail,
		CreatedAt:          intent.CreatedAt,
		LastPolledAt:       intent.LastPolledAt,
		ActivatedAt:        intent.ActivatedAt,
		ActivationFailedAt: intent.ActivationFailedAt,
	}
}

// OutcomeKind classifies how a watch ended.
type OutcomeKind string

const (
	OutcomeSucceeded        OutcomeKind = "succeeded"
	OutcomeRejected         OutcomeKind = "rejected"
	OutcomeFailed           OutcomeKind = "failed"
	OutcomeActivationFailed OutcomeKind = "activation_failed"
	OutcomeExpired          OutcomeKind = "expired"
	// OutcomeTimeout means the poll budget ran out. The intent is still
	// awaiting confirmation and may settle later.
	OutcomeTimeout  OutcomeKind = "timeout"
	OutcomeCanceled OutcomeKind = "canceled"
	// OutcomeError means the watch itself could not continue, for example
	// because the intent does not exist. The intent is not changed.
	OutcomeError OutcomeKind = "error"
)

// Outcome is the typed result of a watch.
type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	Intent   IntentView  `json:"intent"`
	Detail   string      `json:"detail,omitempty"`
	Attempts int         `json:"attempts"`
}

// Update is one observation emitted by a watch. The last update of a
// finished watch carries the Outcome.
type Update struct {
	Intent  IntentView `json:"intent"`
	Attempt int        `json:"attempt"`
	Outcome *Outcome   `json:"outcome,omitempty"`
}

func outcomeFor(view IntentView) (OutcomeKind, bool) {
	switch {
	case view.Status.IsSuccess():
		return OutcomeSucceeded, true
	case view.Status == enums.PaymentIntentStatusRejected:
		return OutcomeRejected, true
	case view.Status == enums.PaymentIntentStatusFailed && view.ActivationFailedAt != nil:
		return OutcomeActivationFailed, true
	case view.Status == enums.PaymentIntentStatusFailed:
		return OutcomeFailed, true
	case view.Status == enums.PaymentIntentStatusTimedOut:
		return OutcomeExpired, true
	}
	return "", false
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func stringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
