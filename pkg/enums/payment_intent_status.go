package enums

import "fmt"

// PaymentIntentStatus tracks a payment intent through confirmation.
type PaymentIntentStatus string

const (
	PaymentIntentStatusInitiated            PaymentIntentStatus = "initiated"
	PaymentIntentStatusAwaitingConfirmation PaymentIntentStatus = "awaiting_confirmation"
	// PaymentIntentStatusActive is the success terminal for subscriptions.
	PaymentIntentStatusActive PaymentIntentStatus = "active"
	// PaymentIntentStatusCompleted is the success terminal for orders.
	PaymentIntentStatusCompleted PaymentIntentStatus = "completed"
	PaymentIntentStatusRejected  PaymentIntentStatus = "rejected"
	PaymentIntentStatusFailed    PaymentIntentStatus = "failed"
	PaymentIntentStatusTimedOut  PaymentIntentStatus = "timed_out"
)

var validPaymentIntentStatuses = []PaymentIntentStatus{
	PaymentIntentStatusInitiated,
	PaymentIntentStatusAwaitingConfirmation,
	PaymentIntentStatusActive,
	PaymentIntentStatusCompleted,
	PaymentIntentStatusRejected,
	PaymentIntentStatusFailed,
	PaymentIntentStatusTimedOut,
}

// NonTerminalPaymentIntentStatuses lists the statuses that still hold a subject.
var NonTerminalPaymentIntentStatuses = []PaymentIntentStatus{
	PaymentIntentStatusInitiated,
	PaymentIntentStatusAwaitingConfirmation,
}

// String implements fmt.Stringer.
func (s PaymentIntentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PaymentIntentStatus.
func (s PaymentIntentStatus) IsValid() bool {
	for _, candidate := range validPaymentIntentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s PaymentIntentStatus) IsTerminal() bool {
	return s.Rank() == 2
}

// IsSuccess reports whether s is one of the success terminals.
func (s PaymentIntentStatus) IsSuccess() bool {
	return s == PaymentIntentStatusActive || s == PaymentIntentStatusCompleted
}

// Rank orders statuses for monotonic transitions: initiated (0) <
// awaiting_confirmation (1) < every terminal (2). Unknown values rank -1.
func (s PaymentIntentStatus) Rank() int {
	switch s {
	case PaymentIntentStatusInitiated:
		return 0
	case PaymentIntentStatusAwaitingConfirmation:
		return 1
	case PaymentIntentStatusActive, PaymentIntentStatusCompleted, PaymentIntentStatusRejected,
		PaymentIntentStatusFailed, PaymentIntentStatusTimedOut:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next respects the rank order.
func (s PaymentIntentStatus) CanTransitionTo(next PaymentIntentStatus) bool {
	from, to := s.Rank(), next.Rank()
	if from < 0 || to < 0 || s.IsTerminal() {
		return false
	}
	return to > from
}

// ParsePaymentIntentStatus converts raw input into a PaymentIntentStatus.
func ParsePaymentIntentStatus(value string) (PaymentIntentStatus, error) {
	for _, candidate := range validPaymentIntentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment intent status %q", value)
}
