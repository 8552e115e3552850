package enums

import "fmt"

// PaymentSubjectType names the entitlement a payment intent pays for.
type PaymentSubjectType string

const (
	PaymentSubjectSubscription PaymentSubjectType = "subscription"
	PaymentSubjectOrder        PaymentSubjectType = "order"
)

var validPaymentSubjectTypes = []PaymentSubjectType{
	PaymentSubjectSubscription,
	PaymentSubjectOrder,
}

func (t PaymentSubjectType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known PaymentSubjectType.
func (t PaymentSubjectType) IsValid() bool {
	for _, candidate := range validPaymentSubjectTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// SuccessStatus returns the terminal status an intent reaches on confirmation.
func (t PaymentSubjectType) SuccessStatus() PaymentIntentStatus {
	if t == PaymentSubjectOrder {
		return PaymentIntentStatusCompleted
	}
	return PaymentIntentStatusActive
}

// ParsePaymentSubjectType converts raw input into a PaymentSubjectType.
func ParsePaymentSubjectType(value string) (PaymentSubjectType, error) {
	for _, candidate := range validPaymentSubjectTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment subject type %q", value)
}
