package enums

import "fmt"

// BillingInterval defines the cadence for a billing plan.
type BillingInterval string

const (
	BillingIntervalMonthly     BillingInterval = "MONTHLY"
	BillingIntervalEvery30Days BillingInterval = "EVERY_30_DAYS"
	BillingIntervalAnnual      BillingInterval = "ANNUAL"
)

var validBillingIntervals = []BillingInterval{
	BillingIntervalMonthly,
	BillingIntervalEvery30Days,
	BillingIntervalAnnual,
}

// String implements fmt.Stringer.
func (b BillingInterval) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BillingInterval.
func (b BillingInterval) IsValid() bool {
	for _, candidate := range validBillingIntervals {
		if candidate == b {
			return true
		}
	}
	return false
}

// RecurrenceRule returns the RFC 5545 rule used when a plan does not carry its own.
func (b BillingInterval) RecurrenceRule() string {
	switch b {
	case BillingIntervalEvery30Days:
		return "FREQ=DAILY;INTERVAL=30"
	case BillingIntervalAnnual:
		return "FREQ=YEARLY;INTERVAL=1"
	default:
		return "FREQ=MONTHLY;INTERVAL=1"
	}
}

// ParseBillingInterval converts raw input into a BillingInterval.
func ParseBillingInterval(value string) (BillingInterval, error) {
	for _, candidate := range validBillingIntervals {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing interval %q", value)
}
