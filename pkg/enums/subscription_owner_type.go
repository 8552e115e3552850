package enums

import "fmt"

// SubscriptionOwnerType distinguishes the marketplace role holding a plan.
type SubscriptionOwnerType string

const (
	SubscriptionOwnerVendor      SubscriptionOwnerType = "vendor"
	SubscriptionOwnerTransporter SubscriptionOwnerType = "transporter"
)

func (o SubscriptionOwnerType) IsValid() bool {
	return o == SubscriptionOwnerVendor || o == SubscriptionOwnerTransporter
}

// ParseSubscriptionOwnerType converts raw input into a SubscriptionOwnerType.
func ParseSubscriptionOwnerType(value string) (SubscriptionOwnerType, error) {
	owner := SubscriptionOwnerType(value)
	if !owner.IsValid() {
		return "", fmt.Errorf("invalid subscription owner type %q", value)
	}
	return owner, nil
}
