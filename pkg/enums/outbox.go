package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregatePaymentIntent OutboxAggregateType = "payment_intent"
	AggregateSubscription  OutboxAggregateType = "subscription"
	AggregateVendorOrder   OutboxAggregateType = "vendor_order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePaymentIntent,
	AggregateSubscription,
	AggregateVendorOrder,
}

// IsValid reports whether the value matches a known aggregate.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventPaymentInitiated        OutboxEventType = "payment.initiated"
	EventPaymentSucceeded        OutboxEventType = "payment.succeeded"
	EventPaymentRejected         OutboxEventType = "payment.rejected"
	EventPaymentFailed           OutboxEventType = "payment.failed"
	EventPaymentExpired          OutboxEventType = "payment.expired"
	EventPaymentActivationFailed OutboxEventType = "payment.activation_failed"
	EventSubscriptionActivated   OutboxEventType = "subscription.activated"
	EventOrderPaid               OutboxEventType = "order.paid"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPaymentInitiated,
	EventPaymentSucceeded,
	EventPaymentRejected,
	EventPaymentFailed,
	EventPaymentExpired,
	EventPaymentActivationFailed,
	EventSubscriptionActivated,
	EventOrderPaid,
}

// OutboxEventTypes returns every known event type.
func OutboxEventTypes() []OutboxEventType {
	out := make([]OutboxEventType, len(validOutboxEventTypes))
	copy(out, validOutboxEventTypes)
	return out
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// IsPaymentEvent reports whether the event belongs to the payment lifecycle.
func (e OutboxEventType) IsPaymentEvent() bool {
	switch e {
	case EventPaymentInitiated, EventPaymentSucceeded, EventPaymentRejected, EventPaymentFailed,
		EventPaymentExpired, EventPaymentActivationFailed:
		return true
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
