package enums

import (
	"fmt"
	"strings"
)

// PaymentMethod identifies the settlement rail chosen by the payer.
type PaymentMethod string

const (
	PaymentMethodMPesa          PaymentMethod = "m-pesa"
	PaymentMethodAirtelMoney    PaymentMethod = "airtel-money"
	PaymentMethodTigoPesa       PaymentMethod = "tigo-pesa"
	PaymentMethodHaloPesa       PaymentMethod = "halopesa"
	PaymentMethodAzamPesa       PaymentMethod = "azampesa"
	PaymentMethodVisa           PaymentMethod = "visa"
	PaymentMethodMastercard     PaymentMethod = "mastercard"
	PaymentMethodCRDBSimBanking PaymentMethod = "crdb-simbanking"
	PaymentMethodNMBMobile      PaymentMethod = "nmb-mobile"
	PaymentMethodSelcomCheckout PaymentMethod = "selcom-checkout"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodMPesa,
	PaymentMethodAirtelMoney,
	PaymentMethodTigoPesa,
	PaymentMethodHaloPesa,
	PaymentMethodAzamPesa,
	PaymentMethodVisa,
	PaymentMethodMastercard,
	PaymentMethodCRDBSimBanking,
	PaymentMethodNMBMobile,
	PaymentMethodSelcomCheckout,
}

// PaymentMethods returns every known method in display order.
func PaymentMethods() []PaymentMethod {
	out := make([]PaymentMethod, len(validPaymentMethods))
	copy(out, validPaymentMethods)
	return out
}

// String implements fmt.Stringer.
func (m PaymentMethod) String() string {
	return string(m)
}

// IsValid reports whether the value is a known PaymentMethod.
func (m PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// Class returns the channel class the method settles through.
func (m PaymentMethod) Class() PaymentChannelClass {
	switch m {
	case PaymentMethodMPesa, PaymentMethodAirtelMoney, PaymentMethodTigoPesa, PaymentMethodHaloPesa, PaymentMethodAzamPesa:
		return PaymentChannelClassPush
	case PaymentMethodVisa, PaymentMethodMastercard:
		return PaymentChannelClassCard
	case PaymentMethodCRDBSimBanking, PaymentMethodNMBMobile, PaymentMethodSelcomCheckout:
		return PaymentChannelClassBank
	default:
		return ""
	}
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPaymentMethods {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

// PaymentChannelClass groups methods by how confirmation arrives.
type PaymentChannelClass string

const (
	// PaymentChannelClassPush covers mobile money USSD push.
	PaymentChannelClassPush PaymentChannelClass = "mobile_money"
	// PaymentChannelClassCard covers immediate card authorization.
	PaymentChannelClassCard PaymentChannelClass = "card"
	// PaymentChannelClassBank covers deferred references (control numbers, hosted URLs).
	PaymentChannelClassBank PaymentChannelClass = "bank"
)

func (c PaymentChannelClass) String() string {
	return string(c)
}

// Methods returns the methods that settle through c.
func (c PaymentChannelClass) Methods() []PaymentMethod {
	var out []PaymentMethod
	for _, m := range validPaymentMethods {
		if m.Class() == c {
			out = append(out, m)
		}
	}
	return out
}
