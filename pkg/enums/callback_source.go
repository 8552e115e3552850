package enums

// CallbackSource names the provider that delivered a payment notification.
type CallbackSource string

const (
	CallbackSourceMobileMoney CallbackSource = "mobile_money"
	CallbackSourceBank        CallbackSource = "bank"
	CallbackSourceStripe      CallbackSource = "stripe"
	CallbackSourceSquare      CallbackSource = "square"
)

// ChannelClass returns the channel class whose intents the source may settle.
func (s CallbackSource) ChannelClass() PaymentChannelClass {
	switch s {
	case CallbackSourceMobileMoney:
		return PaymentChannelClassPush
	case CallbackSourceBank:
		return PaymentChannelClassBank
	case CallbackSourceStripe, CallbackSourceSquare:
		return PaymentChannelClassCard
	}
	return ""
}

// Processor names the card processor behind the source, if any.
func (s CallbackSource) Processor() string {
	switch s {
	case CallbackSourceStripe, CallbackSourceSquare:
		return string(s)
	}
	return ""
}
