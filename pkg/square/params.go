package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

// PaymentCreateParams is one card charge for a payment intent. AmountMinor
// is in the currency's minor unit; TZS has none, so it equals the amount.
type PaymentCreateParams struct {
	AmountMinor       int64
	Currency          string
	SourceID          string
	VerificationToken string
	IdempotencyKey    string
	Note              string
	ReferenceID       string
}

func (p PaymentCreateParams) request(locationID string) *sq.CreatePaymentRequest {
	req := &sq.CreatePaymentRequest{
		IdempotencyKey:    p.IdempotencyKey,
		SourceID:          p.SourceID,
		LocationID:        optional(locationID),
		VerificationToken: optional(p.VerificationToken),
		Note:              optional(p.Note),
		ReferenceID:       optional(p.ReferenceID),
	}
	if p.AmountMinor > 0 {
		currency := sq.Currency(strings.ToUpper(strings.TrimSpace(p.Currency)))
		if currency == "" {
			currency = sq.Currency("TZS")
		}
		amount := p.AmountMinor
		req.AmountMoney = &sq.Money{Amount: &amount, Currency: &currency}
	}
	return req
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
