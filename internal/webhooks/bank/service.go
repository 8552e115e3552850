package bankwebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sokolink-backend/internal/payments"
	"github.com/angelmondragon/sokolink-backend/internal/webhooks"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
)

// SignatureHeader carries the hex HMAC-SHA256 of the notification body.
const SignatureHeader = "X-Bank-Signature"

// Notification is a bank payment notification for a control number or a
// hosted checkout order.
type Notification struct {
	EventID   string `json:"event_id"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	// Amount and Currency are what the payer actually settled.
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Currency string           `json:"currency,omitempty"`
}

type ServiceParams struct {
	Payments webhooks.CallbackApplier
	Secret   string
}

type Service struct {
	payments webhooks.CallbackApplier
	secret   string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	if strings.TrimSpace(params.Secret) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bank callback secret required")
	}
	return &Service{payments: params.Payments, secret: params.Secret}, nil
}

// Parse verifies the signature and decodes the notification.
func (s *Service) Parse(payload []byte, signature string) (*Notification, error) {
	if !ValidateSignature(payload, s.secret, signature) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid bank signature")
	}
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode bank notification")
	}
	n.EventID = strings.TrimSpace(n.EventID)
	n.Reference = strings.TrimSpace(n.Reference)
	n.Status = strings.ToUpper(strings.TrimSpace(n.Status))
	if n.EventID == "" || n.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event_id and reference are required")
	}
	return &n, nil
}

// HandleNotification applies a parsed notification.
func (s *Service) HandleNotification(ctx context.Context, n *Notification, payload []byte) (*payments.CallbackResult, error) {
	if n == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank notification required")
	}
	return s.payments.ApplyCallback(ctx, payments.CallbackInput{
		Source:            enums.CallbackSourceBank,
		ExternalEventID:   n.EventID,
		ProviderReference: n.Reference,
		Result:            Result(n.Status),
		Detail:            n.Message,
		Amount:            n.Amount,
		Currency:          n.Currency,
		Payload:           json.RawMessage(payload),
	})
}

// Result maps a bank notification status onto a channel result.
func Result(status string) payments.ChannelResult {
	switch strings.ToUpper(status) {
	case "PAID", "SETTLED", "SUCCESS":
		return payments.ChannelSucceeded
	case "CANCELLED", "EXPIRED", "REVERSED":
		return payments.ChannelRejected
	case "FAILED":
		return payments.ChannelFailed
	}
	return payments.ChannelPending
}

// Sign computes the signature a bank attaches to payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidateSignature reports whether header signs payload under secret.
func ValidateSignature(payload []byte, secret, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(strings.ToLower(strings.TrimSpace(header))))
}
