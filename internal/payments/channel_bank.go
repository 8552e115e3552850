package payments

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
)

// MaxReferenceAttempts bounds control number allocation retries.
const MaxReferenceAttempts = 5

// BankChannelConfig shapes the references the bank channel issues.
type BankChannelConfig struct {
	ControlNumberPrefix   string
	ControlNumberLength   int
	HostedCheckoutBaseURL string
	// Random defaults to crypto/rand.
	Random io.Reader
}

// BankChannel issues control numbers and hosted checkout URLs. Settlement is
// reported by bank callbacks, so Query never learns anything new.
type BankChannel struct {
	prefix string
	length int
	hosted string
	random io.Reader
}

func NewBankChannel(cfg BankChannelConfig) (*BankChannel, error) {
	prefix := strings.TrimSpace(cfg.ControlNumberPrefix)
	if prefix != "" && !isDigits(prefix) {
		return nil, fmt.Errorf("control number prefix must be numeric")
	}
	if cfg.ControlNumberLength <= len(prefix) {
		return nil, fmt.Errorf("control number length must exceed the prefix length")
	}
	random := cfg.Random
	if random == nil {
		random = rand.Reader
	}
	return &BankChannel{
		prefix: prefix,
		length: cfg.ControlNumberLength,
		hosted: strings.TrimRight(strings.TrimSpace(cfg.HostedCheckoutBaseURL), "/"),
		random: random,
	}, nil
}

func (c *BankChannel) Class() enums.PaymentChannelClass {
	return enums.PaymentChannelClassBank
}

func (c *BankChannel) Provider(method enums.PaymentMethod) string {
	switch method {
	case enums.PaymentMethodCRDBSimBanking:
		return "crdb"
	case enums.PaymentMethodNMBMobile:
		return "nmb"
	case enums.PaymentMethodSelcomCheckout:
		return "selcom"
	}
	return "bank"
}

func (c *BankChannel) Initiate(_ context.Context, req ChannelRequest) (*ChannelAck, error) {
	if req.Method == enums.PaymentMethodSelcomCheckout {
		if c.hosted == "" {
			return nil, unavailable(req.Method, ReasonNotConfigured)
		}
		orderID := ulid.Make().String()
		return &ChannelAck{
			ProviderTransactionID: orderID,
			ChannelReference:      c.hosted + "/" + orderID,
		}, nil
	}
	number, err := c.controlNumber()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate control number")
	}
	return &ChannelAck{ChannelReference: number}, nil
}

func (c *BankChannel) Query(context.Context, *models.PaymentIntent) (*ChannelStatus, error) {
	return &ChannelStatus{Result: ChannelPending}, nil
}

func (c *BankChannel) controlNumber() (string, error) {
	var b strings.Builder
	b.Grow(c.length)
	b.WriteString(c.prefix)
	buf := make([]byte, 1)
	for b.Len() < c.length {
		if _, err := io.ReadFull(c.random, buf); err != nil {
			return "", err
		}
		// bytes >= 250 would bias the low digits
		if buf[0] >= 250 {
			continue
		}
		b.WriteByte('0' + buf[0]%10)
	}
	return b.String(), nil
}
