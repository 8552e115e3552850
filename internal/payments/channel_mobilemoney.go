package payments

import (
	"context"
	"fmt"

	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/mobilemoney"
)

type mobileMoneyGateway interface {
	Push(ctx context.Context, req mobilemoney.PushRequest) (*mobilemoney.PushResponse, error)
	Status(ctx context.Context, transactionID string) (*mobilemoney.TransactionStatus, error)
}

// Aggregator provider codes per wallet.
var aggregatorProviders = map[enums.PaymentMethod]string{
	enums.PaymentMethodMPesa:       "Mpesa",
	enums.PaymentMethodAirtelMoney: "Airtel",
	enums.PaymentMethodTigoPesa:    "Tigo",
	enums.PaymentMethodHaloPesa:    "Halopesa",
	enums.PaymentMethodAzamPesa:    "Azampesa",
}

// MobileMoneyChannel pushes USSD prompts through the aggregator.
type MobileMoneyChannel struct {
	gateway mobileMoneyGateway
}

func NewMobileMoneyChannel(gateway mobileMoneyGateway) *MobileMoneyChannel {
	return &MobileMoneyChannel{gateway: gateway}
}

func (c *MobileMoneyChannel) Class() enums.PaymentChannelClass {
	return enums.PaymentChannelClassPush
}

func (c *MobileMoneyChannel) Provider(method enums.PaymentMethod) string {
	return aggregatorProviders[method]
}

// Initiate sends the prompt. The payer confirms on the handset, so the
// result never carries a channel reference.
func (c *MobileMoneyChannel) Initiate(ctx context.Context, req ChannelRequest) (*ChannelAck, error) {
	provider, ok := aggregatorProviders[req.Method]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is not a mobile money method", req.Method))
	}
	resp, err := c.gateway.Push(ctx, mobilemoney.PushRequest{
		Provider:    provider,
		MSISDN:      req.Details.Phone,
		Amount:      req.Amount,
		Currency:    req.Currency,
		ExternalID:  req.IntentID.String(),
		Description: req.Description,
	})
	if err != nil {
		return nil, err
	}
	if resp.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mobile money gateway returned no transaction id")
	}
	ack := &ChannelAck{ProviderTransactionID: resp.TransactionID}
	if result := MobileMoneyResult(resp.Status); result == ChannelRejected || result == ChannelFailed {
		ack.Declined = true
		ack.DeclineReason = resp.Message
		if ack.DeclineReason == "" {
			ack.DeclineReason = "push " + resp.Status
		}
	}
	return ack, nil
}

func (c *MobileMoneyChannel) Query(ctx context.Context, intent *models.PaymentIntent) (*ChannelStatus, error) {
	txID := derefString(intent.ProviderTransactionID)
	if txID == "" {
		return &ChannelStatus{Result: ChannelPending}, nil
	}
	status, err := c.gateway.Status(ctx, txID)
	if err != nil {
		return nil, err
	}
	return &ChannelStatus{Result: MobileMoneyResult(status.Status), Detail: status.Message}, nil
}

// MobileMoneyResult maps an aggregator status onto a channel result. A user
// who dismisses or ignores the prompt is a rejection.
func MobileMoneyResult(status string) ChannelResult {
	switch status {
	case mobilemoney.StatusSuccess:
		return ChannelSucceeded
	case mobilemoney.StatusFailed:
		return ChannelFailed
	case mobilemoney.StatusCancelled, mobilemoney.StatusExpired:
		return ChannelRejected
	}
	return ChannelPending
}
