package payments

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	stripe "github.com/stripe/stripe-go/v76"

	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/mobilemoney"
	"github.com/angelmondragon/sokolink-backend/pkg/square"
	pkgstripe "github.com/angelmondragon/sokolink-backend/pkg/stripe"
)

func TestMobileMoneyInitiateSendsPush(t *testing.T) {
	gateway := &stubGateway{pushStatus: mobilemoney.StatusPending}
	channel := NewMobileMoneyChannel(gateway)
	intentID := uuid.New()

	ack, err := channel.Initiate(context.Background(), ChannelRequest{
		IntentID: intentID,
		Method:   enums.PaymentMethodHaloPesa,
		Amount:   decimal.NewFromInt(25000),
		Currency: "TZS",
		Details:  MethodDetails{Phone: "255622345678"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.ChannelReference != "" || ack.Declined {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if !strings.HasPrefix(ack.ProviderTransactionID, "MM-") {
		t.Fatalf("expected gateway transaction id, got %q", ack.ProviderTransactionID)
	}
	if channel.Provider(enums.PaymentMethodHaloPesa) != "Halopesa" {
		t.Fatalf("unexpected provider %q", channel.Provider(enums.PaymentMethodHaloPesa))
	}

	gateway.pushStatus = mobilemoney.StatusFailed
	ack, err = channel.Initiate(context.Background(), ChannelRequest{IntentID: intentID, Method: enums.PaymentMethodMPesa, Details: MethodDetails{Phone: "255754123456"}})
	if err != nil || !ack.Declined || ack.DeclineReason != "push FAILED" {
		t.Fatalf("expected declined ack, got %+v, %v", ack, err)
	}

	if _, err := channel.Initiate(context.Background(), ChannelRequest{IntentID: intentID, Method: enums.PaymentMethodVisa}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for card method, got %v", err)
	}
}

func TestMobileMoneyResult(t *testing.T) {
	cases := map[string]ChannelResult{
		mobilemoney.StatusSuccess:   ChannelSucceeded,
		mobilemoney.StatusFailed:    ChannelFailed,
		mobilemoney.StatusCancelled: ChannelRejected,
		mobilemoney.StatusExpired:   ChannelRejected,
		mobilemoney.StatusPending:   ChannelPending,
		"SOMETHING_NEW":             ChannelPending,
	}
	for status, want := range cases {
		if got := MobileMoneyResult(status); got != want {
			t.Fatalf("MobileMoneyResult(%q) = %s, want %s", status, got, want)
		}
	}
}

func TestMobileMoneyQueryWithoutTransactionIsPending(t *testing.T) {
	gateway := &stubGateway{}
	status, err := NewMobileMoneyChannel(gateway).Query(context.Background(), &models.PaymentIntent{})
	if err != nil || status.Result != ChannelPending {
		t.Fatalf("expected pending, got %+v, %v", status, err)
	}
	if gateway.queries != 0 {
		t.Fatalf("expected no gateway call")
	}
}

func TestBankChannelControlNumber(t *testing.T) {
	random := bytes.NewReader([]byte{255, 251, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	channel, err := NewBankChannel(BankChannelConfig{ControlNumberPrefix: "99", ControlNumberLength: 12, Random: random})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ack, err := channel.Initiate(context.Background(), ChannelRequest{Method: enums.PaymentMethodCRDBSimBanking})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.ChannelReference != "991234567890" {
		t.Fatalf("unexpected control number %q", ack.ChannelReference)
	}
	if ack.ProviderTransactionID != "" {
		t.Fatalf("control numbers carry no provider transaction")
	}

	if _, err := channel.Initiate(context.Background(), ChannelRequest{Method: enums.PaymentMethodSelcomCheckout}); !pkgerrors.IsCode(err, pkgerrors.CodeChannelUnavailable) {
		t.Fatalf("expected hosted checkout unavailable without base url, got %v", err)
	}

	status, err := channel.Query(context.Background(), &models.PaymentIntent{})
	if err != nil || status.Result != ChannelPending {
		t.Fatalf("bank query must stay pending, got %+v, %v", status, err)
	}

	if _, err := NewBankChannel(BankChannelConfig{ControlNumberPrefix: "99", ControlNumberLength: 2}); err == nil {
		t.Fatalf("expected length validation")
	}
	if _, err := NewBankChannel(BankChannelConfig{ControlNumberPrefix: "A9", ControlNumberLength: 12}); err == nil {
		t.Fatalf("expected numeric prefix validation")
	}
}

func TestBankChannelHostedCheckout(t *testing.T) {
	channel, err := NewBankChannel(BankChannelConfig{ControlNumberPrefix: "99", ControlNumberLength: 12, HostedCheckoutBaseURL: "https://checkout.example/pay/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ack, err := channel.Initiate(context.Background(), ChannelRequest{Method: enums.PaymentMethodSelcomCheckout})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.ChannelReference != "https://checkout.example/pay/"+ack.ProviderTransactionID {
		t.Fatalf("unexpected hosted url %q", ack.ChannelReference)
	}
	if len(ack.ProviderTransactionID) != 26 {
		t.Fatalf("expected ulid order id, got %q", ack.ProviderTransactionID)
	}
	if channel.Provider(enums.PaymentMethodSelcomCheckout) != "selcom" {
		t.Fatalf("unexpected provider")
	}
}

func TestMinorUnits(t *testing.T) {
	if got, err := MinorUnits(decimal.RequireFromString("25000"), "TZS"); err != nil || got != 2500000 {
		t.Fatalf("TZS minor units = %d, %v", got, err)
	}
	if got, err := MinorUnits(decimal.RequireFromString("12.34"), "usd"); err != nil || got != 1234 {
		t.Fatalf("USD minor units = %d, %v", got, err)
	}
	if got, err := MinorUnits(decimal.RequireFromString("5000"), "UGX"); err != nil || got != 5000 {
		t.Fatalf("UGX minor units = %d, %v", got, err)
	}
	if _, err := MinorUnits(decimal.RequireFromString("1.005"), "USD"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected precision error, got %v", err)
	}
}

func TestStripeResult(t *testing.T) {
	cases := []struct {
		name   string
		pi     *stripe.PaymentIntent
		result ChannelResult
		action string
		detail string
	}{
		{"succeeded", &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded}, ChannelSucceeded, "", ""},
		{"processing", &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusProcessing}, ChannelPending, "", ""},
		{"three d secure", &stripe.PaymentIntent{
			ID:     "pi_1",
			Status: stripe.PaymentIntentStatusRequiresAction,
			NextAction: &stripe.PaymentIntentNextAction{
				RedirectToURL: &stripe.PaymentIntentNextActionRedirectToURL{URL: "https://hooks.stripe.com/3ds"},
			},
		}, ChannelPending, "https://hooks.stripe.com/3ds", ""},
		{"declined", &stripe.PaymentIntent{
			ID:               "pi_1",
			Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
			LastPaymentError: &stripe.Error{DeclineCode: "insufficient_funds", Msg: "Your card has insufficient funds."},
		}, ChannelRejected, "", "insufficient_funds: Your card has insufficient funds."},
		{"awaiting method", &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusRequiresPaymentMethod}, ChannelPending, "", ""},
		{"canceled", &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusCanceled, CancellationReason: "abandoned"}, ChannelFailed, "", "canceled: abandoned"},
	}
	for _, tc := range cases {
		got := StripeResult(tc.pi)
		if got.Result != tc.result || got.ActionURL != tc.action || got.Detail != tc.detail || got.PaymentID != "pi_1" {
			t.Fatalf("%s: unexpected result %+v", tc.name, got)
		}
	}
}

type stubStripeAPI struct {
	params pkgstripe.PaymentParams
	pi     *stripe.PaymentIntent
	err    error
}

func (s *stubStripeAPI) CreatePayment(_ context.Context, params pkgstripe.PaymentParams) (*stripe.PaymentIntent, error) {
	s.params = params
	return s.pi, s.err
}

func (s *stubStripeAPI) GetPayment(context.Context, string) (*stripe.PaymentIntent, error) {
	return s.pi, s.err
}

func TestCardChannelWithStripe(t *testing.T) {
	api := &stubStripeAPI{pi: &stripe.PaymentIntent{
		ID:               "pi_9",
		Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
		LastPaymentError: &stripe.Error{Code: "card_declined"},
	}}
	channel := NewCardChannel(NewStripeProcessor(api))
	intentID := uuid.New()

	ack, err := channel.Initiate(context.Background(), ChannelRequest{
		IntentID: intentID,
		Method:   enums.PaymentMethodVisa,
		Amount:   decimal.NewFromInt(42000),
		Currency: "TZS",
		Details:  MethodDetails{Card: &CardInput{Number: "4242424242424242", ExpMonth: 12, ExpYear: 2030, CVV: "123"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ack.Declined || ack.DeclineReason != "card_declined" || ack.ProviderTransactionID != "pi_9" {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if api.params.AmountMinor != 4200000 || api.params.IdempotencyKey != "intent-"+intentID.String() {
		t.Fatalf("unexpected stripe params %+v", api.params)
	}
	if api.params.Card.Number != "4242424242424242" || api.params.Card.ExpYear != 2030 {
		t.Fatalf("card fields not forwarded: %+v", api.params.Card)
	}
	if channel.Provider(enums.PaymentMethodVisa) != "stripe" {
		t.Fatalf("unexpected provider")
	}

	api.pi = &stripe.PaymentIntent{ID: "pi_9", Status: stripe.PaymentIntentStatusSucceeded}
	txID := "pi_9"
	status, err := channel.Query(context.Background(), &models.PaymentIntent{ProviderTransactionID: &txID})
	if err != nil || status.Result != ChannelSucceeded {
		t.Fatalf("expected succeeded, got %+v, %v", status, err)
	}

	api.err = pkgerrors.New(pkgerrors.CodeDependency, "stripe unavailable")
	if _, err := channel.Query(context.Background(), &models.PaymentIntent{ProviderTransactionID: &txID}); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error passthrough, got %v", err)
	}
}

type stubSquareAPI struct {
	params  square.PaymentCreateParams
	payment *sq.Payment
	err     error
}

func (s *stubSquareAPI) CreatePayment(_ context.Context, params square.PaymentCreateParams) (*sq.Payment, error) {
	s.params = params
	return s.payment, s.err
}

func (s *stubSquareAPI) GetPayment(context.Context, string) (*sq.Payment, error) {
	return s.payment, s.err
}

func TestCardChannelWithSquare(t *testing.T) {
	id, status := "sq_1", square.PaymentStatusApproved
	api := &stubSquareAPI{payment: &sq.Payment{ID: &id, Status: &status}}
	channel := NewCardChannel(NewSquareProcessor(api))

	if _, err := channel.Initiate(context.Background(), ChannelRequest{
		IntentID: uuid.New(),
		Method:   enums.PaymentMethodMastercard,
		Amount:   decimal.NewFromInt(1000),
		Currency: "TZS",
		Details:  MethodDetails{Card: &CardInput{Number: "5555555555554444", ExpMonth: 1, ExpYear: 2030, CVV: "123"}},
	}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("square requires tokens, got %v", err)
	}

	ack, err := channel.Initiate(context.Background(), ChannelRequest{
		IntentID: uuid.New(),
		Method:   enums.PaymentMethodMastercard,
		Amount:   decimal.NewFromInt(1000),
		Currency: "TZS",
		Details:  MethodDetails{Card: &CardInput{Token: "cnon:card-nonce-ok"}},
	})
	if err != nil || ack.Declined || ack.ProviderTransactionID != "sq_1" {
		t.Fatalf("unexpected ack %+v, %v", ack, err)
	}
	if api.params.SourceID != "cnon:card-nonce-ok" || api.params.AmountMinor != 100000 {
		t.Fatalf("unexpected square params %+v", api.params)
	}

	api.err = &square.DeclineError{Code: "CVV_FAILURE", Detail: "cvv mismatch"}
	ack, err = channel.Initiate(context.Background(), ChannelRequest{
		IntentID: uuid.New(),
		Method:   enums.PaymentMethodMastercard,
		Amount:   decimal.NewFromInt(1000),
		Currency: "TZS",
		Details:  MethodDetails{Card: &CardInput{Token: "cnon:card-nonce-declined"}},
	})
	if err != nil || !ack.Declined {
		t.Fatalf("expected declined ack, got %+v, %v", ack, err)
	}

	api.err = errors.New("connection reset")
	if _, err := channel.Initiate(context.Background(), ChannelRequest{
		Method:  enums.PaymentMethodMastercard,
		Amount:  decimal.NewFromInt(1000),
		Details: MethodDetails{Card: &CardInput{Token: "cnon:x"}},
	}); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestSquareResult(t *testing.T) {
	cases := map[string]ChannelResult{
		square.PaymentStatusCompleted: ChannelSucceeded,
		square.PaymentStatusFailed:    ChannelRejected,
		square.PaymentStatusCanceled:  ChannelFailed,
		square.PaymentStatusApproved:  ChannelPending,
		square.PaymentStatusPending:   ChannelPending,
	}
	for status, want := range cases {
		s := status
		if got := SquareResult(&sq.Payment{Status: &s}); got.Result != want {
			t.Fatalf("SquareResult(%s) = %s, want %s", status, got.Result, want)
		}
	}
	if got := SquareResult(nil); got.Result != ChannelPending {
		t.Fatalf("nil payment must be pending")
	}
}
