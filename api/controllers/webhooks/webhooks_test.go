package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"

	"github.com/angelmondragon/sokolink-backend/internal/payments"
	bankwebhook "github.com/angelmondragon/sokolink-backend/internal/webhooks/bank"
	squarewebhook "github.com/angelmondragon/sokolink-backend/internal/webhooks/square"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/mobilemoney"
)

type stubGuard struct {
	seen    map[string]bool
	deleted []string
	err     error
}

func newStubGuard() *stubGuard {
	return &stubGuard{seen: map[string]bool{}}
}

func (g *stubGuard) CheckAndMark(_ context.Context, eventID string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	if g.seen[eventID] {
		return true, nil
	}
	g.seen[eventID] = true
	return false, nil
}

func (g *stubGuard) Delete(_ context.Context, eventID string) error {
	delete(g.seen, eventID)
	g.deleted = append(g.deleted, eventID)
	return nil
}

type stubStripeVerifier struct {
	event stripe.Event
	err   error
}

func (s stubStripeVerifier) ConstructEvent([]byte, string) (stripe.Event, error) {
	return s.event, s.err
}

type stubStripeService struct {
	calls  int
	result *payments.CallbackResult
	err    error
}

func (s *stubStripeService) HandleEvent(context.Context, *stripe.Event) (*payments.CallbackResult, error) {
	s.calls++
	return s.result, s.err
}

func decodeAck(t *testing.T, rec *httptest.ResponseRecorder) Ack {
	t.Helper()
	var body struct {
		Data Ack `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	return body.Data
}

func postWebhook(handler http.Handler, header, signature, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	if header != "" {
		req.Header.Set(header, signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhookRejectsUnsignedAndForged(t *testing.T) {
	svc := &stubStripeService{}
	guard := newStubGuard()

	rec := postWebhook(StripeWebhook(svc, stubStripeVerifier{}, guard, nil), "", "", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing signature, got %d", rec.Code)
	}

	forged := StripeWebhook(svc, stubStripeVerifier{err: errors.New("no signatures found")}, guard, nil)
	rec = postWebhook(forged, "Stripe-Signature", "t=1,v1=bad", `{}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("service must not run for unverified events")
	}
}

func TestStripeWebhookDedupesRetries(t *testing.T) {
	intentID := uuid.New()
	svc := &stubStripeService{result: &payments.CallbackResult{IntentID: &intentID, Applied: true}}
	guard := newStubGuard()
	handler := StripeWebhook(svc, stubStripeVerifier{event: stripe.Event{ID: "evt_1"}}, guard, nil)

	rec := postWebhook(handler, "Stripe-Signature", "sig", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	ack := decodeAck(t, rec)
	if ack.EventID != "evt_1" || ack.Duplicate || ack.Result == nil || !ack.Result.Applied {
		t.Fatalf("unexpected ack %+v", ack)
	}

	rec = postWebhook(handler, "Stripe-Signature", "sig", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for retry, got %d", rec.Code)
	}
	if !decodeAck(t, rec).Duplicate {
		t.Fatalf("expected retry to be acknowledged as duplicate")
	}
	if svc.calls != 1 {
		t.Fatalf("expected one service call, got %d", svc.calls)
	}
}

func TestStripeWebhookReleasesGuardOnFailure(t *testing.T) {
	svc := &stubStripeService{err: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	guard := newStubGuard()
	handler := StripeWebhook(svc, stubStripeVerifier{event: stripe.Event{ID: "evt_2"}}, guard, nil)

	rec := postWebhook(handler, "Stripe-Signature", "sig", `{}`)
	if rec.Code != pkgerrors.MetadataFor(pkgerrors.CodeDependency).HTTPStatus {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if len(guard.deleted) != 1 || guard.deleted[0] != "evt_2" {
		t.Fatalf("expected guard release, got %v", guard.deleted)
	}

	svc.err = nil
	rec = postWebhook(handler, "Stripe-Signature", "sig", `{}`)
	if rec.Code != http.StatusOK || svc.calls != 2 {
		t.Fatalf("expected retry to be processed, status=%d calls=%d", rec.Code, svc.calls)
	}
}

func TestStripeWebhookGuardFailure(t *testing.T) {
	svc := &stubStripeService{}
	guard := newStubGuard()
	guard.err = errors.New("redis down")
	handler := StripeWebhook(svc, stubStripeVerifier{event: stripe.Event{ID: "evt_3"}}, guard, nil)

	rec := postWebhook(handler, "Stripe-Signature", "sig", `{}`)
	if rec.Code == http.StatusOK || svc.calls != 0 {
		t.Fatalf("expected dependency failure, status=%d calls=%d", rec.Code, svc.calls)
	}
}

type stubSquareVerifier bool

func (s stubSquareVerifier) VerifyWebhookSignature([]byte, string) bool {
	return bool(s)
}

type stubSquareService struct {
	got *squarewebhook.SquareWebhookEvent
}

func (s *stubSquareService) HandleEvent(_ context.Context, event *squarewebhook.SquareWebhookEvent) (*payments.CallbackResult, error) {
	s.got = event
	return &payments.CallbackResult{Applied: true}, nil
}

func TestSquareWebhook(t *testing.T) {
	body := `{"event_id":"sq-evt-1","type":"payment.updated","data":{"type":"payment","id":"pay_1"}}`

	svc := &stubSquareService{}
	rec := postWebhook(SquareWebhook(svc, stubSquareVerifier(false), newStubGuard(), nil), squareSignatureHeader, "bad", body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = postWebhook(SquareWebhook(svc, stubSquareVerifier(true), newStubGuard(), nil), squareSignatureHeader, "ok", `{"type":"payment.updated"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without event id, got %d", rec.Code)
	}

	rec = postWebhook(SquareWebhook(svc, stubSquareVerifier(true), newStubGuard(), nil), squareSignatureHeader, "ok", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.got == nil || svc.got.Data.ID != "pay_1" {
		t.Fatalf("unexpected event %+v", svc.got)
	}
}

type stubMobileMoneyParser struct {
	cb  *mobilemoney.Callback
	err error
}

func (s stubMobileMoneyParser) ParseCallback([]byte, string) (*mobilemoney.Callback, error) {
	return s.cb, s.err
}

type stubMobileMoneyService struct {
	calls int
}

func (s *stubMobileMoneyService) HandleCallback(context.Context, *mobilemoney.Callback, []byte) (*payments.CallbackResult, error) {
	s.calls++
	return &payments.CallbackResult{Applied: true}, nil
}

func TestMobileMoneyWebhook(t *testing.T) {
	svc := &stubMobileMoneyService{}
	guard := newStubGuard()

	bad := stubMobileMoneyParser{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid mobile money signature")}
	rec := postWebhook(MobileMoneyWebhook(svc, bad, guard, nil), "", "", `{}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	good := stubMobileMoneyParser{cb: &mobilemoney.Callback{TransactionID: "MM-1", Status: "SUCCESS"}}
	handler := MobileMoneyWebhook(svc, good, guard, nil)
	for i := 0; i < 2; i++ {
		rec = postWebhook(handler, "", "", `{}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}
	if svc.calls != 1 {
		t.Fatalf("expected retry to be deduped, got %d calls", svc.calls)
	}
	if !guard.seen["MM-1:SUCCESS"] {
		t.Fatalf("expected derived event id to be marked, got %v", guard.seen)
	}
}

type stubApplier struct {
	in payments.CallbackInput
}

func (s *stubApplier) ApplyCallback(_ context.Context, in payments.CallbackInput) (*payments.CallbackResult, error) {
	s.in = in
	return &payments.CallbackResult{Applied: true}, nil
}

func TestBankWebhook(t *testing.T) {
	applier := &stubApplier{}
	svc, err := bankwebhook.NewService(bankwebhook.ServiceParams{Payments: applier, Secret: "bank-secret"})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	handler := BankWebhook(svc, newStubGuard(), nil)
	body := `{"event_id":"bank-1","reference":"991234567890","status":"paid"}`

	rec := postWebhook(handler, bankwebhook.SignatureHeader, "deadbeef", body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = postWebhook(handler, bankwebhook.SignatureHeader, bankwebhook.Sign([]byte(body), "bank-secret"), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if applier.in.ProviderReference != "991234567890" || applier.in.Result != payments.ChannelSucceeded {
		t.Fatalf("unexpected callback input %+v", applier.in)
	}
}

func TestWebhookRequiresDependencies(t *testing.T) {
	rec := postWebhook(BankWebhook(nil, nil, nil), "", "", `{}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
