package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sokolink-backend/api/middleware"
	paymentsvc "github.com/angelmondragon/sokolink-backend/internal/payments"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
)

type stubPaymentService struct {
	initiated  *paymentsvc.InitiateRequest
	initResult *paymentsvc.InitiationResult
	initErr    error
	view       *paymentsvc.IntentView
	getErr     error
	confirmed  bool
	updates    []paymentsvc.Update
	watched    bool
}

func (s *stubPaymentService) Methods(context.Context) []paymentsvc.MethodAvailability {
	return []paymentsvc.MethodAvailability{{MethodInfo: paymentsvc.MethodInfo{Method: enums.PaymentMethodMPesa}, Available: true}}
}

func (s *stubPaymentService) Initiate(_ context.Context, req paymentsvc.InitiateRequest) (*paymentsvc.InitiationResult, error) {
	s.initiated = &req
	return s.initResult, s.initErr
}

func (s *stubPaymentService) GetIntent(context.Context, uuid.UUID, uuid.UUID, enums.UserRole) (*paymentsvc.IntentView, error) {
	return s.view, s.getErr
}

func (s *stubPaymentService) ManualConfirm(context.Context, uuid.UUID, uuid.UUID, enums.UserRole) (*paymentsvc.IntentView, error) {
	s.confirmed = true
	return s.view, s.getErr
}

func (s *stubPaymentService) Watch(context.Context, uuid.UUID) <-chan paymentsvc.Update {
	s.watched = true
	out := make(chan paymentsvc.Update, len(s.updates))
	for _, update := range s.updates {
		out <- update
	}
	close(out)
	return out
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test"})
}

func authed(req *http.Request, userID uuid.UUID, role enums.UserRole) *http.Request {
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	return req.WithContext(ctx)
}

func withIDParam(req *http.Request, id string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestInitiatePaymentMapsRequest(t *testing.T) {
	intentID := uuid.New()
	ref := "MM-123"
	svc := &stubPaymentService{initResult: &paymentsvc.InitiationResult{
		IntentID:         intentID,
		Status:           enums.PaymentIntentStatusAwaitingConfirmation,
		ChannelReference: &ref,
	}}
	handler := InitiatePayment(svc, testLogger())

	userID := uuid.New()
	subjectID := uuid.New()
	body, _ := json.Marshal(map[string]any{
		"subject_type": "subscription",
		"subject_id":   subjectID.String(),
		"amount":       "25000.00",
		"currency":     "TZS",
		"method":       "M-Pesa",
		"phone":        " +255712345678 ",
	})
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(body)), userID, enums.UserRoleVendor)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	got := svc.initiated
	if got == nil {
		t.Fatal("service was not called")
	}
	if got.Method != enums.PaymentMethodMPesa || got.SubjectType != enums.PaymentSubjectSubscription || got.SubjectID != subjectID {
		t.Fatalf("unexpected request %+v", got)
	}
	if !got.Amount.Equal(decimal.NewFromInt(25000)) {
		t.Fatalf("unexpected amount %s", got.Amount)
	}
	if got.Details.Phone != "+255712345678" || got.ActorID != userID || got.ActorRole != enums.UserRoleVendor {
		t.Fatalf("unexpected caller details %+v", got)
	}

	var envelope struct {
		Data paymentsvc.InitiationResult `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.IntentID != intentID || envelope.Data.ChannelReference == nil || *envelope.Data.ChannelReference != ref {
		t.Fatalf("unexpected body %+v", envelope.Data)
	}
}

func TestInitiatePaymentRejects(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		authed bool
		status int
	}{
		{"anonymous", `{}`, false, http.StatusUnauthorized},
		{"unknown method", `{"subject_type":"order","subject_id":"` + uuid.NewString() + `","amount":"10","method":"paypal"}`, true, http.StatusBadRequest},
		{"bad subject", `{"subject_type":"gift","subject_id":"` + uuid.NewString() + `","amount":"10","method":"visa"}`, true, http.StatusBadRequest},
		{"unknown field", `{"subject_type":"order","subject_id":"` + uuid.NewString() + `","amount":"10","method":"visa","pin":"1234"}`, true, http.StatusBadRequest},
	}
	for _, tc := range cases {
		svc := &stubPaymentService{}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(tc.body))
		if tc.authed {
			req = authed(req, uuid.New(), enums.UserRoleCustomer)
		}
		resp := httptest.NewRecorder()
		InitiatePayment(svc, nil).ServeHTTP(resp, req)
		if resp.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, resp.Code)
		}
		if svc.initiated != nil {
			t.Fatalf("%s: service should not be called", tc.name)
		}
	}
}

func TestInitiatePaymentSurfacesChannelUnavailable(t *testing.T) {
	svc := &stubPaymentService{initErr: pkgerrors.New(pkgerrors.CodeChannelUnavailable, "payment method unavailable").
		WithDetails(map[string]any{"reason": paymentsvc.ReasonMaintenance})}
	body := `{"subject_type":"order","subject_id":"` + uuid.NewString() + `","amount":"10","method":"halopesa","phone":"+255712345678"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body)), uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	InitiatePayment(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), paymentsvc.ReasonMaintenance) {
		t.Fatalf("expected reason in body: %s", resp.Body.String())
	}
}

func TestGetPayment(t *testing.T) {
	id := uuid.New()
	svc := &stubPaymentService{view: &paymentsvc.IntentView{ID: id, Status: enums.PaymentIntentStatusActive}}

	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+id.String(), nil), uuid.New(), enums.UserRoleVendor)
	resp := httptest.NewRecorder()
	GetPayment(svc, nil).ServeHTTP(resp, withIDParam(req, id.String()))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	req = authed(httptest.NewRequest(http.MethodGet, "/api/v1/payments/nope", nil), uuid.New(), enums.UserRoleVendor)
	resp = httptest.NewRecorder()
	GetPayment(svc, nil).ServeHTTP(resp, withIDParam(req, "nope"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", resp.Code)
	}

	svc.getErr = pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	req = authed(httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+id.String(), nil), uuid.New(), enums.UserRoleVendor)
	resp = httptest.NewRecorder()
	GetPayment(svc, nil).ServeHTTP(resp, withIDParam(req, id.String()))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestConfirmPaymentRunsRefresh(t *testing.T) {
	id := uuid.New()
	svc := &stubPaymentService{view: &paymentsvc.IntentView{ID: id, Status: enums.PaymentIntentStatusAwaitingConfirmation}}
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/payments/"+id.String()+"/confirm", nil), uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	ConfirmPayment(svc, nil).ServeHTTP(resp, withIDParam(req, id.String()))

	if resp.Code != http.StatusOK || !svc.confirmed {
		t.Fatalf("expected confirm to run, status=%d confirmed=%v", resp.Code, svc.confirmed)
	}
}

func TestListMethods(t *testing.T) {
	resp := httptest.NewRecorder()
	ListMethods(&stubPaymentService{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/payments/methods", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"m-pesa"`) {
		t.Fatalf("unexpected response %d: %s", resp.Code, resp.Body.String())
	}
}

func TestStreamPaymentWritesEvents(t *testing.T) {
	id := uuid.New()
	pending := paymentsvc.IntentView{ID: id, Status: enums.PaymentIntentStatusAwaitingConfirmation}
	done := paymentsvc.IntentView{ID: id, Status: enums.PaymentIntentStatusActive}
	svc := &stubPaymentService{
		view: &pending,
		updates: []paymentsvc.Update{
			{Intent: pending, Attempt: 1},
			{Intent: done, Attempt: 2, Outcome: &paymentsvc.Outcome{Kind: paymentsvc.OutcomeSucceeded, Intent: done, Attempts: 2}},
		},
	}

	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+id.String()+"/events", nil), uuid.New(), enums.UserRoleVendor)
	resp := httptest.NewRecorder()
	StreamPayment(svc, testLogger()).ServeHTTP(resp, withIDParam(req, id.String()))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := resp.Body.String()
	if !strings.Contains(body, "id: 1\nevent: update\n") {
		t.Fatalf("missing update event: %s", body)
	}
	if !strings.Contains(body, "id: 2\nevent: outcome\ndata: {\"kind\":\"succeeded\"") {
		t.Fatalf("missing outcome event: %s", body)
	}
}

func TestStreamPaymentChecksOwnershipFirst(t *testing.T) {
	id := uuid.New()
	svc := &stubPaymentService{getErr: pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")}
	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+id.String()+"/events", nil), uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	StreamPayment(svc, nil).ServeHTTP(resp, withIDParam(req, id.String()))

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if svc.watched {
		t.Fatal("watch must not start for foreign intents")
	}
}
