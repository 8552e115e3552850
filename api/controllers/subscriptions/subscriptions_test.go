package subscriptions

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/sokolink-backend/api/middleware"
	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
)

type stubSubscriptionsService struct {
	response *models.Subscription
	created  bool
	err      error
	planID   string
	role     enums.UserRole
}

func (s *stubSubscriptionsService) CreatePending(_ context.Context, _ uuid.UUID, role enums.UserRole, planID string) (*models.Subscription, bool, error) {
	s.planID = planID
	s.role = role
	return s.response, s.created, s.err
}

func (s *stubSubscriptionsService) GetActive(context.Context, uuid.UUID) (*models.Subscription, error) {
	return s.response, s.err
}

func authedRequest(method, path string, body []byte, role enums.UserRole) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	ctx := middleware.WithUserID(req.Context(), uuid.NewString())
	ctx = middleware.WithRole(ctx, string(role))
	return req.WithContext(ctx)
}

func TestSubscriptionCreateSuccess(t *testing.T) {
	sub := &models.Subscription{
		ID:        uuid.New(),
		OwnerType: enums.SubscriptionOwnerVendor,
		PlanID:    "vendor_pro",
		Status:    enums.SubscriptionStatusIncomplete,
	}
	service := &stubSubscriptionsService{response: sub, created: true}
	handler := SubscriptionCreate(service, logger.New(logger.Options{ServiceName: "test"}))

	body, _ := json.Marshal(subscriptionCreateRequest{PlanID: " vendor_pro "})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/subscriptions", body, enums.UserRoleVendor))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	if service.planID != "vendor_pro" || service.role != enums.UserRoleVendor {
		t.Fatalf("unexpected call plan=%q role=%q", service.planID, service.role)
	}

	var envelope struct {
		Data subscriptionResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.ID != sub.ID || envelope.Data.Status != enums.SubscriptionStatusIncomplete {
		t.Fatalf("unexpected body %+v", envelope.Data)
	}
}

func TestSubscriptionCreateReturnsExisting(t *testing.T) {
	service := &stubSubscriptionsService{response: &models.Subscription{ID: uuid.New(), PlanID: "vendor_pro"}}
	body, _ := json.Marshal(subscriptionCreateRequest{PlanID: "vendor_pro"})
	resp := httptest.NewRecorder()
	SubscriptionCreate(service, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/subscriptions", body, enums.UserRoleVendor))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for existing row, got %d", resp.Code)
	}
}

func TestSubscriptionCreateErrors(t *testing.T) {
	resp := httptest.NewRecorder()
	SubscriptionCreate(&stubSubscriptionsService{}, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/subscriptions", []byte(`{}`), enums.UserRoleVendor))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without plan, got %d", resp.Code)
	}

	service := &stubSubscriptionsService{err: pkgerrors.New(pkgerrors.CodeForbidden, "only vendors and transporters hold subscriptions")}
	body, _ := json.Marshal(subscriptionCreateRequest{PlanID: "vendor_pro"})
	resp = httptest.NewRecorder()
	SubscriptionCreate(service, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/subscriptions", body, enums.UserRoleCustomer))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestSubscriptionActiveWithoutSubscription(t *testing.T) {
	resp := httptest.NewRecorder()
	SubscriptionActive(&stubSubscriptionsService{}, nil).ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/subscriptions/active", nil, enums.UserRoleVendor))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := bytes.TrimSpace(resp.Body.Bytes()); string(got) != `{"data":null}` {
		t.Fatalf("unexpected body %s", got)
	}
}
