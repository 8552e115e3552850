package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	billingsvc "github.com/angelmondragon/sokolink-backend/internal/billing"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
)

type stubBillingPlanService struct {
	ownerType *enums.SubscriptionOwnerType
	plans     []billingsvc.Plan
}

func (s *stubBillingPlanService) ListPlans(_ context.Context, ownerType *enums.SubscriptionOwnerType) ([]billingsvc.Plan, error) {
	s.ownerType = ownerType
	return s.plans, nil
}

func TestListBillingPlans(t *testing.T) {
	svc := &stubBillingPlanService{plans: []billingsvc.Plan{{
		ID:        "vendor_pro",
		Name:      "Vendor Pro",
		OwnerType: enums.SubscriptionOwnerVendor,
		Interval:  enums.BillingIntervalMonthly,
		Price:     decimal.NewFromInt(25000),
		Currency:  "TZS",
	}}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans?owner_type=vendor", nil)
	resp := httptest.NewRecorder()
	ListBillingPlans(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if svc.ownerType == nil || *svc.ownerType != enums.SubscriptionOwnerVendor {
		t.Fatalf("expected owner filter, got %v", svc.ownerType)
	}
	var envelope struct {
		Data billingPlanListResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(envelope.Data.Plans) != 1 || envelope.Data.Plans[0].PriceAmount != "25000.00" {
		t.Fatalf("unexpected plans %+v", envelope.Data.Plans)
	}
	if envelope.Data.Plans[0].Features == nil {
		t.Fatalf("features should encode as an empty list")
	}
}

func TestListBillingPlansRejectsUnknownOwner(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans?owner_type=store", nil)
	resp := httptest.NewRecorder()
	ListBillingPlans(&stubBillingPlanService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
