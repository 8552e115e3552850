package billing

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/sokolink-backend/api/responses"
	billingsvc "github.com/angelmondragon/sokolink-backend/internal/billing"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
)

// BillingPlanService describes the catalog reads used by the HTTP controllers.
type BillingPlanService interface {
	ListPlans(ctx context.Context, ownerType *enums.SubscriptionOwnerType) ([]billingsvc.Plan, error)
}

type billingPlanResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	OwnerType   string   `json:"owner_type"`
	Interval    string   `json:"interval"`
	PriceAmount string   `json:"price_amount"`
	Currency    string   `json:"currency"`
	Features    []string `json:"features"`
	IsDefault   bool     `json:"is_default"`
}

type billingPlanListResponse struct {
	Plans []billingPlanResponse `json:"plans"`
}

// ListBillingPlans returns the purchasable plans, optionally filtered by
// the owner_type query parameter.
func ListBillingPlans(svc BillingPlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		var ownerType *enums.SubscriptionOwnerType
		if raw := strings.TrimSpace(r.URL.Query().Get("owner_type")); raw != "" {
			parsed, err := enums.ParseSubscriptionOwnerType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid owner_type"))
				return
			}
			ownerType = &parsed
		}

		plans, err := svc.ListPlans(r.Context(), ownerType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := billingPlanListResponse{Plans: make([]billingPlanResponse, 0, len(plans))}
		for _, plan := range plans {
			features := plan.Features
			if features == nil {
				features = []string{}
			}
			resp.Plans = append(resp.Plans, billingPlanResponse{
				ID:          plan.ID,
				Name:        plan.Name,
				OwnerType:   string(plan.OwnerType),
				Interval:    string(plan.Interval),
				PriceAmount: plan.Price.StringFixed(2),
				Currency:    plan.Currency,
				Features:    features,
				IsDefault:   plan.IsDefault,
			})
		}
		responses.WriteSuccess(w, resp)
	}
}
