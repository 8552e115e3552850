package subscriptions

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/sokolink-backend/api/controllers/actorcontext"
	"github.com/angelmondragon/sokolink-backend/api/responses"
	"github.com/angelmondragon/sokolink-backend/api/validators"
	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
)

type Service interface {
	CreatePending(ctx context.Context, ownerID uuid.UUID, role enums.UserRole, planID string) (*models.Subscription, bool, error)
	GetActive(ctx context.Context, ownerID uuid.UUID) (*models.Subscription, error)
}

type subscriptionCreateRequest struct {
	PlanID string `json:"plan_id" validate:"required,max=64"`
}

type subscriptionResponse struct {
	ID                 uuid.UUID                   `json:"id"`
	OwnerType          enums.SubscriptionOwnerType `json:"owner_type"`
	PlanID             string                      `json:"plan_id"`
	Status             enums.SubscriptionStatus    `json:"status"`
	CurrentPeriodStart *time.Time                  `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time                  `json:"current_period_end,omitempty"`
	ActivatedAt        *time.Time                  `json:"activated_at,omitempty"`
	CreatedAt          time.Time                   `json:"created_at"`
}

func newSubscriptionResponse(sub *models.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                 sub.ID,
		OwnerType:          sub.OwnerType,
		PlanID:             sub.PlanID,
		Status:             sub.Status,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		ActivatedAt:        sub.ActivatedAt,
		CreatedAt:          sub.CreatedAt,
	}
}

// SubscriptionCreate opens an incomplete subscription the caller then pays
// for. Repeating the call for the same plan returns the existing row.
func SubscriptionCreate(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload subscriptionCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, created, err := svc.CreatePending(r.Context(), actor.UserID, actor.Role, validators.SanitizeString(payload.PlanID, 64))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := newSubscriptionResponse(sub)
		if created {
			responses.WriteSuccessStatus(w, http.StatusCreated, resp)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

// SubscriptionActive returns the caller's active subscription, or null.
func SubscriptionActive(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.GetActive(r.Context(), actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if sub == nil {
			responses.WriteSuccess(w, nil)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}
