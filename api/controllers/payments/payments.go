package payments

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sokolink-backend/api/controllers/actorcontext"
	"github.com/angelmondragon/sokolink-backend/api/responses"
	"github.com/angelmondragon/sokolink-backend/api/validators"
	paymentsvc "github.com/angelmondragon/sokolink-backend/internal/payments"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
)

// Service is the payment surface the controllers drive.
type Service interface {
	Methods(ctx context.Context) []paymentsvc.MethodAvailability
	Initiate(ctx context.Context, req paymentsvc.InitiateRequest) (*paymentsvc.InitiationResult, error)
	GetIntent(ctx context.Context, id, actorID uuid.UUID, role enums.UserRole) (*paymentsvc.IntentView, error)
	ManualConfirm(ctx context.Context, id, actorID uuid.UUID, role enums.UserRole) (*paymentsvc.IntentView, error)
	Watch(ctx context.Context, intentID uuid.UUID) <-chan paymentsvc.Update
}

type initiatePaymentRequest struct {
	SubjectType string            `json:"subject_type" validate:"required,subject_type"`
	SubjectID   string            `json:"subject_id" validate:"required,uuid"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency" validate:"omitempty,len=3,alpha"`
	Method      string            `json:"method" validate:"required,payment_method"`
	Phone       string            `json:"phone,omitempty" validate:"omitempty,max=20"`
	Card        *cardInputRequest `json:"card,omitempty"`
}

type cardInputRequest struct {
	Token    string `json:"token,omitempty" validate:"omitempty,max=255"`
	Number   string `json:"number,omitempty" validate:"omitempty,numeric,min=12,max=19"`
	ExpMonth int    `json:"exp_month,omitempty" validate:"omitempty,min=1,max=12"`
	ExpYear  int    `json:"exp_year,omitempty"`
	CVV      string `json:"cvv,omitempty" validate:"omitempty,numeric,min=3,max=4"`
	Holder   string `json:"holder,omitempty" validate:"omitempty,max=120"`
}

func (req initiatePaymentRequest) toServiceRequest(actor actorcontext.Actor) (paymentsvc.InitiateRequest, error) {
	subjectType, err := enums.ParsePaymentSubjectType(req.SubjectType)
	if err != nil {
		return paymentsvc.InitiateRequest{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subject type")
	}
	subjectID, err := uuid.Parse(req.SubjectID)
	if err != nil {
		return paymentsvc.InitiateRequest{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subject id")
	}
	method, err := enums.ParsePaymentMethod(req.Method)
	if err != nil {
		return paymentsvc.InitiateRequest{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
	}
	out := paymentsvc.InitiateRequest{
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Method:      method,
		Details:     paymentsvc.MethodDetails{Phone: validators.SanitizeString(req.Phone, 20)},
		ActorID:     actor.UserID,
		ActorRole:   actor.Role,
	}
	if req.Card != nil {
		out.Details.Card = &paymentsvc.CardInput{
			Token:    validators.SanitizeString(req.Card.Token, 255),
			Number:   req.Card.Number,
			ExpMonth: req.Card.ExpMonth,
			ExpYear:  req.Card.ExpYear,
			CVV:      req.Card.CVV,
			Holder:   validators.SanitizeString(req.Card.Holder, 120),
		}
	}
	return out, nil
}

// ListMethods returns every payment method with its current availability.
func ListMethods(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		responses.WriteSuccess(w, svc.Methods(r.Context()))
	}
}

// InitiatePayment creates an intent and contacts the method's channel.
func InitiatePayment(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload initiatePaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		req, err := payload.toServiceRequest(actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Initiate(ctx, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// GetPayment is the status query for one intent.
func GetPayment(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		actor, id, err := resolveIntentRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		view, err := svc.GetIntent(ctx, id, actor.UserID, actor.Role)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// ConfirmPayment asks the provider once for the intent's current state. The
// caller's claim that it paid never settles the intent by itself.
func ConfirmPayment(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		actor, id, err := resolveIntentRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		view, err := svc.ManualConfirm(ctx, id, actor.UserID, actor.Role)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func resolveIntentRequest(r *http.Request) (actorcontext.Actor, uuid.UUID, error) {
	actor, err := actorcontext.Resolve(r)
	if err != nil {
		return actorcontext.Actor{}, uuid.Nil, err
	}
	id, err := validators.ParseUUIDParam(r, "id")
	if err != nil {
		return actorcontext.Actor{}, uuid.Nil, err
	}
	return actor, id, nil
}
