package payments

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sokolink-backend/pkg/db"
	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
)

// CallbackInput is a provider notification already verified and decoded by
// its webhook handler.
type CallbackInput struct {
	Source            enums.CallbackSource
	ExternalEventID   string
	ProviderReference string
	Result            ChannelResult
	Detail            string
	// Amount and Currency are what the provider reports as paid. Providers
	// that do not report them leave Amount nil.
	Amount   *decimal.Decimal
	Currency string
	Payload  json.RawMessage
}

// CallbackResult reports what a callback did.
type CallbackResult struct {
	CallbackID uuid.UUID   `json:"callback_id"`
	IntentID   *uuid.UUID  `json:"intent_id,omitempty"`
	Applied    bool        `json:"applied"`
	Duplicate  bool        `json:"duplicate"`
	Note       string      `json:"note,omitempty"`
	Intent     *IntentView `json:"intent,omitempty"`
}

// ApplyCallback records a provider notification and settles the intent it
// refers to through the same transitions polling uses. Unmatched and late
// notifications are kept with applied=false for reconciliation.
func (s *Service) ApplyCallback(ctx context.Context, in CallbackInput) (*CallbackResult, error) {
	in.ExternalEventID = strings.TrimSpace(in.ExternalEventID)
	in.ProviderReference = strings.TrimSpace(in.ProviderReference)
	if in.Source == "" || in.ExternalEventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callback source and event id are required")
	}
	if in.ProviderReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callback reference is required")
	}
	if !in.Result.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callback result is not recognized")
	}

	intent, err := s.intentForCallback(ctx, in)
	if err != nil {
		return nil, err
	}

	record := &models.PaymentCallback{
		Source:            in.Source,
		ExternalEventID:   in.ExternalEventID,
		ProviderReference: in.ProviderReference,
		Outcome:           string(in.Result),
		Payload:           in.Payload,
	}
	if intent != nil {
		record.IntentID = &intent.ID
	}
	if err := s.repo.CreateCallback(ctx, record); err != nil {
		if db.IsUniqueViolation(err, db.ConstraintCallbackSourceEvent) {
			s.metrics.IncCallback(string(in.Source), "duplicate")
			return &CallbackResult{IntentID: record.IntentID, Duplicate: true, Note: "duplicate event"}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment callback")
	}

	res := &CallbackResult{CallbackID: record.ID, IntentID: record.IntentID}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"source":       in.Source,
		"event_id":     in.ExternalEventID,
		"reference":    in.ProviderReference,
		"result":       in.Result,
		"callback_id":  record.ID.String(),
		"intent_found": intent != nil,
	})

	switch {
	case intent == nil:
		res.Note = "no matching payment intent"
		s.metrics.IncCallback(string(in.Source), "unmatched")
	case intent.Method.Class() != in.Source.ChannelClass():
		res.Note = "source " + string(in.Source) + " cannot settle a " + string(intent.Method) + " payment"
		s.metrics.IncCallback(string(in.Source), "mismatch")
		s.logg.Warn(logCtx, "payments.callback_source_mismatch")
	case intent.Status.IsTerminal():
		res.Note = "payment intent already " + string(intent.Status)
		view := toView(intent)
		res.Intent = &view
		s.metrics.IncCallback(string(in.Source), "late")
	case in.Result == ChannelPending:
		res.Note = "non-final result"
		view := toView(intent)
		res.Intent = &view
		s.metrics.IncCallback(string(in.Source), "pending")
	case amountMismatch(intent, in) != "":
		res.Note = amountMismatch(intent, in)
		view := toView(intent)
		res.Intent = &view
		s.metrics.IncCallback(string(in.Source), "mismatch")
		s.logg.Warn(logCtx, "payments.callback_amount_mismatch")
	default:
		settled, err := s.settle(ctx, intent, ChannelStatus{Result: in.Result, Detail: in.Detail})
		if err != nil {
			s.metrics.IncCallback(string(in.Source), "error")
			if updErr := s.repo.UpdateCallback(ctx, record.ID, false, "apply failed: "+providerMessage(err)); updErr != nil {
				s.logg.Error(logCtx, "payments.callback_note_failed", updErr)
			}
			return nil, err
		}
		view := toView(settled)
		res.Intent = &view
		want, _ := statusForResult(intent.SubjectType, in.Result)
		res.Applied = settled.Status == want && intent.Status != settled.Status
		if !res.Applied {
			res.Note = "payment intent settled as " + string(settled.Status)
		}
		result := "applied"
		if !res.Applied {
			result = "late"
		}
		s.metrics.IncCallback(string(in.Source), result)
	}

	if res.Applied || res.Note != "" {
		if err := s.repo.UpdateCallback(ctx, record.ID, res.Applied, res.Note); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment callback")
		}
	}
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{"applied": res.Applied, "note": res.Note}), "payments.callback")
	return res, nil
}

// amountMismatch describes how the reported amount differs from the intent,
// or returns "" when it matches or was not reported.
func amountMismatch(intent *models.PaymentIntent, in CallbackInput) string {
	if in.Amount == nil {
		return ""
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency != "" && currency != strings.ToUpper(intent.Currency) {
		return "reported currency " + currency + " does not match " + strings.ToUpper(intent.Currency)
	}
	if !in.Amount.Equal(intent.Amount) {
		return "reported amount " + in.Amount.String() + " does not match " + intent.Amount.String()
	}
	return ""
}

// intentForCallback resolves the intent a notification refers to, only among
// intents the source's channel could have produced. Bank notifications carry
// the control number; other providers echo their own transaction id, and the
// aggregator may echo our intent id instead.
func (s *Service) intentForCallback(ctx context.Context, in CallbackInput) (*models.PaymentIntent, error) {
	ref := in.ProviderReference
	if in.Source == enums.CallbackSourceBank {
		intent, err := s.repo.FindByChannelReference(ctx, ref)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find intent by reference")
		}
		if intent != nil {
			return intent, nil
		}
	}
	intent, err := s.repo.FindByProviderTransactionID(ctx, in.Source, ref)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find intent by provider transaction")
	}
	if intent != nil || in.Source != enums.CallbackSourceMobileMoney {
		return intent, nil
	}
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		intent, err = s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find intent by id")
		}
	}
	return intent, nil
}
