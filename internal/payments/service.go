package payments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sokolink-backend/internal/billing"
	"github.com/angelmondragon/sokolink-backend/internal/orders"
	"github.com/angelmondragon/sokolink-backend/pkg/config"
	"github.com/angelmondragon/sokolink-backend/pkg/db"
	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
	"github.com/angelmondragon/sokolink-backend/pkg/metrics"
	"github.com/angelmondragon/sokolink-backend/pkg/outbox"
	"github.com/angelmondragon/sokolink-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type subscriptionReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
}

type planReader interface {
	GetSubscriptionPlan(ctx context.Context, planID string) (*billing.Plan, error)
}

type orderReader interface {
	GetOrderTotal(ctx context.Context, orderID uuid.UUID) (*orders.OrderTotal, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams wires the payment engine.
type ServiceParams struct {
	Tx            txRunner
	Repo          Repository
	Channels      []Channel
	Availability  *Availability
	Subscriptions subscriptionReader
	Catalog       planReader
	Orders        orderReader
	Activator     Activator
	Outbox        eventEmitter
	Metrics       *metrics.PaymentMetrics
	Logger        *logger.Logger
	Config        config.PaymentsConfig
	Now           func() time.Time
}

// Service initiates payment intents, confirms them against their channel and
// activates the entitlement they pay for. All status changes are
// compare-and-set transitions on the intent row.
type Service struct {
	tx            txRunner
	repo          Repository
	channels      map[enums.PaymentChannelClass]Channel
	availability  *Availability
	subscriptions subscriptionReader
	catalog       planReader
	orders        orderReader
	activator     Activator
	outbox        eventEmitter
	metrics       *metrics.PaymentMetrics
	logg          *logger.Logger
	cfg           config.PaymentsConfig
	now           func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("payment repo required")
	case params.Subscriptions == nil || params.Catalog == nil:
		return nil, fmt.Errorf("subscription catalog required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order reader required")
	case params.Activator == nil:
		return nil, fmt.Errorf("activator required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}

	channels := make(map[enums.PaymentChannelClass]Channel, len(params.Channels))
	for _, ch := range params.Channels {
		if ch != nil {
			channels[ch.Class()] = ch
		}
	}
	availability := params.Availability
	if availability == nil {
		availability = NewAvailability(RegistryMethods(params.Config.OfferedMethods), params.Config.DisabledMethods, nil, params.Logger)
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "payments", Output: io.Discard})
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	cfg := params.Config
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = "TZS"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 40
	}
	if cfg.ReconcileBatch <= 0 {
		cfg.ReconcileBatch = 100
	}

	return &Service{
		tx:            params.Tx,
		repo:          params.Repo,
		channels:      channels,
		availability:  availability,
		subscriptions: params.Subscriptions,
		catalog:       params.Catalog,
		orders:        params.Orders,
		activator:     params.Activator,
		outbox:        params.Outbox,
		metrics:       params.Metrics,
		logg:          logg,
		cfg:           cfg,
		now:           now,
	}, nil
}

// Methods lists every registered method with its current availability.
func (s *Service) Methods(ctx context.Context) []MethodAvailability {
	out := s.availability.List(ctx)
	for i := range out {
		if out[i].Available {
			if _, ok := s.channels[out[i].Class]; !ok {
				out[i].Available = false
				out[i].Reason = ReasonNotConfigured
			}
		}
	}
	return out
}

type payableSubject struct {
	ownerID     uuid.UUID
	description string
}

// Initiate validates the request, reserves the subject with an initiated
// intent and then contacts the method's channel outside any transaction.
// A channel that fails before acknowledging discards the reservation, so an
// unreachable provider leaves no intent behind. An acknowledged intent is
// never rolled back.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*InitiationResult, error) {
	normalized, err := s.validateRequest(req)
	if err != nil {
		s.metrics.IncInitiation(string(req.Method), "invalid")
		return nil, err
	}
	req = normalized

	subject, err := s.resolveSubject(ctx, req)
	if err != nil {
		s.metrics.IncInitiation(string(req.Method), "invalid")
		return nil, err
	}

	if err := s.availability.Check(ctx, req.Method); err != nil {
		s.metrics.IncInitiation(string(req.Method), "unavailable")
		return nil, err
	}
	channel, ok := s.channels[req.Method.Class()]
	if !ok {
		s.metrics.IncInitiation(string(req.Method), "unavailable")
		return nil, unavailable(req.Method, ReasonNotConfigured)
	}

	open, err := s.repo.FindOpenBySubject(ctx, req.SubjectType, req.SubjectID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open payment intent")
	}
	if open != nil {
		s.metrics.IncInitiation(string(req.Method), "conflict")
		return nil, pendingConflict(open)
	}

	intent := &models.PaymentIntent{
		ID:          uuid.New(),
		SubjectType: req.SubjectType,
		SubjectID:   req.SubjectID,
		OwnerID:     subject.ownerID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Method:      req.Method,
		Provider:    channel.Provider(req.Method),
		Status:      enums.PaymentIntentStatusInitiated,
	}

	ctx = s.logg.WithFields(s.logg.WithIntentID(ctx, intent.ID.String()), map[string]any{
		"method":       req.Method,
		"subject_type": req.SubjectType,
		"subject_id":   req.SubjectID.String(),
	})

	if err := s.repo.Create(ctx, intent); err != nil {
		if db.IsUniqueViolation(err, db.ConstraintOpenIntentPerSubject) {
			s.metrics.IncInitiation(string(req.Method), "conflict")
			if current, findErr := s.repo.FindOpenBySubject(ctx, req.SubjectType, req.SubjectID); findErr == nil && current != nil {
				return nil, pendingConflict(current)
			}
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "a payment is already pending for this subject")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	if err := s.contactChannel(ctx, channel, intent, req, subject); err != nil {
		result := "error"
		if pkgerrors.IsCode(err, pkgerrors.CodeChannelUnavailable) {
			result = "unavailable"
		}
		s.metrics.IncInitiation(string(req.Method), result)
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "payments.initiation_failed")
		return nil, err
	}

	result := "accepted"
	if intent.Status == enums.PaymentIntentStatusRejected {
		result = "rejected"
	}
	s.metrics.IncInitiation(string(req.Method), result)
	s.logg.Info(s.logg.WithField(ctx, "status", intent.Status), "payments.initiated")

	return &InitiationResult{
		IntentID:         intent.ID,
		Status:           intent.Status,
		ChannelReference: intent.ChannelReference,
		ActionURL:        intent.ActionURL,
		ErrorDetail:      intent.ErrorDetail,
	}, nil
}

var errIntentMoved = errors.New("payment intent changed during initiation")

func (s *Service) contactChannel(ctx context.Context, channel Channel, intent *models.PaymentIntent, req InitiateRequest, subject payableSubject) error {
	for attempt := 1; ; attempt++ {
		ack, err := channel.Initiate(ctx, ChannelRequest{
			IntentID:    intent.ID,
			SubjectType: intent.SubjectType,
			SubjectID:   intent.SubjectID,
			Method:      intent.Method,
			Amount:      intent.Amount,
			Currency:    intent.Currency,
			Description: subject.description,
			Details:     req.Details,
			Attempt:     attempt,
		})
		if err != nil {
			s.discardReservation(ctx, intent)
			return channelError(intent.Method, err)
		}

		err = s.recordAck(ctx, intent, ack)
		if err == nil {
			return nil
		}
		// control numbers are issued locally, so a colliding one was never handed out
		if ack.ChannelReference != "" && db.IsUniqueViolation(err, db.ConstraintIntentChannelReference) {
			if attempt < MaxReferenceAttempts {
				s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "payments.channel_reference_collision")
				continue
			}
			s.discardReservation(ctx, intent)
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate channel reference")
		}
		return s.keepAck(ctx, intent, ack, err)
	}
}

// ackTransition is the transition an acknowledgement asks for, with the
// intent as it looks afterwards.
func ackTransition(intent *models.PaymentIntent, ack *ChannelAck) (models.PaymentIntent, enums.PaymentIntentStatus, map[string]any) {
	next := *intent
	updates := map[string]any{}
	if ack.ProviderTransactionID != "" {
		updates["provider_transaction_id"] = ack.ProviderTransactionID
		next.ProviderTransactionID = stringPtr(ack.ProviderTransactionID)
	}
	if ack.Declined {
		detail := ack.DeclineReason
		if detail == "" {
			detail = "declined by provider"
		}
		updates["error_detail"] = detail
		next.Status = enums.PaymentIntentStatusRejected
		next.ErrorDetail = &detail
		return next, next.Status, updates
	}
	if ack.ChannelReference != "" {
		updates["channel_reference"] = ack.ChannelReference
		next.ChannelReference = stringPtr(ack.ChannelReference)
	}
	if ack.ActionURL != "" {
		updates["action_url"] = ack.ActionURL
		next.ActionURL = stringPtr(ack.ActionURL)
	}
	next.Status = enums.PaymentIntentStatusAwaitingConfirmation
	return next, next.Status, updates
}

// recordAck moves the reserved intent out of initiated and emits its events
// in one transaction.
func (s *Service) recordAck(ctx context.Context, intent *models.PaymentIntent, ack *ChannelAck) error {
	next, to, updates := ackTransition(intent, ack)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := s.repo.WithTx(tx).Transition(ctx, intent.ID, enums.PaymentIntentStatusInitiated, to, updates)
		if err != nil {
			return err
		}
		if updated == 0 {
			return errIntentMoved
		}
		if err := s.emitIntentEvent(ctx, tx, enums.EventPaymentInitiated, &next); err != nil {
			return err
		}
		if to == enums.PaymentIntentStatusRejected {
			return s.emitIntentEvent(ctx, tx, enums.EventPaymentRejected, &next)
		}
		return nil
	})
	if err != nil {
		return err
	}
	*intent = next
	return nil
}

// keepAck stores an acknowledgement whose recording transaction failed. The
// provider already holds the payment, so the intent keeps its reference and
// stays open for polling, callbacks and reconciliation; only its initiation
// events are lost.
func (s *Service) keepAck(ctx context.Context, intent *models.PaymentIntent, ack *ChannelAck, cause error) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"provider_transaction_id": ack.ProviderTransactionID,
		"channel_reference":       ack.ChannelReference,
	})
	s.logg.Error(logCtx, "payments.ack_record_failed", cause)

	next, to, updates := ackTransition(intent, ack)
	updated, err := s.repo.Transition(context.WithoutCancel(ctx), intent.ID, enums.PaymentIntentStatusInitiated, to, updates)
	switch {
	case err != nil:
		s.logg.Error(logCtx, "payments.ack_unrecorded", err)
	case updated == 0:
		s.logg.Error(logCtx, "payments.ack_unrecorded", errIntentMoved)
	default:
		*intent = next
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "record channel acknowledgement").
		WithDetails(map[string]any{"intent_id": intent.ID, "status": intent.Status})
}

// discardReservation drops an intent the provider never acknowledged.
func (s *Service) discardReservation(ctx context.Context, intent *models.PaymentIntent) {
	if _, err := s.repo.DeleteInitiated(context.WithoutCancel(ctx), intent.ID); err != nil {
		s.logg.Error(ctx, "payments.reservation_discard_failed", err)
	}
}

// channelError maps an adapter failure onto the caller facing taxonomy. An
// unreachable provider makes the method unavailable for this request.
func channelError(method enums.PaymentMethod, err error) error {
	typed := pkgerrors.As(err)
	if typed != nil && typed.Code() != pkgerrors.CodeDependency && typed.Code() != pkgerrors.CodeInternal {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeChannelUnavailable, err, "payment provider unreachable").
		WithDetails(map[string]any{"method": method, "reason": ReasonUnreachable})
}

func pendingConflict(open *models.PaymentIntent) error {
	details := map[string]any{
		"pending_intent_id": open.ID,
		"status":            open.Status,
	}
	if open.ChannelReference != nil {
		details["channel_reference"] = *open.ChannelReference
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "a payment is already pending for this subject").
		WithDetails(details)
}

func (s *Service) validateRequest(req InitiateRequest) (InitiateRequest, error) {
	if !req.SubjectType.IsValid() {
		return req, pkgerrors.New(pkgerrors.CodeValidation, "invalid subject type")
	}
	if req.SubjectID == uuid.Nil {
		return req, pkgerrors.New(pkgerrors.CodeValidation, "subject id is required")
	}
	if !req.Method.IsValid() {
		return req, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if !req.Amount.IsPositive() {
		return req, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = strings.ToUpper(s.cfg.Currency)
	}
	if req.ActorID == uuid.Nil {
		return req, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity is required")
	}
	details, err := ValidateMethodDetails(req.Method, req.Details, s.now())
	if err != nil {
		return req, err
	}
	req.Details = details
	return req, nil
}

// resolveSubject checks the subject is payable by the caller at exactly req.Amount.
func (s *Service) resolveSubject(ctx context.Context, req InitiateRequest) (payableSubject, error) {
	var (
		ownerID  uuid.UUID
		price    = req.Amount
		currency string
		desc     string
	)
	switch req.SubjectType {
	case enums.PaymentSubjectSubscription:
		sub, err := s.subscriptions.Get(ctx, req.SubjectID)
		if err != nil {
			return payableSubject{}, err
		}
		if sub.OwnerID != req.ActorID {
			return payableSubject{}, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		switch sub.Status {
		case enums.SubscriptionStatusActive:
			return payableSubject{}, pkgerrors.New(pkgerrors.CodeValidation, "subscription is already active")
		case enums.SubscriptionStatusCanceled:
			return payableSubject{}, pkgerrors.New(pkgerrors.CodeValidation, "subscription is canceled")
		}
		plan, err := s.catalog.GetSubscriptionPlan(ctx, sub.PlanID)
		if err != nil {
			return payableSubject{}, err
		}
		ownerID, price, currency = sub.OwnerID, plan.Price, plan.Currency
		desc = "SokoLink " + plan.Name
	case enums.PaymentSubjectOrder:
		total, err := s.orders.GetOrderTotal(ctx, req.SubjectID)
		if err != nil {
			return payableSubject{}, err
		}
		if total.BuyerID != req.ActorID {
			return payableSubject{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if total.PaymentStatus != enums.PaymentStatusUnpaid {
			return payableSubject{}, pkgerrors.New(pkgerrors.CodeValidation, "order is already paid")
		}
		ownerID, price, currency = total.BuyerID, total.Amount, total.Currency
		desc = "SokoLink order " + total.OrderID.String()
	}

	if !strings.EqualFold(currency, req.Currency) {
		return payableSubject{}, pkgerrors.New(pkgerrors.CodeValidation, "currency does not match the subject").
			WithDetails(map[string]any{"currency": strings.ToUpper(currency)})
	}
	if !req.Amount.Equal(price) {
		return payableSubject{}, pkgerrors.New(pkgerrors.CodeValidation, "amount does not match the subject price").
			WithDetails(map[string]any{"expected_amount": price.StringFixed(2)})
	}
	return payableSubject{ownerID: ownerID, description: desc}, nil
}

// GetIntent returns the intent when the caller owns it. Admins see every intent.
func (s *Service) GetIntent(ctx context.Context, id, actorID uuid.UUID, role enums.UserRole) (*IntentView, error) {
	intent, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if role != enums.UserRoleAdmin && intent.OwnerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}
	view := toView(intent)
	return &view, nil
}

// ManualConfirm re-checks the intent with its provider once. The caller's
// claim alone never settles an intent.
func (s *Service) ManualConfirm(ctx context.Context, id, actorID uuid.UUID, role enums.UserRole) (*IntentView, error) {
	if _, err := s.GetIntent(ctx, id, actorID, role); err != nil {
		return nil, err
	}
	return s.Refresh(ctx, id)
}

// Refresh brings the intent up to date with its channel and applies any
// verdict. Terminal intents are returned as stored.
func (s *Service) Refresh(ctx context.Context, id uuid.UUID) (*IntentView, error) {
	intent, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if intent.Status.IsTerminal() {
		view := toView(intent)
		return &view, nil
	}
	status, err := s.queryChannel(ctx, intent)
	if err != nil {
		return nil, err
	}
	settled, err := s.settle(ctx, intent, *status)
	if err != nil {
		return nil, err
	}
	view := toView(settled)
	return &view, nil
}

func (s *Service) queryChannel(ctx context.Context, intent *models.PaymentIntent) (*ChannelStatus, error) {
	channel, ok := s.channels[intent.Method.Class()]
	if !ok || intent.Status != enums.PaymentIntentStatusAwaitingConfirmation {
		return &ChannelStatus{Result: ChannelPending}, nil
	}
	status, err := channel.Query(ctx, intent)
	if err == nil {
		if !status.Result.IsValid() {
			return &ChannelStatus{Result: ChannelPending}, nil
		}
		return status, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"intent_id": intent.ID.String(),
		"method":    intent.Method,
		"error":     err.Error(),
	})
	if permanentProviderError(err) {
		s.logg.Warn(logCtx, "payments.provider_rejected_query")
		return &ChannelStatus{Result: ChannelFailed, Detail: "provider_error: " + providerMessage(err)}, nil
	}
	s.metrics.IncPollError(string(intent.Method))
	s.logg.Warn(logCtx, "payments.provider_unavailable")
	return &ChannelStatus{Result: ChannelPending}, nil
}

// permanentProviderError reports whether the provider answered that the
// transaction does not exist. Anything else, including auth and validation
// answers to a status lookup, leaves the intent pending.
func permanentProviderError(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeNotFound)
}

func providerMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Message()
	}
	return err.Error()
}

// settle applies a channel verdict to the intent.
func (s *Service) settle(ctx context.Context, intent *models.PaymentIntent, status ChannelStatus) (*models.PaymentIntent, error) {
	target, ok := statusForResult(intent.SubjectType, status.Result)
	if !ok {
		now := s.now()
		if err := s.repo.TouchPolled(ctx, intent.ID, now); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record poll")
		}
		intent.LastPolledAt = &now
		return intent, nil
	}
	if target.IsSuccess() {
		return s.activate(ctx, intent, target, true)
	}
	return s.fail(ctx, intent, target, status.Detail)
}

// activate moves the intent into its success status and grants the
// entitlement in the same transaction. Only the writer whose transition
// changes the row calls the activator.
func (s *Service) activate(ctx context.Context, intent *models.PaymentIntent, target enums.PaymentIntentStatus, retry bool) (*models.PaymentIntent, error) {
	now := s.now()
	won := false
	var activationErr error
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := s.repo.WithTx(tx).Transition(ctx, intent.ID, intent.Status, target, map[string]any{
			"activated_at":   now,
			"last_polled_at": now,
			"updated_at":     now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition payment intent")
		}
		if updated == 0 {
			return nil
		}
		won = true

		settled := *intent
		settled.Status = target
		settled.ActivatedAt = &now
		settled.LastPolledAt = &now
		if err := s.activator.Activate(ctx, tx, &settled); err != nil {
			activationErr = err
			return err
		}
		return s.emitIntentEvent(ctx, tx, enums.EventPaymentSucceeded, &settled)
	})

	logCtx := s.logg.WithFields(s.logg.WithIntentID(ctx, intent.ID.String()), map[string]any{
		"method":       intent.Method,
		"subject_type": intent.SubjectType,
	})
	if activationErr != nil && pkgerrors.IsCode(activationErr, pkgerrors.CodeActivation) {
		s.metrics.IncActivation(string(intent.SubjectType), "failed")
		s.logg.Error(logCtx, "payments.activation_failed", activationErr)
		return s.markActivationFailed(ctx, intent, activationErr)
	}
	if err != nil {
		s.metrics.IncActivation(string(intent.SubjectType), "error")
		return nil, err
	}

	current, err := s.load(ctx, intent.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		if retry && !current.Status.IsTerminal() && current.Status != intent.Status {
			return s.activate(ctx, current, target, false)
		}
		return current, nil
	}

	s.metrics.IncActivation(string(intent.SubjectType), "activated")
	s.metrics.ObserveConfirmation(string(intent.Method), now.Sub(intent.CreatedAt))
	s.logg.Info(logCtx, "payments.succeeded")
	return current, nil
}

func (s *Service) markActivationFailed(ctx context.Context, intent *models.PaymentIntent, cause error) (*models.PaymentIntent, error) {
	now := s.now()
	detail := "activation: " + providerMessage(cause)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := s.repo.WithTx(tx).Transition(ctx, intent.ID, intent.Status, enums.PaymentIntentStatusFailed, map[string]any{
			"activation_failed_at": now,
			"error_detail":         detail,
			"last_polled_at":       now,
			"updated_at":           now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record activation failure")
		}
		if updated == 0 {
			return nil
		}
		failed := *intent
		failed.Status = enums.PaymentIntentStatusFailed
		failed.ErrorDetail = &detail
		failed.ActivationFailedAt = &now
		return s.emitIntentEvent(ctx, tx, enums.EventPaymentActivationFailed, &failed)
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, intent.ID)
}

func (s *Service) fail(ctx context.Context, intent *models.PaymentIntent, target enums.PaymentIntentStatus, detail string) (*models.PaymentIntent, error) {
	now := s.now()
	if detail == "" {
		detail = string(target)
	}
	eventType := enums.EventPaymentFailed
	if target == enums.PaymentIntentStatusRejected {
		eventType = enums.EventPaymentRejected
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := s.repo.WithTx(tx).Transition(ctx, intent.ID, intent.Status, target, map[string]any{
			"error_detail":   detail,
			"last_polled_at": now,
			"updated_at":     now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition payment intent")
		}
		if updated == 0 {
			return nil
		}
		settled := *intent
		settled.Status = target
		settled.ErrorDetail = &detail
		return s.emitIntentEvent(ctx, tx, eventType, &settled)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithIntentID(ctx, intent.ID.String()), map[string]any{
		"status": target,
		"detail": detail,
	}), "payments.settled")
	return s.load(ctx, intent.ID)
}

// ExpireIntent re-checks a pending intent one last time and, when it is still
// unconfirmed, moves it to timed_out so the subject can be paid again.
func (s *Service) ExpireIntent(ctx context.Context, id uuid.UUID) (*IntentView, bool, error) {
	view, err := s.Refresh(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if view.Status.IsTerminal() {
		return view, false, nil
	}
	intent, err := s.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	now := s.now()
	detail := "expired: no confirmation within " + s.cfg.PendingTTL.String()
	expired := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := s.repo.WithTx(tx).Transition(ctx, intent.ID, intent.Status, enums.PaymentIntentStatusTimedOut, map[string]any{
			"error_detail": detail,
			"updated_at":   now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire payment intent")
		}
		if updated == 0 {
			return nil
		}
		expired = true
		timedOut := *intent
		timedOut.Status = enums.PaymentIntentStatusTimedOut
		timedOut.ErrorDetail = &detail
		return s.emitIntentEvent(ctx, tx, enums.EventPaymentExpired, &timedOut)
	})
	if err != nil {
		return nil, false, err
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	out := toView(current)
	return &out, expired, nil
}

// ListStaleIntents returns awaiting intents nobody polled within the reconcile window.
func (s *Service) ListStaleIntents(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := s.repo.ListStale(ctx, s.now().Add(-s.cfg.ReconcileAfter), s.cfg.ReconcileBatch)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale payment intents")
	}
	return ids, nil
}

// ListExpiredIntents returns pending intents older than the pending TTL.
func (s *Service) ListExpiredIntents(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := s.repo.ListExpired(ctx, s.now().Add(-s.cfg.PendingTTL), s.cfg.ReconcileBatch)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired payment intents")
	}
	return ids, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	intent, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
	}
	if intent == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}
	return intent, nil
}

func (s *Service) emitIntentEvent(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, intent *models.PaymentIntent) error {
	now := s.now()
	createdAt := intent.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePaymentIntent,
		AggregateID:   intent.ID,
		OccurredAt:    now,
		Data: payloads.PaymentIntentEvent{
			IntentID:         intent.ID,
			SubjectType:      intent.SubjectType,
			SubjectID:        intent.SubjectID,
			OwnerID:          intent.OwnerID,
			Method:           intent.Method,
			Provider:         intent.Provider,
			Amount:           intent.Amount,
			Currency:         intent.Currency,
			Status:           intent.Status,
			ChannelReference: intent.ChannelReference,
			ErrorDetail:      intent.ErrorDetail,
			CreatedAt:        createdAt,
			OccurredAt:       now,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(eventType))
	}
	return nil
}
