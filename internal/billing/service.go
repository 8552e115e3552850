package billing

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/teambition/rrule-go"
	"gorm.io/gorm"

	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
)

// Plan is the read model handed to payment and subscription callers.
type Plan struct {
	ID             string
	Name           string
	OwnerType      enums.SubscriptionOwnerType
	Status         enums.PlanStatus
	Interval       enums.BillingInterval
	RecurrenceRule string
	Price          decimal.Decimal
	Currency       string
	Features       []string
	IsDefault      bool
}

// ServiceParams wires the catalog dependencies.
type ServiceParams struct {
	Repo Repository
}

// Service is the read-only rate/plan catalog.
type Service struct {
	repo Repository
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	return &Service{repo: params.Repo}, nil
}

// GetSubscriptionPlan returns the plan's price and features.
func (s *Service) GetSubscriptionPlan(ctx context.Context, planID string) (*Plan, error) {
	return s.GetSubscriptionPlanTx(ctx, nil, planID)
}

// GetSubscriptionPlanTx reads the plan through tx when one is open.
func (s *Service) GetSubscriptionPlanTx(ctx context.Context, tx *gorm.DB, planID string) (*Plan, error) {
	id := strings.TrimSpace(planID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	plan, err := s.repo.WithTx(tx).FindBillingPlanByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load billing plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "billing plan not found")
	}
	return toPlan(plan), nil
}

// ListPlans returns the purchasable plans, optionally filtered by owner type.
func (s *Service) ListPlans(ctx context.Context, ownerType *enums.SubscriptionOwnerType) ([]Plan, error) {
	status := enums.PlanStatusActive
	rows, err := s.repo.ListBillingPlans(ctx, ListBillingPlansQuery{OwnerType: ownerType, Status: &status})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list billing plans")
	}
	plans := make([]Plan, 0, len(rows))
	for i := range rows {
		plans = append(plans, *toPlan(&rows[i]))
	}
	return plans, nil
}

// BillingPeriod computes the period that starts at start, ending at the next
// occurrence of the plan's recurrence rule.
func BillingPeriod(plan *Plan, start time.Time) (time.Time, time.Time, error) {
	if plan == nil {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeInternal, "plan required")
	}
	rule := strings.TrimSpace(plan.RecurrenceRule)
	if rule == "" {
		rule = plan.Interval.RecurrenceRule()
	}
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return time.Time{}, time.Time{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse plan recurrence rule")
	}
	start = start.UTC().Truncate(time.Second)
	opt.Dtstart = start
	recurrence, err := rrule.NewRRule(*opt)
	if err != nil {
		return time.Time{}, time.Time{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build plan recurrence")
	}
	end := recurrence.After(start, false)
	if end.IsZero() {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeInternal, "plan recurrence has no next occurrence")
	}
	// RFC 5545 drops occurrences on days a month does not have, so a start on
	// the 31st or Feb 29 would otherwise skip whole months or years.
	interval := opt.Interval
	if interval <= 0 {
		interval = 1
	}
	var clamped time.Time
	switch opt.Freq {
	case rrule.MONTHLY:
		clamped = addMonthsClamped(start, interval)
	case rrule.YEARLY:
		clamped = addMonthsClamped(start, 12*interval)
	}
	if !clamped.IsZero() && clamped.Before(end) {
		end = clamped
	}
	return start, end, nil
}

// addMonthsClamped moves t forward by months, pinning the day to the last day
// of the target month when t's day does not exist there.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func toPlan(row *models.BillingPlan) *Plan {
	plan := &Plan{
		ID:        row.ID,
		Name:      row.Name,
		OwnerType: row.OwnerType,
		Status:    row.Status,
		Interval:  row.Interval,
		Price:     row.PriceAmount,
		Currency:  row.CurrencyCode,
		Features:  []string(row.Features),
		IsDefault: row.IsDefault,
	}
	if row.RecurrenceRule != nil {
		plan.RecurrenceRule = *row.RecurrenceRule
	}
	return plan
}
