package billing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/sokolink-backend/pkg/db/dbtest"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/migrate"
)

func newSeededService(t *testing.T) *Service {
	t.Helper()
	conn := dbtest.Open(t)
	require.NoError(t, migrate.ApplySQLite(context.Background(), conn, true))
	svc, err := NewService(ServiceParams{Repo: NewRepository(conn)})
	require.NoError(t, err)
	return svc
}

func TestGetSubscriptionPlan(t *testing.T) {
	svc := newSeededService(t)

	plan, err := svc.GetSubscriptionPlan(context.Background(), "vendor_pro")
	require.NoError(t, err)
	assert.True(t, plan.Price.Equal(decimal.NewFromInt(25000)))
	assert.Equal(t, "TZS", plan.Currency)
	assert.Equal(t, enums.SubscriptionOwnerVendor, plan.OwnerType)
	assert.Contains(t, plan.Features, "analytics")

	_, err = svc.GetSubscriptionPlan(context.Background(), "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.GetSubscriptionPlan(context.Background(), " ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListPlansFiltersOwner(t *testing.T) {
	svc := newSeededService(t)
	owner := enums.SubscriptionOwnerTransporter

	plans, err := svc.ListPlans(context.Background(), &owner)
	require.NoError(t, err)
	ids := []string{}
	for _, p := range plans {
		ids = append(ids, p.ID)
	}
	assert.ElementsMatch(t, []string{"transporter_basic", "transporter_fleet"}, ids)

	all, err := svc.ListPlans(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestFindDefaultBillingPlan(t *testing.T) {
	conn := dbtest.Open(t)
	require.NoError(t, migrate.ApplySQLite(context.Background(), conn, true))
	repo := NewRepository(conn)

	plan, err := repo.FindDefaultBillingPlan(context.Background(), enums.SubscriptionOwnerVendor)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "vendor_starter", plan.ID)
}

func TestBillingPeriod(t *testing.T) {
	start := time.Date(2026, 1, 31, 10, 15, 0, 0, time.UTC)

	cases := []struct {
		name string
		plan Plan
		end  time.Time
	}{
		{"monthly clamps to short month", Plan{Interval: enums.BillingIntervalMonthly}, time.Date(2026, 2, 28, 10, 15, 0, 0, time.UTC)},
		{"every 30 days", Plan{Interval: enums.BillingIntervalEvery30Days}, time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)},
		{"annual", Plan{Interval: enums.BillingIntervalAnnual}, time.Date(2027, 1, 31, 10, 15, 0, 0, time.UTC)},
		{"explicit rule wins", Plan{Interval: enums.BillingIntervalMonthly, RecurrenceRule: "FREQ=WEEKLY;INTERVAL=2"}, time.Date(2026, 2, 14, 10, 15, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		gotStart, gotEnd, err := BillingPeriod(&tc.plan, start)
		require.NoError(t, err, tc.name)
		assert.Equal(t, start, gotStart, tc.name)
		assert.Equal(t, tc.end, gotEnd, tc.name)
	}

	_, _, err := BillingPeriod(&Plan{RecurrenceRule: "FREQ=NEVER"}, start)
	assert.Error(t, err)
}

func TestBillingPeriodMonthEnd(t *testing.T) {
	cases := []struct {
		name  string
		plan  Plan
		start time.Time
		end   time.Time
	}{
		{"jan 31 monthly", Plan{Interval: enums.BillingIntervalMonthly}, time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC), time.Date(2027, 2, 28, 0, 0, 0, 0, time.UTC)},
		{"aug 31 monthly", Plan{Interval: enums.BillingIntervalMonthly}, time.Date(2027, 8, 31, 0, 0, 0, 0, time.UTC), time.Date(2027, 9, 30, 0, 0, 0, 0, time.UTC)},
		{"jan 31 monthly in leap year", Plan{Interval: enums.BillingIntervalMonthly}, time.Date(2028, 1, 31, 0, 0, 0, 0, time.UTC), time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC)},
		{"feb 29 annual", Plan{Interval: enums.BillingIntervalAnnual}, time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC), time.Date(2029, 2, 28, 0, 0, 0, 0, time.UTC)},
		{"mid month unaffected", Plan{Interval: enums.BillingIntervalMonthly}, time.Date(2027, 3, 15, 0, 0, 0, 0, time.UTC), time.Date(2027, 4, 15, 0, 0, 0, 0, time.UTC)},
		{"quarterly rule clamps", Plan{RecurrenceRule: "FREQ=MONTHLY;INTERVAL=3"}, time.Date(2027, 11, 30, 0, 0, 0, 0, time.UTC), time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		_, gotEnd, err := BillingPeriod(&tc.plan, tc.start)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.end, gotEnd, tc.name)
		assert.LessOrEqual(t, gotEnd.Sub(tc.start), 366*24*time.Hour, tc.name)
	}
}
