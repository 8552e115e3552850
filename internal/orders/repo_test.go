package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/sokolink-backend/pkg/db/dbtest"
	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
)

func seedOrder(t *testing.T, repo Repository, total string) *models.VendorOrder {
	t.Helper()
	order, err := repo.CreateVendorOrder(context.Background(), &models.VendorOrder{
		BuyerID:       uuid.New(),
		VendorID:      uuid.New(),
		Currency:      "TZS",
		TotalAmount:   decimal.RequireFromString(total),
		PaymentStatus: enums.PaymentStatusUnpaid,
		EscrowStatus:  enums.EscrowStatusNone,
	})
	require.NoError(t, err)
	return order
}

func TestRepositoryFindVendorOrder(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	order := seedOrder(t, repo, "18500.75")

	found, err := repo.FindVendorOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.TotalAmount.Equal(decimal.RequireFromString("18500.75")))

	missing, err := repo.FindVendorOrder(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepositoryMarkPaidAndHeldOnlyOnce(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	order := seedOrder(t, repo, "5000")
	paidAt := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	n, err := repo.MarkPaidAndHeld(context.Background(), order.ID, paidAt)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.MarkPaidAndHeld(context.Background(), order.ID, paidAt.Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	found, err := repo.FindVendorOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, found.PaymentStatus)
	assert.Equal(t, enums.EscrowStatusHeld, found.EscrowStatus)
	require.NotNil(t, found.PaidAt)
	assert.True(t, found.PaidAt.Equal(paidAt))
}
