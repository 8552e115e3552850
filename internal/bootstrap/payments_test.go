package bootstrap

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/sokolink-backend/pkg/config"
	"github.com/angelmondragon/sokolink-backend/pkg/db"
	"github.com/angelmondragon/sokolink-backend/pkg/db/dbtest"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Payments: config.PaymentsConfig{
			ControlNumberPrefix: "99",
			ControlNumberLength: 12,
			CardProcessor:       CardProcessorStripe,
		},
	}
}

func TestBuildPaymentsSkipsUnconfiguredProviders(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	client := db.NewFromGorm(dbtest.Open(t))

	stack, err := BuildPayments(context.Background(), testConfig(), logg, client, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, stack.Payments)
	assert.Nil(t, stack.MobileMoney)
	assert.Nil(t, stack.Stripe)
	assert.Nil(t, stack.Square)
	assert.Equal(t, 1, stack.Channels, "only the bank channel needs no credentials")
}

func TestBuildPaymentsRejectsUnknownProcessor(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	cfg := testConfig()
	cfg.Payments.CardProcessor = "paypal"

	_, err := BuildPayments(context.Background(), cfg, logg, db.NewFromGorm(dbtest.Open(t)), nil, nil)
	require.Error(t, err)
}
