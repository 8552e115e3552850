// Package bootstrap assembles the payment engine shared by the api and the
// cron worker.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/sokolink-backend/internal/billing"
	"github.com/angelmondragon/sokolink-backend/internal/ledger"
	"github.com/angelmondragon/sokolink-backend/internal/orders"
	"github.com/angelmondragon/sokolink-backend/internal/payments"
	"github.com/angelmondragon/sokolink-backend/internal/subscriptions"
	"github.com/angelmondragon/sokolink-backend/pkg/config"
	"github.com/angelmondragon/sokolink-backend/pkg/db"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
	"github.com/angelmondragon/sokolink-backend/pkg/metrics"
	"github.com/angelmondragon/sokolink-backend/pkg/mobilemoney"
	"github.com/angelmondragon/sokolink-backend/pkg/outbox"
	"github.com/angelmondragon/sokolink-backend/pkg/redis"
	"github.com/angelmondragon/sokolink-backend/pkg/square"
	"github.com/angelmondragon/sokolink-backend/pkg/stripe"
)

const (
	CardProcessorStripe = "stripe"
	CardProcessorSquare = "square"
)

// PaymentStack holds the engine and the provider clients it was built with.
// A nil client means that provider is not configured and its methods report
// the channel as unavailable.
type PaymentStack struct {
	Payments      *payments.Service
	Subscriptions *subscriptions.Service
	Catalog       *billing.Service
	MobileMoney   *mobilemoney.Client
	Stripe        *stripe.Client
	Square        *square.Client
	Channels      int
}

// BuildPayments wires repositories, channels, and the activation path.
func BuildPayments(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, paymentMetrics *metrics.PaymentMetrics) (*PaymentStack, error) {
	conn := dbClient.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)

	catalog, err := billing.NewService(billing.ServiceParams{Repo: billing.NewRepository(conn)})
	if err != nil {
		return nil, fmt.Errorf("billing service: %w", err)
	}
	subscriptionSvc, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:    subscriptions.NewRepository(conn),
		Catalog: catalog,
		Outbox:  outboxSvc,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("subscriptions service: %w", err)
	}
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}
	orderSvc, err := orders.NewService(orders.NewRepository(conn), ledgerSvc, outboxSvc)
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}
	activator, err := payments.NewActivator(subscriptionSvc, orderSvc)
	if err != nil {
		return nil, fmt.Errorf("entitlement activator: %w", err)
	}

	stack := &PaymentStack{Subscriptions: subscriptionSvc, Catalog: catalog}
	channels := make([]payments.Channel, 0, 3)

	if client, err := mobilemoney.NewClient(cfg.MobileMoney); err != nil {
		logg.Warn(logg.WithField(ctx, "reason", err.Error()), "mobile money channel disabled")
	} else {
		stack.MobileMoney = client
		channels = append(channels, payments.NewMobileMoneyChannel(client))
	}

	bankChannel, err := payments.NewBankChannel(payments.BankChannelConfig{
		ControlNumberPrefix:   cfg.Payments.ControlNumberPrefix,
		ControlNumberLength:   cfg.Payments.ControlNumberLength,
		HostedCheckoutBaseURL: cfg.Payments.HostedCheckoutBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("bank channel: %w", err)
	}
	channels = append(channels, bankChannel)

	switch processor := strings.ToLower(strings.TrimSpace(cfg.Payments.CardProcessor)); processor {
	case CardProcessorStripe:
		if client, err := stripe.NewClient(ctx, cfg.Stripe, logg); err != nil {
			logg.Warn(logg.WithField(ctx, "reason", err.Error()), "card channel disabled")
		} else {
			stack.Stripe = client
			channels = append(channels, payments.NewCardChannel(payments.NewStripeProcessor(client)))
		}
	case CardProcessorSquare:
		if client, err := square.NewClient(ctx, cfg.Square, logg); err != nil {
			logg.Warn(logg.WithField(ctx, "reason", err.Error()), "card channel disabled")
		} else {
			stack.Square = client
			channels = append(channels, payments.NewCardChannel(payments.NewSquareProcessor(client)))
		}
	default:
		return nil, fmt.Errorf("unknown card processor %q", processor)
	}

	var flags payments.MaintenanceFlags
	if redisClient != nil {
		flags = redisClient
	}

	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Tx:            dbClient,
		Repo:          payments.NewRepository(conn),
		Channels:      channels,
		Availability:  payments.NewAvailability(payments.RegistryMethods(cfg.Payments.OfferedMethods), cfg.Payments.DisabledMethods, flags, logg),
		Subscriptions: subscriptionSvc,
		Catalog:       catalog,
		Orders:        orderSvc,
		Activator:     activator,
		Outbox:        outboxSvc,
		Metrics:       paymentMetrics,
		Logger:        logg,
		Config:        cfg.Payments,
	})
	if err != nil {
		return nil, fmt.Errorf("payments service: %w", err)
	}
	stack.Payments = paymentSvc
	stack.Channels = len(channels)
	return stack, nil
}
