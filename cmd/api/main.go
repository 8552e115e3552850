package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/sokolink-backend/api"
	"github.com/angelmondragon/sokolink-backend/api/routes"
	"github.com/angelmondragon/sokolink-backend/internal/bootstrap"
	"github.com/angelmondragon/sokolink-backend/internal/webhooks"
	bankwebhook "github.com/angelmondragon/sokolink-backend/internal/webhooks/bank"
	mobilemoneywebhook "github.com/angelmondragon/sokolink-backend/internal/webhooks/mobilemoney"
	squarewebhook "github.com/angelmondragon/sokolink-backend/internal/webhooks/square"
	stripewebhook "github.com/angelmondragon/sokolink-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/sokolink-backend/pkg/config"
	"github.com/angelmondragon/sokolink-backend/pkg/db"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	"github.com/angelmondragon/sokolink-backend/pkg/instance"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
	"github.com/angelmondragon/sokolink-backend/pkg/metrics"
	"github.com/angelmondragon/sokolink-backend/pkg/migrate"
	"github.com/angelmondragon/sokolink-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	stack, err := bootstrap.BuildPayments(ctx, cfg, logg, dbClient, redisClient, paymentMetrics)
	requireResource(ctx, logg, "payment engine", err)
	paymentSvc := stack.Payments

	var hooks routes.Webhooks

	newGuard := func(source enums.CallbackSource) *webhooks.IdempotencyGuard {
		guard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Payments.WebhookDedupeTTL, source)
		requireResource(ctx, logg, fmt.Sprintf("%s webhook guard", source), err)
		return guard
	}

	if stack.MobileMoney != nil {
		svc, err := mobilemoneywebhook.NewService(mobilemoneywebhook.ServiceParams{Payments: paymentSvc})
		requireResource(ctx, logg, "mobile money webhook service", err)
		hooks.MobileMoney = svc
		hooks.MobileParser = stack.MobileMoney
		hooks.MobileGuard = newGuard(enums.CallbackSourceMobileMoney)
	}

	if strings.TrimSpace(cfg.Bank.CallbackSecret) != "" {
		svc, err := bankwebhook.NewService(bankwebhook.ServiceParams{Payments: paymentSvc, Secret: cfg.Bank.CallbackSecret})
		requireResource(ctx, logg, "bank webhook service", err)
		hooks.Bank = svc
		hooks.BankGuard = newGuard(enums.CallbackSourceBank)
	} else {
		logg.Warn(ctx, "bank callbacks disabled: no callback secret")
	}

	if stack.Stripe != nil {
		svc, err := stripewebhook.NewService(stripewebhook.ServiceParams{Payments: paymentSvc})
		requireResource(ctx, logg, "stripe webhook service", err)
		hooks.Stripe = svc
		hooks.StripeVerify = stack.Stripe
		hooks.StripeGuard = newGuard(enums.CallbackSourceStripe)
	}

	if stack.Square != nil {
		svc, err := squarewebhook.NewService(squarewebhook.ServiceParams{Payments: paymentSvc})
		requireResource(ctx, logg, "square webhook service", err)
		hooks.Square = svc
		hooks.SquareVerify = stack.Square
		hooks.SquareGuard = newGuard(enums.CallbackSourceSquare)
	}

	router := routes.NewRouter(cfg, logg, routes.Dependencies{
		DB:            dbClient,
		Redis:         redisClient,
		Metrics:       registry,
		Payments:      paymentSvc,
		Subscriptions: stack.Subscriptions,
		Plans:         stack.Catalog,
		Webhooks:      hooks,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"serviceKind": cfg.Service.Kind,
		"channels":    stack.Channels,
		"instance":    instance.GetID(),
	})
	logg.Info(runCtx, "starting api server")

	if err := api.Serve(runCtx, api.NewServer(addr, router), logg); err != nil {
		logg.Error(runCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
