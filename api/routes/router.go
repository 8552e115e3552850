package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stripe/stripe-go/v76"

	"github.com/angelmondragon/sokolink-backend/api/controllers"
	billingcontrollers "github.com/angelmondragon/sokolink-backend/api/controllers/billing"
	paymentcontrollers "github.com/angelmondragon/sokolink-backend/api/controllers/payments"
	subscriptioncontrollers "github.com/angelmondragon/sokolink-backend/api/controllers/subscriptions"
	webhookcontrollers "github.com/angelmondragon/sokolink-backend/api/controllers/webhooks"
	"github.com/angelmondragon/sokolink-backend/api/middleware"
	"github.com/angelmondragon/sokolink-backend/pkg/config"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
	"github.com/angelmondragon/sokolink-backend/pkg/mobilemoney"
	pkgredis "github.com/angelmondragon/sokolink-backend/pkg/redis"
)

// RedisStore is the Redis surface the HTTP layer needs.
type RedisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	RateLimitKey(policy, scope, subject string) string
	Ping(context.Context) error
}

// WebhookGuard drops provider retries before they reach the services.
type WebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type StripeVerifier interface {
	ConstructEvent(payload []byte, header string) (stripe.Event, error)
}

type SquareVerifier interface {
	VerifyWebhookSignature(payload []byte, header string) bool
}

type MobileMoneyParser interface {
	ParseCallback(payload []byte, signature string) (*mobilemoney.Callback, error)
}

// Webhooks groups the provider callback handlers. A provider whose service is
// nil is not mounted.
type Webhooks struct {
	Stripe       webhookcontrollers.StripeWebhookService
	StripeVerify StripeVerifier
	StripeGuard  WebhookGuard
	Square       webhookcontrollers.SquareWebhookService
	SquareVerify SquareVerifier
	SquareGuard  WebhookGuard
	MobileMoney  webhookcontrollers.MobileMoneyWebhookService
	MobileParser MobileMoneyParser
	MobileGuard  WebhookGuard
	Bank         webhookcontrollers.BankWebhookService
	BankGuard    WebhookGuard
}

// Dependencies carries everything the router mounts.
type Dependencies struct {
	DB            controllers.Pinger
	Redis         RedisStore
	Metrics       prometheus.Gatherer
	Payments      paymentcontrollers.Service
	Subscriptions subscriptioncontrollers.Service
	Plans         billingcontrollers.BillingPlanService
	Webhooks      Webhooks
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	readiness := map[string]controllers.Pinger{"db": deps.DB}
	var idempotencyStore pkgredis.IdempotencyStore
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
		idempotencyStore = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		hooks := deps.Webhooks
		if hooks.Stripe != nil {
			r.Post("/stripe", webhookcontrollers.StripeWebhook(hooks.Stripe, hooks.StripeVerify, hooks.StripeGuard, logg))
		}
		if hooks.Square != nil {
			r.Post("/square", webhookcontrollers.SquareWebhook(hooks.Square, hooks.SquareVerify, hooks.SquareGuard, logg))
		}
		if hooks.MobileMoney != nil {
			r.Post("/mobile-money", webhookcontrollers.MobileMoneyWebhook(hooks.MobileMoney, hooks.MobileParser, hooks.MobileGuard, logg))
		}
		if hooks.Bank != nil {
			r.Post("/bank", webhookcontrollers.BankWebhook(hooks.Bank, hooks.BankGuard, logg))
		}
	})

	initiationPolicy := middleware.NewRateLimitPolicy(
		"payments",
		cfg.Payments.InitiationRateWindow,
		cfg.Payments.InitiationRateIPLimit,
		cfg.Payments.InitiationRateUserLimit,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/payments", func(r chi.Router) {
			r.Get("/methods", paymentcontrollers.ListMethods(deps.Payments, logg))
			if deps.Redis != nil {
				r.With(middleware.RateLimit(initiationPolicy, deps.Redis, logg)).Post("/", paymentcontrollers.InitiatePayment(deps.Payments, logg))
			} else {
				r.Post("/", paymentcontrollers.InitiatePayment(deps.Payments, logg))
			}
			r.Get("/{id}", paymentcontrollers.GetPayment(deps.Payments, logg))
			r.Get("/{id}/status", paymentcontrollers.GetPayment(deps.Payments, logg))
			r.Get("/{id}/events", paymentcontrollers.StreamPayment(deps.Payments, logg))
			r.Post("/{id}/confirm", paymentcontrollers.ConfirmPayment(deps.Payments, logg))
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleVendor, enums.UserRoleTransporter))
			r.Post("/", subscriptioncontrollers.SubscriptionCreate(deps.Subscriptions, logg))
			r.Get("/active", subscriptioncontrollers.SubscriptionActive(deps.Subscriptions, logg))
		})

		r.Get("/plans", billingcontrollers.ListBillingPlans(deps.Plans, logg))
	})

	return r
}
