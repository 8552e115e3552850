package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	NATS         NATSConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Payments     PaymentsConfig
	MobileMoney  MobileMoneyConfig
	Stripe       StripeConfig
	Square       SquareConfig
	Bank         BankConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Payments.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SOKOLINK_APP_ENV" required:"true"`
	Port         string `envconfig:"SOKOLINK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SOKOLINK_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"SOKOLINK_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"SOKOLINK_LOG_WARN_STACK" default:"false"`
	// CORSOrigins overrides the built-in allowed origins when set.
	CORSOrigins []string `envconfig:"SOKOLINK_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SOKOLINK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SOKOLINK_DB_DSN"`
	Driver string `envconfig:"SOKOLINK_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"SOKOLINK_DB_HOST"`
	Port     int    `envconfig:"SOKOLINK_DB_PORT" default:"5432"`
	User     string `envconfig:"SOKOLINK_DB_USER"`
	Password string `envconfig:"SOKOLINK_DB_PASSWORD"`
	Name     string `envconfig:"SOKOLINK_DB_NAME"`
	SSLMode  string `envconfig:"SOKOLINK_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"SOKOLINK_SQLITE_PATH" default:"sokolink.db"`

	MaxOpenConns    int           `envconfig:"SOKOLINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SOKOLINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SOKOLINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SOKOLINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SOKOLINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SOKOLINK_REDIS_ADDR"`
	Password     string        `envconfig:"SOKOLINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"SOKOLINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SOKOLINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SOKOLINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SOKOLINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SOKOLINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SOKOLINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig only covers verification; tokens are minted by the identity service.
type JWTConfig struct {
	Secret string `envconfig:"SOKOLINK_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"SOKOLINK_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SOKOLINK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SOKOLINK_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	// Transport selects the outbox publisher backend: pubsub or nats.
	Transport            string        `envconfig:"SOKOLINK_EVENTING_TRANSPORT" default:"pubsub"`
	OutboxIdempotencyTTL time.Duration `envconfig:"SOKOLINK_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SOKOLINK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SOKOLINK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SOKOLINK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	PaymentsTopic         string `envconfig:"SOKOLINK_PUBSUB_PAYMENTS_TOPIC" default:"sl-payment-events"`
	SubscriptionsTopic    string `envconfig:"SOKOLINK_PUBSUB_SUBSCRIPTIONS_TOPIC" default:"sl-subscription-events"`
	OrdersTopic           string `envconfig:"SOKOLINK_PUBSUB_ORDERS_TOPIC" default:"sl-order-events"`
	AnalyticsSubscription string `envconfig:"SOKOLINK_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"sl-payment-analytics"`
}

type NATSConfig struct {
	URL           string        `envconfig:"SOKOLINK_NATS_URL" default:"nats://localhost:4222"`
	Stream        string        `envconfig:"SOKOLINK_NATS_STREAM" default:"SOKOLINK_EVENTS"`
	SubjectPrefix string        `envconfig:"SOKOLINK_NATS_SUBJECT_PREFIX" default:"sokolink"`
	MaxAge        time.Duration `envconfig:"SOKOLINK_NATS_MAX_AGE" default:"168h"`
}

type BigQueryConfig struct {
	Dataset            string `envconfig:"SOKOLINK_BIGQUERY_DATASET" default:"sokolink"`
	PaymentEventsTable string `envconfig:"SOKOLINK_BIGQUERY_PAYMENT_EVENTS_TABLE" default:"payment_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SOKOLINK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SOKOLINK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SOKOLINK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"SOKOLINK_OUTBOX_RETENTION_DAYS" default:"30"`
}

type PaymentsConfig struct {
	Currency       string        `envconfig:"SOKOLINK_PAYMENTS_CURRENCY" default:"TZS"`
	PollInterval   time.Duration `envconfig:"SOKOLINK_PAYMENTS_POLL_INTERVAL" default:"3s"`
	PollAttempts   int           `envconfig:"SOKOLINK_PAYMENTS_POLL_ATTEMPTS" default:"40"`
	PendingTTL     time.Duration `envconfig:"SOKOLINK_PAYMENTS_PENDING_TTL" default:"24h"`
	ReconcileAfter time.Duration `envconfig:"SOKOLINK_PAYMENTS_RECONCILE_AFTER" default:"5m"`
	ReconcileBatch int           `envconfig:"SOKOLINK_PAYMENTS_RECONCILE_BATCH" default:"100"`
	// ReconcileInterval is the cron worker cycle.
	ReconcileInterval time.Duration `envconfig:"SOKOLINK_PAYMENTS_RECONCILE_INTERVAL" default:"1m"`
	// OfferedMethods seeds the method registry; empty offers every known method.
	// Methods left out are listed as disabled rather than hidden.
	OfferedMethods []string `envconfig:"SOKOLINK_PAYMENTS_OFFERED_METHODS"`
	// DisabledMethods is a comma separated list of method tags, e.g. "m-pesa,visa".
	DisabledMethods       []string `envconfig:"SOKOLINK_PAYMENTS_DISABLED_METHODS"`
	ControlNumberPrefix   string   `envconfig:"SOKOLINK_PAYMENTS_CONTROL_NUMBER_PREFIX" default:"99"`
	ControlNumberLength   int      `envconfig:"SOKOLINK_PAYMENTS_CONTROL_NUMBER_LENGTH" default:"12"`
	HostedCheckoutBaseURL string   `envconfig:"SOKOLINK_PAYMENTS_HOSTED_CHECKOUT_BASE_URL" default:"https://checkout.selcom.net/pay"`
	// CardProcessor is stripe or square.
	CardProcessor string `envconfig:"SOKOLINK_PAYMENTS_CARD_PROCESSOR" default:"stripe"`
	// Initiation throttling; a zero limit disables that counter.
	InitiationRateWindow    time.Duration `envconfig:"SOKOLINK_PAYMENTS_INITIATION_RATE_WINDOW" default:"1m"`
	InitiationRateUserLimit int           `envconfig:"SOKOLINK_PAYMENTS_INITIATION_RATE_USER_LIMIT" default:"5"`
	InitiationRateIPLimit   int           `envconfig:"SOKOLINK_PAYMENTS_INITIATION_RATE_IP_LIMIT" default:"30"`
	// WebhookDedupeTTL bounds how long the Redis guard remembers a provider event id.
	WebhookDedupeTTL time.Duration `envconfig:"SOKOLINK_PAYMENTS_WEBHOOK_DEDUPE_TTL" default:"24h"`
}

func (p PaymentsConfig) validate() error {
	if p.ControlNumberLength <= len(p.ControlNumberPrefix) {
		return fmt.Errorf("%s must exceed the control number prefix length", EnvPaymentsControlNumberLength)
	}
	switch p.NormalizedCardProcessor() {
	case CardProcessorStripe, CardProcessorSquare:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvPaymentsCardProcessor, CardProcessorStripe, CardProcessorSquare)
	}
	if p.PollAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvPaymentsPollAttempts)
	}
	return nil
}

// NormalizedCardProcessor returns the configured card processor in lower case.
func (p PaymentsConfig) NormalizedCardProcessor() string {
	return strings.ToLower(strings.TrimSpace(p.CardProcessor))
}

type MobileMoneyConfig struct {
	BaseURL        string        `envconfig:"SOKOLINK_MOBILE_MONEY_BASE_URL" default:"https://api.aggregator.example/v1"`
	APIKey         string        `envconfig:"SOKOLINK_MOBILE_MONEY_API_KEY"`
	CallbackSecret string        `envconfig:"SOKOLINK_MOBILE_MONEY_CALLBACK_SECRET"`
	CallbackURL    string        `envconfig:"SOKOLINK_MOBILE_MONEY_CALLBACK_URL"`
	Timeout        time.Duration `envconfig:"SOKOLINK_MOBILE_MONEY_TIMEOUT" default:"10s"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"SOKOLINK_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"SOKOLINK_STRIPE_WEBHOOK_SECRET"`
	ReturnURL     string `envconfig:"SOKOLINK_STRIPE_RETURN_URL" default:"https://sokolink.co.tz/payments/return"`
	Env           string `envconfig:"SOKOLINK_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SquareConfig struct {
	AccessToken            string `envconfig:"SOKOLINK_SQUARE_ACCESS_TOKEN"`
	LocationID             string `envconfig:"SOKOLINK_SQUARE_LOCATION_ID"`
	Env                    string `envconfig:"SOKOLINK_SQUARE_ENV" default:"sandbox"`
	WebhookSignatureKey    string `envconfig:"SOKOLINK_SQUARE_WEBHOOK_SIGNATURE_KEY"`
	WebhookNotificationURL string `envconfig:"SOKOLINK_SQUARE_WEBHOOK_NOTIFICATION_URL"`
}

type BankConfig struct {
	CallbackSecret string `envconfig:"SOKOLINK_BANK_CALLBACK_SECRET"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" || db.Driver == DBDriverSQLite {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range splitDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
