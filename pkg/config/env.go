package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "SOKOLINK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	CardProcessorStripe = "stripe"
	CardProcessorSquare = "square"
)

const (
	EventingTransportPubSub = "pubsub"
	EventingTransportNATS   = "nats"
)

const (
	EnvAppEnv   = "SOKOLINK_APP_ENV"
	EnvPort     = "SOKOLINK_APP_PORT"
	EnvLogLevel = "SOKOLINK_LOG_LEVEL"

	EnvDBDSN  = "SOKOLINK_DB_DSN"
	EnvDBHost = "SOKOLINK_DB_HOST"
	EnvDBUser = "SOKOLINK_DB_USER"
	EnvDBName = "SOKOLINK_DB_NAME"

	EnvRedisURL  = "SOKOLINK_REDIS_URL"
	EnvJWTSecret = "SOKOLINK_JWT_SECRET"
	EnvJWTIssuer = "SOKOLINK_JWT_ISSUER"
	EnvUseSQLite = "SOKOLINK_USE_SQLITE"

	EnvPaymentsDisabledMethods     = "SOKOLINK_PAYMENTS_DISABLED_METHODS"
	EnvPaymentsPollInterval        = "SOKOLINK_PAYMENTS_POLL_INTERVAL"
	EnvPaymentsPollAttempts        = "SOKOLINK_PAYMENTS_POLL_ATTEMPTS"
	EnvPaymentsControlNumberLength = "SOKOLINK_PAYMENTS_CONTROL_NUMBER_LENGTH"
	EnvPaymentsCardProcessor       = "SOKOLINK_PAYMENTS_CARD_PROCESSOR"
)

var splitDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
