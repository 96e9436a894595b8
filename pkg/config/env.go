package config

const (
	EnvPrefix = "ESCROW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "ESCROW_APP_ENV"
	EnvPort     = "ESCROW_APP_PORT"
	EnvLogLevel = "ESCROW_LOG_LEVEL"

	EnvDBDSN  = "ESCROW_DB_DSN"
	EnvDBHost = "ESCROW_DB_HOST"
	EnvDBUser = "ESCROW_DB_USER"
	EnvDBName = "ESCROW_DB_NAME"

	EnvRedisURL = "ESCROW_REDIS_URL"

	EnvJWTSecret  = "ESCROW_JWT_SECRET"
	EnvJWTIssuer  = "ESCROW_JWT_ISSUER"
	EnvJWTExpMins = "ESCROW_JWT_EXPIRATION_MINUTES"

	EnvUseSQLite = "ESCROW_USE_SQLITE"

	EnvPaystackSecretKey = "ESCROW_PAYSTACK_SECRET_KEY"
	EnvPaystackTimeout   = "ESCROW_PAYSTACK_TIMEOUT"

	EnvPayoutMinAmount      = "ESCROW_PAYOUT_MIN_AMOUNT"
	EnvPayoutLowTierCeiling = "ESCROW_PAYOUT_LOW_TIER_CEILING"
	EnvPayoutMidTierCeiling = "ESCROW_PAYOUT_MID_TIER_CEILING"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
