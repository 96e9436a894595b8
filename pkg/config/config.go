package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Paystack     PaystackConfig
	Payout       PayoutConfig
	BankCache    BankCacheConfig
	Dispute      DisputeConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	err := multierr.Combine(
		cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite),
		cfg.Redis.validate(),
		cfg.Payout.validate(),
		cfg.Cron.validate(),
	)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ESCROW_APP_ENV" required:"true"`
	Port         string `envconfig:"ESCROW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ESCROW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ESCROW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"ESCROW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ESCROW_DB_DSN"`
	Driver string `envconfig:"ESCROW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ESCROW_DB_HOST"`
	LegacyPort     int    `envconfig:"ESCROW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ESCROW_DB_USER"`
	LegacyPassword string `envconfig:"ESCROW_DB_PASSWORD"`
	LegacyName     string `envconfig:"ESCROW_DB_NAME"`
	LegacySSLMode  string `envconfig:"ESCROW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ESCROW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ESCROW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ESCROW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ESCROW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"ESCROW_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ESCROW_REDIS_URL"`
	Address      string        `envconfig:"ESCROW_REDIS_ADDR"`
	Password     string        `envconfig:"ESCROW_REDIS_PASSWORD"`
	DB           int           `envconfig:"ESCROW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ESCROW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ESCROW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ESCROW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ESCROW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ESCROW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ESCROW_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ESCROW_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ESCROW_JWT_EXPIRATION_MINUTES" required:"true"`
}

// TTL returns the access token lifetime.
func (j JWTConfig) TTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// RateLimitConfig throttles API writes per caller and webhooks per IP.
type RateLimitConfig struct {
	Window         time.Duration `envconfig:"ESCROW_RATE_LIMIT_WINDOW" default:"1m"`
	PrincipalLimit int           `envconfig:"ESCROW_RATE_LIMIT_PRINCIPAL" default:"120"`
	IPLimit        int           `envconfig:"ESCROW_RATE_LIMIT_IP" default:"300"`
}

type CORSConfig struct {
	AllowedOrigins []string      `envconfig:"ESCROW_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	MaxAge         time.Duration `envconfig:"ESCROW_CORS_MAX_AGE" default:"5m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ESCROW_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ESCROW_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL  time.Duration `envconfig:"ESCROW_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
	ConsumerIdempotencyTTL time.Duration `envconfig:"ESCROW_EVENTING_CONSUMER_IDEMPOTENCY_TTL" default:"168h"`
}

type PaystackConfig struct {
	SecretKey   string        `envconfig:"ESCROW_PAYSTACK_SECRET_KEY" required:"true"`
	BaseURL     string        `envconfig:"ESCROW_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	CallbackURL string        `envconfig:"ESCROW_PAYSTACK_CALLBACK_URL"`
	Timeout     time.Duration `envconfig:"ESCROW_PAYSTACK_TIMEOUT" default:"15s"`
	Currency    string        `envconfig:"ESCROW_PAYSTACK_CURRENCY" default:"NGN"`
}

// PayoutConfig holds withdrawal limits and the fee schedule, all in kobo.
type PayoutConfig struct {
	MinAmount       int64 `envconfig:"ESCROW_PAYOUT_MIN_AMOUNT" default:"100000"`
	LowTierCeiling  int64 `envconfig:"ESCROW_PAYOUT_LOW_TIER_CEILING" default:"500000"`
	MidTierCeiling  int64 `envconfig:"ESCROW_PAYOUT_MID_TIER_CEILING" default:"5000000"`
	LowTierFee      int64 `envconfig:"ESCROW_PAYOUT_LOW_TIER_FEE" default:"1000"`
	MidTierFee      int64 `envconfig:"ESCROW_PAYOUT_MID_TIER_FEE" default:"2500"`
	HighTierFee     int64 `envconfig:"ESCROW_PAYOUT_HIGH_TIER_FEE" default:"5000"`
	RequestsPerHour int   `envconfig:"ESCROW_PAYOUT_REQUESTS_PER_HOUR" default:"10"`
}

func (p PayoutConfig) validate() error {
	if p.MinAmount <= 0 {
		return fmt.Errorf("%s must be positive", EnvPayoutMinAmount)
	}
	if p.LowTierCeiling >= p.MidTierCeiling {
		return fmt.Errorf("payout low tier ceiling must be below mid tier ceiling")
	}
	if p.LowTierFee < 0 || p.MidTierFee < 0 || p.HighTierFee < 0 {
		return fmt.Errorf("payout fees must not be negative")
	}
	return nil
}

type BankCacheConfig struct {
	TTL     time.Duration `envconfig:"ESCROW_BANK_CACHE_TTL" default:"24h"`
	Country string        `envconfig:"ESCROW_BANK_CACHE_COUNTRY" default:"nigeria"`
}

type DisputeConfig struct {
	AssignmentBatchSize int `envconfig:"ESCROW_DISPUTE_ASSIGNMENT_BATCH_SIZE" default:"50"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ESCROW_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"ESCROW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ESCROW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"ESCROW_PUBSUB_NOTIFICATION_TOPIC" default:"escrow-notification-events"`
	NotificationSubscription string `envconfig:"ESCROW_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"escrow-notification-delivery"`
	EscrowEventsTopic        string `envconfig:"ESCROW_PUBSUB_ESCROW_EVENTS_TOPIC" default:"escrow-domain-events"`
}

type BigQueryConfig struct {
	Dataset     string `envconfig:"ESCROW_BIGQUERY_DATASET" default:"escrow"`
	LedgerTable string `envconfig:"ESCROW_BIGQUERY_LEDGER_TABLE" default:"ledger_transactions"`
	// CreateTable provisions a missing ledger table instead of failing boot.
	CreateTable bool `envconfig:"ESCROW_BIGQUERY_CREATE_TABLE" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"ESCROW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"ESCROW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"ESCROW_OUTBOX_MAX_ATTEMPTS" default:"10"`
	PublishTimeout time.Duration `envconfig:"ESCROW_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
	MetricsAddr    string        `envconfig:"ESCROW_OUTBOX_METRICS_ADDR" default:":9091"`
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"ESCROW_CRON_INTERVAL" default:"1m"`
	LockTTL           time.Duration `envconfig:"ESCROW_CRON_LOCK_TTL" default:"55s"`
	LedgerExportBatch int           `envconfig:"ESCROW_CRON_LEDGER_EXPORT_BATCH" default:"500"`
	PendingOrderTTL   time.Duration `envconfig:"ESCROW_CRON_PENDING_ORDER_TTL" default:"72h"`
	ExpiryBatch       int           `envconfig:"ESCROW_CRON_EXPIRY_BATCH" default:"100"`

	NotificationRetention time.Duration `envconfig:"ESCROW_CRON_NOTIFICATION_RETENTION" default:"720h"`
	OutboxRetention       time.Duration `envconfig:"ESCROW_CRON_OUTBOX_RETENTION" default:"168h"`
	DLQRetention          time.Duration `envconfig:"ESCROW_CRON_DLQ_RETENTION" default:"2160h"`
}

func (c RedisConfig) validate() error {
	if c.URL == "" && c.Address == "" {
		return fmt.Errorf("%s or ESCROW_REDIS_ADDR is required", EnvRedisURL)
	}
	return nil
}

func (c CronConfig) validate() error {
	var err error
	if c.Interval <= 0 {
		err = multierr.Append(err, fmt.Errorf("cron interval must be positive"))
	}
	if c.LockTTL <= 0 || c.LockTTL > c.Interval {
		err = multierr.Append(err, fmt.Errorf("cron lock ttl must be positive and at most the interval"))
	}
	for name, retention := range map[string]time.Duration{
		"notification": c.NotificationRetention,
		"outbox":       c.OutboxRetention,
		"dlq":          c.DLQRetention,
	} {
		if retention <= 0 {
			err = multierr.Append(err, fmt.Errorf("cron %s retention must be positive", name))
		}
	}
	return err
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = "file:escrow.db?_busy_timeout=5000&_txlock=immediate"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
