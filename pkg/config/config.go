package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Eventing EventingConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	BigQuery BigQueryConfig
	Stripe   StripeConfig
	Shopify  ShopifyConfig
	Checkout CheckoutConfig
	Outbox   OutboxConfig
	Cron     CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.App.IsDev() {
		return nil
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("%s is required outside dev", EnvJWTSecret)
	}
	if strings.TrimSpace(c.Stripe.APIKey) != "" && strings.TrimSpace(c.Stripe.Secret) == "" {
		return fmt.Errorf("%s is required when %s is set", EnvStripeSecret, EnvStripeAPIKey)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"ECHO_APP_ENV" required:"true"`
	Port         string `envconfig:"ECHO_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"ECHO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ECHO_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"ECHO_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind        string `envconfig:"ECHO_SERVICE_KIND" default:"api"`
	MetricsAddr string `envconfig:"ECHO_METRICS_ADDR"`
}

type DBConfig struct {
	DSN string `envconfig:"ECHO_DB_DSN"`

	Host     string `envconfig:"ECHO_DB_HOST"`
	Port     int    `envconfig:"ECHO_DB_PORT" default:"5432"`
	User     string `envconfig:"ECHO_DB_USER"`
	Password string `envconfig:"ECHO_DB_PASSWORD"`
	Name     string `envconfig:"ECHO_DB_NAME"`
	SSLMode  string `envconfig:"ECHO_DB_SSLMODE" default:"disable"`

	AutoMigrate bool `envconfig:"ECHO_DB_AUTO_MIGRATE" default:"false"`

	MaxOpenConns    int           `envconfig:"ECHO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ECHO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ECHO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ECHO_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"ECHO_DB_SLOW_QUERY_THRESHOLD" default:"300ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ECHO_REDIS_URL"`
	Address      string        `envconfig:"ECHO_REDIS_ADDR"`
	Password     string        `envconfig:"ECHO_REDIS_PASSWORD"`
	DB           int           `envconfig:"ECHO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ECHO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ECHO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ECHO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ECHO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ECHO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"ECHO_JWT_SECRET"`
	Issuer string `envconfig:"ECHO_JWT_ISSUER" default:"echo"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"ECHO_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL  time.Duration `envconfig:"ECHO_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookIdempotencyTTL time.Duration `envconfig:"ECHO_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ECHO_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"ECHO_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ECHO_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	TasksTopic            string `envconfig:"ECHO_PUBSUB_TASKS_TOPIC" default:"echo-order-tasks"`
	TasksSubscription     string `envconfig:"ECHO_PUBSUB_TASKS_SUBSCRIPTION" default:"echo-order-tasks-worker"`
	AnalyticsTopic        string `envconfig:"ECHO_PUBSUB_ANALYTICS_TOPIC" default:"echo-order-analytics"`
	AnalyticsSubscription string `envconfig:"ECHO_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"echo-order-analytics-worker"`
	MessagesTopic         string `envconfig:"ECHO_PUBSUB_MESSAGES_TOPIC" default:"echo-outbound-messages"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"ECHO_BIGQUERY_DATASET" default:"echo"`
	OrderEventsTable string `envconfig:"ECHO_BIGQUERY_ORDER_EVENTS_TABLE" default:"order_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ECHO_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ECHO_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ECHO_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey     string `envconfig:"ECHO_STRIPE_API_KEY"`
	Secret     string `envconfig:"ECHO_STRIPE_SECRET"`
	Env        string `envconfig:"ECHO_STRIPE_ENV" default:"test"`
	SuccessURL string `envconfig:"ECHO_STRIPE_SUCCESS_URL" default:"https://echo.chat/pay/success?order={ORDER_ID}"`
	CancelURL  string `envconfig:"ECHO_STRIPE_CANCEL_URL" default:"https://echo.chat/pay/cancel?order={ORDER_ID}"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Enabled reports whether hosted checkout credentials are present.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

type ShopifyConfig struct {
	AppName       string `envconfig:"ECHO_SHOPIFY_APP_NAME" default:"echo"`
	APIVersion    string `envconfig:"ECHO_SHOPIFY_API_VERSION" default:"2024-10"`
	WebhookSecret string `envconfig:"ECHO_SHOPIFY_WEBHOOK_SECRET"`
}

type CheckoutConfig struct {
	LinkTTL        time.Duration `envconfig:"ECHO_CHECKOUT_LINK_TTL" default:"24h"`
	LinkRateLimit  int           `envconfig:"ECHO_CHECKOUT_LINK_RATE_LIMIT" default:"10"`
	LinkRateWindow time.Duration `envconfig:"ECHO_CHECKOUT_LINK_RATE_WINDOW" default:"1m"`
}

type CronConfig struct {
	Interval             time.Duration `envconfig:"ECHO_CRON_INTERVAL" default:"5m"`
	LockTTL              time.Duration `envconfig:"ECHO_CRON_LOCK_TTL" default:"4m"`
	ReconciliationGrace  time.Duration `envconfig:"ECHO_CRON_RECONCILIATION_GRACE" default:"15m"`
	ReconciliationWindow time.Duration `envconfig:"ECHO_CRON_RECONCILIATION_WINDOW" default:"72h"`
	OutboxRetention      time.Duration `envconfig:"ECHO_CRON_OUTBOX_RETENTION" default:"720h"`
}

var errRedisTargetRequired = errors.New("redis url or address is required")

// RedisTarget validates that some redis endpoint is configured.
func (r RedisConfig) RedisTarget() (string, error) {
	if u := strings.TrimSpace(r.URL); u != "" {
		return u, nil
	}
	if a := strings.TrimSpace(r.Address); a != "" {
		return a, nil
	}
	return "", errRedisTargetRequired
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
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
