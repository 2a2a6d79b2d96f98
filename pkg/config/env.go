package config

const (
	EnvPrefix = "ECHO"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "ECHO_APP_ENV"
	EnvPort         = "ECHO_APP_PORT"
	EnvLogLevel     = "ECHO_LOG_LEVEL"
	EnvDBDSN        = "ECHO_DB_DSN"
	EnvDBHost       = "ECHO_DB_HOST"
	EnvDBUser       = "ECHO_DB_USER"
	EnvDBName       = "ECHO_DB_NAME"
	EnvDBPassword   = "ECHO_DB_PASSWORD"
	EnvRedisURL     = "ECHO_REDIS_URL"
	EnvJWTSecret    = "ECHO_JWT_SECRET"
	EnvJWTIssuer    = "ECHO_JWT_ISSUER"
	EnvStripeAPIKey = "ECHO_STRIPE_API_KEY"
	EnvStripeSecret = "ECHO_STRIPE_SECRET"
	EnvCheckoutTTL  = "ECHO_CHECKOUT_LINK_TTL"
	EnvTasksTopic   = "ECHO_PUBSUB_TASKS_TOPIC"
	EnvCORSOrigins  = "ECHO_CORS_ALLOWED_ORIGINS"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
