package config

// EnvPrefix is handed to envconfig; every field carries an explicit name so it only
// matters for envconfig's usage output.
const EnvPrefix = "LUXE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	OTPDelivererAMQP = "amqp"
	OTPDelivererLog  = "log"
)

const (
	EnvAppEnv        = "LUXE_APP_ENV"
	EnvPort          = "LUXE_APP_PORT"
	EnvDBDSN         = "LUXE_DB_DSN"
	EnvDBHost        = "LUXE_DB_HOST"
	EnvDBUser        = "LUXE_DB_USER"
	EnvDBName        = "LUXE_DB_NAME"
	EnvSQLitePath    = "LUXE_SQLITE_PATH"
	EnvUseSQLite     = "LUXE_USE_SQLITE"
	EnvRedisURL      = "LUXE_REDIS_URL"
	EnvJWTSecret     = "LUXE_JWT_SECRET"
	EnvJWTIssuer     = "LUXE_JWT_ISSUER"
	EnvOTPLength     = "LUXE_OTP_LENGTH"
	EnvOTPTTL        = "LUXE_OTP_TTL"
	EnvOTPPendingTTL = "LUXE_OTP_PENDING_TTL"
	EnvOTPDeliverer  = "LUXE_OTP_DELIVERER"
	EnvCORSOrigins   = "LUXE_CORS_ALLOWED_ORIGINS"
)

var componentDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
