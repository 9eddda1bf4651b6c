package config

// EnvPrefix is passed to envconfig; individual fields carry explicit names so
// the prefix only matters for fields without one.
const EnvPrefix = "KIWISHA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "KIWISHA_APP_ENV"
	EnvPort     = "KIWISHA_APP_PORT"
	EnvDBDSN    = "KIWISHA_DB_DSN"
	EnvDBHost   = "KIWISHA_DB_HOST"
	EnvDBUser   = "KIWISHA_DB_USER"
	EnvDBName   = "KIWISHA_DB_NAME"
	EnvRedisURL = "KIWISHA_REDIS_URL"

	EnvCheckoutBaseURL = "KIWISHA_CHECKOUT_BASE_URL"

	EnvMercadoPagoAccessToken = "KIWISHA_MERCADOPAGO_ACCESS_TOKEN"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
