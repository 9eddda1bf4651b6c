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
	DB           DBConfig
	Redis        RedisConfig
	Checkout     CheckoutConfig
	MercadoPago  MercadoPagoConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KIWISHA_APP_ENV" required:"true"`
	Port         string `envconfig:"KIWISHA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"KIWISHA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KIWISHA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"KIWISHA_DB_DSN"`
	Driver string `envconfig:"KIWISHA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"KIWISHA_DB_HOST"`
	LegacyPort     int    `envconfig:"KIWISHA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"KIWISHA_DB_USER"`
	LegacyPassword string `envconfig:"KIWISHA_DB_PASSWORD"`
	LegacyName     string `envconfig:"KIWISHA_DB_NAME"`
	LegacySSLMode  string `envconfig:"KIWISHA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KIWISHA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KIWISHA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KIWISHA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KIWISHA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KIWISHA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"KIWISHA_REDIS_ADDR"`
	Password     string        `envconfig:"KIWISHA_REDIS_PASSWORD"`
	DB           int           `envconfig:"KIWISHA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KIWISHA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KIWISHA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KIWISHA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KIWISHA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KIWISHA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// CheckoutConfig carries the storefront-facing URLs the payment flow needs.
type CheckoutConfig struct {
	// BaseURL is where the gateway sends buyers back after paying.
	BaseURL string `envconfig:"KIWISHA_CHECKOUT_BASE_URL" required:"true"`
}

type MercadoPagoConfig struct {
	AccessToken string        `envconfig:"KIWISHA_MERCADOPAGO_ACCESS_TOKEN"`
	PublicKey   string        `envconfig:"KIWISHA_MERCADOPAGO_PUBLIC_KEY"`
	Currency    string        `envconfig:"KIWISHA_MERCADOPAGO_CURRENCY" default:"PEN"`
	Environment string        `envconfig:"KIWISHA_MERCADOPAGO_ENV" default:"auto"`
	BaseURL     string        `envconfig:"KIWISHA_MERCADOPAGO_BASE_URL" default:"https://api.mercadopago.com"`
	Timeout     time.Duration `envconfig:"KIWISHA_MERCADOPAGO_TIMEOUT" default:"10s"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"KIWISHA_CRON_INTERVAL" default:"1m"`
	LockTTL         time.Duration `envconfig:"KIWISHA_CRON_LOCK_TTL" default:"5m"`
	PendingOrderTTL time.Duration `envconfig:"KIWISHA_ORDER_PENDING_TTL" default:"72h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"KIWISHA_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
