package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the engine reads.
	EnvPrefix = "TINDAGO"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Checkout      CheckoutConfig
	Chat          ChatConfig
	Xendit        XenditConfig
	PayMongo      PayMongoConfig
	Notify        NotifyConfig
	Sweeper       SweeperConfig
	System        SystemConfig
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
	Env          string `envconfig:"TINDAGO_APP_ENV" required:"true"`
	Port         string `envconfig:"TINDAGO_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TINDAGO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TINDAGO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"TINDAGO_DB_DSN"`
	Driver string `envconfig:"TINDAGO_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"TINDAGO_DB_HOST"`
	Port     int    `envconfig:"TINDAGO_DB_PORT" default:"5432"`
	User     string `envconfig:"TINDAGO_DB_USER"`
	Password string `envconfig:"TINDAGO_DB_PASSWORD"`
	Name     string `envconfig:"TINDAGO_DB_NAME"`
	SSLMode  string `envconfig:"TINDAGO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TINDAGO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TINDAGO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TINDAGO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TINDAGO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	var missing []string
	if db.Host == "" {
		missing = append(missing, "TINDAGO_DB_HOST")
	}
	if db.User == "" {
		missing = append(missing, "TINDAGO_DB_USER")
	}
	if db.Name == "" {
		missing = append(missing, "TINDAGO_DB_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("either TINDAGO_DB_DSN or %s are required", strings.Join(missing, ", "))
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

type RedisConfig struct {
	URL          string        `envconfig:"TINDAGO_REDIS_URL"`
	Address      string        `envconfig:"TINDAGO_REDIS_ADDR"`
	Password     string        `envconfig:"TINDAGO_REDIS_PASSWORD"`
	DB           int           `envconfig:"TINDAGO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TINDAGO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TINDAGO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TINDAGO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TINDAGO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TINDAGO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TINDAGO_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TINDAGO_JWT_ISSUER" default:"tindago"`
	ExpirationMinutes int    `envconfig:"TINDAGO_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenDays  int    `envconfig:"TINDAGO_JWT_REFRESH_TOKEN_DAYS" default:"30"`
}

// RefreshTokenTTL returns the refresh token lifetime.
func (c JWTConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenDays) * 24 * time.Hour
}

// AuthRateLimitConfig throttles login attempts per source IP and per
// target email. A zero window disables the limiter.
type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"TINDAGO_AUTH_LOGIN_WINDOW" default:"10m"`
	LoginIPLimit    int           `envconfig:"TINDAGO_AUTH_LOGIN_IP_LIMIT" default:"20"`
	LoginEmailLimit int           `envconfig:"TINDAGO_AUTH_LOGIN_EMAIL_LIMIT" default:"8"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TINDAGO_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TINDAGO_AUTO_MIGRATE" default:"false"`
}

// CheckoutConfig bounds the checkout session guard.
type CheckoutConfig struct {
	SessionTTL        time.Duration `envconfig:"TINDAGO_CHECKOUT_SESSION_TTL" default:"24h"`
	AttemptLimit      int           `envconfig:"TINDAGO_CHECKOUT_ATTEMPT_LIMIT" default:"5"`
	AttemptWindow     time.Duration `envconfig:"TINDAGO_CHECKOUT_ATTEMPT_WINDOW" default:"15m"`
	EmbeddedItemLimit int           `envconfig:"TINDAGO_ORDER_EMBEDDED_ITEM_LIMIT" default:"10"`
}

// ChatConfig bounds the conversational order flow.
type ChatConfig struct {
	RelayKey      string        `envconfig:"TINDAGO_CHAT_RELAY_KEY"`
	OTPTTL        time.Duration `envconfig:"TINDAGO_CHAT_OTP_TTL" default:"10m"`
	OTPMaxRetries int           `envconfig:"TINDAGO_CHAT_OTP_MAX_RETRIES" default:"3"`
	IdleTimeout   time.Duration `envconfig:"TINDAGO_CHAT_IDLE_TIMEOUT" default:"10m"`
	SessionTTL    time.Duration `envconfig:"TINDAGO_CHAT_SESSION_TTL" default:"30m"`
}

type XenditConfig struct {
	APIKey          string        `envconfig:"TINDAGO_XENDIT_API_KEY"`
	CallbackToken   string        `envconfig:"TINDAGO_XENDIT_CALLBACK_TOKEN"`
	BaseURL         string        `envconfig:"TINDAGO_XENDIT_BASE_URL" default:"https://api.xendit.co"`
	InvoiceDuration time.Duration `envconfig:"TINDAGO_XENDIT_INVOICE_DURATION" default:"24h"`
}

type PayMongoConfig struct {
	SecretKey     string `envconfig:"TINDAGO_PAYMONGO_SECRET_KEY"`
	WebhookSecret string `envconfig:"TINDAGO_PAYMONGO_WEBHOOK_SECRET"`
	BaseURL       string `envconfig:"TINDAGO_PAYMONGO_BASE_URL" default:"https://api.paymongo.com"`
	LiveMode      bool   `envconfig:"TINDAGO_PAYMONGO_LIVE_MODE" default:"false"`
}

// NotifyConfig points at the relay that delivers queued notifications.
type NotifyConfig struct {
	RelayEndpoint string `envconfig:"TINDAGO_NOTIFY_RELAY_ENDPOINT"`
	RelayAPIKey   string `envconfig:"TINDAGO_NOTIFY_RELAY_API_KEY"`
	DispatchBatch int    `envconfig:"TINDAGO_NOTIFY_DISPATCH_BATCH" default:"50"`
}

// SweeperConfig paces the background maintenance loop.
type SweeperConfig struct {
	Interval       time.Duration `envconfig:"TINDAGO_SWEEPER_INTERVAL" default:"1m"`
	StuckIntentAge time.Duration `envconfig:"TINDAGO_SWEEPER_STUCK_INTENT_AGE" default:"5m"`
}

// SystemConfig identifies the well-known system principal used to attribute
// automated transitions. Resolved once at startup, never queried per call.
type SystemConfig struct {
	ActorID string `envconfig:"TINDAGO_SYSTEM_ACTOR_ID" required:"true"`
}
