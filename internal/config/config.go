package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Redis     RedisConfig
	Store     StoreConfig
	Audit     AuditConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Economy   EconomyConfig
	Admin     AdminConfig
	Jobs      JobsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	MaxBodyBytes    int64         `envconfig:"SERVER_MAX_BODY_BYTES" default:"65536"`
	AllowedOrigins  []string      `envconfig:"SERVER_ALLOWED_ORIGINS" default:"*"`
	TrustProxy      bool          `envconfig:"SERVER_TRUST_PROXY" default:"false"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"lootcase-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	LogLevel    string `envconfig:"APP_LOG_LEVEL" default:"info"`
}

// RedisConfig holds Redis settings. An empty host disables Redis and every
// Redis-backed component falls back to its in-memory form.
type RedisConfig struct {
	Host      string `envconfig:"REDIS_HOST" default:""`
	Port      int    `envconfig:"REDIS_PORT" default:"6379"`
	Password  string `envconfig:"REDIS_PASSWORD" default:""`
	DB        int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"lootcase"`
}

// StoreConfig holds the inventory / player / ledger database settings.
type StoreConfig struct {
	Type string `envconfig:"STORE_DB_TYPE" default:"sqlite"` // sqlite or postgres
	Path string `envconfig:"STORE_DB_PATH" default:"./data/lootcase.db"`
	// PostgreSQL settings
	Host     string `envconfig:"STORE_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"STORE_DB_PORT" default:"5432"`
	Name     string `envconfig:"STORE_DB_NAME" default:"lootcase"`
	User     string `envconfig:"STORE_DB_USER" default:"postgres"`
	Password string `envconfig:"STORE_DB_PASS" default:""`
	SSLMode  string `envconfig:"STORE_DB_SSLMODE" default:"disable"`
	MaxConns int32  `envconfig:"STORE_DB_MAX_CONNS" default:"20"`
}

// AuditConfig holds audit sink settings.
type AuditConfig struct {
	Type      string `envconfig:"AUDIT_DB_TYPE" default:"store"` // store or mysql
	QueueSize int    `envconfig:"AUDIT_QUEUE_SIZE" default:"1024"`
	// MySQL settings
	Host     string `envconfig:"AUDIT_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"AUDIT_DB_PORT" default:"3306"`
	Name     string `envconfig:"AUDIT_DB_NAME" default:"lootcase_audit"`
	User     string `envconfig:"AUDIT_DB_USER" default:"root"`
	Password string `envconfig:"AUDIT_DB_PASS" default:""`
}

// SessionConfig holds session token settings.
type SessionConfig struct {
	Secret string        `envconfig:"SESSION_SECRET" default:""`
	Issuer string        `envconfig:"SESSION_ISSUER" default:"lootcase"`
	TTL    time.Duration `envconfig:"SESSION_TTL" default:"24h"`
}

// RateLimitConfig holds per-action request budgets.
type RateLimitConfig struct {
	Backend        string        `envconfig:"RATE_LIMIT_BACKEND" default:"memory"` // memory or redis
	SellMax        int           `envconfig:"RATE_LIMIT_SELL_MAX" default:"30"`
	SellWindow     time.Duration `envconfig:"RATE_LIMIT_SELL_WINDOW" default:"1m"`
	BulkMax        int           `envconfig:"RATE_LIMIT_BULK_MAX" default:"10"`
	BulkWindow     time.Duration `envconfig:"RATE_LIMIT_BULK_WINDOW" default:"1m"`
	UpgradeMax     int           `envconfig:"RATE_LIMIT_UPGRADE_MAX" default:"10"`
	UpgradeWindow  time.Duration `envconfig:"RATE_LIMIT_UPGRADE_WINDOW" default:"1m"`
	ListMax        int           `envconfig:"RATE_LIMIT_LIST_MAX" default:"60"`
	ListWindow     time.Duration `envconfig:"RATE_LIMIT_LIST_WINDOW" default:"1m"`
	IPMax          int           `envconfig:"RATE_LIMIT_IP_MAX" default:"300"`
	IPWindow       time.Duration `envconfig:"RATE_LIMIT_IP_WINDOW" default:"1m"`
	SweepInterval  time.Duration `envconfig:"RATE_LIMIT_SWEEP_INTERVAL" default:"1m"`
	IdleMultiplier int           `envconfig:"RATE_LIMIT_IDLE_MULTIPLIER" default:"5"`
}

// EconomyConfig holds payout and capacity pricing settings.
type EconomyConfig struct {
	CommissionRate        float64       `envconfig:"ECONOMY_COMMISSION_RATE" default:"0.05"`
	CapacityStart         int           `envconfig:"ECONOMY_CAPACITY_START" default:"50"`
	CapacityStep          int           `envconfig:"ECONOMY_CAPACITY_STEP" default:"10"`
	CapacityMax           int           `envconfig:"ECONOMY_CAPACITY_MAX" default:"500"`
	UpgradeBaseCents      int64         `envconfig:"ECONOMY_UPGRADE_BASE_CENTS" default:"10000"`
	UpgradeIncrementCents int64         `envconfig:"ECONOMY_UPGRADE_INCREMENT_CENTS" default:"5000"`
	ReferralDiscount      int           `envconfig:"ECONOMY_REFERRAL_DISCOUNT" default:"10"`
	SagaTimeout           time.Duration `envconfig:"ECONOMY_SAGA_TIMEOUT" default:"15s"`
	RankCacheTTL          time.Duration `envconfig:"ECONOMY_RANK_CACHE_TTL" default:"30s"`
}

// AdminConfig holds the admin dashboard credentials.
type AdminConfig struct {
	LoginKeyHash string `envconfig:"ADMIN_LOGIN_KEY_HASH" default:""` // argon2id encoded
}

// JobsConfig holds housekeeping schedule settings.
type JobsConfig struct {
	Enabled            bool          `envconfig:"JOBS_ENABLED" default:"true"`
	AuditRetention     time.Duration `envconfig:"JOBS_AUDIT_RETENTION" default:"2160h"`
	AuditPruneSchedule string        `envconfig:"JOBS_AUDIT_PRUNE_SCHEDULE" default:"@daily"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *StoreConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, s.Port, s.Name, s.SSLMode)
}

// IsPostgres reports whether the store runs on PostgreSQL.
func (s *StoreConfig) IsPostgres() bool {
	return s.Type == "postgres" || s.Type == "postgresql"
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Enabled reports whether a Redis host is configured.
func (r *RedisConfig) Enabled() bool {
	return r.Host != ""
}

// Address returns the Redis address in host:port format.
func (r *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// DSN returns the MySQL data source name.
func (a *AuditConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		a.User, a.Password, a.Host, a.Port, a.Name)
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Validate checks settings that envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Store.Type) {
	case "sqlite", "postgres", "postgresql":
	default:
		errs = append(errs, fmt.Errorf("STORE_DB_TYPE %q: want sqlite or postgres", c.Store.Type))
	}
	switch c.Audit.Type {
	case "store", "mysql":
	default:
		errs = append(errs, fmt.Errorf("AUDIT_DB_TYPE %q: want store or mysql", c.Audit.Type))
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled() {
			errs = append(errs, errors.New("RATE_LIMIT_BACKEND=redis requires REDIS_HOST"))
		}
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND %q: want memory or redis", c.RateLimit.Backend))
	}

	if c.IsProductionSecretMissing() {
		errs = append(errs, errors.New("SESSION_SECRET is required in production"))
	}
	if c.Session.Secret != "" && len(c.Session.Secret) < 32 {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 32 bytes"))
	}
	if c.Economy.CommissionRate < 0 || c.Economy.CommissionRate > 1 {
		errs = append(errs, errors.New("ECONOMY_COMMISSION_RATE must be within [0, 1]"))
	}
	if c.Economy.CapacityStep <= 0 || c.Economy.CapacityMax < c.Economy.CapacityStart {
		errs = append(errs, errors.New("ECONOMY_CAPACITY_* settings are inconsistent"))
	}
	if c.Economy.ReferralDiscount < 0 || c.Economy.ReferralDiscount >= 100 {
		errs = append(errs, errors.New("ECONOMY_REFERRAL_DISCOUNT must be within [0, 100)"))
	}
	if c.RateLimit.IdleMultiplier < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_IDLE_MULTIPLIER must be at least 1"))
	}

	return errors.Join(errs...)
}

// IsProductionSecretMissing reports a production deployment without a
// session signing secret.
func (c *Config) IsProductionSecretMissing() bool {
	return c.App.IsProduction() && c.Session.Secret == ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Store.Type = strings.ToLower(cfg.Store.Type)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
