package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Auth     AuthConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	WhatsApp WhatsAppConfig
	Audit    AuditConfig
}

type AuthConfig struct {
	JWTSecret            string        `env:"JWT_SECRET, required"`
	TokenTTL             time.Duration `env:"JWT_TTL,                default=168h"`
	BcryptCost           int           `env:"BCRYPT_COST,            default=12"`
	TrialDays            int           `env:"TRIAL_DAYS,             default=7"`
	PaymentWebhookSecret string        `env:"PAYMENT_WEBHOOK_SECRET"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=zaphost"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

type WhatsAppConfig struct {
	StoreDir         string        `env:"WHATSAPP_STORE_DIR,        default=./data/whatsapp"`
	ChallengeTimeout time.Duration `env:"SESSION_CHALLENGE_TIMEOUT, default=60s"`
	SendTimeout      time.Duration `env:"SESSION_SEND_TIMEOUT,      default=30s"`
}

type AuditConfig struct {
	Workers int `env:"AUDIT_WORKERS, default=4"`
}

// IsDevelopment reports whether the service runs with developer defaults
// (pretty logs, relaxed CORS).
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// TrialPeriod is TrialDays as a duration.
func (c *Config) TrialPeriod() time.Duration {
	return time.Duration(c.Auth.TrialDays) * 24 * time.Hour
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.Auth.TrialDays <= 0 {
		return nil, fmt.Errorf("config: TRIAL_DAYS must be positive, got %d", cfg.Auth.TrialDays)
	}
	return &cfg, nil
}
