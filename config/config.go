package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds everything the arena service reads from the environment.
type Config struct {
	Port             string   `env:"PORT" envDefault:"5200"`
	DatabaseDriver   string   `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL      string   `env:"DATABASE_URL"`
	GameServiceToken string   `env:"GAME_SERVICE_TOKEN"`
	AllowedOrigins   []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	DefaultEntryFee decimal.Decimal `env:"DEFAULT_ENTRY_FEE" envDefault:"1"`
	DefaultRounds   int             `env:"DEFAULT_ROUNDS" envDefault:"5"`
	HouseFeePercent decimal.Decimal `env:"HOUSE_FEE_PERCENT" envDefault:"0"`

	RoundTimeout        time.Duration `env:"ROUND_TIMEOUT" envDefault:"2m"`
	EntryTimeout        time.Duration `env:"ENTRY_TIMEOUT" envDefault:"10m"`
	QueueTicketTTL      time.Duration `env:"QUEUE_TICKET_TTL" envDefault:"15m"`
	PayoutRetryInterval time.Duration `env:"PAYOUT_RETRY_INTERVAL" envDefault:"30s"`
	PayoutClaimTTL      time.Duration `env:"PAYOUT_CLAIM_TTL" envDefault:"2m"`
	SweepInterval       time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`

	WalletServiceURL string `env:"WALLET_SERVICE_URL"`
	RedisURL         string `env:"REDIS_URL"`

	R2AccountID       string `env:"R2_ACCOUNT_ID"`
	R2AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	R2AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	R2BucketName      string `env:"R2_BUCKET_NAME"`
	CDNBaseURL        string `env:"CDN_BASE_URL"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️  No .env file found, using environment only")
	}
	return Parse()
}

// Parse reads the process environment into a validated Config.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver)
	}
	if c.DatabaseDriver == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for postgres")
	}
	if c.DefaultRounds < 1 || c.DefaultRounds%2 == 0 {
		return fmt.Errorf("DEFAULT_ROUNDS must be a positive odd number, got %d", c.DefaultRounds)
	}
	if c.DefaultEntryFee.IsNegative() {
		return fmt.Errorf("DEFAULT_ENTRY_FEE must not be negative")
	}
	if c.HouseFeePercent.IsNegative() || c.HouseFeePercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("HOUSE_FEE_PERCENT must be in [0, 100)")
	}
	for _, d := range []time.Duration{c.RoundTimeout, c.EntryTimeout, c.QueueTicketTTL, c.PayoutRetryInterval, c.PayoutClaimTTL, c.SweepInterval} {
		if d <= 0 {
			return fmt.Errorf("timeouts and intervals must be positive")
		}
	}
	return nil
}

// R2Enabled reports whether match transcripts should be archived.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2AccessKeySecret != "" && c.R2BucketName != ""
}

// Origins joins ALLOWED_ORIGINS for fiber's CORS middleware.
func (c *Config) Origins() string {
	if len(c.AllowedOrigins) == 0 {
		return "http://localhost:3000"
	}
	return strings.Join(c.AllowedOrigins, ",")
}
