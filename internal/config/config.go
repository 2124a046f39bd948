package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wellness/booking/internal/domain/availability"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	AuthMode          string        `mapstructure:"AUTH_MODE"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	BookingAPIURL     string        `mapstructure:"BOOKING_API_URL"`
	BookingAPITimeout time.Duration `mapstructure:"BOOKING_API_TIMEOUT"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	WorkdayOpen       string        `mapstructure:"WORKDAY_OPEN"`
	WorkdayClose      string        `mapstructure:"WORKDAY_CLOSE"`
	SlotStepMinutes   int           `mapstructure:"SLOT_STEP_MINUTES"`
	Timezone          string        `mapstructure:"TIMEZONE"`
	AuthSigningKey    string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer        string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience      string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	CatalogCacheSize  int           `mapstructure:"CATALOG_CACHE_SIZE"`
	CatalogCacheTTL   time.Duration `mapstructure:"CATALOG_CACHE_TTL"`
	BodyLimit         string        `mapstructure:"BODY_LIMIT"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	TLSEnabled        bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile       string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile        string        `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "LOG_LEVEL",
	"BOOKING_API_URL", "BOOKING_API_TIMEOUT",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"WORKDAY_OPEN", "WORKDAY_CLOSE", "SLOT_STEP_MINUTES", "TIMEZONE",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"CORS_ORIGINS", "CATALOG_CACHE_SIZE", "CATALOG_CACHE_TTL", "BODY_LIMIT",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // inferred from ENV
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("BOOKING_API_TIMEOUT", "10s")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("WORKDAY_OPEN", "08:00")
	v.SetDefault("WORKDAY_CLOSE", "21:00")
	v.SetDefault("SLOT_STEP_MINUTES", availability.DefaultStepMinutes)
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("AUTH_ISSUER", "booking-portal")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("CATALOG_CACHE_SIZE", 256)
	v.SetDefault("CATALOG_CACHE_TTL", "5m")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("RATE_LIMIT_RPS", 1)
	v.SetDefault("RATE_LIMIT_BURST", 5)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if cfg.BookingAPIURL == "" {
		return nil, fmt.Errorf("BOOKING_API_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise ENV=development gives "development" (the
// X-Dev-* headers pick the session) and anything else gives "jwt".
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// Window parses the daily working window.
func (c *Config) Window() (availability.Window, error) {
	return availability.ParseWindow(c.WorkdayOpen, c.WorkdayClose)
}

// Location loads the zone slot grids are computed in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SlotStep returns the slot grid step.
func (c *Config) SlotStep() time.Duration {
	return time.Duration(c.SlotStepMinutes) * time.Minute
}

// Validate checks that the configuration is safe to run. The slot grid
// settings must parse, and outside development a signing key must be set so
// that sessions are verified.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "jwt" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}
	if mode == "jwt" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when AUTH_MODE is \"jwt\" (current ENV=%q)", c.Env)
	}
	if c.IsProduction() && mode == "development" {
		return fmt.Errorf("AUTH_MODE=development is not allowed in production")
	}
	if c.IsProduction() && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes in production")
	}

	u, err := url.Parse(c.BookingAPIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BOOKING_API_URL %q is not an absolute URL", c.BookingAPIURL)
	}
	if c.BookingAPITimeout <= 0 {
		return fmt.Errorf("BOOKING_API_TIMEOUT must be positive")
	}

	if _, err := c.Window(); err != nil {
		return fmt.Errorf("WORKDAY_OPEN/WORKDAY_CLOSE: %w", err)
	}
	if c.SlotStepMinutes <= 0 || c.SlotStepMinutes > 24*60 {
		return fmt.Errorf("SLOT_STEP_MINUTES must be between 1 and 1440, got %d", c.SlotStepMinutes)
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.CatalogCacheSize <= 0 {
		return fmt.Errorf("CATALOG_CACHE_SIZE must be positive")
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
