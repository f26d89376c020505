package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/Taro112233/mederror/pkg/config"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Config holds all configuration for the mederror API service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"mederror"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"mederror_secret"`
	PostgresDB   string `env:"POSTGRES_DB_NAME" envDefault:"mederror_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT
	JWTSecret string `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`

	// Session lifetimes
	SessionTTLLogin      time.Duration `env:"SESSION_TTL_LOGIN" envDefault:"2h"`
	SessionTTLRefresh    time.Duration `env:"SESSION_TTL_REFRESH" envDefault:"1h"`
	SessionTTLOnboarding time.Duration `env:"SESSION_TTL_ONBOARDING" envDefault:"1h"`
	RefreshTokenTTL      time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"336h"`
	SecurityTokenTTL     time.Duration `env:"SECURITY_TOKEN_TTL" envDefault:"15m"`
	InactivityTimeout    time.Duration `env:"INACTIVITY_TIMEOUT" envDefault:"2h"`

	// Cookies
	CookieDomain string `env:"COOKIE_DOMAIN" envDefault:""`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Tracing
	TracingEnabled  bool    `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint    string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TraceSampleRate float64 `env:"TRACE_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}

	// In non-development environments, require an explicitly set, strong JWT secret.
	if cfg.Environment != "development" {
		if cfg.JWTSecret == defaultJWTSecret {
			return nil, fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", cfg.Environment)
		}
		if len(cfg.JWTSecret) < 32 {
			return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(cfg.JWTSecret))
		}
	}

	if cfg.InactivityTimeout <= 0 {
		return nil, fmt.Errorf("INACTIVITY_TIMEOUT must be positive, got %s", cfg.InactivityTimeout)
	}
	if cfg.RefreshTokenTTL <= cfg.SessionTTLLogin {
		return nil, fmt.Errorf("REFRESH_TOKEN_TTL (%s) must exceed SESSION_TTL_LOGIN (%s)", cfg.RefreshTokenTTL, cfg.SessionTTLLogin)
	}

	return cfg, nil
}

// IsDevelopment reports whether the service runs in development mode.
// Cookies are issued without the Secure attribute only in development.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}
