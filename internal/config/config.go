// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// defaultJWTSecret is the fixed development signing secret. It is
// deterministic on purpose: a freshly generated random secret would
// invalidate every outstanding token on restart. Production deployments
// must set JWT_SECRET.
const defaultJWTSecret = "supplygate-dev-jwt-secret-do-not-use-in-production-0123456789"

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL of this API.
	BaseURL string

	// FrontendURL is the web client origin, used for CORS and for building
	// password-reset links.
	FrontendURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Auth holds token and challenge lifetimes plus the signing secret.
	Auth AuthConfig

	// SMTP holds outbound mail settings.
	SMTP SMTPConfig
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields are
// read from separate env vars so container orchestrators can manage each
// independently. If DATABASE_URL is set, it takes precedence.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	// User is the MariaDB username (default: "supplygate").
	User string

	// Password is the MariaDB password (default: "supplygate").
	Password string

	// Name is the database name (default: "supplygate").
	Name string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// fields using the driver's Config.FormatDSN() to safely handle special
// characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// JWTSecret signs access and refresh tokens. Required in production;
	// a fixed development default is substituted otherwise.
	JWTSecret string

	// AccessTokenTTL is the access token lifetime (default 30m).
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is the refresh token lifetime (default 168h).
	RefreshTokenTTL time.Duration

	// TwoFactorTTL is how long an emailed verification code stays valid.
	TwoFactorTTL time.Duration

	// TwoFactorMaxAttempts caps wrong-code guesses per challenge.
	TwoFactorMaxAttempts int

	// ResetTokenTTL is the password-reset link lifetime.
	ResetTokenTTL time.Duration
}

// SMTPConfig holds outbound mail settings. Mail is optional in development:
// with an empty Host the sender reports itself unconfigured and callers
// decide whether that is fatal.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string

	// Encryption is "starttls" (default), "ssl", or "none".
	Encryption string
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{
		Env:         getEnv("ENV", "development"),
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		LogLevel:    getEnv("LOG_LEVEL", "debug"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "supplygate"),
			Password:        getEnv("DB_PASSWORD", "supplygate"),
			Name:            getEnv("DB_NAME", "supplygate"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Auth: AuthConfig{
			JWTSecret:            getEnv("JWT_SECRET", ""),
			AccessTokenTTL:       getEnvDuration("ACCESS_TOKEN_TTL", 30*time.Minute),
			RefreshTokenTTL:      getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
			TwoFactorTTL:         getEnvDuration("TWO_FACTOR_TTL", 10*time.Minute),
			TwoFactorMaxAttempts: getEnvInt("TWO_FACTOR_MAX_ATTEMPTS", 5),
			ResetTokenTTL:        getEnvDuration("RESET_TOKEN_TTL", time.Hour),
		},

		SMTP: SMTPConfig{
			Host:        getEnv("SMTP_HOST", ""),
			Port:        getEnvInt("SMTP_PORT", 587),
			Username:    getEnv("SMTP_USERNAME", ""),
			Password:    getEnv("SMTP_PASSWORD", ""),
			FromAddress: getEnv("SMTP_FROM_ADDRESS", "no-reply@supplygate.local"),
			FromName:    getEnv("SMTP_FROM_NAME", "Supply Gate Platform"),
			Encryption:  getEnv("SMTP_ENCRYPTION", "starttls"),
		},
	}

	// Validate required fields in production. Case-insensitive check catches
	// common variants like "Production", "prod", etc.
	envLower := strings.ToLower(cfg.Env)
	if envLower == "production" || envLower == "prod" {
		if cfg.Auth.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
	}

	if cfg.Auth.JWTSecret == "" {
		// Fixed rather than random so tokens stay valid across restarts
		// during development.
		slog.Warn("JWT_SECRET is not set; using the fixed development secret. " +
			"All tokens signed with it are forgeable. Set JWT_SECRET before deploying.")
		cfg.Auth.JWTSecret = defaultJWTSecret
	} else if len(cfg.Auth.JWTSecret) < 32 {
		slog.Warn("JWT_SECRET is shorter than the recommended 32 bytes; it will be stretched to the minimum key length",
			slog.Int("length", len(cfg.Auth.JWTSecret)),
		)
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "30m") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
