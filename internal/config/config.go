package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Env       string
	Database  DatabaseConfig
	HTTP      HTTPConfig
	GRPC      GRPCConfig
	Auth      AuthConfig
	Log       LogConfig
	Lending   LendingConfig
	Kafka     KafkaConfig
	RateLimit RateLimitConfig
}

// DatabaseConfig contains database-related settings.
type DatabaseConfig struct {
	Path string // SQLite database file path or DSN
}

// HTTPConfig contains REST server settings.
type HTTPConfig struct {
	Address string // e.g. ":8080"
}

// GRPCConfig contains gRPC server settings.
type GRPCConfig struct {
	Address string // gRPC server listen address (e.g., ":50051")
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	JWTSecret string        // JWT signing secret
	TokenTTL  time.Duration // lifetime of issued access tokens
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string
}

// LendingConfig holds the borrowing policy.
type LendingConfig struct {
	MaxActiveBorrowings int
	LoanPeriod          time.Duration
	RenewalPeriod       time.Duration
	MaxRenewals         int           // 0 disables the cap
	SweepInterval       time.Duration // 0 disables the in-process overdue sweeper
}

// KafkaConfig configures the lending event publisher. Empty Brokers disables publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// RateLimitConfig configures the login limiter. Empty RedisAddr disables it.
type RateLimitConfig struct {
	RedisAddr   string
	LoginLimit  int
	LoginWindow time.Duration
}

// Load loads configuration from environment variables (and an optional .env
// file) with sensible defaults. JWT_SECRET is mandatory.
func Load() (*Config, error) {
	cfg, err := load("")
	if err != nil {
		return nil, err
	}

	// Validate critical settings
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set; required for production")
	}
	return cfg, nil
}

// LoadWithDefaults is like Load but uses a safe default for JWT_SECRET in development.
// WARNING: Only use in development! Use Load() in production.
func LoadWithDefaults() (*Config, error) {
	return load("dev-secret-change-me")
}

func load(defaultSecret string) (*Config, error) {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Env: strings.ToLower(getEnv("APP_ENV", "development")),
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "lending.db"),
		},
		HTTP: HTTPConfig{
			Address: getEnv("HTTP_ADDRESS", ":8080"),
		},
		GRPC: GRPCConfig{
			Address: getEnv("GRPC_ADDRESS", ":50051"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", defaultSecret),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "lending.events"),
		},
		RateLimit: RateLimitConfig{
			RedisAddr: getEnv("REDIS_ADDR", ""),
		},
	}

	var err error
	if cfg.Auth.TokenTTL, err = getEnvDuration("JWT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Lending.MaxActiveBorrowings, err = getEnvInt("LENDING_MAX_ACTIVE", 5); err != nil {
		return nil, err
	}
	loanDays, err := getEnvInt("LENDING_LOAN_DAYS", 14)
	if err != nil {
		return nil, err
	}
	renewDays, err := getEnvInt("LENDING_RENEW_DAYS", 14)
	if err != nil {
		return nil, err
	}
	cfg.Lending.LoanPeriod = time.Duration(loanDays) * 24 * time.Hour
	cfg.Lending.RenewalPeriod = time.Duration(renewDays) * 24 * time.Hour
	if cfg.Lending.MaxRenewals, err = getEnvInt("LENDING_MAX_RENEWALS", 0); err != nil {
		return nil, err
	}
	if cfg.Lending.SweepInterval, err = getEnvDuration("OVERDUE_SWEEP_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimit.LoginLimit, err = getEnvInt("LOGIN_RATE_LIMIT", 10); err != nil {
		return nil, err
	}
	if cfg.RateLimit.LoginWindow, err = getEnvDuration("LOGIN_RATE_WINDOW", time.Minute); err != nil {
		return nil, err
	}

	if cfg.Lending.MaxActiveBorrowings <= 0 {
		return nil, fmt.Errorf("LENDING_MAX_ACTIVE must be positive, got %d", cfg.Lending.MaxActiveBorrowings)
	}
	if loanDays <= 0 || renewDays <= 0 {
		return nil, fmt.Errorf("LENDING_LOAN_DAYS and LENDING_RENEW_DAYS must be positive")
	}
	return cfg, nil
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// getEnvInt retrieves an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) (int, error) {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return intVal, nil
	}
	return defaultVal, nil
}

// getEnvDuration retrieves an environment variable as a time.Duration ("90s", "1h").
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		return d, nil
	}
	return defaultVal, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, DB: %s, HTTP: %s, gRPC: %s, Auth: *** (masked) ***, Kafka: %v, Redis: %q}",
		c.Env, c.Database.Path, c.HTTP.Address, c.GRPC.Address, c.Kafka.Brokers, c.RateLimit.RedisAddr)
}
