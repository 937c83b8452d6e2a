package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pratik-mahalle/bibleplan/internal/domain/entitlement"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	Entitlement EntitlementConfig
	Billing     BillingConfig
	Chat        ChatConfig
	Analytics   AnalyticsConfig
	RateLimit   RateLimitConfig
	Logging     LoggingConfig
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	FrontendURL     string
	Environment     string
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// For SQLite
	Path string
}

// AuthConfig describes how identity provider tokens are verified. When
// JWKSURL is set tokens are checked against the provider's published keys,
// otherwise against the shared HS256 secret.
type AuthConfig struct {
	JWTSecret         string
	JWKSURL           string
	JWKSRefresh       time.Duration
	AccessTokenExpiry time.Duration
}

// EntitlementConfig is the product configuration of the credit engine
type EntitlementConfig struct {
	DailyAllowance     int
	ActionTypes        []entitlement.ActionType
	PromoCodes         []entitlement.PromoCode
	MaxConsumeAttempts int
}

// BillingConfig contains payment processor settings
type BillingConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceID       string
	SuccessURL          string
	CancelURL           string
}

// ChatConfig contains LLM chat companion settings
type ChatConfig struct {
	OpenAIAPIKey string
	Model        string
	MaxTokens    int
	SystemPrompt string
	Timeout      time.Duration
}

// AnalyticsConfig controls the usage rollup worker
type AnalyticsConfig struct {
	RollupEnabled  bool
	RollupSchedule string
}

// RateLimitConfig contains request rate limits
type RateLimitConfig struct {
	RequestsPerSecond     float64
	Burst                 int
	UserRequestsPerSecond float64
	UserBurst             int
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

const defaultSystemPrompt = "You are a warm, knowledgeable Bible study companion. " +
	"Answer questions about scripture with care, cite chapter and verse where you can, " +
	"and keep replies concise."

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors as it's optional)
	_ = godotenv.Load()

	codes, err := parsePromoCodes(getEnv("PROMO_CODES", "BBP4LIFE"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:5173"),
			Environment:     getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "bibleplan"),
			User:            getEnv("DB_USER", ""),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			Path:            getEnv("DB_PATH", "./data.db"),
		},
		Auth: AuthConfig{
			JWTSecret:         getEnv("JWT_SECRET", ""),
			JWKSURL:           getEnv("AUTH_JWKS_URL", ""),
			JWKSRefresh:       getEnvAsDuration("AUTH_JWKS_REFRESH", time.Hour),
			AccessTokenExpiry: getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		},
		Entitlement: EntitlementConfig{
			DailyAllowance:     getEnvAsInt("DAILY_CREDIT_ALLOWANCE", entitlement.DefaultDailyAllowance),
			ActionTypes:        parseActionTypes(getEnv("ENTITLEMENT_ACTION_TYPES", "")),
			PromoCodes:         codes,
			MaxConsumeAttempts: getEnvAsInt("CONSUME_MAX_ATTEMPTS", 3),
		},
		Billing: BillingConfig{
			StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			StripePriceID:       getEnv("STRIPE_PRICE_ID", ""),
			SuccessURL:          getEnv("STRIPE_SUCCESS_URL", "http://localhost:5173/account?upgraded=1"),
			CancelURL:           getEnv("STRIPE_CANCEL_URL", "http://localhost:5173/pricing"),
		},
		Chat: ChatConfig{
			OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
			Model:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			MaxTokens:    getEnvAsInt("OPENAI_MAX_TOKENS", 600),
			SystemPrompt: getEnv("CHAT_SYSTEM_PROMPT", defaultSystemPrompt),
			Timeout:      getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		Analytics: AnalyticsConfig{
			RollupEnabled:  getEnvAsBool("USAGE_ROLLUP_ENABLED", true),
			RollupSchedule: getEnv("USAGE_ROLLUP_SCHEDULE", "5 0 * * *"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond:     getEnvAsFloat("RATE_LIMIT_RPS", 100),
			Burst:                 getEnvAsInt("RATE_LIMIT_BURST", 200),
			UserRequestsPerSecond: getEnvAsFloat("USER_RATE_LIMIT_RPS", 2),
			UserBurst:             getEnvAsInt("USER_RATE_LIMIT_BURST", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Auth.JWKSURL == "" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("either JWT_SECRET or AUTH_JWKS_URL must be set")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Entitlement.DailyAllowance < 1 {
		return fmt.Errorf("DAILY_CREDIT_ALLOWANCE must be at least 1, got %d", c.Entitlement.DailyAllowance)
	}

	if c.Entitlement.MaxConsumeAttempts < 1 {
		return fmt.Errorf("CONSUME_MAX_ATTEMPTS must be at least 1, got %d", c.Entitlement.MaxConsumeAttempts)
	}

	if c.Analytics.RollupEnabled {
		if _, err := cron.ParseStandard(c.Analytics.RollupSchedule); err != nil {
			return fmt.Errorf("invalid USAGE_ROLLUP_SCHEDULE: %w", err)
		}
	}

	return nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

func parseActionTypes(raw string) []entitlement.ActionType {
	if strings.TrimSpace(raw) == "" {
		return append([]entitlement.ActionType(nil), entitlement.DefaultActionTypes...)
	}
	var out []entitlement.ActionType
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, entitlement.ActionType(part))
		}
	}
	return out
}

func parsePromoCodes(raw string) ([]entitlement.PromoCode, error) {
	var out []entitlement.PromoCode
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		pc, err := entitlement.ParsePromoCode(part)
		if err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
