// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// AppConfig provides application-wide settings.
type AppConfig interface {
	GetEnv() string
}

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// RedisConfig provides Redis connection settings.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the asynq maintenance scheduler.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// QueueConfig provides settings for the delivery queue and its worker pool.
type QueueConfig interface {
	GetQueueConcurrency() int
	GetQueueMaxAttempts() int
	GetQueueRetryDelays() []time.Duration
	GetQueueVisibilityTimeout() time.Duration
	GetQueuePollInterval() time.Duration
	GetQueueDeadLetterRetention() time.Duration
	GetQueuePurgeAge() time.Duration
}

// DeliveryConfig provides settings for outbound delivery channels.
type DeliveryConfig interface {
	GetWebhookTimeout() time.Duration
}

// EmailConfig provides settings for the email delivery channel.
type EmailConfig interface {
	GetEmailProvider() string
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// SMSConfig provides settings for the SMS delivery channel.
type SMSConfig interface {
	GetSMSProvider() string
	GetSMSGatewayURL() string
	GetSMSGatewayAPIKey() string
	GetSMSFromNumber() string
}

// RateLimitConfig provides settings for request rate limiting.
type RateLimitConfig interface {
	GetRateLimitEnabled() bool
	GetRateLimitRequests() int
	GetRateLimitWindow() time.Duration
	GetRateLimitExemptPaths() []string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env      string
	HTTPAddr string

	DatabaseURL string

	RedisURL         string
	RedisTLSInsecure bool

	AsynqQueueName   string
	AsynqConcurrency int

	QueueConcurrency         int
	QueueMaxAttempts         int
	QueueRetryDelays         []time.Duration
	QueueVisibilityTimeout   time.Duration
	QueuePollInterval        time.Duration
	QueueDeadLetterRetention time.Duration
	QueuePurgeAge            time.Duration

	WebhookTimeout time.Duration

	EmailProvider    string
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string

	SMSProvider      string
	SMSGatewayURL    string
	SMSGatewayAPIKey string
	SMSFromNumber    string

	RateLimitEnabled     bool
	RateLimitRequests    int
	RateLimitWindow      time.Duration
	RateLimitExemptPaths []string

	CORSAllowAll   bool
	CORSOrigins    []string
	CORSAllowCreds bool
}

// =============================================================================
// Interface Implementations
// =============================================================================

// AppConfig implementation
func (c *Config) GetEnv() string { return c.Env }

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// RedisConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }

// SchedulerConfig implementation
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// QueueConfig implementation
func (c *Config) GetQueueConcurrency() int                   { return c.QueueConcurrency }
func (c *Config) GetQueueMaxAttempts() int                   { return c.QueueMaxAttempts }
func (c *Config) GetQueueRetryDelays() []time.Duration       { return c.QueueRetryDelays }
func (c *Config) GetQueueVisibilityTimeout() time.Duration   { return c.QueueVisibilityTimeout }
func (c *Config) GetQueuePollInterval() time.Duration        { return c.QueuePollInterval }
func (c *Config) GetQueueDeadLetterRetention() time.Duration { return c.QueueDeadLetterRetention }
func (c *Config) GetQueuePurgeAge() time.Duration            { return c.QueuePurgeAge }

// DeliveryConfig implementation
func (c *Config) GetWebhookTimeout() time.Duration { return c.WebhookTimeout }

// EmailConfig implementation
func (c *Config) GetEmailProvider() string    { return c.EmailProvider }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// SMSConfig implementation
func (c *Config) GetSMSProvider() string      { return c.SMSProvider }
func (c *Config) GetSMSGatewayURL() string    { return c.SMSGatewayURL }
func (c *Config) GetSMSGatewayAPIKey() string { return c.SMSGatewayAPIKey }
func (c *Config) GetSMSFromNumber() string    { return c.SMSFromNumber }

// RateLimitConfig implementation
func (c *Config) GetRateLimitEnabled() bool         { return c.RateLimitEnabled }
func (c *Config) GetRateLimitRequests() int         { return c.RateLimitRequests }
func (c *Config) GetRateLimitWindow() time.Duration { return c.RateLimitWindow }
func (c *Config) GetRateLimitExemptPaths() []string { return c.RateLimitExemptPaths }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	retryDelays, err := parseDurationCSV(getEnv("DELIVERY_RETRY_DELAYS", "0s,5s,15s"))
	if err != nil {
		return nil, fmt.Errorf("DELIVERY_RETRY_DELAYS is invalid: %w", err)
	}

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),

		AsynqQueueName:   getEnv("ASYNQ_QUEUE_NAME", "maintenance"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "4")),

		QueueConcurrency:         mustInt(getEnv("DELIVERY_QUEUE_CONCURRENCY", "8")),
		QueueMaxAttempts:         mustInt(getEnv("DELIVERY_MAX_ATTEMPTS", "3")),
		QueueRetryDelays:         retryDelays,
		QueueVisibilityTimeout:   mustDuration(getEnv("DELIVERY_VISIBILITY_TIMEOUT", "60s")),
		QueuePollInterval:        mustDuration(getEnv("DELIVERY_POLL_INTERVAL", "1s")),
		QueueDeadLetterRetention: mustDuration(getEnv("DELIVERY_DEAD_LETTER_RETENTION", "720h")),
		QueuePurgeAge:            mustDuration(getEnv("DELIVERY_QUEUE_PURGE_AGE", "24h")),

		WebhookTimeout: mustDuration(getEnv("WEBHOOK_TIMEOUT", "10s")),

		EmailProvider:    getEnv("EMAIL_PROVIDER", "console"),
		SMTPHost:         getEnv("SMTP_HOST", "localhost"),
		SMTPPort:         mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "LeadGen"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", "leads@example.com"),

		SMSProvider:      getEnv("SMS_PROVIDER", "console"),
		SMSGatewayURL:    getEnv("SMS_GATEWAY_URL", ""),
		SMSGatewayAPIKey: getEnv("SMS_GATEWAY_API_KEY", ""),
		SMSFromNumber:    getEnv("SMS_FROM_NUMBER", ""),

		RateLimitEnabled:     strings.EqualFold(getEnv("RATE_LIMIT_ENABLED", "true"), "true"),
		RateLimitRequests:    mustInt(getEnv("RATE_LIMIT_REQUESTS", "100")),
		RateLimitWindow:      mustDuration(getEnv("RATE_LIMIT_WINDOW", "60s")),
		RateLimitExemptPaths: splitCSV(getEnv("RATE_LIMIT_EXEMPT_PATHS", "/health,/health/live,/health/ready")),

		CORSAllowAll:   corsAllowAll,
		CORSOrigins:    corsOrigins,
		CORSAllowCreds: strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.QueueMaxAttempts < 1 {
		return nil, fmt.Errorf("DELIVERY_MAX_ATTEMPTS must be at least 1")
	}
	if len(cfg.QueueRetryDelays) == 0 {
		return nil, fmt.Errorf("DELIVERY_RETRY_DELAYS must name at least one delay")
	}
	if cfg.EmailProvider == "smtp" && cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP_HOST is required when EMAIL_PROVIDER is smtp")
	}
	if cfg.SMSProvider == "gateway" && cfg.SMSGatewayURL == "" {
		return nil, fmt.Errorf("SMS_GATEWAY_URL is required when SMS_PROVIDER is gateway")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func parseDurationCSV(value string) ([]time.Duration, error) {
	parts := splitCSV(value)
	results := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, err
		}
		if d < 0 {
			return nil, fmt.Errorf("negative delay %q", part)
		}
		results = append(results, d)
	}
	return results, nil
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
