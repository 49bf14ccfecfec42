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

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// EmailConfig provides settings for the Brevo email transport.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetBrevoAPIKey() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// SMTPConfig provides settings for the SMTP email transport.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	IsSMTPEnabled() bool
}

// SchedulerConfig provides settings for the Redis-backed task queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// AIConfig provides settings for the language model provider.
type AIConfig interface {
	GetMoonshotAPIKey() string
	GetMoonshotBaseURL() string
	GetMoonshotModel() string
}

// SMSConfig provides settings for the SMS gateway.
type SMSConfig interface {
	GetSMSGatewayURL() string
	GetSMSGatewayKey() string
	GetSMSSender() string
	GetSMSMaxLength() int
	IsSMSEnabled() bool
}

// ChatConfig provides settings for the assisted-chat starter service.
type ChatConfig interface {
	GetChatStarterURL() string
	GetChatStarterKey() string
	IsChatEnabled() bool
}

// MinIOConfig provides settings for the audit archive bucket.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketAIArchive() string
	IsMinIOEnabled() bool
}

// FollowupConfig provides tuning for step dispatching and retries.
type FollowupConfig interface {
	GetFollowupMaxAttempts() int
	GetFollowupRetryBaseDelay() time.Duration
	GetFollowupRetryMaxDelay() time.Duration
	GetFollowupDispatchInterval() time.Duration
	GetFollowupDispatchBatch() int
	GetFollowupStaleEnqueuedAfter() time.Duration
	GetFollowupJobRetention() time.Duration
	GetPhoneDefaultRegion() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                        string
	HTTPAddr                   string
	DatabaseURL                string
	JWTAccessSecret            string
	CORSAllowAll               bool
	CORSOrigins                []string
	CORSAllowCreds             bool
	EmailEnabled               bool
	BrevoAPIKey                string
	EmailFromName              string
	EmailFromAddress           string
	SMTPHost                   string
	SMTPPort                   int
	SMTPUsername               string
	SMTPPassword               string
	RedisURL                   string
	RedisTLSInsecure           bool
	AsynqQueueName             string
	AsynqConcurrency           int
	MoonshotAPIKey             string
	MoonshotBaseURL            string
	MoonshotModel              string
	SMSGatewayURL              string
	SMSGatewayKey              string
	SMSSender                  string
	SMSMaxLength               int
	ChatStarterURL             string
	ChatStarterKey             string
	MinIOEndpoint              string
	MinIOAccessKey             string
	MinIOSecretKey             string
	MinIOUseSSL                bool
	MinioBucketAIArchive       string
	FollowupMaxAttempts        int
	FollowupRetryBaseDelay     time.Duration
	FollowupRetryMaxDelay      time.Duration
	FollowupDispatchInterval   time.Duration
	FollowupDispatchBatch      int
	FollowupStaleEnqueuedAfter time.Duration
	FollowupJobRetention       time.Duration
	PhoneDefaultRegion         string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetBrevoAPIKey() string      { return c.BrevoAPIKey }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string     { return c.SMTPHost }
func (c *Config) GetSMTPPort() int        { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string { return c.SMTPPassword }
func (c *Config) IsSMTPEnabled() bool     { return c.SMTPHost != "" }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string         { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool   { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string   { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int    { return c.AsynqConcurrency }

// AIConfig implementation
func (c *Config) GetMoonshotAPIKey() string  { return c.MoonshotAPIKey }
func (c *Config) GetMoonshotBaseURL() string { return c.MoonshotBaseURL }
func (c *Config) GetMoonshotModel() string   { return c.MoonshotModel }

// SMSConfig implementation
func (c *Config) GetSMSGatewayURL() string { return c.SMSGatewayURL }
func (c *Config) GetSMSGatewayKey() string { return c.SMSGatewayKey }
func (c *Config) GetSMSSender() string     { return c.SMSSender }
func (c *Config) GetSMSMaxLength() int     { return c.SMSMaxLength }
func (c *Config) IsSMSEnabled() bool       { return c.SMSGatewayURL != "" }

// ChatConfig implementation
func (c *Config) GetChatStarterURL() string { return c.ChatStarterURL }
func (c *Config) GetChatStarterKey() string { return c.ChatStarterKey }
func (c *Config) IsChatEnabled() bool       { return c.ChatStarterURL != "" }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string        { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string       { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string       { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool            { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketAIArchive() string { return c.MinioBucketAIArchive }
func (c *Config) IsMinIOEnabled() bool            { return c.MinIOEndpoint != "" }

// FollowupConfig implementation
func (c *Config) GetFollowupMaxAttempts() int                 { return c.FollowupMaxAttempts }
func (c *Config) GetFollowupRetryBaseDelay() time.Duration    { return c.FollowupRetryBaseDelay }
func (c *Config) GetFollowupRetryMaxDelay() time.Duration     { return c.FollowupRetryMaxDelay }
func (c *Config) GetFollowupDispatchInterval() time.Duration  { return c.FollowupDispatchInterval }
func (c *Config) GetFollowupDispatchBatch() int               { return c.FollowupDispatchBatch }
func (c *Config) GetFollowupStaleEnqueuedAfter() time.Duration { return c.FollowupStaleEnqueuedAfter }
func (c *Config) GetFollowupJobRetention() time.Duration      { return c.FollowupJobRetention }
func (c *Config) GetPhoneDefaultRegion() string               { return c.PhoneDefaultRegion }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	brevoAPIKey := getEnv("BREVO_API_KEY", "")
	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:                        getEnv("APP_ENV", "development"),
		HTTPAddr:                   getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:                getEnv("DATABASE_URL", ""),
		JWTAccessSecret:            getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:               corsAllowAll,
		CORSOrigins:                corsOrigins,
		CORSAllowCreds:             strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		EmailEnabled:               emailEnabled && (brevoAPIKey != "" || smtpHost != ""),
		BrevoAPIKey:                brevoAPIKey,
		EmailFromName:              getEnv("EMAIL_FROM_NAME", "Nurture"),
		EmailFromAddress:           getEnv("EMAIL_FROM_ADDRESS", ""),
		SMTPHost:                   smtpHost,
		SMTPPort:                   mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:               getEnv("SMTP_USERNAME", ""),
		SMTPPassword:               getEnv("SMTP_PASSWORD", ""),
		RedisURL:                   getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisTLSInsecure:           strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:             getEnv("ASYNQ_QUEUE", "followups"),
		AsynqConcurrency:           mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		MoonshotAPIKey:             getEnv("MOONSHOT_API_KEY", ""),
		MoonshotBaseURL:            getEnv("MOONSHOT_BASE_URL", ""),
		MoonshotModel:              getEnv("MOONSHOT_MODEL", ""),
		SMSGatewayURL:              getEnv("SMS_GATEWAY_URL", ""),
		SMSGatewayKey:              getEnv("SMS_GATEWAY_KEY", ""),
		SMSSender:                  getEnv("SMS_SENDER", ""),
		SMSMaxLength:               mustInt(getEnv("SMS_MAX_LENGTH", "160")),
		ChatStarterURL:             getEnv("CHAT_STARTER_URL", ""),
		ChatStarterKey:             getEnv("CHAT_STARTER_KEY", ""),
		MinIOEndpoint:              getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:             getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:             getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:                strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketAIArchive:       getEnv("MINIO_BUCKET_AI_ARCHIVE", "followup-ai-archive"),
		FollowupMaxAttempts:        mustInt(getEnv("FOLLOWUP_MAX_ATTEMPTS", "5")),
		FollowupRetryBaseDelay:     mustDuration(getEnv("FOLLOWUP_RETRY_BASE_DELAY", "1m")),
		FollowupRetryMaxDelay:      mustDuration(getEnv("FOLLOWUP_RETRY_MAX_DELAY", "1h")),
		FollowupDispatchInterval:   mustDuration(getEnv("FOLLOWUP_DISPATCH_INTERVAL", "2s")),
		FollowupDispatchBatch:      mustInt(getEnv("FOLLOWUP_DISPATCH_BATCH", "50")),
		FollowupStaleEnqueuedAfter: mustDuration(getEnv("FOLLOWUP_STALE_ENQUEUED_AFTER", "10m")),
		FollowupJobRetention:       time.Duration(mustInt(getEnv("FOLLOWUP_JOB_RETENTION_DAYS", "30"))) * 24 * time.Hour,
		PhoneDefaultRegion:         strings.ToUpper(getEnv("PHONE_DEFAULT_REGION", "US")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.FollowupMaxAttempts < 1 {
		return nil, fmt.Errorf("FOLLOWUP_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.FollowupDispatchInterval <= 0 {
		return nil, fmt.Errorf("FOLLOWUP_DISPATCH_INTERVAL must be a positive duration")
	}
	if cfg.SMSMaxLength <= 0 {
		return nil, fmt.Errorf("SMS_MAX_LENGTH must be positive")
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
	result, err := strconv.Atoi(strings.TrimSpace(value))
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

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
