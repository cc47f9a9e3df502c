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

// JWTConfig provides service token validation settings for webhook middleware.
type JWTConfig interface {
	GetServiceTokenSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// SchedulerConfig provides settings for the asynq client and server.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// RuntimeConfig provides operational ceilings for the call runtime host.
type RuntimeConfig interface {
	GetCallCeiling() time.Duration
	GetMaxConcurrentCalls() int
	GetMaxConcurrentActivities() int
	GetMaxCachedInstances() int
	GetShutdownGrace() time.Duration
}

// AnalysisConfig provides settings for the transcript analysis model.
type AnalysisConfig interface {
	GetGeminiAPIKey() string
	GetAnalysisModel() string
	IsAnalysisEnabled() bool
}

// EmailConfig provides settings for notification email delivery.
type EmailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	IsEmailEnabled() bool
}

// SMSConfig provides settings for the SMS gateway.
type SMSConfig interface {
	GetSMSGatewayURL() string
	GetSMSGatewayKey() string
}

// CRMConfig provides settings for the CRM sync client.
type CRMConfig interface {
	GetCRMBaseURL() string
	GetCRMAPIKey() string
}

// AutomationConfig provides settings for marketing automation and integration triggers.
type AutomationConfig interface {
	GetAutomationBaseURL() string
	GetAutomationAPIKey() string
	GetIntegrationTargets() []string
}

// PaymentConfig provides settings for the payment gateway.
type PaymentConfig interface {
	GetPaymentBaseURL() string
	GetPaymentAPIKey() string
}

// TransferConfig provides settings for the human agent transfer desk.
type TransferConfig interface {
	GetTransferDeskURL() string
	GetTransferDeskKey() string
}

// ArchiveConfig provides settings for MinIO S3-compatible transcript archival.
type ArchiveConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketCallArchives() string
	IsArchiveEnabled() bool
}

// NotificationConfig provides settings for deep links in outbound notifications.
type NotificationConfig interface {
	GetAppBaseURL() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                string
	HTTPAddr           string
	DatabaseURL        string
	RedisURL           string
	RedisTLSInsecure   bool
	AsynqQueueName     string
	AsynqConcurrency   int
	ServiceTokenSecret string
	CORSAllowAll       bool
	CORSOrigins        []string
	AppBaseURL         string

	CallCeiling             time.Duration
	MaxConcurrentCalls      int
	MaxConcurrentActivities int
	MaxCachedInstances      int
	ShutdownGrace           time.Duration

	GeminiAPIKey  string
	AnalysisModel string

	EmailEnabled     bool
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string

	SMSGatewayURL string
	SMSGatewayKey string

	CRMBaseURL string
	CRMAPIKey  string

	AutomationBaseURL  string
	AutomationAPIKey   string
	IntegrationTargets []string

	PaymentBaseURL string
	PaymentAPIKey  string

	TransferDeskURL string
	TransferDeskKey string

	MinIOEndpoint           string
	MinIOAccessKey          string
	MinIOSecretKey          string
	MinIOUseSSL             bool
	MinioBucketCallArchives string
}

// Load reads configuration from the environment, with .env support for development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:                getEnv("APP_ENV", "development"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		RedisTLSInsecure:   strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:     getEnv("ASYNQ_QUEUE", "calls"),
		AsynqConcurrency:   getIntEnv("ASYNQ_CONCURRENCY", 10),
		ServiceTokenSecret: getEnv("SERVICE_TOKEN_SECRET", ""),
		CORSAllowAll:       corsAllowAll,
		CORSOrigins:        corsOrigins,
		AppBaseURL:         getEnv("APP_BASE_URL", "http://localhost:4200"),

		CallCeiling:             mustDuration(getEnv("CALL_CEILING", "1h")),
		MaxConcurrentCalls:      getIntEnv("MAX_CONCURRENT_CALLS", 200),
		MaxConcurrentActivities: getIntEnv("MAX_CONCURRENT_ACTIVITIES", 100),
		MaxCachedInstances:      getIntEnv("MAX_CACHED_INSTANCES", 1000),
		ShutdownGrace:           mustDuration(getEnv("SHUTDOWN_GRACE", "30s")),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		AnalysisModel: getEnv("ANALYSIS_MODEL", "gemini-2.0-flash"),

		EmailEnabled:     emailEnabled && smtpHost != "",
		SMTPHost:         smtpHost,
		SMTPPort:         getIntEnv("SMTP_PORT", 587),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "VoiceDesk"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),

		SMSGatewayURL: getEnv("SMS_GATEWAY_URL", ""),
		SMSGatewayKey: getEnv("SMS_GATEWAY_KEY", ""),

		CRMBaseURL: getEnv("CRM_BASE_URL", ""),
		CRMAPIKey:  getEnv("CRM_API_KEY", ""),

		AutomationBaseURL:  getEnv("AUTOMATION_BASE_URL", ""),
		AutomationAPIKey:   getEnv("AUTOMATION_API_KEY", ""),
		IntegrationTargets: splitCSV(getEnv("INTEGRATION_TARGETS", "")),

		PaymentBaseURL: getEnv("PAYMENT_BASE_URL", ""),
		PaymentAPIKey:  getEnv("PAYMENT_API_KEY", ""),

		TransferDeskURL: getEnv("TRANSFER_DESK_URL", ""),
		TransferDeskKey: getEnv("TRANSFER_DESK_KEY", ""),

		MinIOEndpoint:           getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:          getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:          getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:             strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketCallArchives: getEnv("MINIO_BUCKET_CALL_ARCHIVES", "call-archives"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ServiceTokenSecret == "" {
		return nil, fmt.Errorf("SERVICE_TOKEN_SECRET is required")
	}
	if cfg.CallCeiling <= 0 {
		return nil, fmt.Errorf("CALL_CEILING must be a positive duration")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}

	return cfg, nil
}

// =============================================================================
// Interface Implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string        { return c.DatabaseURL }
func (c *Config) GetServiceTokenSecret() string { return c.ServiceTokenSecret }

func (c *Config) GetHTTPAddr() string     { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool   { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

func (c *Config) GetRedisURL() string      { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

func (c *Config) GetCallCeiling() time.Duration   { return c.CallCeiling }
func (c *Config) GetMaxConcurrentCalls() int      { return c.MaxConcurrentCalls }
func (c *Config) GetMaxConcurrentActivities() int { return c.MaxConcurrentActivities }
func (c *Config) GetMaxCachedInstances() int      { return c.MaxCachedInstances }
func (c *Config) GetShutdownGrace() time.Duration { return c.ShutdownGrace }

func (c *Config) GetGeminiAPIKey() string  { return c.GeminiAPIKey }
func (c *Config) GetAnalysisModel() string { return c.AnalysisModel }
func (c *Config) IsAnalysisEnabled() bool  { return c.GeminiAPIKey != "" }

func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) IsEmailEnabled() bool        { return c.EmailEnabled }

func (c *Config) GetSMSGatewayURL() string { return c.SMSGatewayURL }
func (c *Config) GetSMSGatewayKey() string { return c.SMSGatewayKey }

func (c *Config) GetCRMBaseURL() string { return c.CRMBaseURL }
func (c *Config) GetCRMAPIKey() string  { return c.CRMAPIKey }

func (c *Config) GetAutomationBaseURL() string   { return c.AutomationBaseURL }
func (c *Config) GetAutomationAPIKey() string    { return c.AutomationAPIKey }
func (c *Config) GetIntegrationTargets() []string { return c.IntegrationTargets }

func (c *Config) GetPaymentBaseURL() string { return c.PaymentBaseURL }
func (c *Config) GetPaymentAPIKey() string  { return c.PaymentAPIKey }

func (c *Config) GetTransferDeskURL() string { return c.TransferDeskURL }
func (c *Config) GetTransferDeskKey() string { return c.TransferDeskKey }

func (c *Config) GetMinIOEndpoint() string           { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string          { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string          { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool               { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketCallArchives() string { return c.MinioBucketCallArchives }
func (c *Config) IsArchiveEnabled() bool             { return c.MinIOEndpoint != "" }

func (c *Config) GetAppBaseURL() string { return c.AppBaseURL }

// =============================================================================
// Helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
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

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
