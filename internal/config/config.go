// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/ulule/limiter/v3"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the REST server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health server. Empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file. Only cmd/seed signs tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used to validate bearer tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the expected iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the expected aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime used when issuing dev tokens (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// BcryptCost is the bcrypt cost factor (4-31) used to hash OTPs; default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// OTPDigits is the length of generated phone-change codes (3 or 4).
	OTPDigits int `mapstructure:"OTP_DIGITS"`
	// OTPTTLRaw is how long an issued code stays valid (e.g. "10m").
	OTPTTLRaw string `mapstructure:"OTP_TTL"`
	// OTPMaxAttempts is the number of wrong codes after which a pending change is locked. 0 disables lockout.
	OTPMaxAttempts int `mapstructure:"OTP_MAX_ATTEMPTS"`
	// OTPReturnToClient enables dev OTP mode: no email, OTP readable via the dev endpoint. Rejected when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`
	// PhoneChangeRateLimit is the per-user rate for the phone-change endpoints in ulule format (e.g. "10-M").
	PhoneChangeRateLimit string `mapstructure:"PHONE_CHANGE_RATE_LIMIT"`
	// PhoneChangePolicyFile is an optional path to a Rego file replacing the default phone-change policy.
	PhoneChangePolicyFile string `mapstructure:"PHONE_CHANGE_POLICY_FILE"`

	// RedisURL backs the rate limiter (e.g. redis://localhost:6379/0). Empty uses an in-process store.
	RedisURL string `mapstructure:"REDIS_URL"`

	// KafkaBrokers is a comma-separated list of Kafka brokers. When set, OTP emails are queued instead of sent inline.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// NotificationKafkaTopic is the topic carrying OTP email jobs.
	NotificationKafkaTopic string `mapstructure:"NOTIFICATION_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group of the notification worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// EmailAPIURL is the transactional email HTTP endpoint.
	EmailAPIURL string `mapstructure:"EMAIL_API_URL"`
	// EmailAPIKey authenticates against EmailAPIURL.
	EmailAPIKey string `mapstructure:"EMAIL_API_KEY"`
	// EmailSenderAddress is the From address of OTP emails.
	EmailSenderAddress string `mapstructure:"EMAIL_SENDER_ADDRESS"`
	// EmailSenderName is the From display name of OTP emails.
	EmailSenderName string `mapstructure:"EMAIL_SENDER_NAME"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// OTLPEndpoint is the OTLP/gRPC collector endpoint. Empty installs no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Worker-only: cron spec of the pending-change purge job.
	PurgeSchedule string `mapstructure:"PURGE_SCHEDULE"`
	// PurgeRetentionRaw is how long finished or expired pending changes are kept (e.g. "24h").
	PurgeRetentionRaw string `mapstructure:"PURGE_RETENTION"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "crapi-identity")
	v.SetDefault("JWT_AUDIENCE", "crapi-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OTP_DIGITS", 4)
	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("PHONE_CHANGE_RATE_LIMIT", "10-M")
	v.SetDefault("PHONE_CHANGE_POLICY_FILE", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("NOTIFICATION_KAFKA_TOPIC", "identity-phone-otp")
	v.SetDefault("KAFKA_GROUP_ID", "identity-notification-worker")
	v.SetDefault("EMAIL_API_URL", "https://api.brevo.com/v3/smtp/email")
	v.SetDefault("EMAIL_API_KEY", "")
	v.SetDefault("EMAIL_SENDER_ADDRESS", "no-reply@crapi.local")
	v.SetDefault("EMAIL_SENDER_NAME", "crAPI")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "crapi-identity")
	v.SetDefault("PURGE_SCHEDULE", "@every 1h")
	v.SetDefault("PURGE_RETENTION", "24h")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.OTPReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.OTPDigits == 0 {
		cfg.OTPDigits = 4
	}
	if cfg.OTPDigits < 3 || cfg.OTPDigits > 4 {
		return nil, errors.New("config: OTP_DIGITS must be 3 or 4")
	}
	if cfg.OTPMaxAttempts < 0 {
		return nil, errors.New("config: OTP_MAX_ATTEMPTS must not be negative")
	}

	if _, err := limiter.NewRateFromFormatted(cfg.PhoneChangeRateLimit); err != nil {
		return nil, errors.New("config: PHONE_CHANGE_RATE_LIMIT must look like <limit>-<S|M|H|D>")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDurationOr(c.JWTAccessTTL, 15*time.Minute)
}

// OTPTTL parses OTPTTLRaw. Returns 10m if unset or invalid.
func (c *Config) OTPTTL() time.Duration {
	return parseDurationOr(c.OTPTTLRaw, 10*time.Minute)
}

// PurgeRetention parses PurgeRetentionRaw. Returns 24h if unset or invalid.
func (c *Config) PurgeRetention() time.Duration {
	return parseDurationOr(c.PurgeRetentionRaw, 24*time.Hour)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// A non-empty list switches OTP delivery to the queued path.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// IsDevelopment reports whether APP_ENV is development (console logging, dev OTP endpoint allowed).
func (c *Config) IsDevelopment() bool {
	return c != nil && strings.EqualFold(c.Env, "development")
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
