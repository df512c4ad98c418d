package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":9090")
	}
	if cfg.JWTIssuer != "crapi-identity" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "crapi-identity")
	}
	if cfg.JWTAudience != "crapi-api" {
		t.Errorf("JWTAudience = %q, want %q", cfg.JWTAudience, "crapi-api")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.OTPDigits != 4 {
		t.Errorf("OTPDigits = %d, want 4", cfg.OTPDigits)
	}
	if cfg.OTPMaxAttempts != 5 {
		t.Errorf("OTPMaxAttempts = %d, want 5", cfg.OTPMaxAttempts)
	}
	if cfg.OTPTTL() != 10*time.Minute {
		t.Errorf("OTPTTL = %v, want 10m", cfg.OTPTTL())
	}
	if cfg.PhoneChangeRateLimit != "10-M" {
		t.Errorf("PhoneChangeRateLimit = %q, want 10-M", cfg.PhoneChangeRateLimit)
	}
	if cfg.NotificationKafkaTopic != "identity-phone-otp" {
		t.Errorf("NotificationKafkaTopic = %q, want default", cfg.NotificationKafkaTopic)
	}
	if cfg.EmailAPIURL != "https://api.brevo.com/v3/smtp/email" {
		t.Errorf("EmailAPIURL = %q, want default", cfg.EmailAPIURL)
	}
	if cfg.OTPReturnToClient {
		t.Error("OTPReturnToClient should default to false")
	}
	if cfg.PurgeSchedule != "@every 1h" {
		t.Errorf("PurgeSchedule = %q, want @every 1h", cfg.PurgeSchedule)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9999")
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("BCRYPT_COST", "4")
	os.Setenv("OTP_DIGITS", "3")
	os.Setenv("OTP_MAX_ATTEMPTS", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9999")
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.BcryptCost != 4 {
		t.Errorf("BcryptCost = %d, want 4", cfg.BcryptCost)
	}
	if cfg.OTPDigits != 3 {
		t.Errorf("OTPDigits = %d, want 3", cfg.OTPDigits)
	}
	if cfg.OTPMaxAttempts != 0 {
		t.Errorf("OTPMaxAttempts = %d, want 0", cfg.OTPMaxAttempts)
	}
}

func TestLoad_BCRYPT_COSTRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
		{"zero", "0", 12, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("BCRYPT_COST", tc.value)

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BcryptCost != tc.want {
				t.Errorf("BcryptCost = %d, want %d", cfg.BcryptCost, tc.want)
			}
		})
	}
}

func TestLoad_OTPDigitsRange(t *testing.T) {
	for _, v := range []string{"2", "5", "6"} {
		t.Run(v, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("OTP_DIGITS", v)
			if _, err := Load(); err == nil {
				t.Errorf("Load with OTP_DIGITS=%s should return error", v)
			}
		})
	}
}

func TestLoad_NegativeMaxAttempts(t *testing.T) {
	os.Clearenv()
	os.Setenv("OTP_MAX_ATTEMPTS", "-1")
	if _, err := Load(); err == nil {
		t.Fatal("Load with negative OTP_MAX_ATTEMPTS should return error")
	}
}

func TestLoad_InvalidRateLimit(t *testing.T) {
	os.Clearenv()
	os.Setenv("PHONE_CHANGE_RATE_LIMIT", "lots")
	if _, err := Load(); err == nil {
		t.Fatal("Load with malformed PHONE_CHANGE_RATE_LIMIT should return error")
	}
}

func TestLoad_OTPReturnToClientProduction(t *testing.T) {
	os.Clearenv()
	os.Setenv("OTP_RETURN_TO_CLIENT", "true")
	os.Setenv("APP_ENV", "production")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should return error when OTP_RETURN_TO_CLIENT=true and APP_ENV=production")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
	if err.Error() != "config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production" {
		t.Errorf("error = %q, want production message", err.Error())
	}
}

func TestLoad_OTPReturnToClientDevelopment(t *testing.T) {
	os.Clearenv()
	os.Setenv("OTP_RETURN_TO_CLIENT", "true")
	os.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.OTPReturnToClient {
		t.Error("OTPReturnToClient should be true")
	}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment should be true")
	}
}

func TestDurations_FallbackOnInvalid(t *testing.T) {
	testCases := []struct {
		name string
		cfg  Config
		got  func(*Config) time.Duration
		want time.Duration
	}{
		{"access valid", Config{JWTAccessTTL: "30m"}, (*Config).AccessTTL, 30 * time.Minute},
		{"access invalid", Config{JWTAccessTTL: "invalid"}, (*Config).AccessTTL, 15 * time.Minute},
		{"access negative", Config{JWTAccessTTL: "-5m"}, (*Config).AccessTTL, 15 * time.Minute},
		{"otp valid", Config{OTPTTLRaw: "90s"}, (*Config).OTPTTL, 90 * time.Second},
		{"otp zero", Config{OTPTTLRaw: "0"}, (*Config).OTPTTL, 10 * time.Minute},
		{"purge valid", Config{PurgeRetentionRaw: "72h"}, (*Config).PurgeRetention, 72 * time.Hour},
		{"purge empty", Config{}, (*Config).PurgeRetention, 24 * time.Hour},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			if d := tc.got(&cfg); d != tc.want {
				t.Errorf("duration = %v, want %v", d, tc.want)
			}
		})
	}
}

func TestKafkaBrokersList(t *testing.T) {
	testCases := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"localhost:9092", []string{"localhost:9092"}},
		{" a:1 , ,b:2 ", []string{"a:1", "b:2"}},
	}
	for _, tc := range testCases {
		cfg := &Config{KafkaBrokers: tc.raw}
		got := cfg.KafkaBrokersList()
		if len(got) == 0 && len(tc.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("KafkaBrokersList(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
	var nilCfg *Config
	if nilCfg.KafkaBrokersList() != nil {
		t.Error("nil config should return nil brokers")
	}
}
