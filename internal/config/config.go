package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	NewRelic  NewRelicConfig
	Providers ProvidersConfig
	Platform  PlatformConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// ProvidersConfig holds configuration for all payment networks.
type ProvidersConfig struct {
	// Timeout bounds every outbound provider API call.
	Timeout time.Duration

	Stripe StripeConfig
	PayPal PayPalConfig
	Mpesa  MpesaConfig
}

// StripeConfig holds card-gateway credentials.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string
}

// PayPalConfig holds wallet-gateway credentials.
type PayPalConfig struct {
	ClientID  string
	Secret    string
	WebhookID string
	BaseURL   string
	ReturnURL string
	CancelURL string
}

// MpesaConfig holds mobile-money gateway credentials.
type MpesaConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	CallbackToken  string
	BaseURL        string
}

// PlatformConfig holds business-level settings.
type PlatformConfig struct {
	// CommissionRate is the platform's cut of completed payments, 0..1.
	CommissionRate float64
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "bookpay"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "bookpay-settlement"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Providers: ProvidersConfig{
			Timeout: getDurationEnv("PROVIDER_TIMEOUT", 15*time.Second),
			Stripe: StripeConfig{
				APIKey:        getEnv("STRIPE_API_KEY", ""),
				WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
				BaseURL:       getEnv("STRIPE_BASE_URL", "https://api.stripe.com"),
			},
			PayPal: PayPalConfig{
				ClientID:  getEnv("PAYPAL_CLIENT_ID", ""),
				Secret:    getEnv("PAYPAL_SECRET", ""),
				WebhookID: getEnv("PAYPAL_WEBHOOK_ID", ""),
				BaseURL:   getEnv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),
				ReturnURL: getEnv("PAYPAL_RETURN_URL", "http://localhost:8080/v1/payments/return"),
				CancelURL: getEnv("PAYPAL_CANCEL_URL", "http://localhost:8080/v1/payments/cancel"),
			},
			Mpesa: MpesaConfig{
				ConsumerKey:    getEnv("MPESA_CONSUMER_KEY", ""),
				ConsumerSecret: getEnv("MPESA_CONSUMER_SECRET", ""),
				ShortCode:      getEnv("MPESA_SHORTCODE", ""),
				Passkey:        getEnv("MPESA_PASSKEY", ""),
				CallbackURL:    getEnv("MPESA_CALLBACK_URL", "http://localhost:8080/v1/webhooks/mpesa"),
				CallbackToken:  getEnv("MPESA_CALLBACK_TOKEN", ""),
				BaseURL:        getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			},
		},
		Platform: PlatformConfig{
			CommissionRate: getFloatEnv("PLATFORM_COMMISSION_RATE", 0.15),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
