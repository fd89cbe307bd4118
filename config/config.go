package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	Port       string
	Env        string

	// TestMode forces deterministic worker behavior: fixed processing delay
	// and forced payment outcome.
	TestMode           bool
	TestPaymentSuccess bool
	TestProcessingDelay time.Duration

	// WebhookRetryTestIntervals switches the webhook backoff table to the
	// accelerated schedule.
	WebhookRetryTestIntervals bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// A missing .env file is fine; real deployments set env vars directly.
	_ = godotenv.Load()

	config := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "payflow"),
		Port:       getEnv("PORT", "8080"),
		Env:        getEnv("ENV", "development"),

		TestMode:                  os.Getenv("TEST_MODE") == "true",
		TestPaymentSuccess:        os.Getenv("TEST_PAYMENT_SUCCESS") != "false",
		TestProcessingDelay:       time.Duration(getEnvInt("TEST_PROCESSING_DELAY_MS", 1000)) * time.Millisecond,
		WebhookRetryTestIntervals: os.Getenv("WEBHOOK_RETRY_INTERVALS_TEST") == "true",
	}

	return config, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
