package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string
	SecretKey  string

	InternalSecretKey string

	StripeSecretKey     string
	StripeWebhookSecret string
	XenditSecretKey     string

	KafkaBrokers     []string
	OrderEventsTopic string
	EmailQueueURL    string
	AWSRegion        string

	TaxRate                decimal.Decimal
	AllowedStorefrontHosts []string
	OutboxPollInterval     time.Duration
	MigrationsPath         string

	SagaReconcileInterval time.Duration
	SagaStaleAfter        time.Duration
	CompletionClaimTTL    time.Duration
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),
		AppPort:    getEnv("APP_PORT", "8080"),
		AppEnv:     os.Getenv("APP_ENV"),
		SecretKey:  os.Getenv("SECRET_KEY"),

		InternalSecretKey: os.Getenv("INTERNAL_SECRET_KEY"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		XenditSecretKey:     os.Getenv("XENDIT_APIKEY"),

		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		OrderEventsTopic: getEnv("ORDER_EVENTS_TOPIC", "order-events"),
		EmailQueueURL:    os.Getenv("EMAIL_QUEUE_URL"),
		AWSRegion:        getEnv("AWS_REGION", "ap-southeast-1"),

		TaxRate:                parseDecimal(os.Getenv("TAX_RATE")),
		AllowedStorefrontHosts: splitList(os.Getenv("ALLOWED_STOREFRONT_HOSTS")),
		OutboxPollInterval:     parseDuration(os.Getenv("OUTBOX_POLL_INTERVAL"), 2*time.Second),
		MigrationsPath:         getEnv("MIGRATIONS_PATH", "migrations"),

		SagaReconcileInterval: parseDuration(os.Getenv("SAGA_RECONCILE_INTERVAL"), time.Minute),
		SagaStaleAfter:        parseDuration(os.Getenv("SAGA_STALE_AFTER"), 15*time.Minute),
		CompletionClaimTTL:    parseDuration(os.Getenv("COMPLETION_CLAIM_TTL"), 2*time.Minute),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitList parses a comma separated env value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDecimal(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		log.Fatalf("invalid decimal %q: %v", raw, err)
	}
	return d
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("invalid duration %q: %v", raw, err)
	}
	return d
}
