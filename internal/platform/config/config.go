package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	// DevJWTSecret is the fallback signing secret outside production.
	DevJWTSecret = "payrun-dev-secret"
)

type Config struct {
	Addr                   string
	Environment            string
	StorageDriver          string
	DatabaseURL            string
	MigrationsDir          string
	RunMigrations          bool
	RunSeed                bool
	JWTSecret              string
	DataEncryptionKey      string
	DocumentsDir           string
	CompanyName            string
	Currency               string
	EmailFrom              string
	EmailEnabled           bool
	SMTPHost               string
	SMTPPort               int
	SMTPUser               string
	SMTPPassword           string
	SMTPUseTLS             bool
	GatewayBaseURL         string
	GatewayAPIKey          string
	GatewayTimeout         time.Duration
	EngineTimeout          time.Duration
	FraudVarianceThreshold float64
	FraudLookbackRuns      int
	MaxBodyBytes           int64
	CORSAllowedOrigins     []string
	RateLimitPerMinute     int
	MetricsEnabled         bool
	JobQueueSize           int
}

// Load reads the environment, after merging a .env file from the working
// directory when one exists.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn(".env load failed", "err", err)
	}
	return Config{
		Addr:                   getEnv("APP_ADDR", ":8080"),
		Environment:            getEnv("APP_ENV", "development"),
		StorageDriver:          getEnv("STORAGE_DRIVER", StoragePostgres),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		MigrationsDir:          getEnv("MIGRATIONS_DIR", "migrations"),
		RunMigrations:          getEnvBool("RUN_MIGRATIONS", true),
		RunSeed:                getEnvBool("RUN_SEED", true),
		JWTSecret:              getEnv("JWT_SECRET", DevJWTSecret),
		DataEncryptionKey:      getEnv("DATA_ENCRYPTION_KEY", ""),
		DocumentsDir:           getEnv("DOCUMENTS_DIR", "var/documents"),
		CompanyName:            getEnv("COMPANY_NAME", "Payrun Demo Ltd"),
		Currency:               getEnv("CURRENCY", "KES"),
		EmailFrom:              getEnv("EMAIL_FROM", "payroll@example.com"),
		EmailEnabled:           getEnvBool("EMAIL_ENABLED", false),
		SMTPHost:               getEnv("SMTP_HOST", ""),
		SMTPPort:               getEnvInt("SMTP_PORT", 587),
		SMTPUser:               getEnv("SMTP_USER", ""),
		SMTPPassword:           getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:             getEnvBool("SMTP_USE_TLS", true),
		GatewayBaseURL:         getEnv("GATEWAY_BASE_URL", ""),
		GatewayAPIKey:          getEnv("GATEWAY_API_KEY", ""),
		GatewayTimeout:         getEnvDuration("GATEWAY_TIMEOUT", 15*time.Second),
		EngineTimeout:          getEnvDuration("ENGINE_TIMEOUT", 30*time.Second),
		FraudVarianceThreshold: getEnvFloat("FRAUD_VARIANCE_THRESHOLD", 0.25),
		FraudLookbackRuns:      getEnvInt("FRAUD_LOOKBACK_RUNS", 3),
		MaxBodyBytes:           int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		CORSAllowedOrigins:     getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		RateLimitPerMinute:     getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		MetricsEnabled:         getEnvBool("METRICS_ENABLED", true),
		JobQueueSize:           getEnvInt("JOB_QUEUE_SIZE", 128),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) Validate() error {
	switch c.StorageDriver {
	case StoragePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StorageMemory:
		if c.IsProduction() {
			return fmt.Errorf("STORAGE_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q", StoragePostgres, StorageMemory)
	}
	if c.IsProduction() {
		if strings.TrimSpace(c.JWTSecret) == "" || c.JWTSecret == DevJWTSecret {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	if c.FraudVarianceThreshold <= 0 || c.FraudVarianceThreshold >= 10 {
		return fmt.Errorf("FRAUD_VARIANCE_THRESHOLD must be a positive fraction")
	}
	if c.FraudLookbackRuns < 1 {
		return fmt.Errorf("FRAUD_LOOKBACK_RUNS must be at least 1")
	}
	if c.GatewayTimeout <= 0 || c.EngineTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT and ENGINE_TIMEOUT must be positive")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	if c.JobQueueSize < 1 {
		return fmt.Errorf("JOB_QUEUE_SIZE must be at least 1")
	}
	if strings.TrimSpace(c.Currency) == "" {
		return fmt.Errorf("CURRENCY is required")
	}
	return nil
}
