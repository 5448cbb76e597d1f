package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Addr                 string
	DatabaseURL          string
	JWTSecret            string
	DataEncryptionKey    string
	Environment          string
	LogLevel             string
	LogFormat            string
	CORSAllowedOrigins   []string
	MaxBodyBytes         int64
	RateLimitPerMinute   int
	RunMigrations        bool
	MigrationsDir        string
	MetricsEnabled       bool
	PayslipDir           string
	PayslipRetentionDays int
	MaintenanceInterval  time.Duration
	IdempotencyTTL       time.Duration
	ExperienceRateTRY    decimal.Decimal
}

// Load reads an optional .env file (or the files named in ENV_FILE, comma
// separated) and then the process environment. Variables already set in the
// environment win over file values.
func Load() Config {
	loadEnvFiles()
	return Config{
		Addr:                 getEnv("APP_ADDR", ":8080"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		DataEncryptionKey:    getEnv("DATA_ENCRYPTION_KEY", ""),
		Environment:          getEnv("APP_ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "json"),
		CORSAllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS", []string{"app://.", "http://localhost:5173"}),
		MaxBodyBytes:         int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute:   getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		RunMigrations:        getEnvBool("RUN_MIGRATIONS", true),
		MigrationsDir:        getEnv("MIGRATIONS_DIR", "migrations"),
		MetricsEnabled:       getEnvBool("METRICS_ENABLED", true),
		PayslipDir:           getEnv("PAYSLIP_DIR", "storage/payslips"),
		PayslipRetentionDays: getEnvInt("PAYSLIP_RETENTION_DAYS", 0),
		MaintenanceInterval:  getEnvDuration("MAINTENANCE_INTERVAL", time.Hour),
		IdempotencyTTL:       getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		ExperienceRateTRY:    getEnvDecimal("EXPERIENCE_RATE_TRY", decimal.Zero),
	}
}

func loadEnvFiles() {
	files := strings.Split(getEnv("ENV_FILE", ".env"), ",")
	for _, file := range files {
		file = strings.TrimSpace(file)
		if file == "" {
			continue
		}
		if _, err := os.Stat(file); err != nil {
			continue
		}
		_ = godotenv.Load(file)
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := decimal.NewFromString(value)
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
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.IsProduction() {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.PayslipRetentionDays < 0 {
		return fmt.Errorf("PAYSLIP_RETENTION_DAYS must not be negative")
	}
	if c.ExperienceRateTRY.IsNegative() {
		return fmt.Errorf("EXPERIENCE_RATE_TRY must not be negative")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}
	return nil
}
