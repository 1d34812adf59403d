package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Redis      RedisConfig
	Plaid      PlaidConfig
	SendGrid   SendGridConfig
	Analytics  AnalyticsConfig
	Cloudinary CloudinaryConfig
	Allocation AllocationConfig
	Reminder   ReminderConfig
	Worker     WorkerConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PlaidConfig configures the bank aggregator. With an empty ClientID the
// stub provider is used instead; useful for local development.
type PlaidConfig struct {
	BaseURL     string
	ClientID    string
	Secret      string
	WebhookBase string
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

type AnalyticsConfig struct {
	Endpoint string
	WriteKey string
}

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
}

// AllocationConfig bounds daily suggestions. Amounts are cents.
type AllocationConfig struct {
	MinCents         int64
	MaxCents         int64
	MaxDailyCents    int64
	SplitAcrossGoals bool
}

// ReminderConfig sets escalation thresholds in days overdue.
type ReminderConfig struct {
	UrgentAfterDays  int
	OverdueAfterDays int
}

// WorkerConfig carries the cron specs for the background passes.
type WorkerConfig struct {
	AllocationSpec string
	RecurringSpec  string
	RotationSpec   string
	ReminderSpec   string
	LeaseTTL       time.Duration
}

func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		Server: ServerConfig{
			Port:         envStr("PORT", "8080"),
			Env:          envStr("APP_ENV", "development"),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:             envStr("DATABASE_DSN", "miturn:miturn@tcp(localhost:3306)/miturn?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			AccessSecret:  envStr("JWT_ACCESS_SECRET", "change-me-in-production"),
			RefreshSecret: envStr("JWT_REFRESH_SECRET", "change-me-refresh"),
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 168 * time.Hour,
			Issuer:        "miturn",
		},
		Redis: RedisConfig{
			Addr:     envStr("REDIS_ADDR", ""),
			Password: envStr("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
		},
		Plaid: PlaidConfig{
			BaseURL:     envStr("PLAID_BASE_URL", "https://sandbox.plaid.com"),
			ClientID:    envStr("PLAID_CLIENT_ID", ""),
			Secret:      envStr("PLAID_SECRET", ""),
			WebhookBase: envStr("WEBHOOK_BASE_URL", ""),
		},
		SendGrid: SendGridConfig{
			APIKey:    envStr("SENDGRID_API_KEY", ""),
			FromEmail: envStr("SENDGRID_FROM_EMAIL", "no-reply@miturn.app"),
			FromName:  envStr("SENDGRID_FROM_NAME", "MiTurn"),
		},
		Analytics: AnalyticsConfig{
			Endpoint: envStr("ANALYTICS_ENDPOINT", ""),
			WriteKey: envStr("ANALYTICS_WRITE_KEY", ""),
		},
		Cloudinary: CloudinaryConfig{
			CloudName: envStr("CLOUDINARY_CLOUD_NAME", ""),
			APIKey:    envStr("CLOUDINARY_API_KEY", ""),
			APISecret: envStr("CLOUDINARY_API_SECRET", ""),
		},
		Allocation: AllocationConfig{
			MinCents:         envInt64("ALLOCATION_MIN_CENTS", 100),
			MaxCents:         envInt64("ALLOCATION_MAX_CENTS", 0),
			MaxDailyCents:    envInt64("ALLOCATION_MAX_DAILY_CENTS", 0),
			SplitAcrossGoals: envBool("ALLOCATION_SPLIT_ACROSS_GOALS", false),
		},
		Reminder: ReminderConfig{
			UrgentAfterDays:  envInt("REMINDER_URGENT_AFTER_DAYS", 2),
			OverdueAfterDays: envInt("REMINDER_OVERDUE_AFTER_DAYS", 5),
		},
		Worker: WorkerConfig{
			AllocationSpec: envStr("CRON_ALLOCATION", "0 6 * * *"),
			RecurringSpec:  envStr("CRON_RECURRING", "0 7 * * *"),
			RotationSpec:   envStr("CRON_ROTATION", "0 */2 * * *"),
			ReminderSpec:   envStr("CRON_REMINDER", "0 9 * * *"),
			LeaseTTL:       5 * time.Minute,
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
