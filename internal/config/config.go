package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv   string
	Port      string
	JWTSecret string
	Database  DatabaseConfig
	Log       LogConfig
	Mail      MailConfig
	Accounts  AccountConfig
	Approval  ApprovalConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string // postgres, mysql, sqlite
	Host     string
	Port     string
	Username string
	Password string
	Database string
	MySQLDSN string
	Path     string // sqlite file
	Alter    bool
}

// LogConfig controls the zap logger
type LogConfig struct {
	Level string
	Dev   bool
}

// MailConfig holds SMTP settings for e-mail notifications. Empty Host disables mail.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// AccountConfig drives account number allocation
type AccountConfig struct {
	Width       int
	MaxAttempts int
}

// ApprovalConfig drives the approval workflow
type ApprovalConfig struct {
	// InsertRetries bounds re-runs of an approval whose tier insert hit a duplicate account number.
	InsertRetries int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	driver := getEnv("DB_DRIVER", "postgres")
	switch driver {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}

	dev := getEnv("LOG_DEV", "0") == "1"
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		if dev {
			level = "debug"
		} else {
			level = "info"
		}
	}

	return &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "3210"),
		JWTSecret: jwtSecret,
		Database: DatabaseConfig{
			Driver:   driver,
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "backoffice"),
			MySQLDSN: os.Getenv("MYSQL_DSN"),
			Path:     getEnv("SQLITE_PATH", "backoffice.db"),
			Alter:    getEnv("DB_ALTER", "false") == "true",
		},
		Log: LogConfig{
			Level: level,
			Dev:   dev,
		},
		Mail: MailConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     getEnv("SMTP_FROM", os.Getenv("SMTP_USER")),
		},
		Accounts: AccountConfig{
			Width:       getEnvInt("ACCOUNT_NUMBER_WIDTH", 4),
			MaxAttempts: getEnvInt("ACCOUNT_NUMBER_ATTEMPTS", 10),
		},
		Approval: ApprovalConfig{
			InsertRetries: getEnvInt("APPROVAL_INSERT_RETRIES", 3),
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}
