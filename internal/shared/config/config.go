package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Notify   NotifyConfig
	Reminder ReminderConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

type AuthConfig struct {
	JWTSecret string
}

// NotifyConfig selects the outbound notification transport.
type NotifyConfig struct {
	// Transport: "log" writes notifications to the process log,
	// "smtp" hands them to the configured relay.
	Transport string
	// From is the default sender address for email notifications.
	From string
	// SMTPAddr is the host:port of the SMTP relay (smtp transport only).
	SMTPAddr string
	// RatePerSecond caps outbound notification dispatch.
	RatePerSecond float64
	// Burst is the rate limiter burst size.
	Burst int
}

// ReminderConfig controls the daily refill reminder sweep.
type ReminderConfig struct {
	// SendHour is the local hour of day (0-23) the sweep fires.
	SendHour int
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "pharmacy"),
			Password: getEnv("DB_PASSWORD", "pharmacy"),
			Database: getEnv("DB_NAME", "pharmacy"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
		Notify: NotifyConfig{
			Transport:     getEnv("NOTIFY_TRANSPORT", "log"),
			From:          getEnv("NOTIFY_FROM", "no-reply@pharmacy.local"),
			SMTPAddr:      getEnv("NOTIFY_SMTP_ADDR", "localhost:25"),
			RatePerSecond: getEnvFloat("NOTIFY_RATE_PER_SECOND", 10),
			Burst:         getEnvInt("NOTIFY_BURST", 20),
		},
		Reminder: ReminderConfig{
			SendHour: getEnvInt("REMINDER_SEND_HOUR", 9),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
