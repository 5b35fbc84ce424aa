// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppEnv    string
	Port      string
	LogLevel  string
	LogFormat string

	DatabaseURL string
	AppURL      string

	// Realtime subsystem
	AuthTimeout      time.Duration
	AdminPrefix      string
	DeliveryStrategy string

	// WebSocket connection limits
	WSMaxConnections int64
	WSMaxPerIP       int
	WSConnectRate    float64
	WSConnectBurst   int

	// Ad-hoc notify endpoint rate limit
	NotifyRate  float64
	NotifyBurst int

	// External detection pipeline
	VisionPython  string
	VisionScript  string
	VisionTimeout time.Duration

	// SMTP (optional; email disabled when host is empty)
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPFrom       string
	SMTPEncryption string
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		AppURL:      getEnv("APP_URL", ""),

		AuthTimeout:      getEnvDuration("AUTH_TIMEOUT", 30*time.Second),
		AdminPrefix:      getEnv("ADMIN_PREFIX", "admin_"),
		DeliveryStrategy: getEnv("DELIVERY_STRATEGY", "direct"),

		WSMaxConnections: int64(getEnvInt("WS_MAX_CONNECTIONS", 5000)),
		WSMaxPerIP:       getEnvInt("WS_MAX_PER_IP", 20),
		WSConnectRate:    getEnvFloat("WS_CONNECT_RATE", 10),
		WSConnectBurst:   getEnvInt("WS_CONNECT_BURST", 10),

		NotifyRate:  getEnvFloat("NOTIFY_RATE", 5),
		NotifyBurst: getEnvInt("NOTIFY_BURST", 10),

		VisionPython:  getEnv("VISION_PYTHON", "python3"),
		VisionScript:  getEnv("VISION_SCRIPT", "models/detect.py"),
		VisionTimeout: getEnvDuration("VISION_TIMEOUT", 2*time.Minute),

		SMTPHost:       getEnv("SMTP_HOST", ""),
		SMTPPort:       getEnvInt("SMTP_PORT", 587),
		SMTPUsername:   getEnv("SMTP_USERNAME", ""),
		SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:       getEnv("SMTP_FROM", ""),
		SMTPEncryption: getEnv("SMTP_ENCRYPTION", "STARTTLS"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AuthTimeout <= 0 {
		return nil, fmt.Errorf("AUTH_TIMEOUT must be positive")
	}
	if cfg.SMTPHost != "" && cfg.SMTPFrom == "" {
		return nil, fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
