package config

import (
	"os"
	"time"
)

type Config struct {
	DatabasePath       string
	Port               string
	Environment        string
	SessionDuration    time.Duration
	AllowedOrigins     string
	LogLevel           string
	MailgunDomain      string
	MailgunAPIKey      string
	MailgunSenderEmail string
	MailgunSenderName  string
}

func Load() *Config {
	cfg := &Config{
		DatabasePath:       getEnv("DATABASE_PATH", "lendery.db"),
		Port:               getEnv("PORT", "8080"),
		Environment:        getEnv("ENVIRONMENT", "production"),
		SessionDuration:    getDuration("SESSION_DURATION", 30*24*time.Hour),
		AllowedOrigins:     getEnv("ALLOWED_ORIGINS", "http://localhost:8080"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		MailgunDomain:      os.Getenv("MAILGUN_DOMAIN"),
		MailgunAPIKey:      os.Getenv("MAILGUN_API_KEY"),
		MailgunSenderEmail: getEnv("MAILGUN_SENDER_EMAIL", "no-reply@lendery.app"),
		MailgunSenderName:  getEnv("MAILGUN_SENDER_NAME", "Lendery"),
	}
	return cfg
}

// IsDevelopment disables rate limiting and security headers.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
