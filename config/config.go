package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Addr            string
	BaseURL         string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisPrefix     string
	DatabaseURL     string
	SQSQueueURL     string
	AWSRegion       string
	AWSAccessKey    string
	AWSSecretKey    string
	AWSEndpoint     string
	WebhookSecret   string
	TitleTimeout    int
	EmailEnabled    bool
	EmailSender     string
	SweepEnabled    bool
	SweepInterval   int
	SweepStaleAfter int
}

func Load() *Config {
	redisPrefix := getEnv("REDIS_PREFIX", "")
	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbName := getEnv("DB_DATABASE", "transcriber")
	dbUser := getEnv("DB_USERNAME", "transcriber")
	dbPassword := getEnv("DB_PASSWORD", "")
	dbSSLMode := getEnv("DB_SSLMODE", "disable")
	dbSSLCert := getEnv("DB_SSLCERT", "")
	dbSSLKey := getEnv("DB_SSLKEY", "")
	dbSSLRootCert := getEnv("DB_SSLROOTCERT", "")

	// lib/pq supports "key=value" connection strings and this avoids
	// URI escaping issues for special characters in passwords.
	var dbURL string
	if dbPassword != "" {
		dbURL = fmt.Sprintf(
			"host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
			dbHost, dbPort, dbName, dbUser, dbPassword, dbSSLMode,
		)
	} else {
		dbURL = fmt.Sprintf(
			"host=%s port=%s dbname=%s user=%s sslmode=%s",
			dbHost, dbPort, dbName, dbUser, dbSSLMode,
		)
	}

	if dbSSLCert != "" {
		dbURL += fmt.Sprintf(" sslcert=%s", dbSSLCert)
	}
	if dbSSLKey != "" {
		dbURL += fmt.Sprintf(" sslkey=%s", dbSSLKey)
	}
	if dbSSLRootCert != "" {
		dbURL += fmt.Sprintf(" sslrootcert=%s", dbSSLRootCert)
	}

	return &Config{
		Addr:          getEnv("HTTP_ADDR", ":8080"),
		BaseURL:       getEnv("BASE_URL", "http://localhost:8080"),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_STATUS_DB", 3),
		RedisPrefix:   redisPrefix,
		DatabaseURL:   dbURL,
		SQSQueueURL:   getEnv("SQS_QUEUE_URL", ""),
		// Prefer standard AWS_* vars, fall back to service-specific vars
		AWSRegion:       getEnvWithFallback("AWS_REGION", "AWS_DEFAULT_REGION", "us-east-1"),
		AWSAccessKey:    getEnvWithFallback("AWS_ACCESS_KEY_ID", "SQS_KEY", ""),
		AWSSecretKey:    getEnvWithFallback("AWS_SECRET_ACCESS_KEY", "SQS_SECRET", ""),
		AWSEndpoint:     getEnv("AWS_ENDPOINT", ""),
		WebhookSecret:   getEnv("WEBHOOK_SECRET", ""),
		TitleTimeout:    getEnvInt("TITLE_TIMEOUT", 5),
		EmailEnabled:    getEnvBool("EMAIL_ENABLED", false),
		EmailSender:     getEnv("EMAIL_SENDER", "no-reply@transcriber.local"),
		SweepEnabled:    getEnvBool("SWEEP_ENABLED", false),
		SweepInterval:   getEnvInt("SWEEP_INTERVAL_MINUTES", 15),
		SweepStaleAfter: getEnvInt("SWEEP_STALE_AFTER_HOURS", 6),
	}
}

// StatusKey builds the Redis key that mirrors a job's current status.
func (c *Config) StatusKey(jobID string) string {
	return applyPrefix(fmt.Sprintf("transcription:status:%s", jobID), c.RedisPrefix)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvWithFallback(primaryKey, secondaryKey, fallback string) string {
	if value := os.Getenv(primaryKey); value != "" {
		return value
	}
	if value := os.Getenv(secondaryKey); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func applyPrefix(key string, prefix string) string {
	if prefix == "" {
		return key
	}
	return prefix + key
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}
