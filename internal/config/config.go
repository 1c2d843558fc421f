package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries all runtime configuration, sourced from the environment.
type Config struct {
	AppEnv           string
	LogLevel         string
	LogFormat        string
	HTTPListenAddr   string
	MetricsNamespace string

	DatabaseURL    string
	DatabaseSchema string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	// SecretsKey decrypts webhook secrets and channel credentials at rest.
	// Hex-encoded 32 bytes.
	SecretsKey string

	WhatsAppStorePath string
	WhatsAppLogLevel  string

	CatalogCacheTTL  time.Duration
	SessionIdleReset time.Duration
	ChatDedupeWindow time.Duration

	// Urgency band thresholds as fractions of the remaining prep window.
	KDSWarningBelow  float64
	KDSCriticalBelow float64
}

// Load reads configuration from environment variables with sane defaults.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "text"),
		HTTPListenAddr:    getEnv("HTTP_LISTEN_ADDR", ":8080"),
		MetricsNamespace:  getEnv("METRICS_NAMESPACE", "gastrocloud"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DatabaseSchema:    getEnv("DATABASE_SCHEMA", ""),
		RedisAddr:         getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		SecretsKey:        os.Getenv("SECRETS_KEY"),
		WhatsAppStorePath: getEnv("WHATSAPP_STORE_PATH", "data/wa.db"),
		WhatsAppLogLevel:  getEnv("WHATSAPP_LOG_LEVEL", "WARN"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RedisTLS, err = getBool("REDIS_TLS", false); err != nil {
		return nil, err
	}
	if cfg.CatalogCacheTTL, err = getDuration("CATALOG_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SessionIdleReset, err = getDuration("SESSION_IDLE_RESET", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ChatDedupeWindow, err = getDuration("CHAT_DEDUPE_WINDOW", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.KDSWarningBelow, err = getFloat("KDS_WARNING_BELOW", 0.33); err != nil {
		return nil, err
	}
	if cfg.KDSCriticalBelow, err = getFloat("KDS_CRITICAL_BELOW", 0.10); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getBool(key string, fallback bool) (bool, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}
