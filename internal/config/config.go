package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"whiteboard/internal/middleware"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port           string
	AllowedOrigins []string
	StaticDir      string

	LogLevel  string
	LogFormat string

	MaxMessageBytes   int
	MessagesPerSecond float64
	MessageBurst      int
	MaxObjectsPerPage int
	MaxPages          int
	HistoryLimit      int

	// Observability
	JaegerEndpoint string
}

// Load reads .env if present, then the environment. Malformed numbers are errors.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var err error
	cfg := &Config{
		Port:           getEnv("PORT", "5000"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		StaticDir:      getEnv("STATIC_DIR", "./build"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
	}

	if cfg.MaxMessageBytes, err = getEnvInt("MAX_MESSAGE_BYTES", 2<<20); err != nil {
		return nil, err
	}
	if cfg.MessagesPerSecond, err = getEnvFloat("MESSAGES_PER_SECOND", 60); err != nil {
		return nil, err
	}
	if cfg.MessageBurst, err = getEnvInt("MESSAGE_BURST", 120); err != nil {
		return nil, err
	}
	if cfg.MaxObjectsPerPage, err = getEnvInt("MAX_OBJECTS_PER_PAGE", 5000); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = getEnvInt("MAX_PAGES", 100); err != nil {
		return nil, err
	}
	if cfg.HistoryLimit, err = getEnvInt("HISTORY_LIMIT", 200); err != nil {
		return nil, err
	}

	if cfg.MaxMessageBytes <= 0 {
		return nil, fmt.Errorf("MAX_MESSAGE_BYTES must be positive")
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

// Addr: listen address for the HTTP server
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Limits: relay limits derived from the configuration
func (c *Config) Limits() *middleware.Limits {
	limits := middleware.DefaultLimits()
	limits.MaxMessageSize = c.MaxMessageBytes
	limits.MessagesPerSecond = c.MessagesPerSecond
	limits.BurstSize = c.MessageBurst
	limits.MaxObjectsPerPage = c.MaxObjectsPerPage
	limits.MaxPages = c.MaxPages
	limits.HistoryLimit = c.HistoryLimit
	return limits
}

// ConfigureLogging applies LOG_LEVEL and LOG_FORMAT to the standard logrus logger
func (c *Config) ConfigureLogging() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(c.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
