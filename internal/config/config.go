package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config carries all runtime configuration, loaded from the environment.
type Config struct {
	AppEnv           string
	LogLevel         string
	HTTPListenAddr   string
	PublicBasePath   string
	MetricsNamespace string

	// Persistence
	DBDriver       string // postgres | sqlite | memory
	DatabaseURL    string
	DatabaseSchema string
	SQLitePath     string

	// Redis (optional, chain cache)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool
	ChainCacheTTL time.Duration

	// Telegram notifications
	TelegramBotToken    string
	TelegramBotUsername string
	TelegramAPIBaseURL  string
	TelegramTimeout     time.Duration

	// Partner program
	DefaultProgramType  string
	ActivationThreshold decimal.Decimal
	ActivationMonths    int
}

// Load reads configuration from environment variables, applying defaults and
// validating the combinations that have no sane fallback.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		HTTPListenAddr:   getEnv("HTTP_LISTEN_ADDR", ":8080"),
		PublicBasePath:   getEnv("PUBLIC_BASE_PATH", ""),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "partner_bot"),

		DBDriver:       strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DatabaseSchema: getEnv("DATABASE_SCHEMA", ""),
		SQLitePath:     getEnv("SQLITE_PATH", "partner-bot.db"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramBotUsername: getEnv("TELEGRAM_BOT_USERNAME", ""),
		TelegramAPIBaseURL:  getEnv("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),

		DefaultProgramType: getEnv("DEFAULT_PROGRAM_TYPE", "MULTI_LEVEL"),
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RedisTLS, err = getBool("REDIS_TLS", false); err != nil {
		return nil, err
	}
	if cfg.ChainCacheTTL, err = getDuration("CHAIN_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TelegramTimeout, err = getDuration("TELEGRAM_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.ActivationThreshold, err = getDecimal("PARTNER_ACTIVATION_THRESHOLD", "5000"); err != nil {
		return nil, err
	}
	if cfg.ActivationMonths, err = getInt("PARTNER_ACTIVATION_MONTHS", 12); err != nil {
		return nil, err
	}

	switch cfg.DBDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	case "sqlite", "memory":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	switch cfg.DefaultProgramType {
	case "DIRECT", "MULTI_LEVEL":
	default:
		return nil, fmt.Errorf("unsupported DEFAULT_PROGRAM_TYPE %q", cfg.DefaultProgramType)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func getDecimal(key, fallback string) (decimal.Decimal, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		v = fallback
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
