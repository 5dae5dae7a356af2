// Package config loads relay settings from the environment, an optional
// .env file and an optional YAML config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/efreitasn/webhookbot/internal/domain"
	"github.com/efreitasn/webhookbot/internal/exchange"
)

// Config holds all runtime configuration for the webhook relay.
type Config struct {
	Port      int
	LogLevel  string
	LogFormat string

	Credentials domain.Credentials
	BaseURL     string
	SignScheme  string

	RecvWindow          time.Duration
	RequestTimeout      time.Duration
	MaxAttempts         int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	OrderRateLimit      float64
	OrderRateBurst      int

	QtyMaxDecimals int

	IdempotencyWindow   time.Duration
	LedgerBackend       string
	LedgerCapacity      int
	LedgerSweepInterval time.Duration
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	RedisKeyPrefix      string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Ledger backends.
const (
	LedgerMemory = "memory"
	LedgerRedis  = "redis"
)

// defaults are applied to a fresh viper instance on every Load.
var defaults = map[string]any{
	"PORT":                  8080,
	"LOG_LEVEL":             "info",
	"LOG_FORMAT":            "text",
	"BYBIT_BASE_URL":        "https://api.bybit.com",
	"SIGN_SCHEME":           "v5",
	"RECV_WINDOW":           "5s",
	"REQUEST_TIMEOUT":       "5s",
	"MAX_ATTEMPTS":          3,
	"RETRY_INITIAL_BACKOFF": "200ms",
	"RETRY_MAX_BACKOFF":     "2s",
	"ORDER_RATE_LIMIT":      10,
	"ORDER_RATE_BURST":      5,
	"QTY_MAX_DECIMALS":      8,
	"IDEMPOTENCY_WINDOW":    "60s",
	"LEDGER_BACKEND":        LedgerMemory,
	"LEDGER_CAPACITY":       10000,
	"LEDGER_SWEEP_INTERVAL": "30s",
	"REDIS_ADDR":            "localhost:6379",
	"REDIS_PASSWORD":        "",
	"REDIS_DB":              0,
	"REDIS_KEY_PREFIX":      "webhookbot",
	"READ_TIMEOUT":          "5s",
	"WRITE_TIMEOUT":         "30s",
	"IDLE_TIMEOUT":          "60s",
	"SHUTDOWN_TIMEOUT":      "10s",
	"BYBIT_API_KEY":         "",
	"BYBIT_SECRET_KEY":      "",
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding variables that are already set. An empty path means
// ./.env; a missing default file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables and, when configFile
// is set, a YAML file; environment variables take precedence. It applies
// defaults and validates values, returning an error naming the first invalid
// key. Missing exchange credentials yield a *domain.AuthConfigError.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	p := parser{v: v}
	cfg := &Config{
		Port:      p.int("PORT"),
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),

		BaseURL:    v.GetString("BYBIT_BASE_URL"),
		SignScheme: v.GetString("SIGN_SCHEME"),

		RecvWindow:          p.duration("RECV_WINDOW"),
		RequestTimeout:      p.duration("REQUEST_TIMEOUT"),
		MaxAttempts:         p.int("MAX_ATTEMPTS"),
		RetryInitialBackoff: p.duration("RETRY_INITIAL_BACKOFF"),
		RetryMaxBackoff:     p.duration("RETRY_MAX_BACKOFF"),
		OrderRateLimit:      p.float("ORDER_RATE_LIMIT"),
		OrderRateBurst:      p.int("ORDER_RATE_BURST"),

		QtyMaxDecimals: p.int("QTY_MAX_DECIMALS"),

		IdempotencyWindow:   p.duration("IDEMPOTENCY_WINDOW"),
		LedgerBackend:       v.GetString("LEDGER_BACKEND"),
		LedgerCapacity:      p.int("LEDGER_CAPACITY"),
		LedgerSweepInterval: p.duration("LEDGER_SWEEP_INTERVAL"),
		RedisAddr:           v.GetString("REDIS_ADDR"),
		RedisPassword:       v.GetString("REDIS_PASSWORD"),
		RedisDB:             p.int("REDIS_DB"),
		RedisKeyPrefix:      v.GetString("REDIS_KEY_PREFIX"),

		ReadTimeout:     p.duration("READ_TIMEOUT"),
		WriteTimeout:    p.duration("WRITE_TIMEOUT"),
		IdleTimeout:     p.duration("IDLE_TIMEOUT"),
		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT"),
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	creds, err := domain.NewCredentials(v.GetString("BYBIT_API_KEY"), v.GetString("BYBIT_SECRET_KEY"))
	if err != nil {
		return nil, err
	}
	cfg.Credentials = creds

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d, must be between 1 and 65535", c.Port)
	}
	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid LOG_FORMAT: %q, must be one of: text, json", c.LogFormat)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("invalid BYBIT_BASE_URL: must not be empty")
	}
	if c.SignScheme != "v5" && c.SignScheme != "legacy" {
		return fmt.Errorf("invalid SIGN_SCHEME: %q, must be one of: v5, legacy", c.SignScheme)
	}
	if c.RecvWindow <= 0 {
		return fmt.Errorf("invalid RECV_WINDOW: %v, must be positive", c.RecvWindow)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("invalid MAX_ATTEMPTS: %d, must be at least 1", c.MaxAttempts)
	}
	if c.OrderRateLimit < 0 {
		return fmt.Errorf("invalid ORDER_RATE_LIMIT: %v, must not be negative", c.OrderRateLimit)
	}
	if c.QtyMaxDecimals < 0 || c.QtyMaxDecimals > 18 {
		return fmt.Errorf("invalid QTY_MAX_DECIMALS: %d, must be between 0 and 18", c.QtyMaxDecimals)
	}
	if c.IdempotencyWindow <= 0 {
		return fmt.Errorf("invalid IDEMPOTENCY_WINDOW: %v, must be positive", c.IdempotencyWindow)
	}
	if c.LedgerBackend != LedgerMemory && c.LedgerBackend != LedgerRedis {
		return fmt.Errorf("invalid LEDGER_BACKEND: %q, must be one of: memory, redis", c.LedgerBackend)
	}
	if c.LedgerSweepInterval <= 0 {
		return fmt.Errorf("invalid LEDGER_SWEEP_INTERVAL: %v, must be positive", c.LedgerSweepInterval)
	}
	if budget := c.Exchange().MaxSubmitDuration(); c.WriteTimeout <= budget {
		return fmt.Errorf("invalid WRITE_TIMEOUT: %v, must exceed the worst-case order submission time %v "+
			"(MAX_ATTEMPTS x min(REQUEST_TIMEOUT, RECV_WINDOW) plus retry backoff)", c.WriteTimeout, budget)
	}
	return nil
}

// Exchange returns the order submission settings.
func (c *Config) Exchange() exchange.Config {
	return exchange.Config{
		BaseURL:        c.BaseURL,
		RecvWindow:     c.RecvWindow,
		RequestTimeout: c.RequestTimeout,
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: c.RetryInitialBackoff,
		MaxBackoff:     c.RetryMaxBackoff,
		RateLimit:      rate.Limit(c.OrderRateLimit),
		RateBurst:      c.OrderRateBurst,
	}
}

// parser records the first parse failure so Load can read every key in one
// expression.
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) int(key string) int {
	n, err := strconv.Atoi(p.v.GetString(key))
	if err != nil {
		p.fail(key, err)
	}
	return n
}

func (p *parser) float(key string) float64 {
	f, err := strconv.ParseFloat(p.v.GetString(key), 64)
	if err != nil {
		p.fail(key, err)
	}
	return f
}

func (p *parser) duration(key string) time.Duration {
	d, err := time.ParseDuration(p.v.GetString(key))
	if err != nil {
		p.fail(key, err)
	}
	return d
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
