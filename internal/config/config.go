// Package config reads the server configuration from the environment. A
// .env file in the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/internal/pricefeed"
	"github.com/joho/godotenv"
)

const (
	LedgerMemory      = "memory"
	LedgerTigerBeetle = "tigerbeetle"
)

type Config struct {
	AppEnv   string
	LogLevel string
	HTTPAddr string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	JWTSecret string

	LedgerBackend string
	TBAddress     string
	TBClusterID   uint64

	// RedisAddr selects the Redis price feed; empty keeps prices in memory.
	RedisAddr       string
	PriceFreshness  time.Duration
	KafkaBrokers    []string
	KafkaTopic      string
	ExchangeAccount int64
	AdminAccount    int64
	AllowFaucet     bool
}

// DSN is the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

func (c *Config) Dev() bool {
	return c.AppEnv == "dev"
}

// Load reads .env (if any) and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv and validates it.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	var errs []error
	parseInt := func(key string, def int64) int64 {
		v := get(key, "")
		if v == "" {
			return def
		}
		n, err := strconv.ParseInt(v, 0, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return n
	}
	parseBool := func(key string) bool {
		v := get(key, "")
		if v == "" {
			return false
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return b
	}

	cfg := &Config{
		AppEnv:          get("APP_ENV", "prod"),
		LogLevel:        get("LOG_LEVEL", "info"),
		HTTPAddr:        get("HTTP_ADDR", ":8080"),
		DBUser:          get("DB_USER", ""),
		DBPassword:      get("DB_PASSWORD", ""),
		DBHost:          get("DB_HOST", "localhost"),
		DBPort:          get("DB_PORT", "5432"),
		DBName:          get("DB_NAME", ""),
		JWTSecret:       get("JWT_SECRET", ""),
		LedgerBackend:   get("LEDGER_BACKEND", LedgerMemory),
		TBAddress:       get("TB_ADDRESS", "3001"),
		TBClusterID:     uint64(parseInt("TB_CLUSTER_ID", 0)),
		RedisAddr:       get("REDIS_ADDR", ""),
		PriceFreshness:  time.Duration(parseInt("PRICE_FRESHNESS_SECONDS", int64(pricefeed.DefaultFreshnessWindow/time.Second))) * time.Second,
		KafkaTopic:      get("KAFKA_TOPIC", "exchange.events"),
		ExchangeAccount: parseInt("EXCHANGE_ACCOUNT_ID", 0),
		AdminAccount:    parseInt("ADMIN_ACCOUNT_ID", 0),
		AllowFaucet:     parseBool("ALLOW_FAUCET"),
	}
	if brokers := get("KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.LedgerBackend {
	case LedgerMemory, LedgerTigerBeetle:
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 bytes")
	}
	if c.DBName == "" {
		return errors.New("DB_NAME is required")
	}
	if c.PriceFreshness <= 0 {
		return errors.New("PRICE_FRESHNESS_SECONDS must be positive")
	}
	if c.ExchangeAccount < 0 || c.AdminAccount < 0 {
		return errors.New("system account ids must not be negative")
	}
	return nil
}
