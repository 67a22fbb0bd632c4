// Package config handles loading and validating configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the safety engine.
type Config struct {
	// Chain access
	RPCURL     string
	WSURL      string
	QuoteURL   string
	MarketURL  string
	RPCTimeout time.Duration
	RPCRetries int
	RPCAPIKey  string

	// HTTP server
	ListenAddr string

	// Honeypot probe
	ProbeLamports      uint64
	BuyTaxShare        float64
	RoundTripShareCap  float64
	LPLockLiquidityUSD float64

	// Cache TTLs
	HoneypotTTL time.Duration
	BundleTTL   time.Duration
	HoldersTTL  time.Duration
	WashTTL     time.Duration
	SniperTTL   time.Duration

	// Batch analysis
	BatchSize  int
	BatchDelay time.Duration

	// Feed
	FeedEnabled bool

	// Storage (optional; empty disables the backend)
	PostgresDSN   string
	ClickhouseDSN string
}

// Load reads configuration from environment variables with fallback to a
// .env file. Priority order: environment variables > .env file > defaults.
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		RPCURL:     getEnv("RPC_URL", "https://api.mainnet-beta.solana.com"),
		WSURL:      getEnv("WS_URL", "wss://api.mainnet-beta.solana.com"),
		QuoteURL:   getEnv("QUOTE_URL", "https://quote-api.jup.ag/v6"),
		MarketURL:  getEnv("MARKET_URL", "https://api.dexscreener.com"),
		RPCTimeout: time.Duration(getEnvInt("RPC_TIMEOUT_SECONDS", 15)) * time.Second,
		RPCRetries: getEnvInt("RPC_RETRIES", 3),
		RPCAPIKey:  getEnv("RPC_API_KEY", ""),

		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		ProbeLamports:      uint64(getEnvInt("PROBE_LAMPORTS", 100_000_000)),
		BuyTaxShare:        getEnvFloat("BUY_TAX_SHARE", 0.3),
		RoundTripShareCap:  getEnvFloat("ROUND_TRIP_SHARE_CAP", 0.2),
		LPLockLiquidityUSD: getEnvFloat("LP_LOCK_LIQUIDITY_USD", 25_000),

		HoneypotTTL: time.Duration(getEnvInt("HONEYPOT_TTL_SECONDS", 180)) * time.Second,
		BundleTTL:   time.Duration(getEnvInt("BUNDLE_TTL_SECONDS", 600)) * time.Second,
		HoldersTTL:  time.Duration(getEnvInt("HOLDERS_TTL_SECONDS", 300)) * time.Second,
		WashTTL:     time.Duration(getEnvInt("WASH_TTL_SECONDS", 300)) * time.Second,
		SniperTTL:   time.Duration(getEnvInt("SNIPER_TTL_SECONDS", 600)) * time.Second,

		BatchSize:  getEnvInt("BATCH_SIZE", 3),
		BatchDelay: time.Duration(getEnvInt("BATCH_DELAY_MS", 500)) * time.Millisecond,

		FeedEnabled: getEnvBool("FEED_ENABLED", false),

		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		ClickhouseDSN: getEnv("CLICKHOUSE_DSN", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	if c.ProbeLamports == 0 {
		return fmt.Errorf("PROBE_LAMPORTS must be positive")
	}

	if c.BuyTaxShare < 0 || c.BuyTaxShare > 1 {
		return fmt.Errorf("BUY_TAX_SHARE must be within [0, 1]")
	}

	if c.RoundTripShareCap < 0 || c.RoundTripShareCap > 1 {
		return fmt.Errorf("ROUND_TRIP_SHARE_CAP must be within [0, 1]")
	}

	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be at least 1")
	}

	if c.FeedEnabled && c.WSURL == "" {
		return fmt.Errorf("WS_URL is required when FEED_ENABLED is set")
	}

	return nil
}

// MaskedRPCKey returns the RPC API key with most characters hidden for
// logging.
func (c *Config) MaskedRPCKey() string {
	return maskSecret(c.RPCAPIKey)
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as a float64 or returns a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
