package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Binance credentials and endpoints
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceBaseURL   string
	BinanceWSURL     string

	// Infrastructure
	RedisAddr     string // empty disables the Redis publisher
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	GatewayAddr   string

	// TOTP secret guarding mutating gateway endpoints; empty disables the
	// check (local development only).
	GatewayTOTPSecret string

	// Default risk parameters for strategies started without overrides.
	DefaultTakeProfit float64 // fractional, e.g. 0.02
	DefaultStopLoss   float64
	DefaultBuyPct     float64
	SeedCandles       int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		BinanceAPIKey:    mustEnv("BINANCE_API_KEY"),
		BinanceAPISecret: mustEnv("BINANCE_API_SECRET"),
		BinanceBaseURL:   getEnv("BINANCE_BASE_URL", "https://fapi.binance.com"),
		BinanceWSURL:     getEnv("BINANCE_WS_URL", "wss://fstream.binance.com/ws"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/trades.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		GatewayAddr:   getEnv("GATEWAY_ADDR", ":8080"),

		GatewayTOTPSecret: getEnv("GATEWAY_TOTP_SECRET", ""),

		DefaultTakeProfit: getEnvFloat("DEFAULT_TAKE_PROFIT", 0.02),
		DefaultStopLoss:   getEnvFloat("DEFAULT_STOP_LOSS", 0.05),
		DefaultBuyPct:     getEnvFloat("DEFAULT_BUY_PCT", 0.2),
		SeedCandles:       getEnvInt("SEED_CANDLES", 1000),
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return n
}
