// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/walletpulse/engine/internal/store"
)

// Config holds all configuration values for the tracking engine.
type Config struct {
	// Blockchain data provider (HTTP)
	MoralisAPIKey  string
	MoralisBaseURL string

	// Real-time provider (WebSocket)
	AlchemyAPIKey string

	// Solana RPC
	SolanaRPCURL string

	// Known router contracts per chain, lowercased. Swap detection
	// treats a transaction to any of these as a swap candidate.
	Routers map[store.Chain][]string

	// Alerting
	AlertThresholdUSD float64
	TelegramBotToken  string
	TelegramChatIDs   []string

	// Historical fetch
	FetchInterval time.Duration

	// Price cache
	RedisEnabled  bool
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	PriceCacheTTL time.Duration

	// Persistence (optional; engine runs in-memory when DBHost is empty)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Logging
	LogLevel string
}

// defaultRouters is the built-in allow-list of DEX router contracts per
// chain. Overridable per chain via ROUTERS_<CHAIN> (comma-separated).
var defaultRouters = map[store.Chain][]string{
	store.ChainETH: {
		"0x7a250d5630b4cf539739df2c5dacb4c659f2488d", // Uniswap V2
		"0xe592427a0aece92de3edee1f18e0157c05861564", // Uniswap V3
		"0x68b3465833fb72b5a828cceeb955e0b7c1d8525b", // Uniswap V3 Router 2
		"0x1111111254fb6c44bac0bed2854e76f90643097d", // 1inch
		"0xd9e1ce17f2641f24ae83637ab66a2cca9c378b9f", // SushiSwap
	},
	store.ChainBase: {
		"0x2626664c2603336e57b271c5c0b26f421741e481", // Uniswap V3 (Base)
		"0x4752ba5dbc23f44d87826276bf6fd6b1c372ad24", // Uniswap V2 (Base)
	},
	store.ChainArbitrum: {
		"0xe592427a0aece92de3edee1f18e0157c05861564", // Uniswap V3
		"0x68b3465833fb72b5a828cceeb955e0b7c1d8525b", // Uniswap V3 Router 2
		"0x1111111254fb6c44bac0bed2854e76f90643097d", // 1inch
	},
	store.ChainBSC: {
		"0x10ed43c718714eb63d5aa57b78b54704e256024e", // PancakeSwap V2
		"0x05ff2b0db69458a0750badebc4f9e13add608c7f", // PancakeSwap V1 (legacy)
	},
}

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: Environment variables > .env file > hardcoded defaults
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		MoralisAPIKey:  getEnv("MORALIS_API_KEY", ""),
		MoralisBaseURL: getEnv("MORALIS_BASE_URL", "https://deep-index.moralis.io/api/v2.2"),

		AlchemyAPIKey: getEnv("ALCHEMY_API_KEY", ""),

		SolanaRPCURL: getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),

		Routers: loadRouters(),

		AlertThresholdUSD: getEnvFloat("ALERT_THRESHOLD_USD", 10000),
		TelegramBotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatIDs:   splitList(getEnv("TELEGRAM_CHAT_IDS", "")),

		FetchInterval: time.Duration(getEnvInt("FETCH_INTERVAL_SECONDS", 300)) * time.Second,

		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		PriceCacheTTL: time.Duration(getEnvInt("PRICE_CACHE_TTL_SECONDS", 60)) * time.Second,

		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", ""),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "walletpulse"),

		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadRouters builds the per-chain router allow-list, applying any
// ROUTERS_<CHAIN> environment overrides on top of the defaults.
func loadRouters() map[store.Chain][]string {
	routers := make(map[store.Chain][]string, len(defaultRouters))
	for chain, addrs := range defaultRouters {
		key := "ROUTERS_" + string(chain)
		if override := os.Getenv(key); override != "" {
			var list []string
			for _, addr := range splitList(override) {
				list = append(list, strings.ToLower(addr))
			}
			routers[chain] = list
			continue
		}
		routers[chain] = append([]string(nil), addrs...)
	}
	return routers
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.MoralisBaseURL == "" {
		return fmt.Errorf("MORALIS_BASE_URL is required")
	}

	if c.AlertThresholdUSD <= 0 {
		return fmt.Errorf("ALERT_THRESHOLD_USD must be positive")
	}

	if c.FetchInterval < time.Second {
		return fmt.Errorf("FETCH_INTERVAL_SECONDS must be at least 1")
	}

	for chain, addrs := range c.Routers {
		for _, addr := range addrs {
			if !strings.HasPrefix(addr, "0x") {
				return fmt.Errorf("router %q for chain %s is not a hex address", addr, chain)
			}
		}
	}

	return nil
}

// MaskedMoralisKey returns the API key with most characters hidden for logging.
func (c *Config) MaskedMoralisKey() string {
	return maskSecret(c.MoralisAPIKey)
}

// MaskedAlchemyKey returns the API key with most characters hidden for logging.
func (c *Config) MaskedAlchemyKey() string {
	return maskSecret(c.AlchemyAPIKey)
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

// splitList splits a comma-separated value, trimming whitespace and
// dropping empty entries.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
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
