package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/stellar/go-stellar-sdk/network"
	"github.com/stellar/go-stellar-sdk/txnbuild"
)

// DefaultHorizonURL is the public Horizon instance for the Stellar test network.
const DefaultHorizonURL = "https://horizon-testnet.stellar.org"

// Wallet bridge kinds.
const (
	WalletBridgeHTTP = "http"
	WalletBridgeNATS = "nats"
)

// Config holds all application configuration loaded from environment variables.
// Every field has a testnet default; validation errors are aggregated so a bad
// deployment reports everything that is wrong at once.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Ledger configuration
	HorizonURL        string
	NetworkPassphrase string
	BaseFee           int64
	TxTimeout         time.Duration

	// Wallet bridge configuration
	WalletBridge string
	WalletURL    string
	SignTimeout  time.Duration

	// NATS configuration
	NATSURL       string
	EventsEnabled bool

	// Optional attempt audit store. Empty disables it.
	DatabaseURL string
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.HorizonURL = getEnvOrDefault("HORIZON_URL", DefaultHorizonURL)
	cfg.NetworkPassphrase = getEnvOrDefault("NETWORK_PASSPHRASE", network.TestNetworkPassphrase)

	baseFee, err := parseInt64("BASE_FEE", txnbuild.MinBaseFee)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.BaseFee = baseFee
	}

	txTimeout, err := parseDuration("TX_TIMEOUT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.TxTimeout = txTimeout
	}

	cfg.WalletBridge = getEnvOrDefault("WALLET_BRIDGE", WalletBridgeNATS)
	cfg.WalletURL = os.Getenv("WALLET_URL")

	signTimeout, err := parseDuration("SIGN_TIMEOUT", "5m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SignTimeout = signTimeout
	}

	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	eventsEnabled, err := parseBool("EVENTS_ENABLED", true)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.EventsEnabled = eventsEnabled
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.HorizonURL == "" {
		errs = append(errs, fmt.Errorf("HorizonURL is required"))
	}

	if c.NetworkPassphrase == "" {
		errs = append(errs, fmt.Errorf("NetworkPassphrase is required"))
	}

	if c.BaseFee < txnbuild.MinBaseFee {
		errs = append(errs, fmt.Errorf("BaseFee must be at least %d stroops", txnbuild.MinBaseFee))
	}

	if c.TxTimeout < time.Second {
		errs = append(errs, fmt.Errorf("TxTimeout must be at least 1 second"))
	}

	switch c.WalletBridge {
	case WalletBridgeHTTP:
		if c.WalletURL == "" {
			errs = append(errs, fmt.Errorf("WalletURL is required when WalletBridge is %q", WalletBridgeHTTP))
		}
	case WalletBridgeNATS:
		if c.NATSURL == "" {
			errs = append(errs, fmt.Errorf("NATSURL is required when WalletBridge is %q", WalletBridgeNATS))
		}
		if c.SignTimeout <= 0 {
			errs = append(errs, fmt.Errorf("SignTimeout must be positive when WalletBridge is %q", WalletBridgeNATS))
		}
	default:
		errs = append(errs, fmt.Errorf("WalletBridge must be %q or %q, got %q", WalletBridgeHTTP, WalletBridgeNATS, c.WalletBridge))
	}

	if c.EventsEnabled && c.NATSURL == "" {
		errs = append(errs, fmt.Errorf("NATSURL is required when events are enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt64 parses an integer from an environment variable or uses a default.
func parseInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}
