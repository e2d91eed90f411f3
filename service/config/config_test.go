package config

import (
	"os"
	"testing"
	"time"

	"github.com/stellar/go-stellar-sdk/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "https://horizon-testnet.stellar.org", cfg.HorizonURL)
	assert.Equal(t, network.TestNetworkPassphrase, cfg.NetworkPassphrase)
	assert.Equal(t, int64(100), cfg.BaseFee)
	assert.Equal(t, 30*time.Second, cfg.TxTimeout)
	assert.Equal(t, WalletBridgeNATS, cfg.WalletBridge)
	assert.Equal(t, 5*time.Minute, cfg.SignTimeout)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.True(t, cfg.EventsEnabled)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("HORIZON_URL", "http://localhost:8000")
	os.Setenv("BASE_FEE", "200")
	os.Setenv("TX_TIMEOUT", "45s")
	os.Setenv("WALLET_BRIDGE", "http")
	os.Setenv("WALLET_URL", "http://localhost:3001")
	os.Setenv("EVENTS_ENABLED", "false")
	os.Setenv("DATABASE_URL", "postgres://localhost/lumenpay")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://localhost:8000", cfg.HorizonURL)
	assert.Equal(t, int64(200), cfg.BaseFee)
	assert.Equal(t, 45*time.Second, cfg.TxTimeout)
	assert.Equal(t, WalletBridgeHTTP, cfg.WalletBridge)
	assert.Equal(t, "http://localhost:3001", cfg.WalletURL)
	assert.False(t, cfg.EventsEnabled)
	assert.Equal(t, "postgres://localhost/lumenpay", cfg.DatabaseURL)
}

func TestLoad_InvalidDuration(t *testing.T) {
	os.Setenv("TX_TIMEOUT", "soon")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_InvalidBaseFee(t *testing.T) {
	os.Setenv("BASE_FEE", "cheap")
	defer cleanupEnv()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid integer")
}

func TestLoad_HTTPBridgeRequiresURL(t *testing.T) {
	os.Setenv("WALLET_BRIDGE", "http")
	defer cleanupEnv()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WalletURL is required")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			HorizonURL:        "https://horizon-testnet.stellar.org",
			NetworkPassphrase: network.TestNetworkPassphrase,
			BaseFee:           100,
			TxTimeout:         30 * time.Second,
			WalletBridge:      WalletBridgeNATS,
			NATSURL:           "nats://localhost:4222",
			SignTimeout:       time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "fee below minimum", mutate: func(c *Config) { c.BaseFee = 10 }, wantErr: "BaseFee must be at least 100"},
		{name: "short validity window", mutate: func(c *Config) { c.TxTimeout = time.Millisecond }, wantErr: "TxTimeout must be at least 1 second"},
		{name: "unknown bridge", mutate: func(c *Config) { c.WalletBridge = "carrier-pigeon" }, wantErr: "WalletBridge must be"},
		{name: "missing passphrase", mutate: func(c *Config) { c.NetworkPassphrase = "" }, wantErr: "NetworkPassphrase is required"},
		{name: "nats bridge without deadline", mutate: func(c *Config) { c.SignTimeout = 0 }, wantErr: "SignTimeout must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMustLoad_Panics(t *testing.T) {
	os.Setenv("WALLET_BRIDGE", "smoke-signals")
	defer cleanupEnv()

	assert.Panics(t, func() {
		MustLoad()
	})
}

// cleanupEnv clears all environment variables used in tests
func cleanupEnv() {
	for _, key := range []string{
		"SERVER_ADDR", "LOG_LEVEL", "HORIZON_URL", "NETWORK_PASSPHRASE", "BASE_FEE",
		"TX_TIMEOUT", "WALLET_BRIDGE", "WALLET_URL", "SIGN_TIMEOUT", "NATS_URL",
		"EVENTS_ENABLED", "DATABASE_URL",
	} {
		os.Unsetenv(key)
	}
}
