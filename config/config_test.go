package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/zebpay/config"
)

func TestDefaultSettings(t *testing.T) {
	cfg := config.Default()
	require.Equal(t, config.EnvProd, cfg.Environment)
	require.Equal(t, "https://www.zebapi.com/pro/v1", cfg.RESTBaseURL)
	require.Equal(t, 30*time.Second, cfg.Stream.MessageTimeout)
	require.Equal(t, 10*time.Second, cfg.Stream.PingTimeout)
	require.Equal(t, 30*time.Second, cfg.Stream.ReconnectDelay)
	require.Equal(t, time.Hour, cfg.Poll.SnapshotInterval)
	require.Positive(t, cfg.Budget.Weight)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ZEBPAY_ENV", "sandbox")
	t.Setenv("ZEBPAY_PAIRS", "btc-inr, eth-inr")
	t.Setenv("ZEBPAY_HTTP_TIMEOUT", "3s")
	t.Setenv("ZEBPAY_REQUEST_WEIGHT", "5")

	cfg := config.FromEnv()
	require.Equal(t, config.EnvSandbox, cfg.Environment)
	require.Equal(t, "https://sandbox.zebapi.com/pro/v1", cfg.RESTBaseURL)
	require.Equal(t, []string{"BTC-INR", "ETH-INR"}, cfg.Pairs)
	require.Equal(t, 3*time.Second, cfg.HTTPTimeout)
	require.Equal(t, 5, cfg.Budget.Weight)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "connector.yaml")
	body := []byte("restBaseUrl: https://example.test/v1\npairs:\n  - BTC-INR\nbudget:\n  weight: 3\n  period: 2s\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://example.test/v1", cfg.RESTBaseURL)
	require.Equal(t, []string{"BTC-INR"}, cfg.Pairs)
	require.Equal(t, 3, cfg.Budget.Weight)
	require.Equal(t, 2*time.Second, cfg.Budget.Period)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/connector.yaml")
	require.Error(t, err)
}
