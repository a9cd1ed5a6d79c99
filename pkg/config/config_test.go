package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
device:
  dev_eui: "70B3D57ED0000001"
  app_eui: "00:00:00:00:00:00:00:01"
  app_key: "2B7E151628AED2A6ABF7158809CF4F3C"
node:
  wait_until_connected: false
  confirmed_retries: 5
  retry_delay: 250ms
  tx_retry:
    max_retries: 2
    backoff: 1s
    multiplier: 2
  queue_capacity: 32
transport:
  kind: quic
  address: "modem.local:7700"
  response_timeout: 2s
log:
  level: debug
metrics:
  address: ":9100"
redis:
  address: "127.0.0.1:6379"
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeFile(t, sample))
	require.NoError(t, err)

	assert.Equal(t, TransportQUIC, cfg.Transport.Kind)
	assert.Equal(t, 2*time.Second, cfg.Transport.ResponseTimeout.Std())
	assert.Equal(t, 5*time.Second, cfg.Transport.ReconnectDelay.Std(), "default kept")
	assert.Equal(t, "lorawan:uplinks", cfg.Redis.UplinkList, "default kept")
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	nc, err := cfg.NodeConfig()
	require.NoError(t, err)
	assert.False(t, nc.WaitUntilConnected)
	assert.True(t, nc.AdaptiveDataRate)
	assert.Equal(t, uint8(5), nc.ConfirmedRetries)
	assert.Equal(t, 250*time.Millisecond, nc.RetryDelay)
	assert.Equal(t, 2, nc.TxRetry.MaxRetries)
	assert.Equal(t, 4*time.Second, nc.TxRetry.Delay(3))
	assert.Equal(t, 32, nc.QueueCapacity)
	assert.Equal(t, "70B3D57ED0000001", nc.Keys.DevEUI.String())
	assert.Equal(t, "0000000000000001", nc.Keys.AppEUI.String())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", sample + "bogus: 1\n"},
		{"bad duration", `
device: {dev_eui: "70B3D57ED0000001", app_eui: "0000000000000001", app_key: "2B7E151628AED2A6ABF7158809CF4F3C"}
node: {retry_delay: soon}
`},
		{"bad key", `
device: {dev_eui: "70B3", app_eui: "0000000000000001", app_key: "2B7E151628AED2A6ABF7158809CF4F3C"}
`},
		{"unknown transport", `
device: {dev_eui: "70B3D57ED0000001", app_eui: "0000000000000001", app_key: "2B7E151628AED2A6ABF7158809CF4F3C"}
transport: {kind: carrier-pigeon}
`},
		{"serial without port", `
device: {dev_eui: "70B3D57ED0000001", app_eui: "0000000000000001", app_key: "2B7E151628AED2A6ABF7158809CF4F3C"}
transport: {kind: serial}
`},
		{"bad log level", `
device: {dev_eui: "70B3D57ED0000001", app_eui: "0000000000000001", app_key: "2B7E151628AED2A6ABF7158809CF4F3C"}
log: {level: loud}
`},
		{"zero retry delay", `
device: {dev_eui: "70B3D57ED0000001", app_eui: "0000000000000001", app_key: "2B7E151628AED2A6ABF7158809CF4F3C"}
node: {retry_delay: 0s}
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate_CollectsEveryError(t *testing.T) {
	cfg := Default()
	cfg.Transport.Kind = "smoke"
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "device")
	assert.Contains(t, err.Error(), "transport")
	assert.Contains(t, err.Error(), "log")
}

func TestSave_RoundTrip(t *testing.T) {
	cfg, err := Load(writeFile(t, sample))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, Save(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "retry_delay: 250ms")

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestDuration_AcceptsNanoseconds(t *testing.T) {
	path := writeFile(t, `
device: {dev_eui: "70B3D57ED0000001", app_eui: "0000000000000001", app_key: "2B7E151628AED2A6ABF7158809CF4F3C"}
node: {retry_delay: 1000000}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, cfg.Node.RetryDelay.Std())
}
