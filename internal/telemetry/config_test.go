package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "gitmem", cfg.ServiceName)
	assert.Equal(t, ProtocolGRPC, cfg.Protocol)
	assert.Equal(t, 15*time.Second, cfg.Metrics.ExportInterval)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"disabled ignores fields", func(c *Config) { c.Enabled = false; c.Endpoint = "" }, ""},
		{"valid local", func(c *Config) {}, ""},
		{"missing endpoint", func(c *Config) { c.Endpoint = "" }, "endpoint is required"},
		{"missing service", func(c *Config) { c.ServiceName = "" }, "service_name is required"},
		{"bad protocol", func(c *Config) { c.Protocol = "udp" }, "unsupported protocol"},
		{"insecure remote", func(c *Config) { c.Endpoint = "otel.example.com:4317" }, "insecure export"},
		{"tls remote", func(c *Config) { c.Endpoint = "otel.example.com:4317"; c.Insecure = false }, ""},
		{"ipv6 loopback", func(c *Config) { c.Endpoint = "[::1]:4317" }, ""},
		{"http scheme local", func(c *Config) { c.Protocol = ProtocolHTTP; c.Endpoint = "http://127.0.0.1:4318" }, ""},
		{"rate above one", func(c *Config) { c.Sampling.Rate = 1.5 }, "sampling.rate"},
		{"rate negative", func(c *Config) { c.Sampling.Rate = -0.1 }, "sampling.rate"},
		{"zero interval", func(c *Config) { c.Metrics.ExportInterval = 0 }, "export_interval"},
		{"zero interval without metrics", func(c *Config) { c.Metrics.Enabled = false; c.Metrics.ExportInterval = 0 }, ""},
		{"zero shutdown", func(c *Config) { c.Shutdown.Timeout = 0 }, "shutdown.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
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

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "collector:4318", stripScheme("https://collector:4318"))
	assert.Equal(t, "collector:4318", stripScheme("http://collector:4318"))
	assert.Equal(t, "collector:4317", stripScheme("collector:4317"))
}
