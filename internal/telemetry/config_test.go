package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/opsdocs/internal/config"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, ProtocolGRPC, cfg.Protocol)
	assert.Equal(t, "opsdocs", cfg.ServiceName)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, 15*time.Second, cfg.MetricsInterval)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestFromSettings(t *testing.T) {
	s := config.Default().Observability
	s.EnableTelemetry = true
	s.Endpoint = "collector.internal:4318"
	s.Protocol = ProtocolHTTP
	s.Insecure = false
	s.SampleRate = 0.25

	cfg := FromSettings(s, "1.4.0")
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "collector.internal:4318", cfg.Endpoint)
	assert.Equal(t, ProtocolHTTP, cfg.Protocol)
	assert.False(t, cfg.Insecure)
	assert.Equal(t, "1.4.0", cfg.ServiceVersion)
	assert.Equal(t, 0.25, cfg.SampleRate)
	require.NoError(t, cfg.Validate())

	cfg = FromSettings(config.ObservabilityConfig{}, "")
	assert.Equal(t, "opsdocs", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := NewDefaultConfig()
		cfg.Enabled = true
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid enabled config", func(*Config) {}, ""},
		{"disabled config skips validation", func(c *Config) { *c = Config{} }, ""},
		{"missing endpoint", func(c *Config) { c.Endpoint = "" }, "endpoint is required"},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, "service_name is required"},
		{"unknown protocol", func(c *Config) { c.Protocol = "udp" }, "protocol must be"},
		{"insecure remote endpoint", func(c *Config) { c.Endpoint = "otel.example.com:4317" }, "only allowed to localhost"},
		{"secure remote endpoint", func(c *Config) { c.Endpoint = "otel.example.com:4317"; c.Insecure = false }, ""},
		{"negative sample rate", func(c *Config) { c.SampleRate = -0.1 }, "sample_rate"},
		{"sample rate above one", func(c *Config) { c.SampleRate = 1.5 }, "sample_rate"},
		{"zero metrics interval", func(c *Config) { c.MetricsInterval = 0 }, "metrics interval"},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }, "shutdown timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ragerr.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_IsLocalEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		want     bool
	}{
		{"localhost:4317", true},
		{"127.0.0.1:4317", true},
		{"127.1.2.3:4317", true},
		{"[::1]:4317", true},
		{"::1", true},
		{"http://localhost:4318", true},
		{"otel-collector:4317", false},
		{"localhost.example.com:4317", false},
		{"10.0.0.5:4317", false},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			cfg := &Config{Endpoint: tt.endpoint}
			assert.Equal(t, tt.want, cfg.isLocalEndpoint())
		})
	}
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "collector:4318", stripScheme("https://collector:4318"))
	assert.Equal(t, "collector:4318", stripScheme("http://collector:4318"))
	assert.Equal(t, "collector:4317", stripScheme("collector:4317"))
}
