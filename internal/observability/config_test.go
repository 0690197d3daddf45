package observability

import (
	"testing"

	"github.com/smallbiznis/storefront/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: "production",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "info",
			OtelEnabled:   true,
			OTLPEndpoint:  "otel:4317",
			OTLPProtocol:  "thrift",
			SamplingRatio: 3,
		},
	})

	assert.Equal(t, "storefront", cfg.ServiceName)
	assert.Equal(t, "grpc", cfg.OTLPProtocol)
	assert.Equal(t, 0.1, cfg.SamplingRatio)
	assert.True(t, cfg.OtelEnabled)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigDisablesOtelWithoutEndpoint(t *testing.T) {
	cfg := LoadConfig(config.Config{Telemetry: config.TelemetryConfig{OtelEnabled: true}})
	assert.False(t, cfg.OtelEnabled)
}

func TestDebug(t *testing.T) {
	assert.True(t, Config{LogLevel: "debug", Environment: "production"}.Debug())
	assert.True(t, Config{Environment: "Development"}.Debug())
	assert.False(t, Config{Environment: "staging"}.Debug())
}
