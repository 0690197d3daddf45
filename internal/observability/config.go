package observability

import (
	"strings"

	"github.com/smallbiznis/storefront/internal/config"
)

// Config is the slice of application config the telemetry stack needs.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "storefront"
	}

	telemetry := cfg.Telemetry
	protocol := telemetry.OTLPProtocol
	if protocol != "grpc" && protocol != "http" {
		protocol = "grpc"
	}
	ratio := telemetry.SamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 0.1
	}

	return Config{
		ServiceName:   serviceName,
		Environment:   strings.TrimSpace(cfg.Environment),
		Version:       strings.TrimSpace(cfg.AppVersion),
		LogLevel:      telemetry.LogLevel,
		LogFormat:     telemetry.LogFormat,
		OtelEnabled:   telemetry.OtelEnabled && telemetry.OTLPEndpoint != "",
		OTLPEndpoint:  telemetry.OTLPEndpoint,
		OTLPProtocol:  protocol,
		SamplingRatio: ratio,
	}
}

// Debug turns on verbose request logging and stack traces.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
