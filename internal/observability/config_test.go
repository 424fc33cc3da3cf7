package observability

import (
	"testing"

	"github.com/smallbiznis/checkout/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigNormalizesExporterSettings(t *testing.T) {
	tests := []struct {
		name         string
		protocol     string
		ratio        float64
		wantProtocol string
		wantRatio    float64
	}{
		{name: "grpc default", protocol: "", ratio: 0.25, wantProtocol: "grpc", wantRatio: 0.25},
		{name: "http kept", protocol: "http/protobuf", ratio: 1, wantProtocol: "http/protobuf", wantRatio: 1},
		{name: "unknown protocol", protocol: "thrift", ratio: 0.5, wantProtocol: "grpc", wantRatio: 0.5},
		{name: "ratio above one", protocol: "grpc", ratio: 3, wantProtocol: "grpc", wantRatio: 0.1},
		{name: "negative ratio", protocol: "http", ratio: -1, wantProtocol: "http", wantRatio: 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadConfig(config.Config{Observability: config.ObservabilityConfig{
				OtelProtocol:  tt.protocol,
				SamplingRatio: tt.ratio,
			}})
			assert.Equal(t, tt.wantProtocol, cfg.OtelExporterProtocol)
			assert.Equal(t, tt.wantRatio, cfg.OtelSamplingRatio)
			assert.Equal(t, defaultServiceName, cfg.ServiceName)
		})
	}
}

func TestDebugFollowsLevelOrEnvironment(t *testing.T) {
	assert.True(t, Config{LogLevel: "DEBUG"}.Debug())
	assert.True(t, Config{LogLevel: "info", Environment: "development"}.Debug())
	assert.False(t, Config{LogLevel: "info", Environment: "production"}.Debug())
}

func TestSubConfigsShareServiceIdentity(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:     "checkout-eu",
		AppVersion:  "1.2.3",
		Environment: "production",
		Observability: config.ObservabilityConfig{
			LogLevel:     "warn",
			OtelEnabled:  true,
			OtelEndpoint: "collector:4317",
		},
	})

	assert.Equal(t, "checkout-eu", cfg.Logger().ServiceName)
	assert.False(t, cfg.Logger().IncludeStackOnError)
	assert.Equal(t, "1.2.3", cfg.Tracing().ServiceVersion)
	assert.True(t, cfg.Metrics().Enabled)
	assert.Equal(t, "collector:4317", cfg.Metrics().ExporterEndpoint)
}
