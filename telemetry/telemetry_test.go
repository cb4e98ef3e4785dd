package telemetry

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestDefaultEndpoint(t *testing.T) {
	t.Parallel()

	env := func(vals map[string]string) func(string) string {
		return func(k string) string { return vals[k] }
	}

	assert.Equal(t, collectorEndpoint, DefaultEndpoint(env(map[string]string{"KUBERNETES_SERVICE_HOST": "10.0.0.1"})))
	assert.Empty(t, DefaultEndpoint(env(nil)))
}

func TestWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{Endpoint: "http://collector:4318"}.withDefaults()

	assert.Equal(t, DefaultServiceName, cfg.ServiceName)
	assert.Equal(t, defaultServiceVersion, cfg.ServiceVersion)
	assert.Equal(t, defaultTimeout, cfg.Timeout)
	assert.Equal(t, "http://collector:4318/v1/traces", signalURL(cfg.Endpoint+"/", "/v1/traces"))
}

func TestDisabled(t *testing.T) { //nolint:paralleltest
	providers, err := Initialize(t.Context(), Config{Enabled: false, Endpoint: "http://collector:4318"})
	require.NoError(t, err)
	assert.Nil(t, providers)

	assert.Nil(t, providers.LogHandler())
	assert.NoError(t, providers.Shutdown(t.Context()))
}

func TestEnabledInstallsProviders(t *testing.T) { //nolint:paralleltest
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	providers, err := Initialize(t.Context(), Config{
		Enabled:  true,
		Endpoint: "http://127.0.0.1:1",
		Logs:     true,
	})
	require.NoError(t, err)
	require.NotNil(t, providers)

	assert.Same(t, providers.tracer, otel.GetTracerProvider())

	handler := providers.LogHandler()
	require.NotNil(t, handler)
	assert.True(t, handler.Enabled(t.Context(), slog.LevelInfo))

	// Nothing was recorded, so shutdown does not need the collector.
	assert.NoError(t, providers.Shutdown(t.Context()))
}
