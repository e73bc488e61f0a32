package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisabledTelemetryIsNoOp(t *testing.T) {
	tel, err := New(Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, tel.Meter)
	require.NotNil(t, tel.Tracer)

	// Instruments registered against the no-op meter are usable.
	counter, err := tel.Meter.Int64Counter("kagedb.test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestEnabledTelemetryServesAndShutsDown(t *testing.T) {
	// Port 0 lets the metrics listener pick a free port.
	tel, err := New(Config{Enabled: true, ServiceName: "kagedb-test", PrometheusPort: 0})
	require.NoError(t, err)

	counter, err := tel.Meter.Int64Counter("kagedb.test.fetches")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	require.NoError(t, tel.Shutdown(context.Background()))
}
