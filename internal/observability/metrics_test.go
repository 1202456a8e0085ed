package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.TasksEnqueued.Inc()
	m.QueueDepth.Set(3)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNewTracerProviderNoopWhenEndpointEmpty(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), "", "taskqueue")
	require.NoError(t, err)
	require.NotNil(t, tp)
}
