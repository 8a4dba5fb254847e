package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestRecordPendingAddedUpdatesGaugeAndCounter(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())
	m.RecordPendingAdded("1", "read_py_files", 3)

	assert.Equal(t, float64(3), gaugeValue(t, m.PendingQueueDepth.WithLabelValues("1")))

	var out dto.Metric
	require.NoError(t, m.PendingAddedTotal.WithLabelValues("1", "read_py_files").Write(&out))
	assert.Equal(t, float64(1), out.GetCounter().GetValue())
}

func TestSetBridgeConnectedTogglesGauge(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())
	m.SetBridgeConnected(true)
	assert.Equal(t, float64(1), gaugeValue(t, m.BridgeConnected))

	m.SetBridgeConnected(false)
	assert.Equal(t, float64(0), gaugeValue(t, m.BridgeConnected))
}

func TestRecordBridgeReconnectIncrementsCounter(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())
	m.RecordBridgeReconnect(2.5)

	var out dto.Metric
	require.NoError(t, m.BridgeReconnectTotal.Write(&out))
	assert.Equal(t, float64(1), out.GetCounter().GetValue())
	assert.Equal(t, float64(2.5), gaugeValue(t, m.BridgeBackoffSeconds))
}
