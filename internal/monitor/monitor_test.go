package monitor

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMonitorCounts(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordNotifyEnqueued()
	m.RecordNotifyEnqueued()
	m.RecordNotifyPublished()
	m.RecordNotifyDropped()
	m.RecordDBError()

	stats := m.GetStats()
	notify := stats["notify"].(map[string]interface{})
	assert.Equal(t, int64(2), notify["enqueued"])
	assert.Equal(t, float64(50), notify["delivery_rate"])
	assert.False(t, m.LastDBError.IsZero())

	assert.Equal(t, float64(2), testutil.ToFloat64(m.events.WithLabelValues("notify_enqueued")))

	m.Reset()
	assert.Equal(t, int64(0), m.NotifyEnqueued)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.events.WithLabelValues("notify_dropped")))
}
