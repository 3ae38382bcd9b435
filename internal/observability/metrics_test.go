package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()

	m.RecordRequest("/api/ticket/assign", "POST", 200, 10*time.Millisecond)
	m.RecordTransition("assigned")
	m.RecordTransition("assigned")
	m.RecordConflict("assign")
	m.RecordCache("hit")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/ticket/assign", "POST", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("assigned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflicts.WithLabelValues("assign")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheResults.WithLabelValues("hit")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordTransition("closed")
		m.RecordNotification("dropped")
	})
}
