package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("auth:sessions:purge").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("auth:sessions:purge").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("auth:sessions:purge", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("auth:sessions:purge", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("auth:sessions:purge")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NoError(t, m.Track("job").End(nil))
	m.AddSessionsPurged(3)
}

func TestSessionsPurgedIgnoresNonPositive(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddSessionsPurged(0)
	m.AddSessionsPurged(-1)
	m.AddSessionsPurged(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.purged))
}
