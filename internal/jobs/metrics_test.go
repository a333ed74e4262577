package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("mail:send").End(nil))
	err := errors.New("boom")
	assert.ErrorIs(t, m.Track("mail:send").End(err), err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("mail:send", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("mail:send", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("mail:send")))
}

func TestAddDeliveredIgnoresEmptyRuns(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddDelivered("notifications:fanout", 0)
	m.AddDelivered("notifications:fanout", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.delivered.WithLabelValues("notifications:fanout")))

	var nilMetrics *Metrics
	nilMetrics.AddDelivered("x", 1)
	assert.NoError(t, nilMetrics.Track("x").End(nil))
}
