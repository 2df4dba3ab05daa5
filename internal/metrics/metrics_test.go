package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestThreadMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewThreadMetrics(reg)

	m.ThreadCreated("payment_review")
	m.ThreadCreated("payment_review")
	m.MessageAdded("flag", "landlord")
	m.ThreadResolved("")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.created.WithLabelValues("payment_review")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("flag", "landlord")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolved.WithLabelValues("unknown")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var tm *ThreadMetrics
	var jm *JobMetrics
	assert.NotPanics(t, func() {
		tm.ThreadCreated("x")
		tm.MessageAdded("x", "y")
		jm.IncSuccess("x")
		jm.IncFailure("x")
		jm.ObserveDuration("x", time.Second)
		NewJobMetrics(nil).IncSuccess("x")
	})
}
