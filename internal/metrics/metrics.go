package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ThreadMetrics counts conversation activity. A nil *ThreadMetrics is a no-op.
type ThreadMetrics struct {
	created  *prometheus.CounterVec
	messages *prometheus.CounterVec
	resolved *prometheus.CounterVec
}

// NewThreadMetrics registers the thread counters on the provided registerer.
func NewThreadMetrics(reg prometheus.Registerer) *ThreadMetrics {
	if reg == nil {
		return &ThreadMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leasebook_threads_created_total",
		Help: "Threads opened, by topic type.",
	}, []string{"topic_type"})
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leasebook_thread_messages_total",
		Help: "Messages appended to threads, by message type and actor.",
	}, []string{"message_type", "actor"})
	resolved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leasebook_threads_resolved_total",
		Help: "Threads resolved, by topic type.",
	}, []string{"topic_type"})
	reg.MustRegister(created, messages, resolved)
	return &ThreadMetrics{created: created, messages: messages, resolved: resolved}
}

func (m *ThreadMetrics) ThreadCreated(topicType string) {
	if m == nil || m.created == nil {
		return
	}
	m.created.WithLabelValues(normalizeLabel(topicType)).Inc()
}

func (m *ThreadMetrics) MessageAdded(messageType, actor string) {
	if m == nil || m.messages == nil {
		return
	}
	m.messages.WithLabelValues(normalizeLabel(messageType), normalizeLabel(actor)).Inc()
}

func (m *ThreadMetrics) ThreadResolved(topicType string) {
	if m == nil || m.resolved == nil {
		return
	}
	m.resolved.WithLabelValues(normalizeLabel(topicType)).Inc()
}

// JobMetrics records background job executions.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leasebook_job_duration_seconds",
		Help:    "Duration of background jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leasebook_job_success_total",
		Help: "Successful background job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leasebook_job_failure_total",
		Help: "Failed background job executions.",
	}, []string{"job"})
	reg.MustRegister(duration, success, failure)
	return &JobMetrics{duration: duration, success: success, failure: failure}
}

func (j *JobMetrics) ObserveDuration(job string, d time.Duration) {
	if j == nil || j.duration == nil {
		return
	}
	j.duration.WithLabelValues(normalizeLabel(job)).Observe(d.Seconds())
}

func (j *JobMetrics) IncSuccess(job string) {
	if j == nil || j.success == nil {
		return
	}
	j.success.WithLabelValues(normalizeLabel(job)).Inc()
}

func (j *JobMetrics) IncFailure(job string) {
	if j == nil || j.failure == nil {
		return
	}
	j.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
