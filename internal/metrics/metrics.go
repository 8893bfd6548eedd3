package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/datallboy/gosplice/internal/events"
)

const namespace = "gosplice"

// Metrics holds the gosplice collectors. It is also an events.Sink, so it can be
// added to the event fan-out next to the log and the websocket hub.
type Metrics struct {
	Segments    *prometheus.CounterVec
	Bytes       prometheus.Counter
	Jobs        *prometheus.CounterVec
	ActiveJobs  prometheus.Gauge
	JobDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Segments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "segments_total",
				Help:      "Segments handled by the fetcher, by result.",
			},
			[]string{"result"},
		),
		Bytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "segment_bytes_total",
				Help:      "Segment bytes written to working directories.",
			},
		),
		Jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Finished jobs, by outcome.",
			},
			[]string{"status"},
		),
		ActiveJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_jobs",
				Help:      "Jobs currently acquiring or packaging.",
			},
		),
		JobDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Wall time of finished jobs.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Segments, m.Bytes, m.Jobs, m.ActiveJobs, m.JobDuration} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) Emit(e events.Event) {
	switch e.Type {
	case events.JobStarted:
		m.ActiveJobs.Inc()
	case events.SegmentDone:
		m.Segments.WithLabelValues("downloaded").Inc()
		m.Bytes.Add(float64(e.Bytes))
	case events.SegmentSkipped:
		m.Segments.WithLabelValues("reused").Inc()
	case events.JobDone:
		m.finish("completed", e)
	case events.JobFailed:
		m.finish("failed", e)
	}
}

func (m *Metrics) finish(status string, e events.Event) {
	m.ActiveJobs.Dec()
	m.Jobs.WithLabelValues(status).Inc()
	m.JobDuration.Observe(e.Elapsed.Seconds())
}
