// Package metrics exports run results for the node_exporter textfile
// collector. A batch tool has nothing to scrape, so the gauges are written
// to a .prom file once the run finishes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gwlsn/tsshrink/internal/jobs"
)

// Result label values of tsshrink_files
const (
	ResultFound     = "found"
	ResultSkipped   = "skipped"
	ResultProcessed = "processed"
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
	ResultDeleted   = "deleted"
)

// RunMetrics holds the gauges of one run in a private registry
type RunMetrics struct {
	reg *prometheus.Registry

	files         *prometheus.GaugeVec
	bytesSaved    prometheus.Gauge
	runDuration   prometheus.Gauge
	lastRun       prometheus.Gauge
	cancelled     prometheus.Gauge
	transcodeTime prometheus.Histogram
}

// NewRunMetrics creates the run gauges
func NewRunMetrics() *RunMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &RunMetrics{
		reg: reg,
		files: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tsshrink_files",
			Help: "Files of the last run by result",
		}, []string{"result"}),
		bytesSaved: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tsshrink_bytes_saved",
			Help: "Bytes saved by the last run",
		}),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tsshrink_last_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tsshrink_last_run_timestamp_seconds",
			Help: "Unix time the last run completed",
		}),
		cancelled: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tsshrink_last_run_cancelled",
			Help: "1 if the last run was interrupted",
		}),
		transcodeTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tsshrink_transcode_duration_seconds",
			Help:    "Encoder wall time of verified files",
			Buckets: prometheus.ExponentialBuckets(30, 2, 10), // 30s to ~4h
		}),
	}
}

// ObserveEvent feeds job events into the transcode time histogram.
// Register it with Runner.Subscribe.
func (m *RunMetrics) ObserveEvent(e jobs.JobEvent) {
	if e.Type == jobs.EventSucceeded && e.Job != nil {
		m.transcodeTime.Observe(float64(e.Job.TranscodeTime))
	}
}

// ObserveRun sets the gauges from a finished run
func (m *RunMetrics) ObserveRun(run *jobs.Run) {
	st := run.Stats
	m.files.WithLabelValues(ResultFound).Set(float64(st.Found))
	m.files.WithLabelValues(ResultSkipped).Set(float64(st.Skipped))
	m.files.WithLabelValues(ResultProcessed).Set(float64(st.Processed))
	m.files.WithLabelValues(ResultSucceeded).Set(float64(st.Succeeded))
	m.files.WithLabelValues(ResultFailed).Set(float64(st.Failed))
	m.files.WithLabelValues(ResultDeleted).Set(float64(st.Deleted))
	m.bytesSaved.Set(float64(st.BytesSaved))

	if !run.CompletedAt.IsZero() {
		m.lastRun.Set(float64(run.CompletedAt.Unix()))
		m.runDuration.Set(run.CompletedAt.Sub(run.StartedAt).Seconds())
	}

	if st.Cancelled {
		m.cancelled.Set(1)
	} else {
		m.cancelled.Set(0)
	}
}

func (m *RunMetrics) gatherer() prometheus.Gatherer {
	return m.reg
}

// WriteTextfile atomically writes the gauges in text exposition format
func (m *RunMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.gatherer())
}
