// Package metrics exports run counters in the Prometheus text format.
//
// The CLI has no long-lived process to scrape, so metrics are written to
// a textfile after each command for node_exporter's textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/tmaxfit/internal/session"
)

const namespace = "tmaxfit"

// Recorder collects run metrics. It implements session.Observer.
type Recorder struct {
	registry *prometheus.Registry

	runs         *prometheus.CounterVec
	duration     prometheus.Histogram
	draws        prometheus.Counter
	divergent    prometheus.Counter
	renderErrors prometheus.Counter
	lastSuccess  prometheus.Gauge
}

var _ session.Observer = (*Recorder)(nil)

// New creates a Recorder backed by its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Fit runs by outcome status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a fit run, parse to plots.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		draws: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posterior_draws_total",
			Help:      "Post-tuning draws summarized.",
		}),
		divergent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "divergent_draws_total",
			Help:      "Draws the sampler flagged divergent. Counted only when raw draws are retained.",
		}),
		renderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_errors_total",
			Help:      "Runs whose plots failed after sampling succeeded.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_draws",
			Help:      "Pooled draw count of the most recent successful run.",
		}),
	}
	r.registry.MustRegister(r.runs, r.duration, r.draws, r.divergent, r.renderErrors, r.lastSuccess)
	return r
}

// ObserveRun records one finished run.
func (r *Recorder) ObserveRun(out *session.RunOutcome) {
	if out == nil {
		return
	}
	r.runs.WithLabelValues(string(out.Status)).Inc()
	r.duration.Observe(out.Elapsed.Seconds())

	if out.RenderError != "" {
		r.renderErrors.Inc()
	}
	if out.Summary != nil {
		r.draws.Add(float64(out.Summary.Draws))
		if out.Status == session.StatusOK {
			r.lastSuccess.Set(float64(out.Summary.Draws))
		}
	}
	if out.Result != nil {
		r.divergent.Add(float64(out.Result.DivergentCount()))
	}
}

// Registry returns the registry holding the run metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes every metric to path in the text exposition
// format. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
