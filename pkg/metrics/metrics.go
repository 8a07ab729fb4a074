// Package metrics counts sessions, page verdicts and diff-service polls of a
// run and optionally pushes them to a Prometheus Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/visreg/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Poll results reported to StatusPoll.
const (
	PollPending  = "pending"
	PollTerminal = "terminal"
	PollError    = "error"
)

// Recorder holds the run's collectors on a private registry, so several runs
// in one process never collide. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	sessionsOpened *prometheus.CounterVec
	pagesValidated *prometheus.CounterVec
	pageDuration   *prometheus.HistogramVec
	statusPolls    *prometheus.CounterVec
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		sessionsOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visreg",
			Name:      "sessions_opened_total",
			Help:      "Remote browser sessions requested from the farm, by engine and result.",
		}, []string{"engine", "result"}),
		pagesValidated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visreg",
			Name:      "pages_validated_total",
			Help:      "Page validations completed, by engine and outcome status.",
		}, []string{"engine", "status"}),
		pageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "visreg",
			Name:      "page_duration_seconds",
			Help:      "Wall time of one page validation.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"engine"}),
		statusPolls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visreg",
			Name:      "status_polls_total",
			Help:      "Screenshot status queries sent to the visual-diff service, by result.",
		}, []string{"result"}),
	}
}

// SessionOpened records a session open attempt.
func (r *Recorder) SessionOpened(engine string, err error) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.sessionsOpened.WithLabelValues(engine, result).Inc()
}

// PageValidated records one page outcome.
func (r *Recorder) PageValidated(engine string, status types.Status, d time.Duration) {
	if r == nil {
		return
	}
	r.pagesValidated.WithLabelValues(engine, string(status)).Inc()
	r.pageDuration.WithLabelValues(engine).Observe(d.Seconds())
}

// StatusPoll records one fetchScreenshotStatus round-trip.
func (r *Recorder) StatusPoll(result string) {
	if r == nil {
		return
	}
	r.statusPolls.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Push sends every collected metric to the Pushgateway at url, grouped by
// run id so concurrent CI jobs do not overwrite each other.
func (r *Recorder) Push(ctx context.Context, url, job, runID string) error {
	if r == nil || url == "" {
		return nil
	}
	err := push.New(url, job).
		Gatherer(r.registry).
		Grouping("run_id", runID).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
