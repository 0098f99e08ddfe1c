package extension

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Event describes one successful peer call.
type Event struct {
	Method    string
	Location  string
	Extension string
	Duration  time.Duration
}

// Tracker records successful peer calls. Failures are logged and ignored.
type Tracker interface {
	Track(ctx context.Context, ev Event) error
}

// TrackerFunc adapts a function to Tracker.
type TrackerFunc func(ctx context.Context, ev Event) error

// Track calls f.
func (f TrackerFunc) Track(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// MultiTracker fans an event out to every tracker. Each one is isolated
// from the others' errors.
type MultiTracker []Tracker

// Track calls every tracker and returns the last error.
func (m MultiTracker) Track(ctx context.Context, ev Event) error {
	var last error
	for _, t := range m {
		if err := t.Track(ctx, ev); err != nil {
			last = err
		}
	}
	return last
}

// SlogTracker logs each call at debug level.
type SlogTracker struct {
	Logger *slog.Logger
}

// Track logs ev.
func (t SlogTracker) Track(ctx context.Context, ev Event) error {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "extension call",
		"method", ev.Method,
		"location", ev.Location,
		"extension", ev.Extension,
		"duration", ev.Duration,
	)
	return nil
}

// PrometheusTracker counts successful calls and observes their latency.
type PrometheusTracker struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusTracker creates the collectors and registers them with reg.
func NewPrometheusTracker(reg prometheus.Registerer) (*PrometheusTracker, error) {
	t := &PrometheusTracker{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "entitybridge",
			Subsystem: "extension",
			Name:      "calls_total",
			Help:      "Successful calls from sandboxed extensions.",
		}, []string{"method", "location"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "entitybridge",
			Subsystem: "extension",
			Name:      "call_duration_seconds",
			Help:      "Handler latency of successful extension calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	for _, c := range []prometheus.Collector{t.calls, t.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Track records ev.
func (t *PrometheusTracker) Track(_ context.Context, ev Event) error {
	t.calls.WithLabelValues(ev.Method, ev.Location).Inc()
	t.duration.WithLabelValues(ev.Method).Observe(ev.Duration.Seconds())
	return nil
}

// Calls returns the counter, for scraping in tests and the CLI summary.
func (t *PrometheusTracker) Calls() *prometheus.CounterVec {
	return t.calls
}
