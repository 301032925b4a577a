// Package metrics publishes Prometheus metrics for fetching, caching and
// harvesting.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Gaurav-Gosain/cfproblem/cache"
	"github.com/Gaurav-Gosain/cfproblem/fetch"
	"github.com/Gaurav-Gosain/cfproblem/harvest"
)

const namespace = "cfproblem"

// Recorder publishes metrics on its own registry. A nil Recorder discards
// every observation, so callers can wire it unconditionally.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	attempts       *prometheus.CounterVec
	attemptLatency *prometheus.HistogramVec
	lookups        *prometheus.CounterVec
	harvested      *prometheus.CounterVec
	retries        prometheus.Counter
}

// NewRecorder registers the collectors on reg, or on a fresh registry when
// reg is nil.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fetch",
		Name:      "attempts_total",
		Help:      "Remote fetch attempts by endpoint kind and outcome.",
	}, []string{"kind", "outcome", "status_code"})

	attemptLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "fetch",
		Name:      "attempt_duration_seconds",
		Help:      "Latency of remote fetch attempts.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"kind", "outcome"})

	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by the tier that answered them.",
	}, []string{"tier", "result", "shared", "refresh"})

	harvested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "harvest",
		Name:      "problems_total",
		Help:      "Harvested problems by final result.",
	}, []string{"result"})

	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "harvest",
		Name:      "retries_total",
		Help:      "Harvest retries scheduled after a missing or partial document.",
	})

	reg.MustRegister(attempts, attemptLatency, lookups, harvested, retries)

	return &Recorder{
		gatherer:       reg,
		handler:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		attempts:       attempts,
		attemptLatency: attemptLatency,
		lookups:        lookups,
		harvested:      harvested,
		retries:        retries,
	}
}

// Handler exposes the registry over HTTP.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveAttempt records one classified fetch attempt.
func (r *Recorder) ObserveAttempt(a fetch.Attempt) {
	if r == nil {
		return
	}
	kind := label(string(a.Kind))
	outcome := label(string(a.Outcome))
	status := "none"
	if a.Status > 0 {
		status = strconv.Itoa(a.Status)
	}
	r.attempts.WithLabelValues(kind, outcome, status).Inc()
	r.attemptLatency.WithLabelValues(kind, outcome).Observe(a.Elapsed.Seconds())
}

// ObserveLookup records how a cache Get was served.
func (r *Recorder) ObserveLookup(l cache.Lookup) {
	if r == nil {
		return
	}
	result := "empty"
	if l.Found {
		result = "found"
	}
	r.lookups.WithLabelValues(label(string(l.Tier)), result, strconv.FormatBool(l.Shared), strconv.FormatBool(l.Refresh)).Inc()
}

// ObserveHarvest records final harvest results and retries.
func (r *Recorder) ObserveHarvest(e harvest.Event) {
	if r == nil {
		return
	}
	switch e.Type {
	case harvest.EventRetry:
		r.retries.Inc()
	case harvest.EventDone, harvest.EventPartial, harvest.EventError:
		r.harvested.WithLabelValues(string(e.Type)).Inc()
	}
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
