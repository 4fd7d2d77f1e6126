package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	eventsAdded    prometheus.Counter
	eventsRemoved  prometheus.Counter
	conflictChecks prometheus.Counter
	commands       *prometheus.CounterVec
	freeTimeSearch prometheus.Histogram
	indexedEvents  prometheus.Gauge
	simTick        prometheus.Gauge
}

// New registers the collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	eventsAdded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simcal_events_added_total",
		Help: "Events successfully added to the calendar index",
	})

	eventsRemoved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simcal_events_removed_total",
		Help: "Events removed from the calendar index",
	})

	conflictChecks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simcal_conflict_checks_total",
		Help: "Availability and conflict queries served",
	})

	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simcal_commands_total",
		Help: "Queued commands processed, by kind and result",
	}, []string{"kind", "result"})

	freeTimeSearch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "simcal_free_time_search_seconds",
		Help:    "Duration of common free time searches",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	indexedEvents := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simcal_indexed_events",
		Help: "Events currently held in the index",
	})

	simTick := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simcal_sim_tick",
		Help: "Current absolute simulation tick",
	})

	registry.MustRegister(eventsAdded, eventsRemoved, conflictChecks, commands, freeTimeSearch, indexedEvents, simTick)

	return &Metrics{
		registry:       registry,
		handler:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		eventsAdded:    eventsAdded,
		eventsRemoved:  eventsRemoved,
		conflictChecks: conflictChecks,
		commands:       commands,
		freeTimeSearch: freeTimeSearch,
		indexedEvents:  indexedEvents,
		simTick:        simTick,
	}
}

// Handler exposes the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) EventAdded() {
	if m == nil {
		return
	}
	m.eventsAdded.Inc()
}

func (m *Metrics) EventRemoved() {
	if m == nil {
		return
	}
	m.eventsRemoved.Inc()
}

func (m *Metrics) ConflictCheck() {
	if m == nil {
		return
	}
	m.conflictChecks.Inc()
}

// CommandProcessed counts one command. err == nil is recorded as "ok".
func (m *Metrics) CommandProcessed(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(kind, result).Inc()
}

// ObserveFreeTimeSearch records how long a search took.
func (m *Metrics) ObserveFreeTimeSearch(d time.Duration) {
	if m == nil {
		return
	}
	m.freeTimeSearch.Observe(d.Seconds())
}

func (m *Metrics) SetIndexedEvents(n int) {
	if m == nil {
		return
	}
	m.indexedEvents.Set(float64(n))
}

func (m *Metrics) SetSimTick(tick uint64) {
	if m == nil {
		return
	}
	m.simTick.Set(float64(tick))
}
