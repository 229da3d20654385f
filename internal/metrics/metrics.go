// Package metrics holds the Prometheus collectors of the update pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"raspisanie/internal/ingest"
	"raspisanie/internal/timetable"
)

const namespace = "raspisanie"

// Collectors is registered on a private registry so tests can build as many
// as they like.
type Collectors struct {
	registry *prometheus.Registry
	handler  http.Handler

	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	lastSuccess   prometheus.Gauge
	unparsable    *prometheus.CounterVec
	misses        *prometheus.CounterVec
	ambiguous     prometheus.Counter
	subdocFailed  *prometheus.CounterVec
	applied       *prometheus.CounterVec
}

func New() *Collectors {
	reg := prometheus.NewRegistry()
	c := &Collectors{
		registry: reg,
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_cycles_total",
			Help:      "Update cycles by result (ok, unchanged, error).",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_cycle_duration_seconds",
			Help:      "Duration of update cycles.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cycle that finished without error.",
		}),
		unparsable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unparsable_total",
			Help:      "Skipped document units by kind.",
		}, []string{"unit"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolution_misses_total",
			Help:      "Relations dropped because the entity is not in the catalog.",
		}, []string{"entity"}),
		ambiguous: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "teacher_ambiguous_total",
			Help:      "Teacher fragments that matched more than one catalog row.",
		}),
		subdocFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subdocument_failures_total",
			Help:      "Linked documents that could not be fetched or parsed.",
		}, []string{"doc"}),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "applied_total",
			Help:      "Rows written by applied cycles.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		c.cycles, c.cycleDuration, c.lastSuccess, c.unparsable,
		c.misses, c.ambiguous, c.subdocFailed, c.applied,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	return c
}

func (c *Collectors) Registry() *prometheus.Registry { return c.registry }

func (c *Collectors) Handler() http.Handler { return c.handler }

func (c *Collectors) CycleFinished(result string, took time.Duration) {
	c.cycles.WithLabelValues(result).Inc()
	c.cycleDuration.Observe(took.Seconds())
	if result == "ok" || result == "unchanged" {
		c.lastSuccess.SetToCurrentTime()
	}
}

func (c *Collectors) Unparsable(unit string) { c.unparsable.WithLabelValues(unit).Inc() }

func (c *Collectors) SubdocumentFailed(key string) { c.subdocFailed.WithLabelValues(key).Inc() }

func (c *Collectors) Applied(s ingest.Stats) {
	c.applied.WithLabelValues("sessions").Add(float64(s.Sessions))
	c.applied.WithLabelValues("call_entries").Add(float64(s.CallEntries))
	c.applied.WithLabelValues("cafeteria_slots").Add(float64(s.Slots))
}

// ResolveMiss matches ingest.StoreOptions.OnMiss.
func (c *Collectors) ResolveMiss(entity string) { c.misses.WithLabelValues(entity).Inc() }

// TeacherAmbiguous matches resolve.Options.OnAmbiguous.
func (c *Collectors) TeacherAmbiguous(timetable.TeacherName, int) { c.ambiguous.Inc() }
