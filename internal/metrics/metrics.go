// Package metrics exposes engine state and events as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oshokin/escape-alarm/internal/domain/alarm"
)

const metricPrefix = "escape_alarm_"

// Collector implements the engine recorder on a private registry.
type Collector struct {
	// registry holds every metric of this collector.
	registry *prometheus.Registry

	activeAlarms    prometheus.Gauge
	phase           *prometheus.GaugeVec
	audioPlaying    prometheus.Gauge
	triggersTotal   *prometheus.CounterVec
	resolvedTotal   *prometheus.CounterVec
	pollsTotal      *prometheus.CounterVec
	playbackFailure prometheus.Counter
}

// New creates and registers the engine metrics together with the Go runtime
// and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		activeAlarms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "active_alarms",
			Help: "Number of active alarms",
		}),
		phase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "cycle_phase",
				Help: "Current sound cycle phase, 1 for the active phase",
			},
			[]string{"phase"},
		),
		audioPlaying: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "audio_playing",
			Help: "Whether the siren is sounding",
		}),
		triggersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "triggers_total",
				Help: "Total alarm triggers by kind",
			},
			[]string{"kind"},
		),
		resolvedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "resolved_total",
				Help: "Total alarms removed by source",
			},
			[]string{"source"},
		),
		pollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "polls_total",
				Help: "Total backend reconciliation passes by result",
			},
			[]string{"result"},
		),
		playbackFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "playback_failures_total",
			Help: "Total siren playback start failures",
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.activeAlarms,
		c.phase,
		c.audioPlaying,
		c.triggersTotal,
		c.resolvedTotal,
		c.pollsTotal,
		c.playbackFailure,
	)

	for _, p := range []alarm.Phase{alarm.PhaseIdle, alarm.PhaseSounding, alarm.PhaseSilent} {
		c.phase.WithLabelValues(p.String())
	}

	c.phase.WithLabelValues(alarm.PhaseIdle.String()).Set(1)

	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// AlarmTriggered counts a new or replacing trigger.
func (c *Collector) AlarmTriggered(replaced bool) {
	kind := "new"
	if replaced {
		kind = "replaced"
	}

	c.triggersTotal.WithLabelValues(kind).Inc()
}

// AlarmsResolved counts removals by source.
func (c *Collector) AlarmsResolved(source string, n int) {
	c.resolvedTotal.WithLabelValues(source).Add(float64(n))
}

// PollCompleted counts a reconciliation pass.
func (c *Collector) PollCompleted(result string) {
	c.pollsTotal.WithLabelValues(result).Inc()
}

// PlaybackFailed counts a siren start failure.
func (c *Collector) PlaybackFailed() {
	c.playbackFailure.Inc()
}

// StateChanged mirrors the snapshot into the gauges.
func (c *Collector) StateChanged(snapshot *alarm.Snapshot) {
	c.activeAlarms.Set(float64(snapshot.ActiveCount))
	c.audioPlaying.Set(boolToFloat(snapshot.AudioPlaying))

	for _, p := range []alarm.Phase{alarm.PhaseIdle, alarm.PhaseSounding, alarm.PhaseSilent} {
		c.phase.WithLabelValues(p.String()).Set(boolToFloat(p == snapshot.Phase))
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}

	return 0
}
