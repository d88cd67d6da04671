// Package metrics exposes coordinator counters on a private prometheus
// registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "msim"

// Metrics holds every collector the daemon exports.
type Metrics struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	disconnects   *prometheus.CounterVec
	tonesStarted  *prometheus.CounterVec
	toneFailures  *prometheus.CounterVec
	redials       prometheus.Counter
	rejected      prometheus.Counter
	activeSub     prometheus.Gauge
	xdivertSyncs  *prometheus.CounterVec
	xdivertActive prometheus.Gauge
}

// New creates Metrics registered on a fresh registry, including the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Platform call events handled, by event type.",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped as invalid or after a collaborator failure.",
		}, []string{"reason"}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Call disconnects, by cause.",
		}, []string{"cause"}),
		tonesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tones_started_total",
			Help:      "Audio cues started, by kind.",
		}, []string{"kind"}),
		toneFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tone_failures_total",
			Help:      "Audio cues that failed to start, by kind.",
		}, []string{"kind"}),
		redials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cdma_redials_total",
			Help:      "Automatic CDMA redial attempts placed.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incoming_rejected_total",
			Help:      "Incoming calls rejected by the ignore-incoming policy.",
		}),
		activeSub: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_subscription",
			Help:      "Subscription holding UI/audio focus, -1 for none.",
		}),
		xdivertSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xdivert_syncs_total",
			Help:      "XDivert synchronization runs, by result.",
		}, []string{"result"}),
		xdivertActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "xdivert_active",
			Help:      "1 when XDivert is configured on both subscriptions.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events, m.dropped, m.disconnects, m.tonesStarted, m.toneFailures,
		m.redials, m.rejected, m.activeSub, m.xdivertSyncs, m.xdivertActive,
	)
	m.activeSub.Set(-1)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Event(name string) {
	if m != nil {
		m.events.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) Dropped(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Disconnect(cause string) {
	if m != nil {
		m.disconnects.WithLabelValues(cause).Inc()
	}
}

func (m *Metrics) ToneStarted(kind string) {
	if m != nil {
		m.tonesStarted.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ToneFailed(kind string) {
	if m != nil {
		m.toneFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Redial() {
	if m != nil {
		m.redials.Inc()
	}
}

func (m *Metrics) IncomingRejected() {
	if m != nil {
		m.rejected.Inc()
	}
}

func (m *Metrics) ActiveSubscription(sub int) {
	if m != nil {
		m.activeSub.Set(float64(sub))
	}
}

func (m *Metrics) XDivertSync(result string, active bool) {
	if m == nil {
		return
	}
	m.xdivertSyncs.WithLabelValues(result).Inc()
	if active {
		m.xdivertActive.Set(1)
	} else {
		m.xdivertActive.Set(0)
	}
}
