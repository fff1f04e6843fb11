package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"confluence-engine/internal/events"
)

const namespace = "confluence"

// Recorder records scheduler and gate metrics with Prometheus
type Recorder struct {
	tickDuration prometheus.Histogram
	analyses     *prometheus.CounterVec
	signals      *prometheus.CounterVec
	skipped      *prometheus.CounterVec
	fetchErrors  *prometheus.CounterVec
	sinkErrors   *prometheus.CounterVec
	gateBlocked  prometheus.Counter
	confidence   *prometheus.GaugeVec
}

// New creates a recorder registered on reg
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of one scheduler tick",
			Buckets:   prometheus.DefBuckets,
		}),
		analyses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Completed analyses by forecast status",
		}, []string{"symbol", "status"}),
		signals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Emitted trading signals",
		}, []string{"symbol", "direction"}),
		skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_total",
			Help:      "Symbols skipped because the previous analysis was still in flight",
		}, []string{"symbol"}),
		fetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Market data fetch failures by component",
		}, []string{"symbol", "component"}),
		sinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed deliveries to signal and breakdown sinks",
		}, []string{"sink"}),
		gateBlocked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_blocked_total",
			Help:      "Gate evaluations that blocked a trade",
		}),
		confidence: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_confidence",
			Help:      "Confidence of the latest forecast per symbol",
		}, []string{"symbol"}),
	}
}

// ObserveTick records how long a tick took
func (r *Recorder) ObserveTick(seconds float64) {
	r.tickDuration.Observe(seconds)
}

// RecordAnalysis counts one finished analysis and tracks its confidence
func (r *Recorder) RecordAnalysis(symbol, status string, confidence float64) {
	r.analyses.WithLabelValues(symbol, status).Inc()
	r.confidence.WithLabelValues(symbol).Set(confidence)
}

func (r *Recorder) RecordSignal(symbol, direction string) {
	r.signals.WithLabelValues(symbol, direction).Inc()
}

func (r *Recorder) RecordSkip(symbol string) {
	r.skipped.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordFetchError(symbol, component string) {
	r.fetchErrors.WithLabelValues(symbol, component).Inc()
}

func (r *Recorder) RecordSinkError(sink string) {
	r.sinkErrors.WithLabelValues(sink).Inc()
}

func (r *Recorder) RecordGateBlocked() {
	r.gateBlocked.Inc()
}

// Follow counts gate blocks published on bus
func (r *Recorder) Follow(bus *events.EventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(events.EventGateBlocked, func(events.Event) { r.RecordGateBlocked() })
}
