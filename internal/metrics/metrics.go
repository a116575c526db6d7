// Package metrics holds the engine's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "llmcore"

// Load outcomes.
const (
	LoadOK       = "ok"
	LoadNotFound = "not_found"
	LoadError    = "error"
)

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensGenerated prometheus.Counter
	promptTokens    prometheus.Counter
	finishTotal     *prometheus.CounterVec
	loadsTotal      *prometheus.CounterVec
	loadDuration    prometheus.Histogram
	modelLoaded     prometheus.Gauge
	modelSizeBytes  prometheus.Gauge
	slotWait        prometheus.Histogram
	inflight        prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Engine operations by outcome",
		}, []string{"operation", "outcome"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of engine operations in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation"}),
		tokensGenerated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "tokens_total",
			Help:      "Tokens emitted by the decode loop",
		}),
		promptTokens: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "prompt_tokens_total",
			Help:      "Prompt tokens submitted in prefill",
		}),
		finishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "finished_total",
			Help:      "Completed generations by finish reason",
		}, []string{"reason"}),
		loadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "loads_total",
			Help:      "Model load attempts by outcome",
		}, []string{"outcome"}),
		loadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "load_duration_seconds",
			Help:      "Time spent loading the model",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		modelLoaded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "loaded",
			Help:      "1 when the model is resident",
		}),
		modelSizeBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "size_bytes",
			Help:      "Size of the loaded model file",
		}),
		slotWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "slot_wait_seconds",
			Help:      "Time spent waiting for the shared model",
			Buckets:   prometheus.DefBuckets,
		}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "inflight",
			Help:      "Generations currently holding the model",
		}),
	}
}

// ObserveRequest records one engine operation.
func (m *Metrics) ObserveRequest(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requestsTotal.WithLabelValues(op, outcome).Inc()
	m.requestDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveGeneration records token counts and the finish reason.
func (m *Metrics) ObserveGeneration(prompt, generated int, reason string) {
	if m == nil {
		return
	}
	m.promptTokens.Add(float64(prompt))
	m.tokensGenerated.Add(float64(generated))
	m.finishTotal.WithLabelValues(reason).Inc()
}

// ObserveLoad records a model load attempt.
func (m *Metrics) ObserveLoad(outcome string, size int64, d time.Duration) {
	if m == nil {
		return
	}
	m.loadsTotal.WithLabelValues(outcome).Inc()
	if outcome == LoadOK {
		m.loadDuration.Observe(d.Seconds())
		m.modelLoaded.Set(1)
		m.modelSizeBytes.Set(float64(size))
	}
}

// ModelUnloaded clears the residency gauges.
func (m *Metrics) ModelUnloaded() {
	if m == nil {
		return
	}
	m.modelLoaded.Set(0)
	m.modelSizeBytes.Set(0)
}

// SlotAcquired records the wait for the shared model and marks it busy.
func (m *Metrics) SlotAcquired(wait time.Duration) {
	if m == nil {
		return
	}
	m.slotWait.Observe(wait.Seconds())
	m.inflight.Inc()
}

// SlotReleased marks the shared model free.
func (m *Metrics) SlotReleased() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}

// WriteTextfile writes every metric gathered from g to path in the text
// exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
