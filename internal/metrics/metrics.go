// Package metrics holds the Prometheus collectors for the analyze pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeDegraded = "degraded"
)

// Metrics is the set of pipeline collectors.
type Metrics struct {
	Registry *prometheus.Registry

	stageDuration     *prometheus.HistogramVec
	stageFailures     *prometheus.CounterVec
	synthesisAttempts prometheus.Counter
	conversations     prometheus.GaugeFunc
}

// New registers the pipeline collectors, plus Go runtime and process
// collectors, on a fresh registry. conversations reports the live store size.
func New(conversations func() float64) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medivoice_stage_duration_seconds",
			Help:    "Duration of each analyze pipeline stage.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage", "outcome"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medivoice_stage_failures_total",
			Help: "Failures per analyze pipeline stage.",
		}, []string{"stage"}),
		synthesisAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medivoice_synthesis_attempts_total",
			Help: "Speech synthesis attempts, including retries.",
		}),
	}
	if conversations == nil {
		conversations = func() float64 { return 0 }
	}
	m.conversations = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "medivoice_conversations",
		Help: "Conversations held in memory.",
	}, conversations)

	reg.MustRegister(
		m.stageDuration,
		m.stageFailures,
		m.synthesisAttempts,
		m.conversations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveStage records how long a stage took and how it ended. Any outcome
// other than OutcomeOK also counts as a failure.
func (m *Metrics) ObserveStage(stage, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
	if outcome != OutcomeOK {
		m.stageFailures.WithLabelValues(stage).Inc()
	}
}

// SynthesisAttempts adds n attempts to the synthesis counter.
func (m *Metrics) SynthesisAttempts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.synthesisAttempts.Add(float64(n))
}
