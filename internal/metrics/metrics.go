package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trialkit"

// Metrics holds the collectors updated by the engine.
type Metrics struct {
	gatherer prometheus.Gatherer

	trials    *prometheus.CounterVec
	responses *prometheus.CounterVec
	finished  *prometheus.CounterVec
	reversals *prometheus.GaugeVec
	intensity *prometheus.GaugeVec
	runs      prometheus.Counter
}

// New registers the trialkit collectors on reg. A nil reg gets a fresh
// private registry. WriteTextfile works only when reg is also a Gatherer,
// which *prometheus.Registry is.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{
		// trials counts presented trials.
		// Labels: loop
		trials: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trials_total",
			Help:      "Trials presented per loop",
		}, []string{"loop"}),

		// responses counts staircase responses.
		// Labels: loop, correct ("true", "false")
		responses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Staircase responses per loop by correctness",
		}, []string{"loop", "correct"}),

		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staircases_finished_total",
			Help:      "Staircases that met their stopping rule",
		}, []string{"loop"}),

		// reversals tracks each staircase's reversal count.
		// Labels: loop, stair (condition index)
		reversals: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reversals",
			Help:      "Reversals recorded by each staircase",
		}, []string{"loop", "stair"}),

		intensity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stair_intensity",
			Help:      "Most recent intensity presented by each staircase",
		}, []string{"loop", "stair"}),

		runs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Experiment runs completed",
		}),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Gatherer returns the registry the collectors live on, or nil.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// ObserveTrial records one presented trial.
func (m *Metrics) ObserveTrial(loop string) {
	m.trials.WithLabelValues(loop).Inc()
}

// ObserveResponse records one staircase response and the intensity it
// answered.
func (m *Metrics) ObserveResponse(loop string, stair int, intensity float64, correct bool) {
	m.responses.WithLabelValues(loop, strconv.FormatBool(correct)).Inc()
	m.intensity.WithLabelValues(loop, strconv.Itoa(stair)).Set(intensity)
}

// SetReversals records a staircase's current reversal count.
func (m *Metrics) SetReversals(loop string, stair, n int) {
	m.reversals.WithLabelValues(loop, strconv.Itoa(stair)).Set(float64(n))
}

// ObserveStairFinished records a staircase reaching its stopping rule.
func (m *Metrics) ObserveStairFinished(loop string) {
	m.finished.WithLabelValues(loop).Inc()
}

// ObserveRun records a completed run.
func (m *Metrics) ObserveRun() {
	m.runs.Inc()
}

// WriteTextfile writes every collector to path in the text exposition
// format, atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m.gatherer == nil {
		return errors.New("metrics: registry does not support gathering")
	}
	return prometheus.WriteToTextfile(path, m.gatherer)
}
