package staircase

import (
	"math"
	"strings"

	"github.com/roach88/trialkit/internal/ir"
)

// Estimate selects which posterior statistic Quest proposes.
type Estimate string

const (
	EstimateMean     Estimate = "mean"
	EstimateMode     Estimate = "mode"
	EstimateQuantile Estimate = "quantile"
)

// ParseEstimate converts an estimate name. "" defaults to EstimateMean.
func ParseEstimate(s string) (Estimate, error) {
	switch strings.ToLower(s) {
	case "", string(EstimateMean):
		return EstimateMean, nil
	case string(EstimateMode):
		return EstimateMode, nil
	case string(EstimateQuantile):
		return EstimateQuantile, nil
	default:
		return "", ir.Configf("staircase", "", "estimate", "unknown estimate %q: must be mean, mode or quantile", s)
	}
}

// QuestConfig configures a Quest staircase. Zero values take the defaults
// noted on each field, except the Weibull parameters, where nil takes the
// default and an explicit 0 is kept.
type QuestConfig struct {
	Name     string
	StartVal float64

	// StartValSd is the prior's standard deviation. Default 0.2.
	StartValSd float64

	// PThreshold is the performance level defining threshold. Default 0.82.
	PThreshold *float64

	// Weibull slope, lapse rate, and guess rate. Defaults 3.5, 0.01, 0.5.
	// Gamma 0 models a yes/no task.
	Beta  *float64
	Delta *float64
	Gamma *float64

	// Grain is the posterior grid spacing, Range its total width centred on
	// StartVal. Defaults 0.01 and 5.
	Grain float64
	Range float64

	// NTrials is required.
	NTrials int

	// StopInterval, when positive, also stops once the 5%-95% credible
	// interval is narrower than it.
	StopInterval float64

	Estimate Estimate

	// QuantileOrder is used by EstimateQuantile. Default 0.5.
	QuantileOrder float64

	MinVal *float64
	MaxVal *float64
}

// Weibull holds the resolved psychometric function parameters.
type Weibull struct {
	PThreshold float64 `json:"pThreshold"`
	Beta       float64 `json:"beta"`
	Delta      float64 `json:"delta"`
	Gamma      float64 `json:"gamma"`
}

// weibull resolves the parameters, substituting defaults for nil only.
func (c *QuestConfig) weibull() Weibull {
	return Weibull{
		PThreshold: valueOr(c.PThreshold, 0.82),
		Beta:       valueOr(c.Beta, 3.5),
		Delta:      valueOr(c.Delta, 0.01),
		Gamma:      valueOr(c.Gamma, 0.5),
	}
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func (c *QuestConfig) applyDefaults() {
	if c.StartValSd == 0 {
		c.StartValSd = 0.2
	}
	if c.Grain == 0 {
		c.Grain = 0.01
	}
	if c.Range == 0 {
		c.Range = 5
	}
	if c.Estimate == "" {
		c.Estimate = EstimateMean
	}
	if c.QuantileOrder == 0 {
		c.QuantileOrder = 0.5
	}
}

// Quest keeps a discretized posterior density over threshold and updates it
// with a Weibull likelihood after every response.
type Quest struct {
	protocol
	cfg QuestConfig
	fn  Weibull

	thresholds []float64 // grid of candidate thresholds
	pdf        []float64 // normalized posterior over thresholds
	xThreshold float64   // Weibull offset placing PThreshold at x=0

	intensity float64
}

// NewQuest validates cfg and builds the Gaussian prior centred on StartVal.
func NewQuest(cfg QuestConfig) (*Quest, error) {
	cfg.applyDefaults()
	fn := cfg.weibull()
	name := cfg.Name

	switch {
	case cfg.NTrials < 1:
		return nil, ir.Configf("staircase", name, "nTrials", "must be >= 1, got %d", cfg.NTrials)
	case cfg.StartValSd <= 0:
		return nil, ir.Configf("staircase", name, "startValSd", "must be positive, got %v", cfg.StartValSd)
	case cfg.Grain <= 0 || cfg.Range <= 0 || cfg.Range < 2*cfg.Grain:
		return nil, ir.Configf("staircase", name, "grain", "grain %v and range %v give an empty grid", cfg.Grain, cfg.Range)
	case fn.Beta <= 0:
		return nil, ir.Configf("staircase", name, "beta", "must be positive, got %v", fn.Beta)
	case fn.Delta < 0 || fn.Delta >= 1:
		return nil, ir.Configf("staircase", name, "delta", "must be in [0, 1), got %v", fn.Delta)
	case fn.Gamma < 0 || fn.Gamma >= 1:
		return nil, ir.Configf("staircase", name, "gamma", "must be in [0, 1), got %v", fn.Gamma)
	case cfg.QuantileOrder <= 0 || cfg.QuantileOrder >= 1:
		return nil, ir.Configf("staircase", name, "quantileOrder", "must be in (0, 1), got %v", cfg.QuantileOrder)
	case math.IsNaN(cfg.StartVal) || math.IsInf(cfg.StartVal, 0):
		return nil, ir.Configf("staircase", name, "startVal", "must be finite")
	}
	if _, err := ParseEstimate(string(cfg.Estimate)); err != nil {
		return nil, renameConfig(err, name)
	}

	// performance at threshold must lie strictly between chance and ceiling
	q := (fn.PThreshold - fn.Delta*fn.Gamma) / (1 - fn.Delta)
	if q <= fn.Gamma || q >= 1 {
		return nil, ir.Configf("staircase", name, "pThreshold",
			"%v is unreachable with gamma=%v delta=%v", fn.PThreshold, fn.Gamma, fn.Delta)
	}

	dim := 2 * int(math.Ceil(cfg.Range/cfg.Grain/2))
	qs := &Quest{
		protocol:   protocol{name: name},
		cfg:        cfg,
		fn:         fn,
		thresholds: make([]float64, dim+1),
		pdf:        make([]float64, dim+1),
		xThreshold: math.Log10(-math.Log((1-q)/(1-fn.Gamma))) / fn.Beta,
	}
	for i := range qs.thresholds {
		x := float64(i-dim/2) * cfg.Grain
		qs.thresholds[i] = cfg.StartVal + x
		qs.pdf[i] = math.Exp(-0.5 * (x / cfg.StartValSd) * (x / cfg.StartValSd))
	}
	normalize(qs.pdf)
	qs.intensity = clamp(cfg.StartVal, cfg.MinVal, cfg.MaxVal)
	return qs, nil
}

// pCorrect is the Weibull probability of a correct response at intensity
// for an observer whose threshold is t.
func (qs *Quest) pCorrect(intensity, t float64) float64 {
	c := qs.fn
	x := intensity - t + qs.xThreshold
	return c.Delta*c.Gamma + (1-c.Delta)*(1-(1-c.Gamma)*math.Exp(-math.Pow(10, c.Beta*x)))
}

// Next implements Staircase.
func (qs *Quest) Next() (float64, error) {
	if err := qs.begin(); err != nil {
		return 0, err
	}
	return qs.intensity, nil
}

// AddResponse implements Staircase.
func (qs *Quest) AddResponse(correct bool) error {
	if err := qs.respond(); err != nil {
		return err
	}
	qs.update(qs.intensity, correct)
	qs.history = append(qs.history, Step{Intensity: qs.intensity, Correct: correct})
	qs.trials++
	qs.pending = false

	qs.intensity = clamp(qs.estimate(), qs.cfg.MinVal, qs.cfg.MaxVal)
	qs.finished = qs.trials >= qs.cfg.NTrials ||
		(qs.cfg.StopInterval > 0 && qs.Quantile(0.95)-qs.Quantile(0.05) < qs.cfg.StopInterval)
	return nil
}

func (qs *Quest) update(intensity float64, correct bool) {
	for i, t := range qs.thresholds {
		p := qs.pCorrect(intensity, t)
		if !correct {
			p = 1 - p
		}
		qs.pdf[i] *= p
	}
	// underflow after many extreme responses; restart from the prior
	if !normalize(qs.pdf) {
		for i, x := range qs.thresholds {
			d := (x - qs.cfg.StartVal) / qs.cfg.StartValSd
			qs.pdf[i] = math.Exp(-0.5 * d * d)
		}
		normalize(qs.pdf)
	}
}

func (qs *Quest) estimate() float64 {
	switch qs.cfg.Estimate {
	case EstimateMode:
		return qs.Mode()
	case EstimateQuantile:
		return qs.Quantile(qs.cfg.QuantileOrder)
	default:
		return qs.Mean()
	}
}

// Mean returns the posterior mean threshold.
func (qs *Quest) Mean() float64 {
	var m float64
	for i, t := range qs.thresholds {
		m += t * qs.pdf[i]
	}
	return m
}

// Mode returns the threshold with the highest posterior density. Ties go to
// the lowest threshold.
func (qs *Quest) Mode() float64 {
	best := 0
	for i, p := range qs.pdf {
		if p > qs.pdf[best] {
			best = i
		}
	}
	return qs.thresholds[best]
}

// SD returns the posterior standard deviation.
func (qs *Quest) SD() float64 {
	m := qs.Mean()
	var v float64
	for i, t := range qs.thresholds {
		d := t - m
		v += d * d * qs.pdf[i]
	}
	return math.Sqrt(v)
}

// Quantile returns the threshold below which a fraction p of the posterior
// lies, interpolating linearly between grid points.
func (qs *Quest) Quantile(p float64) float64 {
	p = min(max(p, 0), 1)
	var cum float64
	for i, d := range qs.pdf {
		next := cum + d
		if next >= p {
			if i == 0 || d == 0 {
				return qs.thresholds[i]
			}
			frac := (p - cum) / d
			return qs.thresholds[i-1] + frac*(qs.thresholds[i]-qs.thresholds[i-1])
		}
		cum = next
	}
	return qs.thresholds[len(qs.thresholds)-1]
}

// Weibull returns the psychometric function parameters in effect.
func (qs *Quest) Weibull() Weibull { return qs.fn }

// Finished implements Staircase.
func (qs *Quest) Finished() bool { return qs.finished }

// Intensity implements Staircase.
func (qs *Quest) Intensity() float64 { return qs.intensity }

// TrialCount implements Staircase.
func (qs *Quest) TrialCount() int { return qs.trials }

// History implements Staircase.
func (qs *Quest) History() []Step { return qs.historyCopy() }

// Snapshot implements Staircase.
func (qs *Quest) Snapshot() Snapshot {
	return Snapshot{
		Type:       TypeQuest,
		Name:       qs.name,
		Intensity:  qs.intensity,
		TrialCount: qs.trials,
		Finished:   qs.finished,
		History:    qs.historyCopy(),
		Mean:       qs.Mean(),
		SD:         qs.SD(),
	}
}

// normalize scales pdf to sum to 1. It reports false when the sum is not
// positive and finite, leaving pdf untouched.
func normalize(pdf []float64) bool {
	var sum float64
	for _, p := range pdf {
		sum += p
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return false
	}
	for i := range pdf {
		pdf[i] /= sum
	}
	return true
}
