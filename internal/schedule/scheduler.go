package schedule

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/roach88/trialkit/internal/ir"
)

// Method selects how conditions are ordered across repetitions.
type Method string

const (
	// Sequential visits conditions in declaration order, R times.
	Sequential Method = "sequential"

	// Random draws an independent permutation for every repetition block.
	Random Method = "random"

	// FullRandom shuffles all N·R trials as one multiset.
	FullRandom Method = "fullRandom"
)

// ValidMethods lists the accepted methods in documentation order.
var ValidMethods = []Method{Sequential, Random, FullRandom}

// ParseMethod converts a method name to a Method.
// Matching is case-insensitive; "" defaults to Random.
func ParseMethod(s string) (Method, error) {
	if s == "" {
		return Random, nil
	}
	for _, m := range ValidMethods {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", ir.Configf("scheduler", "", "method", "unknown method %q: must be one of %v", s, ValidMethods)
}

// NewSource returns the seeded generator used by every shuffle in trialkit.
// Each caller owns its generator; sharing one across handlers breaks
// reproducibility.
func NewSource(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0))
}

// Shuffle permutes idx in place with Fisher–Yates driven by rng.
func Shuffle(rng *rand.Rand, idx []int) {
	for i := len(idx) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
}

// Generate returns the trial index sequence of length n*nReps.
// Fails with a ConfigurationError when n < 1, nReps < 1, or method is unknown.
func Generate(n, nReps int, method Method, seed int64) ([]int, error) {
	if n < 1 {
		return nil, ir.Configf("scheduler", "", "conditions", "condition set must not be empty")
	}
	if nReps < 1 {
		return nil, ir.Configf("scheduler", "", "nReps", "must be >= 1, got %d", nReps)
	}

	seq := make([]int, 0, n*nReps)
	switch method {
	case Sequential:
		for r := 0; r < nReps; r++ {
			for i := 0; i < n; i++ {
				seq = append(seq, i)
			}
		}

	case Random:
		rng := NewSource(seed)
		for r := 0; r < nReps; r++ {
			block := identity(n)
			Shuffle(rng, block)
			seq = append(seq, block...)
		}

	case FullRandom:
		rng := NewSource(seed)
		for r := 0; r < nReps; r++ {
			seq = append(seq, identity(n)...)
		}
		Shuffle(rng, seq)

	default:
		return nil, ir.Configf("scheduler", "", "method", "unknown method %q", method)
	}

	return seq, nil
}

func identity(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// Counts returns how many times each condition index appears in seq.
func Counts(seq []int, n int) []int {
	counts := make([]int, n)
	for _, idx := range seq {
		if idx >= 0 && idx < n {
			counts[idx]++
		}
	}
	return counts
}

// Describe renders a short human summary used in logs and CLI output.
func Describe(n, nReps int, method Method, seed int64) string {
	return fmt.Sprintf("%d conditions × %d reps, method=%s, seed=%d", n, nReps, method, seed)
}
