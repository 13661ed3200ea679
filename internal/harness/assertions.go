package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Loop     string // Loop under test, empty for run-level assertions
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Sequence []int  // Loop sequence for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	// Header with assertion type
	if e.Loop != "" {
		fmt.Fprintf(&buf, "Assertion failed: %s (loop %s)\n", e.Type, e.Loop)
	} else {
		fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	}

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Sequence != nil {
		fmt.Fprintf(&buf, "\nSequence: %v\n", e.Sequence)
	}

	return buf.String()
}

// loopSequence looks up a loop's sequence, failing the assertion when the
// loop did not run.
func loopSequence(result *Result, a Assertion) ([]int, error) {
	seq, ok := result.Sequences[a.Loop]
	if !ok {
		return nil, &AssertionError{
			Type:     a.Type,
			Loop:     a.Loop,
			Expected: fmt.Sprintf("loop %q in run", a.Loop),
			Actual:   fmt.Sprintf("loops run: %v", loopNames(result)),
		}
	}
	return seq, nil
}

// assertTrialCount checks the trials a loop presented, or the whole run when
// no loop is named.
func assertTrialCount(result *Result, a Assertion) error {
	if a.Loop == "" {
		if n := result.TotalTrials(); n != a.Count {
			return &AssertionError{
				Type:     AssertTrialCount,
				Expected: fmt.Sprintf("%d trials in run", a.Count),
				Actual:   fmt.Sprintf("%d trials", n),
			}
		}
		return nil
	}

	seq, err := loopSequence(result, a)
	if err != nil {
		return err
	}
	if len(seq) != a.Count {
		return &AssertionError{
			Type:     AssertTrialCount,
			Loop:     a.Loop,
			Expected: fmt.Sprintf("%d trials", a.Count),
			Actual:   fmt.Sprintf("%d trials", len(seq)),
			Sequence: seq,
		}
	}
	return nil
}

// assertCoverage checks every condition index of the loop appears exactly
// Count times, and nothing outside the condition set appears.
func assertCoverage(result *Result, a Assertion) error {
	seq, err := loopSequence(result, a)
	if err != nil {
		return err
	}

	n := result.Conditions[a.Loop]
	counts := make([]int, n)
	for _, idx := range seq {
		if idx < 0 || idx >= n {
			return &AssertionError{
				Type:     AssertCoverage,
				Loop:     a.Loop,
				Expected: fmt.Sprintf("condition indices in [0, %d)", n),
				Actual:   fmt.Sprintf("index %d", idx),
				Sequence: seq,
			}
		}
		counts[idx]++
	}
	for idx, c := range counts {
		if c != a.Count {
			return &AssertionError{
				Type:     AssertCoverage,
				Loop:     a.Loop,
				Expected: fmt.Sprintf("each of %d conditions %d times", n, a.Count),
				Actual:   fmt.Sprintf("condition %d appears %d times", idx, c),
				Sequence: seq,
			}
		}
	}
	return nil
}

// assertSequence checks the exact condition index order.
func assertSequence(result *Result, a Assertion) error {
	seq, err := loopSequence(result, a)
	if err != nil {
		return err
	}
	if !slices.Equal(seq, a.Sequence) {
		return &AssertionError{
			Type:     AssertSequence,
			Loop:     a.Loop,
			Expected: fmt.Sprint(a.Sequence),
			Actual:   fmt.Sprint(seq),
		}
	}
	return nil
}

// assertFinished checks the loop ran to exhaustion.
func assertFinished(result *Result, a Assertion) error {
	if _, err := loopSequence(result, a); err != nil {
		return err
	}
	if !result.Finished[a.Loop] {
		return &AssertionError{
			Type:     AssertFinished,
			Loop:     a.Loop,
			Expected: "loop exhausted",
			Actual:   "loop still running",
			Sequence: result.Sequences[a.Loop],
		}
	}
	return nil
}

// assertColumns compares a table header.
func assertColumns(result *Result, a Assertion, key string) error {
	t, ok := result.Tables[key]
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Loop:     a.Loop,
			Expected: fmt.Sprintf("table %q", key),
			Actual:   "table not built",
		}
	}
	if !slices.Equal(t.Columns, a.Columns) {
		return &AssertionError{
			Type:     a.Type,
			Loop:     a.Loop,
			Expected: fmt.Sprint(a.Columns),
			Actual:   fmt.Sprint(t.Columns),
		}
	}
	return nil
}

func loopNames(result *Result) []string {
	names := make([]string, 0, len(result.Loops))
	for _, l := range result.Loops {
		names = append(names, l.Name)
	}
	return names
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTrialCount:
			err = assertTrialCount(result, assertion)
		case AssertCoverage:
			err = assertCoverage(result, assertion)
		case AssertSequence:
			err = assertSequence(result, assertion)
		case AssertFinished:
			err = assertFinished(result, assertion)
		case AssertHeader:
			key := TableWide
			if assertion.Loop != "" {
				key = WideKey(assertion.Loop)
			}
			err = assertColumns(result, assertion, key)
		case AssertSummaryHeader:
			err = assertColumns(result, assertion, SummaryKey(assertion.Loop))
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
