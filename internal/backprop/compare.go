package backprop

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Tolerance is the agreement required between two variants at one position:
// the absolute difference is below Abs, or at most Rel of the larger magnitude.
type Tolerance struct {
	Abs float32
	Rel float32
}

// DefaultTolerance is the equivalence every pair of variants must meet.
var DefaultTolerance = Tolerance{Abs: 1e-6, Rel: 1e-3}

// DefaultDataRange bounds the random errors and weights variants are compared
// on. DefaultTolerance holds for layers up to the kgsgo_32c5 size at this range;
// wider values let float32 rounding of near-cancelling sums exceed Abs.
const DefaultDataRange = 0.1

// Equal reports whether a and b agree within t.
func (t Tolerance) Equal(a, b float32) bool {
	diff := math32.Abs(a - b)
	if diff < t.Abs {
		return true
	}
	return diff <= t.Rel*math32.Max(math32.Abs(a), math32.Abs(b))
}

// Mismatch is one position where two results disagree.
type Mismatch struct {
	Index int
	A, B  float32
}

func (m Mismatch) String() string {
	return fmt.Sprintf("results[%d]=%g %g", m.Index, m.A, m.B)
}

// Compare returns every position where a and b disagree beyond tol.
func Compare(a, b []float32, tol Tolerance) ([]Mismatch, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("cannot compare results of length %d and %d", len(a), len(b))
	}
	var mismatches []Mismatch
	for i := range a {
		if !tol.Equal(a[i], b[i]) {
			mismatches = append(mismatches, Mismatch{Index: i, A: a[i], B: b[i]})
		}
	}
	return mismatches, nil
}

// SampleLines renders the first n positions of two results, marking each SAME
// or DIFF, for diagnostic output.
func SampleLines(a, b []float32, n int, tol Tolerance) []string {
	n = min(n, len(a), len(b))
	lines := make([]string, n)
	for i := 0; i < n; i++ {
		mark := "SAME"
		if !tol.Equal(a[i], b[i]) {
			mark = "DIFF"
		}
		lines[i] = fmt.Sprintf("results[%d]=%g %g %s", i, a[i], b[i], mark)
	}
	return lines
}
