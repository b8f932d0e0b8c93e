package sampling

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r1"
)

// ErrBoundsViolation is matched by every *BoundsError.
var ErrBoundsViolation = errors.New("bounds violation")

// BoundsError reports a malformed (min, max) pair. It is returned before any
// sampling happens.
type BoundsError struct {
	Index int
	Min   float64
	Max   float64
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("bounds[%d]: min (%g) must be < max (%g) and both finite", e.Index, e.Min, e.Max)
}

// Is lets errors.Is(err, ErrBoundsViolation) match.
func (e *BoundsError) Is(target error) bool {
	return target == ErrBoundsViolation
}

// Bounds holds one [min, max] interval per parameter.
type Bounds []r1.Interval

// Validate checks that there is at least one parameter and every interval has
// finite min < max.
func (b Bounds) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("%w: at least one parameter is required", ErrBoundsViolation)
	}
	for i, iv := range b {
		if !finite(iv.Min) || !finite(iv.Max) || !(iv.Min < iv.Max) {
			return &BoundsError{Index: i, Min: iv.Min, Max: iv.Max}
		}
	}
	return nil
}

// Dim is the number of parameters.
func (b Bounds) Dim() int {
	return len(b)
}

// Contains reports whether every coordinate of x lies within its interval.
func (b Bounds) Contains(x []float64) bool {
	if len(x) != len(b) {
		return false
	}
	for i, iv := range b {
		if x[i] < iv.Min || x[i] > iv.Max {
			return false
		}
	}
	return true
}

// Symmetric returns [-s, s] for every s in sig.
func Symmetric(sig []float64) Bounds {
	b := make(Bounds, len(sig))
	for i, s := range sig {
		b[i] = r1.Interval{Min: -s, Max: s}
	}
	return b
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
