// Package timeseries implements an immutable, piecewise signal sampled at
// arbitrary query times: hold (piecewise-constant) semantics for parameter
// causality and linear (piecewise-linear) semantics for input causality.
package timeseries

import (
	"errors"
	"fmt"
	"sort"
)

// Semantics selects how a Series is interpolated between stored points.
type Semantics int

const (
	// Hold returns the value at the greatest stored time not exceeding the
	// query (piecewise-constant), matching causality Parameter.
	Hold Semantics = iota
	// Linear interpolates between the bracketing points, holding the final
	// value past the last stored time, matching causality Input.
	Linear
)

// ErrLengthMismatch is returned when the time and observable slices passed
// to New differ in length.
var ErrLengthMismatch = errors.New("timeseries: length mismatch")

// ErrNotMonotonic is returned when the time slice is not strictly increasing.
var ErrNotMonotonic = errors.New("timeseries: time points not strictly increasing")

// ErrTimeOutOfRange is returned when a query time precedes the first stored
// time point.
var ErrTimeOutOfRange = errors.New("timeseries: query time out of range")

// Series is an immutable pair of equal-length sequences: strictly increasing
// time points and their observable values.
type Series struct {
	time       []float64
	observable []float64
}

// New constructs a Series, validating length and strict monotonicity.
func New(time, observable []float64) (*Series, error) {
	if len(time) != len(observable) {
		return nil, fmt.Errorf(
			"%w: the lengths of fields 'time' (%d) and 'observable' (%d) do not match",
			ErrLengthMismatch, len(time), len(observable))
	}
	for i := 1; i < len(time); i++ {
		if time[i] <= time[i-1] {
			return nil, fmt.Errorf("%w: time[%d]=%g does not exceed time[%d]=%g",
				ErrNotMonotonic, i, time[i], i-1, time[i-1])
		}
	}

	t := make([]float64, len(time))
	copy(t, time)
	o := make([]float64, len(observable))
	copy(o, observable)

	return &Series{time: t, observable: o}, nil
}

// Time returns the stored time points. The caller must not mutate it.
func (s *Series) Time() []float64 { return s.time }

// Observable returns the stored observable values. The caller must not mutate it.
func (s *Series) Observable() []float64 { return s.observable }

// Size returns the number of stored points.
func (s *Series) Size() int { return len(s.time) }

// At queries the series at t under the given semantics. Querying before the
// first stored time point fails with ErrTimeOutOfRange.
func (s *Series) At(t float64, semantics Semantics) (float64, error) {
	if len(s.time) == 0 || t < s.time[0] {
		return 0, fmt.Errorf("%w: %g precedes first stored time %v",
			ErrTimeOutOfRange, t, s.firstOrNaN())
	}

	// idx is the first index with time[idx] > t; i.e. the bracket is
	// [idx-1, idx).
	idx := sort.Search(len(s.time), func(i int) bool { return s.time[i] > t })

	switch semantics {
	case Hold:
		return s.observable[idx-1], nil
	case Linear:
		if idx == len(s.time) {
			return s.observable[len(s.observable)-1], nil
		}
		lo, hi := idx-1, idx
		span := s.time[hi] - s.time[lo]
		frac := (t - s.time[lo]) / span
		return s.observable[lo] + frac*(s.observable[hi]-s.observable[lo]), nil
	default:
		return 0, fmt.Errorf("timeseries: unknown semantics %d", semantics)
	}
}

func (s *Series) firstOrNaN() float64 {
	if len(s.time) == 0 {
		return 0
	}
	return s.time[0]
}

// Equal reports structural equality over both fields.
func (s *Series) Equal(other *Series) bool {
	if other == nil || len(s.time) != len(other.time) {
		return false
	}
	for i := range s.time {
		if s.time[i] != other.time[i] || s.observable[i] != other.observable[i] {
			return false
		}
	}
	return true
}
