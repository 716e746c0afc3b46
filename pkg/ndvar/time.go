package ndvar

import (
	"fmt"
	"math"
)

// Time is a uniformly sampled time axis.
type Time struct {
	TMin  float64
	TStep float64
	N     int
}

// NewTime returns a time axis of n samples starting at tmin.
func NewTime(tmin, tstep float64, n int) *Time {
	return &Time{TMin: tmin, TStep: tstep, N: n}
}

func (t *Time) Name() string { return "time" }
func (t *Time) Len() int     { return t.N }
func (t *Time) Grid() bool   { return true }

// At returns the time of sample i.
func (t *Time) At(i int) float64 { return t.TMin + float64(i)*t.TStep }

// TMax returns the time of the last sample.
func (t *Time) TMax() float64 { return t.At(t.N - 1) }

// Times returns the time of every sample.
func (t *Time) Times() []float64 {
	times := make([]float64, t.N)
	for i := range times {
		times[i] = t.At(i)
	}
	return times
}

// Window converts a time window into a sample range [start, stop). Either
// bound may be nil. Fractional sample positions round up unless they are
// within 1e-6 samples of the integer below.
func (t *Time) Window(tstart, tstop *float64) (int, int, error) {
	if tstart != nil && tstop != nil && *tstart >= *tstop {
		return 0, 0, fmt.Errorf("tstart=%g must be smaller than tstop=%g: %w", *tstart, *tstop, ErrDimension)
	}
	start, stop := 0, t.N
	if tstart != nil {
		start = t.samplePos(*tstart)
	}
	if tstop != nil {
		stop = t.samplePos(*tstop)
	}
	start = max(start, 0)
	stop = min(stop, t.N)
	if start >= stop {
		return 0, 0, fmt.Errorf("window outside of time axis %s: %w", t, ErrDimension)
	}
	return start, stop, nil
}

func (t *Time) samplePos(v float64) int {
	f := (v - t.TMin) / t.TStep
	i := int(math.Floor(f))
	if f-float64(i) > 1e-6 {
		i++
	}
	return i
}

// Index resolves a range selector to the samples in [lo, hi).
func (t *Time) Index(sel Selector) ([]int, error) {
	if sel.Range == nil {
		return nil, fmt.Errorf("time needs a range selector, got %s: %w", sel, ErrDimension)
	}
	start, stop, err := t.Window(&sel.Range[0], &sel.Range[1])
	if err != nil {
		return nil, err
	}
	return rangeIndex(start, stop), nil
}

func (t *Time) Slice(start, stop int) Dimension {
	return &Time{TMin: t.At(start), TStep: t.TStep, N: stop - start}
}

// Properties reports tstart, tstop, and duration of every cluster. tstop is
// the time after the last sample of the cluster.
func (t *Time) Properties(extents [][]bool) ([]Column, error) {
	tstart := make([]float64, len(extents))
	tstop := make([]float64, len(extents))
	duration := make([]float64, len(extents))
	for c, ext := range extents {
		first, last := -1, -1
		for i, in := range ext {
			if in {
				if first < 0 {
					first = i
				}
				last = i
			}
		}
		if first < 0 {
			return nil, fmt.Errorf("empty cluster %d", c)
		}
		tstart[c] = t.At(first)
		tstop[c] = t.At(last) + t.TStep
		duration[c] = tstop[c] - tstart[c]
	}
	return []Column{
		FloatColumn("tstart", tstart),
		FloatColumn("tstop", tstop),
		FloatColumn("duration", duration),
	}, nil
}

// Samples converts a duration to the smallest number of samples covering it.
func (t *Time) Samples(duration float64) int {
	return int(math.Ceil(duration / t.TStep))
}

func (t *Time) Spec() DimSpec {
	return DimSpec{Kind: KindTime, Name: t.Name(), TMin: t.TMin, TStep: t.TStep, N: t.N}
}

func (t *Time) String() string {
	return fmt.Sprintf("Time(%g, %g, %d)", t.TMin, t.TStep, t.N)
}
