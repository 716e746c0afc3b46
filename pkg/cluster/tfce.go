package cluster

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// TFCEParams controls threshold-free cluster enhancement.
type TFCEParams struct {
	// Step is the height increment dh between successive thresholds.
	Step float64
	// E is the exponent applied to cluster extent.
	E float64
	// H is the exponent applied to threshold height.
	H float64
}

// DefaultTFCEParams returns dh=0.1, E=0.5, H=2 (Smith & Nichols, 2009).
func DefaultTFCEParams() TFCEParams {
	return TFCEParams{Step: 0.1, E: 0.5, H: 2.0}
}

// Validate checks that the step is positive and the exponents non-negative.
func (p TFCEParams) Validate() error {
	if !(p.Step > 0) {
		return fmt.Errorf("tfce step must be > 0, got %v", p.Step)
	}
	if p.E < 0 || p.H < 0 {
		return fmt.Errorf("tfce exponents must be >= 0, got E=%v H=%v", p.E, p.H)
	}
	return nil
}

// TFCE writes the enhanced map of stat into out.
//
// For every height h = dh, 2dh, ... below the map's extremum the samples at or
// beyond h are labeled, and each sample in a cluster of size n receives
// n^E * h^H * dh. Negative heights are handled symmetrically for the Negative
// and Both tails, and contribute positive values.
func (l *Labeler) TFCE(stat []float64, tail Tail, p TFCEParams, out []float64) {
	clear(out)
	if tail != Negative {
		top := floats.Max(stat)
		for k := 1; ; k++ {
			h := float64(k) * p.Step
			if h >= top {
				break
			}
			for i, v := range stat {
				l.mask[i] = v >= h
			}
			l.enhance(h, p, out)
		}
	}
	if tail != Positive {
		bottom := floats.Min(stat)
		for k := 1; ; k++ {
			h := float64(k) * p.Step
			if -h <= bottom {
				break
			}
			for i, v := range stat {
				l.mask[i] = v <= -h
			}
			l.enhance(h, p, out)
		}
	}
}

func (l *Labeler) enhance(h float64, p TFCEParams, out []float64) {
	n := l.connect(l.mask, l.cmap)
	if n == 0 {
		return
	}
	if cap(l.sizes) < n+1 {
		l.sizes = make([]float64, l.size+1)
	}
	sizes := l.sizes[:n+1]
	clear(sizes)
	for _, id := range l.cmap {
		if id != 0 {
			sizes[id]++
		}
	}
	factor := math.Pow(h, p.H) * p.Step
	for id := 1; id <= n; id++ {
		sizes[id] = math.Pow(sizes[id], p.E) * factor
	}
	for i, id := range l.cmap {
		if id != 0 {
			out[i] += sizes[id]
		}
	}
}

// TFCE computes the enhanced map of stat, a map of the given shape.
func TFCE(stat []float64, shape []int, tail Tail, conn Connectivity, p TFCEParams) ([]float64, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	l, err := NewLabeler(shape, conn, nil)
	if err != nil {
		return nil, err
	}
	if len(stat) != l.size {
		return nil, fmt.Errorf("map of %d samples for shape %v: %w", len(stat), shape, ErrShape)
	}
	out := make([]float64, l.size)
	l.TFCE(stat, tail, p, out)
	return out, nil
}
