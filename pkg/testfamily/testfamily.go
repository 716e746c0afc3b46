// Package testfamily computes mass-univariate statistic maps (t, r, F) and
// recomputes them under permutations of the design.
package testfamily

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"permclust/pkg/cluster"
	"permclust/pkg/ndvar"
	"permclust/pkg/permutation"
)

// ErrDesign is returned for designs a test cannot be computed on.
var ErrDesign = errors.New("invalid design")

// Test is a test family bound to its data.
type Test struct {
	// Name of the test, e.g. "one-sample t-test".
	Name string
	// Meas is the statistic: "t", "r", or "F".
	Meas string
	// Y holds the data that are permuted.
	Y *ndvar.Dataset
	// Map is the statistic map of the unpermuted data.
	Map []float64
	// DF are the degrees of freedom (DF[1] is only used by F).
	DF [2]float64
	// Units groups cases that must be permuted together.
	Units []string

	signFlip  bool
	recompute func(y ndvar.Matrix, p permutation.Permutation, out []float64)
}

// Recompute writes the statistic map of y under p into out. It allocates its
// own scratch space and may be called from several goroutines.
func (t *Test) Recompute(y ndvar.Matrix, p permutation.Permutation, out []float64) {
	t.recompute(y, p, out)
}

// Source returns the permutation source matching the design.
func (t *Test) Source(samples int, seed uint64) (permutation.Source, error) {
	if t.signFlip {
		return permutation.NewSignFlip(t.Y.Cases(), samples, seed, t.Units)
	}
	return permutation.NewShuffle(t.Y.Cases(), samples, seed, t.Units)
}

// Threshold converts an uncorrected p-value into a statistic threshold.
func (t *Test) Threshold(pmin float64, tail cluster.Tail) (float64, error) {
	if !(pmin > 0 && pmin < 1) {
		return 0, fmt.Errorf("pmin must be in (0, 1), got %v", pmin)
	}
	switch t.Meas {
	case "t":
		return TThreshold(pmin, t.DF[0], tail), nil
	case "r":
		v := TThreshold(pmin, t.DF[0], tail)
		return v / math.Sqrt(t.DF[0]+v*v), nil
	case "F":
		return FThreshold(pmin, t.DF[0], t.DF[1]), nil
	default:
		return 0, fmt.Errorf("no threshold for %q", t.Meas)
	}
}

// TThreshold returns the t value with the given one- or two-tailed p.
func TThreshold(pmin, df float64, tail cluster.Tail) float64 {
	if tail == cluster.Both {
		pmin /= 2
	}
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Quantile(1 - pmin)
}

// FThreshold returns the F value with the given p.
func FThreshold(pmin, df1, df2 float64) float64 {
	return distuv.F{D1: df1, D2: df2}.Quantile(1 - pmin)
}

// T1Samp tests whether the mean of y differs from popmean.
func T1Samp(y *ndvar.Dataset, popmean float64, units []string) (*Test, error) {
	n := y.Cases()
	if n < 2 {
		return nil, fmt.Errorf("one-sample t-test needs at least 2 cases, got %d: %w", n, ErrDesign)
	}
	yp := y
	if popmean != 0 {
		m := ndvar.NewMatrix(n, y.Y.Cols)
		copy(m.Data, y.Y.Data)
		floats.AddConst(-popmean, m.Data)
		yp = &ndvar.Dataset{Name: y.Name, Dims: y.Dims, Y: m}
	}
	t := &Test{
		Name:     "one-sample t-test",
		Meas:     "t",
		Y:        yp,
		DF:       [2]float64{float64(n - 1), 0},
		Units:    units,
		signFlip: true,
		recompute: func(m ndvar.Matrix, p permutation.Permutation, out []float64) {
			tOneSample(m, p.Signs, out)
		},
	}
	t.Map = make([]float64, yp.Y.Cols)
	tOneSample(yp.Y, nil, t.Map)
	return t, nil
}

// TRel tests the difference between two matched conditions; case i of a is
// paired with case i of b.
func TRel(a, b *ndvar.Dataset) (*Test, error) {
	if a.Cases() != b.Cases() || a.Y.Cols != b.Y.Cols {
		return nil, fmt.Errorf("related t-test needs matching cases, got %dx%d and %dx%d: %w",
			a.Cases(), a.Y.Cols, b.Cases(), b.Y.Cols, ErrDesign)
	}
	diff := ndvar.NewMatrix(a.Cases(), a.Y.Cols)
	floats.SubTo(diff.Data, a.Y.Data, b.Y.Data)
	t, err := T1Samp(&ndvar.Dataset{Name: a.Name, Dims: a.Dims, Y: diff}, 0, nil)
	if err != nil {
		return nil, err
	}
	t.Name = "related-samples t-test"
	return t, nil
}

// TInd tests the difference between two independent groups; group[i] marks
// case i as belonging to the first group. Positive t means the first group
// is larger.
func TInd(y *ndvar.Dataset, group []bool) (*Test, error) {
	if len(group) != y.Cases() {
		return nil, fmt.Errorf("%d group labels for %d cases: %w", len(group), y.Cases(), ErrDesign)
	}
	n1 := 0
	for _, g := range group {
		if g {
			n1++
		}
	}
	n0 := len(group) - n1
	if n1 == 0 || n0 == 0 || n1+n0 < 3 {
		return nil, fmt.Errorf("independent t-test with groups of %d and %d cases: %w", n1, n0, ErrDesign)
	}
	labels := append([]bool(nil), group...)
	t := &Test{
		Name: "independent-samples t-test",
		Meas: "t",
		Y:    y,
		DF:   [2]float64{float64(n1 + n0 - 2), 0},
		recompute: func(m ndvar.Matrix, p permutation.Permutation, out []float64) {
			tIndependent(m, labels, p.Order, out)
		},
	}
	t.Map = make([]float64, y.Y.Cols)
	tIndependent(y.Y, labels, nil, t.Map)
	return t, nil
}

// Corr correlates every sample of y with the predictor x.
func Corr(y *ndvar.Dataset, x []float64) (*Test, error) {
	n := y.Cases()
	if len(x) != n {
		return nil, fmt.Errorf("predictor with %d values for %d cases: %w", len(x), n, ErrDesign)
	}
	if n < 3 {
		return nil, fmt.Errorf("correlation needs at least 3 cases, got %d: %w", n, ErrDesign)
	}
	_, xv := stat.MeanVariance(x, nil)
	if xv == 0 {
		return nil, fmt.Errorf("predictor is constant: %w", ErrDesign)
	}
	pred := append([]float64(nil), x...)
	t := &Test{
		Name: "correlation",
		Meas: "r",
		Y:    y,
		DF:   [2]float64{float64(n - 2), 0},
		recompute: func(m ndvar.Matrix, p permutation.Permutation, out []float64) {
			pearson(m, pred, p.Order, out)
		},
	}
	t.Map = make([]float64, y.Y.Cols)
	pearson(y.Y, pred, nil, t.Map)
	return t, nil
}

// ANOVA1 is a one-way between-subjects F-test; groups holds the cell of
// every case.
func ANOVA1(y *ndvar.Dataset, groups []string) (*Test, error) {
	if len(groups) != y.Cases() {
		return nil, fmt.Errorf("%d cell labels for %d cases: %w", len(groups), y.Cases(), ErrDesign)
	}
	index := map[string]int{}
	codes := make([]int, len(groups))
	for i, g := range groups {
		k, ok := index[g]
		if !ok {
			k = len(index)
			index[g] = k
		}
		codes[i] = k
	}
	k, n := len(index), len(groups)
	if k < 2 || n <= k {
		return nil, fmt.Errorf("one-way ANOVA with %d cells and %d cases: %w", k, n, ErrDesign)
	}
	t := &Test{
		Name: "one-way ANOVA",
		Meas: "F",
		Y:    y,
		DF:   [2]float64{float64(k - 1), float64(n - k)},
		recompute: func(m ndvar.Matrix, p permutation.Permutation, out []float64) {
			fOneWay(m, codes, k, p.Order, out)
		},
	}
	t.Map = make([]float64, y.Y.Cols)
	fOneWay(y.Y, codes, k, nil, t.Map)
	return t, nil
}
