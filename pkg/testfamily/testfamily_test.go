package testfamily

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"permclust/pkg/cluster"
	"permclust/pkg/ndvar"
	"permclust/pkg/permutation"
)

func randomDataset(t *testing.T, rng *rand.Rand, cases, n int, shift float64) *ndvar.Dataset {
	t.Helper()
	maps := make([][]float64, cases)
	for i := range maps {
		maps[i] = make([]float64, n)
		for j := range maps[i] {
			maps[i][j] = rng.NormFloat64() + shift
		}
	}
	ds, err := ndvar.NewDataset("y", []ndvar.Dimension{ndvar.NewTime(0, 0.01, n)}, maps)
	require.NoError(t, err)
	return ds
}

func column(m ndvar.Matrix, j int) []float64 {
	c := make([]float64, m.Rows)
	for i := range c {
		c[i] = m.Row(i)[j]
	}
	return c
}

func TestT1Samp(t *testing.T) {
	ds, err := ndvar.NewDataset("y", []ndvar.Dimension{ndvar.NewTime(0, 0.01, 2)}, [][]float64{
		{1, 5}, {2, 5}, {3, 5}, {4, 5},
	})
	require.NoError(t, err)
	test, err := T1Samp(ds, 0, nil)
	require.NoError(t, err)

	mean, sd := stat.MeanStdDev([]float64{1, 2, 3, 4}, nil)
	assert.InDelta(t, mean/(sd/2), test.Map[0], 1e-12)
	assert.Zero(t, test.Map[1], "no variance gives t = 0")
	assert.Equal(t, [2]float64{3, 0}, test.DF)

	out := make([]float64, 2)
	test.Recompute(test.Y.Y, permutation.Permutation{Signs: []float64{-1, -1, -1, -1}}, out)
	assert.InDelta(t, -test.Map[0], out[0], 1e-12)

	shifted, err := T1Samp(ds, 2.5, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0, shifted.Map[0], 1e-12)

	_, err = T1Samp(&ndvar.Dataset{Y: ndvar.NewMatrix(1, 2)}, 0, nil)
	assert.ErrorIs(t, err, ErrDesign)
}

func TestTRel(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	a := randomDataset(t, rng, 10, 6, 0.5)
	b := randomDataset(t, rng, 10, 6, 0)
	test, err := TRel(a, b)
	require.NoError(t, err)

	for j := 0; j < 6; j++ {
		diff := make([]float64, 10)
		for i := range diff {
			diff[i] = a.Map(i)[j] - b.Map(i)[j]
		}
		mean, sd := stat.MeanStdDev(diff, nil)
		assert.InDelta(t, mean/(sd/math.Sqrt(10)), test.Map[j], 1e-9)
	}
}

func TestTIndMatchesANOVA(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	ds := randomDataset(t, rng, 12, 5, 0)
	group := make([]bool, 12)
	cells := make([]string, 12)
	for i := range group {
		group[i] = i%3 == 0
		cells[i] = "b"
		if group[i] {
			cells[i] = "a"
		}
	}
	tt, err := TInd(ds, group)
	require.NoError(t, err)
	ft, err := ANOVA1(ds, cells)
	require.NoError(t, err)
	assert.Equal(t, [2]float64{1, 10}, ft.DF)
	for j := range tt.Map {
		assert.InDelta(t, tt.Map[j]*tt.Map[j], ft.Map[j], 1e-9, "F = t^2 for two groups")
	}

	// recomputing under a reordering is the same as relabeling the cases
	order := rng.Perm(12)
	relabeled := make([]bool, 12)
	for i := range relabeled {
		relabeled[i] = group[order[i]]
	}
	want, err := TInd(ds, relabeled)
	require.NoError(t, err)
	out := make([]float64, 5)
	tt.Recompute(ds.Y, permutation.Permutation{Order: order}, out)
	assert.InDeltaSlice(t, want.Map, out, 1e-12)

	_, err = TInd(ds, make([]bool, 12))
	assert.ErrorIs(t, err, ErrDesign)
}

func TestCorr(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	ds := randomDataset(t, rng, 15, 4, 0)
	x := make([]float64, 15)
	for i := range x {
		x[i] = float64(i)
	}
	test, err := Corr(ds, x)
	require.NoError(t, err)
	for j := range test.Map {
		assert.InDelta(t, stat.Correlation(x, column(ds.Y, j), nil), test.Map[j], 1e-9)
	}

	_, err = Corr(ds, make([]float64, 15))
	assert.ErrorIs(t, err, ErrDesign)
}

func TestThresholds(t *testing.T) {
	assert.InDelta(t, 1.96, TThreshold(0.05, 1e6, cluster.Both), 1e-2)
	assert.InDelta(t, 1.645, TThreshold(0.05, 1e6, cluster.Positive), 1e-2)
	assert.Greater(t, TThreshold(0.05, 5, cluster.Both), TThreshold(0.05, 50, cluster.Both))
	assert.Greater(t, FThreshold(0.01, 2, 20), FThreshold(0.05, 2, 20))

	rng := rand.New(rand.NewSource(1))
	ds := randomDataset(t, rng, 20, 3, 0)
	x := make([]float64, 20)
	for i := range x {
		x[i] = rng.NormFloat64()
	}
	test, err := Corr(ds, x)
	require.NoError(t, err)
	r, err := test.Threshold(0.05, cluster.Both)
	require.NoError(t, err)
	assert.Greater(t, r, 0.0)
	assert.Less(t, r, 1.0)

	_, err = test.Threshold(1.5, cluster.Both)
	assert.Error(t, err)
}

func TestSource(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	ds := randomDataset(t, rng, 6, 3, 0)
	one, err := T1Samp(ds, 0, nil)
	require.NoError(t, err)
	src, err := one.Source(10, 1)
	require.NoError(t, err)
	p, ok := src.Next()
	require.True(t, ok)
	assert.Len(t, p.Signs, 6)

	ind, err := TInd(ds, []bool{true, true, true, false, false, false})
	require.NoError(t, err)
	src, err = ind.Source(10, 1)
	require.NoError(t, err)
	p, ok = src.Next()
	require.True(t, ok)
	assert.Len(t, p.Order, 6)
}
