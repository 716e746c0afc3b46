package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestTFCESingleSample(t *testing.T) {
	p := TFCEParams{Step: 0.5, E: 0.5, H: 2}
	out, err := TFCE([]float64{0, 1, 0}, []int{3}, Positive, nil, p)
	require.NoError(t, err)
	// only h=0.5 lies below the maximum: 1^0.5 * 0.5^2 * 0.5
	assert.InDeltaSlice(t, []float64{0, 0.125, 0}, out, 1e-12)
}

func TestTFCETails(t *testing.T) {
	stat := []float64{-2, -2, 0, 2, 2}
	p := DefaultTFCEParams()

	pos, err := TFCE(stat, []int{5}, Positive, nil, p)
	require.NoError(t, err)
	neg, err := TFCE(stat, []int{5}, Negative, nil, p)
	require.NoError(t, err)
	both, err := TFCE(stat, []int{5}, Both, nil, p)
	require.NoError(t, err)

	assert.Zero(t, pos[0])
	assert.Greater(t, pos[3], 0.0)
	assert.Zero(t, neg[3])
	assert.Greater(t, neg[0], 0.0)
	assert.InDelta(t, pos[3], neg[0], 1e-9, "symmetric input gives symmetric enhancement")
	for i := range both {
		assert.InDelta(t, pos[i]+neg[i], both[i], 1e-12)
	}
}

func bump(n int, center, width, height float64) []float64 {
	stat := make([]float64, n)
	for i := range stat {
		d := (float64(i) - center) / width
		stat[i] = height * math.Exp(-d*d/2)
	}
	return stat
}

func TestTFCEArgmaxScaleInvariant(t *testing.T) {
	// triangle peaking at 22 next to a wide, low plateau
	stat := make([]float64, 60)
	for i := range stat {
		stat[i] = math.Max(0, 3-0.5*math.Abs(float64(i-22)))
	}
	for i := 40; i < 50; i++ {
		stat[i] = 1.5
	}
	base, err := TFCE(stat, []int{60}, Positive, nil, DefaultTFCEParams())
	require.NoError(t, err)
	want := floats.MaxIdx(base)

	for _, k := range []float64{0.5, 2, 4} {
		scaled := make([]float64, len(stat))
		floats.ScaleTo(scaled, k, stat)
		out, err := TFCE(scaled, []int{60}, Positive, nil, DefaultTFCEParams())
		require.NoError(t, err)
		assert.Equal(t, want, floats.MaxIdx(out), "k=%v", k)
	}
}

func TestTFCEConvergence(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping fine-step tfce in short mode")
	}
	stat := bump(80, 40, 6, 5)
	var maxima []float64
	for _, step := range []float64{0.04, 0.02, 0.01, 0.005} {
		out, err := TFCE(stat, []int{80}, Positive, nil, TFCEParams{Step: step, E: 0.5, H: 2})
		require.NoError(t, err)
		maxima = append(maxima, floats.Max(out))
	}
	first := math.Abs(maxima[1] - maxima[0])
	lastDiff := math.Abs(maxima[3] - maxima[2])
	assert.Less(t, lastDiff, first, "differences shrink as the step is refined")
	last := maxima[len(maxima)-1]
	assert.InDelta(t, 1, maxima[len(maxima)-2]/last, 0.02)
}

func TestTFCEParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultTFCEParams().Validate())
	assert.Error(t, TFCEParams{Step: 0, E: 0.5, H: 2}.Validate())
	assert.Error(t, TFCEParams{Step: 0.1, E: -1, H: 2}.Validate())
	_, err := TFCE([]float64{1}, []int{1}, Both, nil, TFCEParams{})
	assert.Error(t, err)
}

func TestFindPeaksGrid(t *testing.T) {
	peaks, err := FindPeaks([]float64{0, 1, 3, 2, 2, 5, 1}, []int{7}, nil)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, true, false, false, true, false}, peaks)

	peaks, err = FindPeaks([]float64{0, 2, 2, 0}, []int{4}, nil)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, true, false}, peaks)

	x := []float64{
		0, 0, 0,
		0, 4, 1,
		0, 1, 2,
	}
	peaks, err = FindPeaks(x, []int{3, 3}, nil)
	require.NoError(t, err)
	// 2 only has face neighbours of 1, so it is a peak; the zero plateau is not
	assert.Equal(t, []bool{
		false, false, false,
		false, true, false,
		false, false, true,
	}, peaks)
}

func TestFindPeaksGraph(t *testing.T) {
	conn := NewConnectivity([]Pair{{0, 1}, {1, 2}})
	peaks, err := FindPeaks([]float64{1, 3, 2}, []int{3}, conn)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false}, peaks)

	// a flat graph axis is one plateau
	peaks, err = FindPeaks([]float64{2, 2, 2}, []int{3}, conn)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true}, peaks)

	// plateau touching a slope is not a peak
	peaks, err = FindPeaks([]float64{3, 3, 4}, []int{3}, conn)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, true}, peaks)
}

func BenchmarkTFCE(b *testing.B) {
	stat := bump(2000, 1000, 80, 6)
	l, err := NewLabeler([]int{2000}, nil, nil)
	if err != nil {
		b.Fatal(err)
	}
	out := make([]float64, len(stat))
	p := DefaultTFCEParams()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.TFCE(stat, Both, p, out)
	}
}
