package ndvar

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permclust/pkg/cluster"
)

func ptr(v float64) *float64 { return &v }

func TestTimeWindow(t *testing.T) {
	time := NewTime(-0.1, 0.01, 60)

	start, stop, err := time.Window(ptr(0), ptr(0.3))
	require.NoError(t, err)
	assert.Equal(t, 10, start)
	assert.Equal(t, 40, stop)

	// fractional positions round up
	start, _, err = time.Window(ptr(0.005), nil)
	require.NoError(t, err)
	assert.Equal(t, 11, start)

	start, stop, err = time.Window(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, start)
	assert.Equal(t, 60, stop)

	_, _, err = time.Window(ptr(0.2), ptr(0.1))
	assert.ErrorIs(t, err, ErrDimension)
	_, _, err = time.Window(ptr(1), ptr(2))
	assert.ErrorIs(t, err, ErrDimension)

	sliced := time.Slice(10, 40).(*Time)
	assert.InDelta(t, 0, sliced.TMin, 1e-12)
	assert.Equal(t, 30, sliced.Len())
	assert.Equal(t, 2, time.Samples(0.02))
}

func TestTimeProperties(t *testing.T) {
	time := NewTime(0, 0.01, 4)
	cols, err := time.Properties([][]bool{
		{false, true, true, false},
		{true, false, false, false},
	})
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, "tstart", cols[0].Name)
	assert.InDeltaSlice(t, []float64{0.01, 0}, cols[0].Values, 1e-12)
	assert.InDeltaSlice(t, []float64{0.03, 0.01}, cols[1].Values, 1e-12)
	assert.InDeltaSlice(t, []float64{0.02, 0.01}, cols[2].Values, 1e-12)

	_, err = time.Properties([][]bool{{false, false, false, false}})
	assert.Error(t, err)
}

func TestSensorConnectivity(t *testing.T) {
	sensor, err := NewSensor(
		[]string{"a", "b", "c", "d"},
		[][3]float64{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}, {4, 0, 0}},
		1.5,
	)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1}, {0, 2}, {1}, {2}}, sensor.Neighbors())

	conn, err := sensor.Connectivity(false)
	require.NoError(t, err)
	assert.Equal(t, cluster.Connectivity{{Src: 0, Dst: 1}, {Src: 1, Dst: 2}, {Src: 2, Dst: 3}}, conn)

	_, err = sensor.Connectivity(true)
	assert.ErrorIs(t, err, ErrDimension)

	require.NoError(t, sensor.SetParc([]string{"left", "left", "right", "right"}))
	conn, err = sensor.Connectivity(true)
	require.NoError(t, err)
	assert.Equal(t, cluster.Connectivity{{Src: 0, Dst: 1}, {Src: 2, Dst: 3}}, conn)

	idx, err := sensor.Index(In("right"))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, idx)
	idx, err = sensor.Index(In("b", "d"))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, idx)
	_, err = sensor.Index(In("x"))
	assert.ErrorIs(t, err, ErrDimension)
}

func TestSourceProperties(t *testing.T) {
	src, err := NewSource(4, []cluster.Pair{{Src: 0, Dst: 1}, {Src: 1, Dst: 2}, {Src: 2, Dst: 3}}, []string{"v1", "v1", "v2", "v2"}, 2)
	require.NoError(t, err)

	cols, err := src.Properties([][]bool{
		{true, true, false, false},
		{false, true, true, true},
	})
	require.NoError(t, err)
	tab := &Table{Columns: cols}
	want := &Table{Columns: []Column{
		FloatColumn("n_sources", []float64{2, 3}),
		LabelColumn("hemi", []string{"lh", "bh"}),
		LabelColumn("location", []string{"v1", "v2"}),
	}}
	assert.Empty(t, cmp.Diff(want, tab))

	sliced := src.Slice(1, 4).(*Source)
	assert.Equal(t, cluster.Connectivity{{Src: 0, Dst: 1}, {Src: 1, Dst: 2}}, sliced.Pairs)
	assert.Equal(t, 1, sliced.NLH)

	idx, err := src.Index(In("rh"))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, idx)

	_, err = NewSource(3, []cluster.Pair{{Src: 0, Dst: 5}}, nil, 0)
	assert.Error(t, err)
}

func TestMoveAxis(t *testing.T) {
	shape := []int{2, 3, 4}
	data := make([]int, Size(shape))
	for i := range data {
		data[i] = i
	}
	moved, newShape := MoveAxis(data, shape, 2, 0)
	assert.Equal(t, []int{4, 2, 3}, newShape)
	// element (a, b, c) of the input lands at (c, a, b)
	strides := Strides(newShape)
	for a := 0; a < 2; a++ {
		for b := 0; b < 3; b++ {
			for c := 0; c < 4; c++ {
				assert.Equal(t, a*12+b*4+c, moved[c*strides[0]+a*strides[1]+b*strides[2]])
			}
		}
	}

	back, backShape := MoveAxis(moved, newShape, 0, 2)
	assert.Equal(t, shape, backShape)
	assert.Equal(t, data, back)

	assert.Equal(t, []int{1, 0, 2}, AxisOrder(3, 1, 0))
}

func TestCropUncrop(t *testing.T) {
	shape := []int{2, 5}
	data := []float64{
		0, 1, 2, 3, 4,
		5, 6, 7, 8, 9,
	}
	cropped := Crop(data, shape, 1, 1, 3)
	assert.Equal(t, []float64{1, 2, 6, 7}, cropped)

	full := Uncrop(cropped, []int{2, 2}, 1, 1, 5, -1.0)
	assert.Equal(t, []float64{
		-1, 1, 2, -1, -1,
		-1, 6, 7, -1, -1,
	}, full)
}

func TestRegionMask(t *testing.T) {
	cat, err := NewCategorial("cond", []string{"a", "b"})
	require.NoError(t, err)
	dims := []Dimension{cat, NewTime(0, 0.1, 4)}

	mask, err := RegionMask(dims, map[string]Selector{
		"cond": In("b"),
		"time": Between(0.1, 0.3),
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{
		false, false, false, false,
		false, true, true, false,
	}, mask)

	_, err = RegionMask(dims, map[string]Selector{"sensor": In("x")})
	assert.ErrorIs(t, err, ErrDimension)
}

func TestDimSpecBuild(t *testing.T) {
	scalar, err := NewScalar("frequency", []float64{4, 8, 12}, "Hz")
	require.NoError(t, err)
	sensor, err := NewSensor([]string{"a", "b"}, [][3]float64{{0, 0, 0}, {1, 0, 0}}, 0)
	require.NoError(t, err)
	dims := []Dimension{sensor, NewTime(-0.1, 0.01, 3), scalar}

	built, err := BuildAll(Specs(dims))
	require.NoError(t, err)
	assert.Equal(t, Names(dims), Names(built))
	assert.Equal(t, Shape(dims), Shape(built))
	assert.Empty(t, cmp.Diff(Specs(dims), Specs(built)))

	_, err = DimSpec{Kind: "volume"}.Build()
	assert.ErrorIs(t, err, ErrDimension)
}

func TestTableString(t *testing.T) {
	tab := &Table{}
	require.NoError(t, tab.Add(FloatColumn("id", []float64{1, 2})))
	require.NoError(t, tab.Add(LabelColumn("hemi", []string{"lh", "rh"})))
	assert.Error(t, tab.Add(FloatColumn("p", []float64{0.5})))

	out := tab.String()
	assert.Contains(t, out, "id")
	assert.Contains(t, out, "rh")

	sub := tab.Subset(tab.Rows("id", func(v float64) bool { return v > 1 }))
	assert.Equal(t, 1, sub.Len())
	assert.Equal(t, []string{"rh"}, sub.Columns[1].Labels)
}
