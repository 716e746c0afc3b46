package ndvar

import (
	"fmt"
)

// NDVar is one map with named dimensions.
type NDVar struct {
	Name string
	Dims []Dimension
	Data []float64
}

// New checks that data matches dims.
func New(name string, dims []Dimension, data []float64) (*NDVar, error) {
	if n := Size(Shape(dims)); n != len(data) {
		return nil, fmt.Errorf("%s: %d values for shape %v: %w", name, len(data), Shape(dims), ErrDimension)
	}
	return &NDVar{Name: name, Dims: dims, Data: data}, nil
}

func (v *NDVar) Shape() []int { return Shape(v.Dims) }

// Dim returns the dimension called name.
func (v *NDVar) Dim(name string) (Dimension, error) {
	_, d, err := Find(v.Dims, name)
	return d, err
}

// Matrix is a row-major cases × samples array.
type Matrix struct {
	Data []float64
	Rows int
	Cols int
}

func NewMatrix(rows, cols int) Matrix {
	return Matrix{Data: make([]float64, rows*cols), Rows: rows, Cols: cols}
}

// Row returns row i without copying.
func (m Matrix) Row(i int) []float64 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// Dataset holds one map per case, all sharing the same dimensions.
type Dataset struct {
	Name string
	Dims []Dimension
	Y    Matrix
}

// NewDataset stacks the case maps into a dataset.
func NewDataset(name string, dims []Dimension, maps [][]float64) (*Dataset, error) {
	n := Size(Shape(dims))
	y := NewMatrix(len(maps), n)
	for i, m := range maps {
		if len(m) != n {
			return nil, fmt.Errorf("%s: case %d has %d values for shape %v: %w", name, i, len(m), Shape(dims), ErrDimension)
		}
		copy(y.Row(i), m)
	}
	return &Dataset{Name: name, Dims: dims, Y: y}, nil
}

// Cases returns the number of cases.
func (d *Dataset) Cases() int { return d.Y.Rows }

// Map returns the map of case i without copying.
func (d *Dataset) Map(i int) []float64 { return d.Y.Row(i) }

// RegionMask marks the samples of a map over dims that lie inside every
// selection of sub. Dimensions not named in sub are kept whole.
func RegionMask(dims []Dimension, sub map[string]Selector) ([]bool, error) {
	shape := Shape(dims)
	keep := make([][]bool, len(dims))
	for name, sel := range sub {
		ax, d, err := Find(dims, name)
		if err != nil {
			return nil, err
		}
		idx, err := d.Index(sel)
		if err != nil {
			return nil, err
		}
		k := make([]bool, d.Len())
		for _, i := range idx {
			k[i] = true
		}
		keep[ax] = k
	}

	mask := make([]bool, Size(shape))
	strides := Strides(shape)
	for i := range mask {
		in := true
		for ax, k := range keep {
			if k != nil && !k[(i/strides[ax])%shape[ax]] {
				in = false
				break
			}
		}
		mask[i] = in
	}
	return mask, nil
}
