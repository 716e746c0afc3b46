// Package ndvar describes the axes of measurement arrays: their names,
// lengths, adjacency, and how a cluster's extent along each axis is reported.
//
// Arrays are dense and row-major. A Dataset holds one map per case; an NDVar
// holds a single map such as a statistic or probability map.
package ndvar

import (
	"errors"
	"fmt"

	"permclust/pkg/cluster"
)

// ErrDimension is returned when a dimension, index, window, or parcellation
// requested by the caller is not present in the data.
var ErrDimension = errors.New("dimension error")

// Dimension is one named axis of a map.
type Dimension interface {
	Name() string
	Len() int
	// Grid reports whether index i is adjacent to i-1 and i+1. Dimensions
	// that are not grid axes implement GraphDimension.
	Grid() bool
	// Properties summarizes cluster extents along this dimension. extents
	// holds one boolean row of length Len() per cluster.
	Properties(extents [][]bool) ([]Column, error)
	// Index resolves a selector to sorted indices into the dimension.
	Index(sel Selector) ([]int, error)
	// Slice returns the dimension restricted to [start, stop).
	Slice(start, stop int) Dimension
	// Spec returns a serializable description of the dimension.
	Spec() DimSpec
}

// GraphDimension is a dimension with arbitrary neighbour structure.
type GraphDimension interface {
	Dimension
	// Connectivity returns the neighbour pairs. With disconnectParc, only
	// pairs within the same parcel are kept.
	Connectivity(disconnectParc bool) (cluster.Connectivity, error)
	// Parcellation returns one parcel label per index, or nil.
	Parcellation() []string
}

// Selector picks part of a dimension, either by a value range [lo, hi) or by
// cell/parcel names.
type Selector struct {
	Range *[2]float64
	Cells []string
}

// Between returns a range selector.
func Between(lo, hi float64) Selector {
	return Selector{Range: &[2]float64{lo, hi}}
}

// In returns a selector for named cells.
func In(cells ...string) Selector {
	return Selector{Cells: cells}
}

func (s Selector) String() string {
	if s.Range != nil {
		return fmt.Sprintf("[%g, %g)", s.Range[0], s.Range[1])
	}
	return fmt.Sprintf("%v", s.Cells)
}

// IsGraph reports whether d has non-grid adjacency.
func IsGraph(d Dimension) bool {
	_, ok := d.(GraphDimension)
	return ok && !d.Grid()
}

// Find returns the position and value of the dimension called name.
func Find(dims []Dimension, name string) (int, Dimension, error) {
	for i, d := range dims {
		if d.Name() == name {
			return i, d, nil
		}
	}
	return -1, nil, fmt.Errorf("no dimension named %q: %w", name, ErrDimension)
}

// Shape returns the lengths of dims.
func Shape(dims []Dimension) []int {
	shape := make([]int, len(dims))
	for i, d := range dims {
		shape[i] = d.Len()
	}
	return shape
}

// Names returns the names of dims.
func Names(dims []Dimension) []string {
	names := make([]string, len(dims))
	for i, d := range dims {
		names[i] = d.Name()
	}
	return names
}

// cellIndex maps names onto indices of labels; a name matches every index
// carrying that label.
func cellIndex(dim string, labels []string, cells []string) ([]int, error) {
	want := make(map[string]bool, len(cells))
	for _, c := range cells {
		want[c] = false
	}
	var idx []int
	for i, l := range labels {
		if _, ok := want[l]; ok {
			want[l] = true
			idx = append(idx, i)
		}
	}
	for c, found := range want {
		if !found {
			return nil, fmt.Errorf("%s has no cell %q: %w", dim, c, ErrDimension)
		}
	}
	return idx, nil
}
