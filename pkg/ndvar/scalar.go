package ndvar

import (
	"fmt"
	"sort"
	"strings"

	"permclust/pkg/cluster"
)

// Scalar is an axis of increasing numeric values, such as frequency.
type Scalar struct {
	Label  string
	Values []float64
	Unit   string
}

// NewScalar returns a scalar dimension. Values must be strictly increasing.
func NewScalar(name string, values []float64, unit string) (*Scalar, error) {
	for i := 1; i < len(values); i++ {
		if values[i] <= values[i-1] {
			return nil, fmt.Errorf("%s values must be strictly increasing: %w", name, ErrDimension)
		}
	}
	return &Scalar{Label: name, Values: values, Unit: unit}, nil
}

func (s *Scalar) Name() string { return s.Label }
func (s *Scalar) Len() int     { return len(s.Values) }
func (s *Scalar) Grid() bool   { return true }

// Index returns the values in [lo, hi).
func (s *Scalar) Index(sel Selector) ([]int, error) {
	if sel.Range == nil {
		return nil, fmt.Errorf("%s needs a range selector, got %s: %w", s.Label, sel, ErrDimension)
	}
	start := sort.SearchFloat64s(s.Values, sel.Range[0])
	stop := sort.SearchFloat64s(s.Values, sel.Range[1])
	if start >= stop {
		return nil, fmt.Errorf("%s has no values in %s: %w", s.Label, sel, ErrDimension)
	}
	return rangeIndex(start, stop), nil
}

func (s *Scalar) Slice(start, stop int) Dimension {
	return &Scalar{Label: s.Label, Values: s.Values[start:stop], Unit: s.Unit}
}

// Properties reports the smallest and largest value covered by every cluster.
func (s *Scalar) Properties(extents [][]bool) ([]Column, error) {
	lo := make([]float64, len(extents))
	hi := make([]float64, len(extents))
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
		lo[c], hi[c] = s.Values[first], s.Values[last]
	}
	return []Column{FloatColumn("min", lo), FloatColumn("max", hi)}, nil
}

func (s *Scalar) Spec() DimSpec {
	return DimSpec{Kind: KindScalar, Name: s.Label, Values: s.Values, Unit: s.Unit}
}

// Categorial is an axis of unordered cells. No two cells are neighbours, so
// it acts as a graph dimension without edges.
type Categorial struct {
	Label string
	Cells []string
}

func NewCategorial(name string, cells []string) (*Categorial, error) {
	seen := make(map[string]bool, len(cells))
	for _, c := range cells {
		if seen[c] {
			return nil, fmt.Errorf("%s has duplicate cell %q: %w", name, c, ErrDimension)
		}
		seen[c] = true
	}
	return &Categorial{Label: name, Cells: cells}, nil
}

func (c *Categorial) Name() string { return c.Label }
func (c *Categorial) Len() int     { return len(c.Cells) }
func (c *Categorial) Grid() bool   { return false }

func (c *Categorial) Parcellation() []string { return nil }

func (c *Categorial) Connectivity(disconnectParc bool) (cluster.Connectivity, error) {
	if disconnectParc {
		return nil, fmt.Errorf("%s has no parcellation: %w", c.Label, ErrDimension)
	}
	return cluster.Connectivity{}, nil
}

func (c *Categorial) Index(sel Selector) ([]int, error) {
	if len(sel.Cells) == 0 {
		return nil, fmt.Errorf("%s needs a cell selector, got %s: %w", c.Label, sel, ErrDimension)
	}
	return cellIndex(c.Label, c.Cells, sel.Cells)
}

func (c *Categorial) Slice(start, stop int) Dimension {
	return &Categorial{Label: c.Label, Cells: c.Cells[start:stop]}
}

// Properties names the cells every cluster covers.
func (c *Categorial) Properties(extents [][]bool) ([]Column, error) {
	cells := make([]string, len(extents))
	for k, ext := range extents {
		var in []string
		for i, ok := range ext {
			if ok {
				in = append(in, c.Cells[i])
			}
		}
		if len(in) == 0 {
			return nil, fmt.Errorf("empty cluster %d", k)
		}
		cells[k] = strings.Join(in, "+")
	}
	return []Column{LabelColumn(c.Label, cells)}, nil
}

func (c *Categorial) Spec() DimSpec {
	return DimSpec{Kind: KindCategorial, Name: c.Label, Cells: c.Cells}
}
