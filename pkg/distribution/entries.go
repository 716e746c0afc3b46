package distribution

import (
	"fmt"
	"math"
	"slices"

	"permclust/pkg/ndvar"
	"permclust/pkg/reducer"
)

// entries splits every map into regional distribution entries. Without
// regional parameters there is a single entry and bins is nil.
type entries struct {
	dims []ndvar.Dimension
	bins *reducer.Bins
}

func (e *entries) n() int {
	if e.bins == nil {
		return 1
	}
	return e.bins.N
}

func buildEntries(lay *layout, p Params) (*entries, error) {
	for _, name := range p.DistDim {
		if _, _, err := lay.internalAxis(name); err != nil {
			return nil, fmt.Errorf("dist_dim: %w", err)
		}
	}
	if slices.Contains(p.DistDim, "time") && p.DistTStep > 0 {
		return nil, fmt.Errorf("dist_dim=time and dist_tstep are exclusive: %w", ErrConfiguration)
	}
	if p.Parc != "" {
		if _, _, err := lay.internalAxis(p.Parc); err != nil {
			return nil, fmt.Errorf("parc: %w", err)
		}
	}
	if p.DistTStep > 0 {
		if _, _, err := lay.internalAxis("time"); err != nil {
			return nil, fmt.Errorf("dist_tstep: %w", err)
		}
	}

	// coord[ax] maps an index along internal axis ax onto the entry axis, or
	// is nil for axes that are pooled
	coord := make([][]int, len(lay.inDims))
	e := &entries{}
	for ax, d := range lay.inDims {
		switch {
		case slices.Contains(p.DistDim, d.Name()):
			c := make([]int, d.Len())
			for i := range c {
				c[i] = i
			}
			coord[ax] = c
			e.dims = append(e.dims, d)
		case p.Parc == d.Name():
			g, ok := d.(ndvar.GraphDimension)
			var parc []string
			if ok {
				parc = g.Parcellation()
			}
			if parc == nil {
				return nil, fmt.Errorf("dimension %q has no parcellation: %w", d.Name(), ErrDimension)
			}
			var cells []string
			for _, label := range parc {
				if label != "" && !slices.Contains(cells, label) {
					cells = append(cells, label)
				}
			}
			slices.Sort(cells)
			c := make([]int, len(parc))
			for i, label := range parc {
				c[i] = slices.Index(cells, label)
			}
			cat, err := ndvar.NewCategorial(d.Name(), cells)
			if err != nil {
				return nil, err
			}
			coord[ax] = c
			e.dims = append(e.dims, cat)
		case p.DistTStep > 0 && d.Name() == "time":
			t, ok := d.(*ndvar.Time)
			if !ok {
				return nil, fmt.Errorf("dist_tstep on non-time dimension: %w", ErrDimension)
			}
			step := int(math.Round(p.DistTStep / t.TStep))
			if step < 1 || t.N%step != 0 {
				return nil, fmt.Errorf("dist_tstep=%g does not divide %d samples of %g s: %w",
					p.DistTStep, t.N, t.TStep, ErrConfiguration)
			}
			c := make([]int, t.N)
			for i := range c {
				c[i] = i / step
			}
			coord[ax] = c
			e.dims = append(e.dims, ndvar.NewTime(t.TMin, t.TStep*float64(step), t.N/step))
		}
	}
	if len(e.dims) == 0 {
		return e, nil
	}

	entryShape := ndvar.Shape(e.dims)
	entryStrides := ndvar.Strides(entryShape)
	strides := ndvar.Strides(lay.shape)
	index := make([]int32, lay.size())
	for i := range index {
		k, pos := 0, 0
		for ax, c := range coord {
			if c == nil {
				continue
			}
			v := c[(i/strides[ax])%lay.shape[ax]]
			if v < 0 {
				k = -1
				break
			}
			k += v * entryStrides[pos]
			pos++
		}
		index[i] = int32(k)
	}
	e.bins = &reducer.Bins{Index: index, N: ndvar.Size(entryShape)}
	return e, nil
}
