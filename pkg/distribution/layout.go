package distribution

import (
	"fmt"

	"permclust/pkg/ndvar"
)

// layout maps between the dimensions a caller supplies and the internal map
// layout: the time window is cropped and the graph dimension, if any, moved
// to axis 0.
type layout struct {
	dims    []ndvar.Dimension
	timeAx  int // axis of the cropped time dimension in dims, -1 without window
	start   int
	stop    int
	crop    []ndvar.Dimension
	graphAx int // axis of the graph dimension in crop, -1 without
	inDims  []ndvar.Dimension
	shape   []int
}

func newLayout(dims []ndvar.Dimension, tstart, tstop *float64) (*layout, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("map without dimensions: %w", ErrDimension)
	}
	lay := &layout{dims: dims, timeAx: -1, graphAx: -1}
	lay.crop = append([]ndvar.Dimension(nil), dims...)

	if tstart != nil && tstop != nil && *tstart >= *tstop {
		return nil, fmt.Errorf("tstart=%g must be smaller than tstop=%g: %w", *tstart, *tstop, ErrConfiguration)
	}
	if tstart != nil || tstop != nil {
		ax, d, err := ndvar.Find(dims, "time")
		if err != nil {
			return nil, fmt.Errorf("time window: %w", err)
		}
		t, ok := d.(*ndvar.Time)
		if !ok {
			return nil, fmt.Errorf("time window on non-time dimension %q: %w", d.Name(), ErrDimension)
		}
		start, stop, err := t.Window(tstart, tstop)
		if err != nil {
			return nil, err
		}
		lay.timeAx, lay.start, lay.stop = ax, start, stop
		lay.crop[ax] = t.Slice(start, stop)
	}

	for ax, d := range lay.crop {
		if !ndvar.IsGraph(d) {
			continue
		}
		if lay.graphAx >= 0 {
			return nil, fmt.Errorf("more than one non-grid dimension (%s, %s): %w",
				lay.crop[lay.graphAx].Name(), d.Name(), ErrConfiguration)
		}
		lay.graphAx = ax
	}

	lay.inDims = lay.crop
	if lay.graphAx > 0 {
		order := ndvar.AxisOrder(len(lay.crop), lay.graphAx, 0)
		lay.inDims = make([]ndvar.Dimension, len(order))
		for k, ax := range order {
			lay.inDims[k] = lay.crop[ax]
		}
	}
	lay.shape = ndvar.Shape(lay.inDims)
	return lay, nil
}

// size is the number of samples of an internal map.
func (lay *layout) size() int { return ndvar.Size(lay.shape) }

// fullSize is the number of samples of a caller map.
func (lay *layout) fullSize() int { return ndvar.Size(ndvar.Shape(lay.dims)) }

// toInternal converts rows consecutive caller maps to the internal layout.
func (lay *layout) toInternal(data []float64, rows int) []float64 {
	shape := append([]int{rows}, ndvar.Shape(lay.dims)...)
	if lay.timeAx >= 0 {
		data = ndvar.Crop(data, shape, lay.timeAx+1, lay.start, lay.stop)
		shape[lay.timeAx+1] = lay.stop - lay.start
	}
	if lay.graphAx > 0 {
		data, _ = ndvar.MoveAxis(data, shape, lay.graphAx+1, 1)
	} else if lay.timeAx < 0 {
		data = append([]float64(nil), data...)
	}
	return data
}

// toOutput converts one internal map back to the caller layout, with fill
// outside the time window.
func (lay *layout) toOutput(x []float64, fill float64) []float64 {
	if lay.graphAx > 0 {
		x, _ = ndvar.MoveAxis(x, lay.shape, 0, lay.graphAx)
	} else {
		x = append([]float64(nil), x...)
	}
	if lay.timeAx >= 0 {
		n := lay.dims[lay.timeAx].Len()
		x = ndvar.Uncrop(x, ndvar.Shape(lay.crop), lay.timeAx, lay.start, n, fill)
	}
	return x
}

// internalAxis returns the internal axis of the dimension called name.
func (lay *layout) internalAxis(name string) (int, ndvar.Dimension, error) {
	return ndvar.Find(lay.inDims, name)
}

// outputNDVar wraps an internal map as an NDVar over the caller dimensions.
func (lay *layout) outputNDVar(name string, x []float64, fill float64) *ndvar.NDVar {
	return &ndvar.NDVar{Name: name, Dims: lay.dims, Data: lay.toOutput(x, fill)}
}
