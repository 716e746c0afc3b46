package cluster

import "fmt"

// FindPeaks marks the local maxima of x in out, plateaus included. Samples
// outside the map count as lower than any sample, so peaks may touch the
// border. Along the graph axis a sample is discarded when any neighbour with
// a path of equal values to it lies on a descending slope.
func (l *Labeler) FindPeaks(x []float64, out []bool) {
	for i := range out {
		out[i] = true
	}
	// the graph axis is the most expensive one, so it goes last
	for ax := len(l.shape) - 1; ax >= 0; ax-- {
		if ax == 0 && l.conn != nil {
			l.peaksGraph(x, out)
		} else {
			l.peaksGrid(x, out, ax)
		}
	}
}

func (l *Labeler) peaksGrid(x []float64, out []bool, ax int) {
	n, s := l.shape[ax], l.strides[ax]
	if n < 2 {
		return
	}
	for start := 0; start < l.size; start++ {
		if (start/s)%n != 0 {
			continue
		}
		kernel := true
		for i := 0; i < n-1; i++ {
			a := start + i*s
			b := a + s
			switch d := x[b] - x[a]; {
			case d > 0:
				kernel = true
			case d < 0:
				kernel = false
			default:
				kernel = kernel && out[b]
			}
			out[b] = out[b] && kernel
		}
		kernel = true
		for i := n - 2; i >= 0; i-- {
			a := start + i*s
			b := a + s
			switch d := x[b] - x[a]; {
			case d < 0:
				kernel = true
			case d > 0:
				kernel = false
			default:
				kernel = kernel && out[a]
			}
			out[a] = out[a] && kernel
		}
	}
}

func (l *Labeler) peaksGraph(x []float64, out []bool) {
	nv := l.shape[0]
	data := make([]float64, nv)
	no := make([]bool, nv)
	queue := make([]int, 0, nv)
	for j := 0; j < l.inner; j++ {
		anyPeak := false
		for v := 0; v < nv; v++ {
			if out[v*l.inner+j] {
				anyPeak = true
				break
			}
		}
		if !anyPeak {
			continue
		}
		for v := 0; v < nv; v++ {
			data[v] = x[v*l.inner+j]
			no[v] = false
		}

		queue = queue[:0]
		for _, p := range l.conn {
			var lower int
			switch d := data[p.Src] - data[p.Dst]; {
			case d < 0:
				lower = p.Src
			case d > 0:
				lower = p.Dst
			default:
				continue
			}
			if !no[lower] {
				no[lower] = true
				queue = append(queue, lower)
			}
		}
		// spread over plateaus that touch a slope
		for len(queue) > 0 {
			v := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			for _, w := range l.nb[v] {
				if !no[w] && data[w] == data[v] {
					no[w] = true
					queue = append(queue, w)
				}
			}
		}

		nNo := 0
		allPeak := true
		for v := 0; v < nv; v++ {
			if no[v] {
				nNo++
				out[v*l.inner+j] = false
			}
			if !out[v*l.inner+j] {
				allPeak = false
			}
		}
		if nNo == 0 && !allPeak {
			for v := 0; v < nv; v++ {
				out[v*l.inner+j] = false
			}
		}
	}
}

// FindPeaks returns the local-maximum mask of x, a map of the given shape.
func FindPeaks(x []float64, shape []int, conn Connectivity) ([]bool, error) {
	l, err := NewLabeler(shape, conn, nil)
	if err != nil {
		return nil, err
	}
	if len(x) != l.size {
		return nil, fmt.Errorf("map of %d samples for shape %v: %w", len(x), shape, ErrShape)
	}
	out := make([]bool, l.size)
	l.FindPeaks(x, out)
	return out, nil
}
