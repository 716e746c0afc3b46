package cluster

import (
	"fmt"
)

// Labeler labels clusters on maps of one fixed shape. All scratch buffers are
// allocated once by NewLabeler and reused by every call, so a Labeler must not
// be shared between goroutines. Slices returned by its methods alias those
// buffers and stay valid until the next call.
type Labeler struct {
	shape    []int
	strides  []int
	size     int
	inner    int
	conn     Connectivity
	nb       [][]int
	criteria []Criterion

	parent []int32
	mask   []bool
	cmap   []uint32
	buff   []uint32
	ids    []uint32
	keep   []uint32
	seen   []bool
	sizes  []float64
}

// NewLabeler creates a labeler for maps of the given shape. A nil conn makes
// every axis a grid axis; otherwise axis 0 follows conn. Criteria may be nil.
func NewLabeler(shape []int, conn Connectivity, criteria []Criterion) (*Labeler, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("empty shape: %w", ErrShape)
	}
	size := 1
	for _, n := range shape {
		if n <= 0 {
			return nil, fmt.Errorf("invalid shape %v: %w", shape, ErrShape)
		}
		size *= n
	}
	if conn != nil {
		if err := conn.Validate(shape[0]); err != nil {
			return nil, err
		}
	}
	for _, c := range criteria {
		if c.Axis < 0 || c.Axis >= len(shape) {
			return nil, fmt.Errorf("criterion axis %d outside %d-dimensional map: %w", c.Axis, len(shape), ErrShape)
		}
	}

	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}

	ids := make([]uint32, size)
	for i := range ids {
		ids[i] = uint32(i + 1)
	}

	l := &Labeler{
		shape:    append([]int(nil), shape...),
		strides:  strides,
		size:     size,
		inner:    size / shape[0],
		conn:     conn,
		criteria: criteria,
		parent:   make([]int32, size),
		mask:     make([]bool, size),
		cmap:     make([]uint32, size),
		buff:     make([]uint32, size),
		ids:      ids,
		keep:     make([]uint32, size+1),
	}
	if conn != nil {
		l.nb = conn.Neighbors(shape[0])
	}
	return l, nil
}

// Shape returns the map shape handled by l.
func (l *Labeler) Shape() []int { return l.shape }

// Size returns the number of samples in one map.
func (l *Labeler) Size() int { return l.size }

// Connectivity returns the graph used for axis 0 (nil for grid-only maps).
func (l *Labeler) Connectivity() Connectivity { return l.conn }

// LabelBinary labels the connected components of mask into cmap and applies
// the labeler's criteria. Surviving ids are 1..n and are returned in order.
func (l *Labeler) LabelBinary(mask []bool, cmap []uint32) []uint32 {
	n := l.connect(mask, cmap)
	n = l.applyCriteria(cmap, n)
	return l.ids[:n]
}

// Label thresholds stat and labels the suprathreshold clusters into cmap.
// Positive clusters come first; for Both, negative clusters are numbered
// after the last positive id.
func (l *Labeler) Label(stat []float64, threshold float64, tail Tail, cmap []uint32) []uint32 {
	var n int
	if tail != Negative {
		for i, v := range stat {
			l.mask[i] = v > threshold
		}
		n = l.applyCriteria(cmap, l.connect(l.mask, cmap))
	}
	if tail != Positive {
		for i, v := range stat {
			l.mask[i] = v < -threshold
		}
		if tail == Negative {
			n = l.applyCriteria(cmap, l.connect(l.mask, cmap))
		} else {
			nNeg := l.applyCriteria(l.buff, l.connect(l.mask, l.buff))
			if nNeg > 0 {
				offset := uint32(n)
				for i, id := range l.buff {
					if id != 0 {
						cmap[i] = id + offset
					}
				}
			}
			n += nNeg
		}
	}
	return l.ids[:n]
}

// connect runs union-find labeling of mask into cmap without criteria and
// returns the number of components. Ids follow the raster order of each
// component's first sample.
func (l *Labeler) connect(mask []bool, cmap []uint32) int {
	for i, m := range mask {
		cmap[i] = 0
		if m {
			l.parent[i] = int32(i)
		}
	}

	first := 0
	if l.conn != nil {
		first = 1
	}
	for i, m := range mask {
		if !m {
			continue
		}
		for ax := first; ax < len(l.shape); ax++ {
			s := l.strides[ax]
			if (i/s)%l.shape[ax] == l.shape[ax]-1 {
				continue
			}
			if mask[i+s] {
				l.union(int32(i), int32(i+s))
			}
		}
	}
	for _, p := range l.conn {
		a, b := p.Src*l.inner, p.Dst*l.inner
		for j := 0; j < l.inner; j++ {
			if mask[a+j] && mask[b+j] {
				l.union(int32(a+j), int32(b+j))
			}
		}
	}

	// cmap doubles as the root -> id table
	var n uint32
	for i, m := range mask {
		if !m {
			continue
		}
		r := l.find(int32(i))
		if cmap[r] == 0 {
			n++
			cmap[r] = n
		}
		cmap[i] = cmap[r]
	}
	return int(n)
}

func (l *Labeler) find(i int32) int32 {
	for l.parent[i] != i {
		l.parent[i] = l.parent[l.parent[i]]
		i = l.parent[i]
	}
	return i
}

func (l *Labeler) union(a, b int32) {
	ra, rb := l.find(a), l.find(b)
	switch {
	case ra < rb:
		l.parent[rb] = ra
	case rb < ra:
		l.parent[ra] = rb
	}
}

// applyCriteria removes clusters that fail any criterion and renumbers the
// survivors densely from 1. It returns the number of survivors.
func (l *Labeler) applyCriteria(cmap []uint32, n int) int {
	if n == 0 || len(l.criteria) == 0 {
		return n
	}
	keep := l.keep[:n+1]
	for id := 1; id <= n; id++ {
		keep[id] = 1
	}

	for _, c := range l.criteria {
		if c.MinExtent <= 0 {
			continue
		}
		length, stride := l.shape[c.Axis], l.strides[c.Axis]
		seen := l.seenBuffer(n * length)
		for i, id := range cmap {
			if id != 0 {
				seen[int(id-1)*length+(i/stride)%length] = true
			}
		}
		for id := 1; id <= n; id++ {
			extent := 0
			for _, s := range seen[(id-1)*length : id*length] {
				if s {
					extent++
				}
			}
			if extent < c.MinExtent {
				keep[id] = 0
			}
		}
	}

	var next uint32
	for id := 1; id <= n; id++ {
		if keep[id] != 0 {
			next++
			keep[id] = next
		}
	}
	if int(next) == n {
		return n
	}
	for i, id := range cmap {
		if id != 0 {
			cmap[i] = keep[id]
		}
	}
	return int(next)
}

func (l *Labeler) seenBuffer(n int) []bool {
	if cap(l.seen) < n {
		l.seen = make([]bool, n)
	}
	seen := l.seen[:n]
	clear(seen)
	return seen
}

// ClusterSums adds stat over the samples of every cluster. out must hold at
// least n values; out[id-1] receives the sum for cluster id.
func ClusterSums(stat []float64, cmap []uint32, n int, out []float64) {
	clear(out[:n])
	for i, id := range cmap {
		if id != 0 {
			out[id-1] += stat[i]
		}
	}
}

// Label labels suprathreshold clusters of stat, a map of the given shape. It
// allocates a throwaway Labeler; use NewLabeler for repeated calls.
func Label(stat []float64, shape []int, threshold float64, tail Tail, conn Connectivity, criteria []Criterion) ([]uint32, []uint32, error) {
	l, err := NewLabeler(shape, conn, criteria)
	if err != nil {
		return nil, nil, err
	}
	if len(stat) != l.size {
		return nil, nil, fmt.Errorf("map of %d samples for shape %v: %w", len(stat), shape, ErrShape)
	}
	if !tail.Valid() {
		return nil, nil, fmt.Errorf("invalid tail %d", int(tail))
	}
	cmap := make([]uint32, l.size)
	ids := l.Label(stat, threshold, tail, cmap)
	return cmap, append([]uint32(nil), ids...), nil
}

// LabelBinary labels the connected components of mask, a map of the given
// shape.
func LabelBinary(mask []bool, shape []int, conn Connectivity, criteria []Criterion) ([]uint32, []uint32, error) {
	l, err := NewLabeler(shape, conn, criteria)
	if err != nil {
		return nil, nil, err
	}
	if len(mask) != l.size {
		return nil, nil, fmt.Errorf("mask of %d samples for shape %v: %w", len(mask), shape, ErrShape)
	}
	cmap := make([]uint32, l.size)
	ids := l.LabelBinary(mask, cmap)
	return cmap, append([]uint32(nil), ids...), nil
}
