// Package reducer reduces one statistic map to the values that enter a
// permutation distribution.
package reducer

import (
	"fmt"
	"math"

	"permclust/pkg/cluster"
)

// Kind selects how a statistic map is reduced.
type Kind int

const (
	// KindRaw keeps the extreme statistic value.
	KindRaw Kind = iota
	// KindCluster keeps the largest absolute cluster sum.
	KindCluster
	// KindTFCE keeps the largest enhanced value.
	KindTFCE
)

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindCluster:
		return "cluster"
	case KindTFCE:
		return "tfce"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Bins maps every sample of a map onto one of N distribution entries. A
// negative index leaves the sample out.
type Bins struct {
	Index []int32
	N     int
}

// Spec configures a reducer. Everything in it is read-only after New, so one
// Spec may back reducers in several goroutines.
type Spec struct {
	Kind      Kind
	Tail      cluster.Tail
	Threshold float64
	Shape     []int
	Conn      cluster.Connectivity
	Criteria  []cluster.Criterion
	TFCE      cluster.TFCEParams
	// Bins splits the distribution into several entries; nil keeps one.
	Bins *Bins
}

// Reducer turns one statistic map into distribution entries. Each Reducer
// owns its scratch buffers; use one per goroutine.
type Reducer interface {
	// Reduce writes Size() entries for stat into out.
	Reduce(stat []float64, out []float64)
	// Size returns the number of entries per map.
	Size() int
}

// New returns the reducer for s.Kind.
func New(s Spec) (Reducer, error) {
	if !s.Tail.Valid() {
		return nil, fmt.Errorf("invalid tail %d", int(s.Tail))
	}
	size := 1
	for _, n := range s.Shape {
		size *= n
	}
	if s.Bins != nil && len(s.Bins.Index) != size {
		return nil, fmt.Errorf("bins for %d samples, map has %d: %w", len(s.Bins.Index), size, cluster.ErrShape)
	}

	switch s.Kind {
	case KindRaw:
		return &rawReducer{tail: s.Tail, bins: s.Bins, buf: make([]float64, size)}, nil
	case KindCluster:
		if !(s.Threshold > 0) {
			return nil, fmt.Errorf("cluster threshold must be > 0, got %v", s.Threshold)
		}
		l, err := cluster.NewLabeler(s.Shape, s.Conn, s.Criteria)
		if err != nil {
			return nil, err
		}
		return &clusterReducer{
			l:         l,
			tail:      s.Tail,
			threshold: s.Threshold,
			bins:      s.Bins,
			cmap:      make([]uint32, size),
			sums:      make([]float64, size),
		}, nil
	case KindTFCE:
		if len(s.Criteria) > 0 {
			return nil, fmt.Errorf("size criteria do not apply to tfce")
		}
		if err := s.TFCE.Validate(); err != nil {
			return nil, err
		}
		l, err := cluster.NewLabeler(s.Shape, s.Conn, nil)
		if err != nil {
			return nil, err
		}
		return &tfceReducer{l: l, tail: s.Tail, p: s.TFCE, bins: s.Bins, buf: make([]float64, size)}, nil
	default:
		return nil, fmt.Errorf("unknown reducer kind %v", s.Kind)
	}
}

func binsSize(b *Bins) int {
	if b == nil {
		return 1
	}
	return b.N
}

// binMax writes the maximum of x within every bin into out.
func binMax(x []float64, b *Bins, out []float64) {
	if b == nil {
		m := math.Inf(-1)
		for _, v := range x {
			if v > m {
				m = v
			}
		}
		out[0] = m
		return
	}
	for i := range out[:b.N] {
		out[i] = math.Inf(-1)
	}
	for i, v := range x {
		if k := b.Index[i]; k >= 0 && v > out[k] {
			out[k] = v
		}
	}
}

// Signed maps stat onto the scale compared against the distribution: |x|
// for Both, -x for Negative.
func Signed(stat []float64, tail cluster.Tail, out []float64) {
	switch tail {
	case cluster.Both:
		for i, v := range stat {
			out[i] = math.Abs(v)
		}
	case cluster.Negative:
		for i, v := range stat {
			out[i] = -v
		}
	default:
		copy(out, stat)
	}
}

type rawReducer struct {
	tail cluster.Tail
	bins *Bins
	buf  []float64
}

func (r *rawReducer) Size() int { return binsSize(r.bins) }

func (r *rawReducer) Reduce(stat []float64, out []float64) {
	Signed(stat, r.tail, r.buf)
	binMax(r.buf, r.bins, out)
}

type tfceReducer struct {
	l    *cluster.Labeler
	tail cluster.Tail
	p    cluster.TFCEParams
	bins *Bins
	buf  []float64
}

func (r *tfceReducer) Size() int { return binsSize(r.bins) }

func (r *tfceReducer) Reduce(stat []float64, out []float64) {
	r.l.TFCE(stat, r.tail, r.p, r.buf)
	binMax(r.buf, r.bins, out)
}

type clusterReducer struct {
	l         *cluster.Labeler
	tail      cluster.Tail
	threshold float64
	bins      *Bins
	cmap      []uint32
	sums      []float64
}

func (r *clusterReducer) Size() int { return binsSize(r.bins) }

// Reduce keeps the largest absolute cluster sum, 0 without clusters. With
// bins, every cluster counts towards each bin it touches.
func (r *clusterReducer) Reduce(stat []float64, out []float64) {
	ids := r.l.Label(stat, r.threshold, r.tail, r.cmap)
	n := len(ids)
	cluster.ClusterSums(stat, r.cmap, n, r.sums)
	sums := r.sums[:n]
	for i, v := range sums {
		sums[i] = math.Abs(v)
	}

	if r.bins == nil {
		m := 0.0
		for _, v := range sums {
			if v > m {
				m = v
			}
		}
		out[0] = m
		return
	}
	clear(out[:r.bins.N])
	for i, id := range r.cmap {
		if id == 0 {
			continue
		}
		if k := r.bins.Index[i]; k >= 0 && sums[id-1] > out[k] {
			out[k] = sums[id-1]
		}
	}
}
