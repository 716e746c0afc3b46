// Package cluster finds connected clusters on statistical parameter maps.
//
// Maps are dense row-major arrays. When a Connectivity is supplied, axis 0 is
// the non-grid axis whose neighbours are given by the connectivity pairs and
// every other axis is a regular grid (index i touches i-1 and i+1). Without a
// Connectivity all axes are grid axes. Only face neighbours are connected,
// never diagonals.
package cluster

import (
	"errors"
	"fmt"
	"sort"
)

// ErrShape is returned when a buffer does not match the labeler's shape.
var ErrShape = errors.New("shape mismatch")

// Tail selects which polarity of a statistic takes part in labeling and
// enhancement.
type Tail int

const (
	// Negative considers values below -threshold only.
	Negative Tail = -1
	// Both considers both polarities; clusters of each sign get disjoint ids.
	Both Tail = 0
	// Positive considers values above threshold only.
	Positive Tail = 1
)

// Valid reports whether t is one of the three defined tails.
func (t Tail) Valid() bool {
	return t == Negative || t == Both || t == Positive
}

func (t Tail) String() string {
	switch t {
	case Negative:
		return "negative"
	case Both:
		return "both"
	case Positive:
		return "positive"
	default:
		return fmt.Sprintf("Tail(%d)", int(t))
	}
}

// Pair is an undirected edge between two indices of the non-grid axis.
type Pair struct {
	Src, Dst int
}

// Connectivity is a sorted, de-duplicated list of pairs with Src < Dst.
type Connectivity []Pair

// NewConnectivity normalizes pairs: each pair is ordered so that Src < Dst,
// self-loops are dropped, and the result is sorted and de-duplicated.
func NewConnectivity(pairs []Pair) Connectivity {
	out := make(Connectivity, 0, len(pairs))
	for _, p := range pairs {
		if p.Src == p.Dst {
			continue
		}
		if p.Src > p.Dst {
			p.Src, p.Dst = p.Dst, p.Src
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Src != out[j].Src {
			return out[i].Src < out[j].Src
		}
		return out[i].Dst < out[j].Dst
	})
	n := 0
	for i, p := range out {
		if i > 0 && p == out[n-1] {
			continue
		}
		out[n] = p
		n++
	}
	return out[:n]
}

// Restrict returns the pairs whose two vertices belong to the same parcel.
// Vertices with an empty parcel label lose all of their edges.
func (c Connectivity) Restrict(parc []string) Connectivity {
	out := make(Connectivity, 0, len(c))
	for _, p := range c {
		if p.Src >= len(parc) || p.Dst >= len(parc) {
			continue
		}
		if parc[p.Src] == "" || parc[p.Src] != parc[p.Dst] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Validate checks that every index lies in [0, n).
func (c Connectivity) Validate(n int) error {
	for _, p := range c {
		if p.Src < 0 || p.Dst < 0 || p.Src >= n || p.Dst >= n {
			return fmt.Errorf("connectivity pair (%d, %d) outside axis of length %d: %w", p.Src, p.Dst, n, ErrShape)
		}
	}
	return nil
}

// Neighbors returns the adjacency list of c for an axis of length n.
func (c Connectivity) Neighbors(n int) [][]int {
	nb := make([][]int, n)
	for _, p := range c {
		nb[p.Src] = append(nb[p.Src], p.Dst)
		nb[p.Dst] = append(nb[p.Dst], p.Src)
	}
	return nb
}

// Criterion discards clusters that occupy fewer than MinExtent distinct
// positions along Axis once they are collapsed over all other axes.
type Criterion struct {
	Axis      int
	MinExtent int
}
