package ndvar

import (
	"fmt"
	"strconv"

	"permclust/pkg/cluster"
)

// Source is a source space with explicit neighbour pairs, such as the
// vertices of a cortical surface mesh.
type Source struct {
	N     int
	Pairs cluster.Connectivity
	// Parc optionally assigns each source to a labeled region.
	Parc []string
	// NLH is the number of sources in the left hemisphere; sources are
	// ordered left first. Zero means the space is not split by hemisphere.
	NLH int
}

// NewSource returns a source space with n sources.
func NewSource(n int, pairs []cluster.Pair, parc []string, nLH int) (*Source, error) {
	conn := cluster.NewConnectivity(pairs)
	if err := conn.Validate(n); err != nil {
		return nil, fmt.Errorf("source connectivity: %w", err)
	}
	if parc != nil && len(parc) != n {
		return nil, fmt.Errorf("parcellation with %d entries for %d sources: %w", len(parc), n, ErrDimension)
	}
	if nLH < 0 || nLH > n {
		return nil, fmt.Errorf("left hemisphere count %d outside [0, %d]: %w", nLH, n, ErrDimension)
	}
	return &Source{N: n, Pairs: conn, Parc: parc, NLH: nLH}, nil
}

func (s *Source) Name() string { return "source" }
func (s *Source) Len() int     { return s.N }
func (s *Source) Grid() bool   { return false }

func (s *Source) Parcellation() []string { return s.Parc }

func (s *Source) Connectivity(disconnectParc bool) (cluster.Connectivity, error) {
	if !disconnectParc {
		return s.Pairs, nil
	}
	if s.Parc == nil {
		return nil, fmt.Errorf("source space has no parcellation: %w", ErrDimension)
	}
	return s.Pairs.Restrict(s.Parc), nil
}

// Index resolves region names, or "lh"/"rh" for a hemisphere.
func (s *Source) Index(sel Selector) ([]int, error) {
	if len(sel.Cells) == 0 {
		return nil, fmt.Errorf("source needs a cell selector, got %s: %w", sel, ErrDimension)
	}
	if len(sel.Cells) == 1 && s.NLH > 0 {
		switch sel.Cells[0] {
		case "lh":
			return rangeIndex(0, s.NLH), nil
		case "rh":
			return rangeIndex(s.NLH, s.N), nil
		}
	}
	if s.Parc == nil {
		return nil, fmt.Errorf("source space has no parcellation: %w", ErrDimension)
	}
	return cellIndex("source parcellation", s.Parc, sel.Cells)
}

// Slice keeps the pairs with both ends inside [start, stop).
func (s *Source) Slice(start, stop int) Dimension {
	var pairs []cluster.Pair
	for _, p := range s.Pairs {
		if p.Src >= start && p.Dst < stop {
			pairs = append(pairs, cluster.Pair{Src: p.Src - start, Dst: p.Dst - start})
		}
	}
	out := &Source{N: stop - start, Pairs: cluster.NewConnectivity(pairs)}
	if s.Parc != nil {
		out.Parc = s.Parc[start:stop]
	}
	if s.NLH > 0 {
		out.NLH = min(max(s.NLH-start, 0), stop-start)
	}
	return out
}

// Properties reports n_sources, the hemisphere (lh, rh, or bh for clusters
// spanning both) and, with a parcellation, the dominant region.
func (s *Source) Properties(extents [][]bool) ([]Column, error) {
	return graphProperties("n_sources", extents, s.Parc, s.NLH)
}

func (s *Source) Spec() DimSpec {
	pairs := make([][2]int, len(s.Pairs))
	for i, p := range s.Pairs {
		pairs[i] = [2]int{p.Src, p.Dst}
	}
	return DimSpec{Kind: KindSource, Name: s.Name(), N: s.N, Pairs: pairs, Parc: s.Parc, NLH: s.NLH}
}

func (s *Source) String() string {
	return "Source(" + strconv.Itoa(s.N) + ")"
}

func rangeIndex(start, stop int) []int {
	idx := make([]int, 0, stop-start)
	for i := start; i < stop; i++ {
		idx = append(idx, i)
	}
	return idx
}
