// Package permutation generates the relabelings of a design that build a
// permutation distribution: sign flips for one-sample designs and case
// reorderings for the others.
//
// Sources are deterministic for a given seed, so two runs that consume the
// same source produce the same sequence of permutations.
package permutation

import (
	"errors"
	"fmt"
	"math/bits"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/combin"
)

// ErrInfeasible is returned when an exhaustive enumeration is requested for a
// design with too many relabelings.
var ErrInfeasible = errors.New("exhaustive enumeration not feasible")

const (
	maxExhaustiveSignUnits = 24
	maxExhaustiveCases     = 10
)

// Permutation is one relabeling. Exactly one of Signs and Order is set.
type Permutation struct {
	// Index is the position of the permutation in its source.
	Index int
	// Signs holds +1 or -1 per case.
	Signs []float64
	// Order holds, for every position, the case moved there.
	Order []int
}

// Source yields a fixed number of permutations.
type Source interface {
	// Len returns the number of permutations Next will yield.
	Len() int
	// Next returns the next permutation, or false when exhausted.
	Next() (Permutation, bool)
}

// groups assigns every case to a unit. nil units puts each case in its own
// unit.
func groups(n int, units []string) ([][]int, error) {
	if units == nil {
		g := make([][]int, n)
		for i := range g {
			g[i] = []int{i}
		}
		return g, nil
	}
	if len(units) != n {
		return nil, fmt.Errorf("%d unit labels for %d cases", len(units), n)
	}
	index := map[string]int{}
	var g [][]int
	for i, u := range units {
		k, ok := index[u]
		if !ok {
			k = len(g)
			index[u] = k
			g = append(g, nil)
		}
		g[k] = append(g[k], i)
	}
	return g, nil
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// SignFlip flips the sign of whole units. The identity is never produced,
// and sampled flips do not repeat.
type SignFlip struct {
	n       int
	units   [][]int
	samples int
	// exhaustive enumeration walks the codes 1..2^u-1
	exhaustive bool
	rng        *rand.Rand
	seen       map[string]struct{}
	code       []bool
	i          int
}

// SignFlipCount returns the number of distinct non-identity sign flips of
// nUnits units, or -1 if it does not fit in an int.
func SignFlipCount(nUnits int) int {
	if nUnits >= bits.UintSize-1 {
		return -1
	}
	return 1<<nUnits - 1
}

// NewSignFlip returns sign flips of n cases. units, when not nil, holds one
// label per case; cases sharing a label flip together. samples < 0, or a
// count at least as large as the number of distinct flips, enumerates all of
// them.
func NewSignFlip(n, samples int, seed uint64, units []string) (*SignFlip, error) {
	g, err := groups(n, units)
	if err != nil {
		return nil, err
	}
	s := &SignFlip{n: n, units: g, samples: samples, code: make([]bool, len(g))}
	total := SignFlipCount(len(g))
	if samples < 0 || (total >= 0 && samples >= total) {
		if len(g) > maxExhaustiveSignUnits {
			return nil, fmt.Errorf("%d units give 2^%d sign flips: %w", len(g), len(g), ErrInfeasible)
		}
		s.exhaustive = true
		s.samples = total
		return s, nil
	}
	s.rng = newRand(seed)
	s.seen = make(map[string]struct{}, samples)
	return s, nil
}

func (s *SignFlip) Len() int { return s.samples }

func (s *SignFlip) Next() (Permutation, bool) {
	if s.i >= s.samples {
		return Permutation{}, false
	}
	if s.exhaustive {
		c := s.i + 1
		for k := range s.code {
			s.code[k] = c&(1<<k) != 0
		}
	} else {
		s.draw()
	}
	signs := make([]float64, s.n)
	for k, unit := range s.units {
		v := 1.0
		if s.code[k] {
			v = -1
		}
		for _, i := range unit {
			signs[i] = v
		}
	}
	p := Permutation{Index: s.i, Signs: signs}
	s.i++
	return p, true
}

// draw samples a new code that is neither the identity nor seen before.
func (s *SignFlip) draw() {
	key := make([]byte, len(s.code))
	for {
		flipped := false
		for k := range s.code {
			s.code[k] = s.rng.IntN(2) == 1
			key[k] = '0'
			if s.code[k] {
				key[k] = '1'
				flipped = true
			}
		}
		if !flipped {
			continue
		}
		if _, dup := s.seen[string(key)]; dup {
			continue
		}
		s.seen[string(key)] = struct{}{}
		return
	}
}

// Shuffle reorders cases. With units, cases are only exchanged within their
// unit, as in repeated-measures designs.
type Shuffle struct {
	n int
	// within is nil when cases may move anywhere
	within  [][]int
	samples int
	rng     *rand.Rand
	gen     *combin.PermutationGenerator
	perm    []int
	i       int
}

// NewShuffle returns reorderings of n cases. Exhaustive enumeration, for
// samples < 0 or samples >= n!-1, is only available without units.
func NewShuffle(n, samples int, seed uint64, units []string) (*Shuffle, error) {
	s := &Shuffle{n: n, samples: samples}
	if units != nil {
		g, err := groups(n, units)
		if err != nil {
			return nil, err
		}
		s.within = g
	}

	exhaustive := samples < 0
	if units == nil && n <= maxExhaustiveCases {
		if total := combin.NumPermutations(n, n) - 1; samples >= total {
			exhaustive = true
		}
	}
	if exhaustive {
		if units != nil || n > maxExhaustiveCases {
			return nil, fmt.Errorf("reorderings of %d cases: %w", n, ErrInfeasible)
		}
		s.samples = combin.NumPermutations(n, n) - 1
		s.gen = combin.NewPermutationGenerator(n, n)
		s.perm = make([]int, n)
		return s, nil
	}
	s.rng = newRand(seed)
	return s, nil
}

func (s *Shuffle) Len() int { return s.samples }

func (s *Shuffle) Next() (Permutation, bool) {
	if s.i >= s.samples {
		return Permutation{}, false
	}
	var order []int
	if s.gen != nil {
		for {
			if !s.gen.Next() {
				return Permutation{}, false
			}
			s.gen.Permutation(s.perm)
			if !isIdentity(s.perm) {
				break
			}
		}
		order = append([]int(nil), s.perm...)
	} else {
		order = make([]int, s.n)
		for i := range order {
			order[i] = i
		}
		if s.within == nil {
			s.rng.Shuffle(s.n, func(a, b int) { order[a], order[b] = order[b], order[a] })
		}
		for _, unit := range s.within {
			if len(unit) < 2 {
				continue
			}
			s.rng.Shuffle(len(unit), func(a, b int) {
				order[unit[a]], order[unit[b]] = order[unit[b]], order[unit[a]]
			})
		}
	}
	p := Permutation{Index: s.i, Order: order}
	s.i++
	return p, true
}

func isIdentity(p []int) bool {
	for i, v := range p {
		if v != i {
			return false
		}
	}
	return true
}

// Collect drains src into a slice.
func Collect(src Source) []Permutation {
	out := make([]Permutation, 0, src.Len())
	for {
		p, ok := src.Next()
		if !ok {
			return out
		}
		out = append(out, p)
	}
}
