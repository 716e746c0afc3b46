package permutation

import (
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignFlipDeterministic(t *testing.T) {
	a, err := NewSignFlip(12, 100, 42, nil)
	require.NoError(t, err)
	b, err := NewSignFlip(12, 100, 42, nil)
	require.NoError(t, err)

	pa, pb := Collect(a), Collect(b)
	require.Len(t, pa, 100)
	assert.Empty(t, cmp.Diff(pa, pb))

	c, err := NewSignFlip(12, 100, 43, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, cmp.Diff(pa, Collect(c)), "a different seed gives different flips")
}

func TestSignFlipUniqueNoIdentity(t *testing.T) {
	src, err := NewSignFlip(8, 200, 1, nil)
	require.NoError(t, err)
	seen := map[string]bool{}
	for i, p := range Collect(src) {
		assert.Equal(t, i, p.Index)
		assert.Nil(t, p.Order)
		key := fmt.Sprint(p.Signs)
		assert.False(t, seen[key], "duplicate flip %s", key)
		seen[key] = true

		identity := true
		for _, s := range p.Signs {
			assert.Contains(t, []float64{-1, 1}, s)
			if s < 0 {
				identity = false
			}
		}
		assert.False(t, identity)
	}
}

func TestSignFlipExhaustive(t *testing.T) {
	src, err := NewSignFlip(4, 1000, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 15, src.Len())
	assert.Len(t, Collect(src), 15)

	src, err = NewSignFlip(4, -1, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 15, src.Len())

	_, err = NewSignFlip(40, -1, 0, nil)
	assert.ErrorIs(t, err, ErrInfeasible)
	assert.Equal(t, 15, SignFlipCount(4))
}

func TestSignFlipUnits(t *testing.T) {
	units := []string{"s1", "s1", "s2", "s2", "s3", "s3"}
	src, err := NewSignFlip(6, -1, 0, units)
	require.NoError(t, err)
	assert.Equal(t, 7, src.Len())
	for _, p := range Collect(src) {
		for i := 0; i < 6; i += 2 {
			assert.Equal(t, p.Signs[i], p.Signs[i+1], "cases of one unit flip together")
		}
	}

	_, err = NewSignFlip(6, 10, 0, units[:4])
	assert.Error(t, err)
}

func TestShuffle(t *testing.T) {
	src, err := NewShuffle(20, 50, 7, nil)
	require.NoError(t, err)
	perms := Collect(src)
	require.Len(t, perms, 50)
	for _, p := range perms {
		order := append([]int(nil), p.Order...)
		sort.Ints(order)
		for i, v := range order {
			require.Equal(t, i, v, "order is a permutation")
		}
	}

	again, err := NewShuffle(20, 50, 7, nil)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(perms, Collect(again)))
}

func TestShuffleWithinUnits(t *testing.T) {
	units := []string{"a", "b", "a", "b", "a", "b"}
	src, err := NewShuffle(6, 30, 3, units)
	require.NoError(t, err)
	for _, p := range Collect(src) {
		for pos, c := range p.Order {
			assert.Equal(t, units[pos], units[c], "cases stay within their unit")
		}
	}

	_, err = NewShuffle(6, -1, 0, units)
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestShuffleExhaustive(t *testing.T) {
	src, err := NewShuffle(4, 100, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 23, src.Len())
	seen := map[string]bool{}
	for _, p := range Collect(src) {
		key := fmt.Sprint(p.Order)
		assert.False(t, seen[key])
		assert.NotEqual(t, "[0 1 2 3]", key)
		seen[key] = true
	}
	assert.Len(t, seen, 23)

	_, err = NewShuffle(30, -1, 0, nil)
	assert.ErrorIs(t, err, ErrInfeasible)
}
