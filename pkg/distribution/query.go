package distribution

import (
	"fmt"
	"math"
	"sort"

	"permclust/pkg/cluster"
	"permclust/pkg/ndvar"
	"permclust/pkg/reducer"
)

// DefaultPMin is the significance level used by threshold-free cluster
// tables when no pmin is given.
const DefaultPMin = 0.05

// Table is a cluster or peak table. Maps, when requested, holds one map per
// row with the original statistic inside the cluster and 0 elsewhere.
type Table struct {
	ndvar.Table
	Maps []*ndvar.NDVar
}

func (d *Dist) requireFinal() error {
	if d.state != StateFinalized {
		return fmt.Errorf("distribution is %s, not finalized: %w", d.state, ErrNotReady)
	}
	return nil
}

func (d *Dist) requirePermutations() error {
	if d.params.Samples == 0 {
		return fmt.Errorf("no permutations available: %w", ErrNotReady)
	}
	return nil
}

// region marks the internal samples selected by sub, nil for the whole map.
func (d *Dist) region(sub map[string]ndvar.Selector) ([]bool, error) {
	if len(sub) == 0 {
		return nil, nil
	}
	return ndvar.RegionMask(d.lay.inDims, sub)
}

// aggregate returns the sorted per-permutation maximum over the distribution
// entries selected by sub.
func (d *Dist) aggregate(sub map[string]ndvar.Selector) ([]float64, error) {
	n := d.entries.n()
	var keep []bool
	if len(sub) > 0 {
		if d.entries.dims == nil {
			return nil, fmt.Errorf("regional query on a global distribution: %w", ErrDimension)
		}
		mask, err := ndvar.RegionMask(d.entries.dims, sub)
		if err != nil {
			return nil, err
		}
		empty := true
		for _, k := range mask {
			if k {
				empty = false
				break
			}
		}
		if empty {
			return nil, fmt.Errorf("selection %v contains no distribution entry: %w", sub, ErrDimension)
		}
		keep = mask
	}

	out := make([]float64, d.params.Samples)
	for s := range out {
		m := math.Inf(-1)
		for k, v := range d.dist[s*n : (s+1)*n] {
			if (keep == nil || keep[k]) && v > m {
				m = v
			}
		}
		out[s] = m
	}
	sort.Float64s(out)
	return out, nil
}

// pValue is the share of sorted null values strictly above v.
func pValue(null []float64, v float64) float64 {
	i := sort.Search(len(null), func(i int) bool { return null[i] > v })
	return float64(len(null)-i) / float64(len(null))
}

// testValues returns the map compared against a raw or tfce distribution.
func (d *Dist) testValues() []float64 {
	if d.kind == reducer.KindTFCE {
		return d.tfceMap
	}
	v := make([]float64, len(d.paramMap))
	reducer.Signed(d.paramMap, d.params.Tail, v)
	return v
}

// clusterSums returns the summed statistic of every original cluster.
func (d *Dist) clusterSums() []float64 {
	sums := make([]float64, d.nClusters)
	cluster.ClusterSums(d.paramMap, d.clusterID, d.nClusters, sums)
	return sums
}

// probability computes the internal probability map. Samples outside the
// region and outside clusters get 1.
func (d *Dist) probability(sub map[string]ndvar.Selector) ([]float64, error) {
	if err := d.requirePermutations(); err != nil {
		return nil, err
	}
	region, err := d.region(sub)
	if err != nil {
		return nil, err
	}
	pmap := make([]float64, len(d.paramMap))
	for i := range pmap {
		pmap[i] = 1
	}
	if d.dist == nil {
		return pmap, nil
	}
	null, err := d.aggregate(sub)
	if err != nil {
		return nil, err
	}

	switch d.kind {
	case reducer.KindCluster:
		sums := d.clusterSums()
		ps := make([]float64, len(sums))
		for i, v := range sums {
			ps[i] = pValue(null, math.Abs(v))
		}
		for i, id := range d.clusterID {
			if id != 0 && (region == nil || region[i]) {
				pmap[i] = ps[id-1]
			}
		}
	default:
		for i, v := range d.testValues() {
			if region == nil || region[i] {
				pmap[i] = pValue(null, v)
			}
		}
	}
	return pmap, nil
}

// ProbabilityMap returns the corrected p-value of every sample. With sub, only
// the selected distribution entries enter the correction and samples outside
// the selection get 1.
func (d *Dist) ProbabilityMap(sub map[string]ndvar.Selector) (*ndvar.NDVar, error) {
	if err := d.requireFinal(); err != nil {
		return nil, err
	}
	p, err := d.probability(sub)
	if err != nil {
		return nil, err
	}
	return d.lay.outputNDVar("p", p, 1), nil
}

// MaskedParameterMap returns the original statistic with everything outside
// regions of p <= pmin set to 0. A nil pmin keeps all clusters of a cluster
// test.
func (d *Dist) MaskedParameterMap(pmin *float64, sub map[string]ndvar.Selector) (*ndvar.NDVar, error) {
	if err := d.requireFinal(); err != nil {
		return nil, err
	}
	out := make([]float64, len(d.paramMap))
	if pmin == nil {
		if d.kind != reducer.KindCluster {
			return nil, fmt.Errorf("pmin is required for %s tests: %w", d.kind, ErrConfiguration)
		}
		region, err := d.region(sub)
		if err != nil {
			return nil, err
		}
		for i, id := range d.clusterID {
			if id != 0 && (region == nil || region[i]) {
				out[i] = d.paramMap[i]
			}
		}
	} else {
		p, err := d.probability(sub)
		if err != nil {
			return nil, err
		}
		for i, v := range p {
			if v <= *pmin {
				out[i] = d.paramMap[i]
			}
		}
	}
	return d.lay.outputNDVar(d.name(), out, 0), nil
}

// Cluster returns the original statistic inside cluster id and 0 elsewhere.
func (d *Dist) Cluster(id int) (*ndvar.NDVar, error) {
	if err := d.requireFinal(); err != nil {
		return nil, err
	}
	if d.kind != reducer.KindCluster {
		return nil, fmt.Errorf("no cluster ids in a %s test: %w", d.kind, ErrConfiguration)
	}
	if id < 1 || id > d.nClusters {
		return nil, fmt.Errorf("no cluster with id %d, there are %d: %w", id, d.nClusters, ErrDimension)
	}
	return d.lay.outputNDVar(d.name(), d.maskedByID(d.clusterID, uint32(id), nil), 0), nil
}

func (d *Dist) maskedByID(cmap []uint32, id uint32, region []bool) []float64 {
	out := make([]float64, len(d.paramMap))
	for i, c := range cmap {
		if c == id && (region == nil || region[i]) {
			out[i] = d.paramMap[i]
		}
	}
	return out
}

// Clusters returns the cluster table.
//
// For cluster tests the rows are the clusters of the original map, with p when
// permutations exist and only those with p <= pmin when pmin is set. For raw
// and tfce tests the rows are the connected regions of p <= pmin (0.05 when
// pmin is nil) with their minimum p. With sub, only the selected part of the
// map and the distribution is used, and cluster tests add p_parc, the p-value
// corrected over the whole distribution.
func (d *Dist) Clusters(pmin *float64, maps bool, sub map[string]ndvar.Selector) (*Table, error) {
	if err := d.requireFinal(); err != nil {
		return nil, err
	}
	if pmin == nil && d.kind != reducer.KindCluster {
		v := DefaultPMin
		pmin = &v
	}
	if pmin != nil {
		if err := d.requirePermutations(); err != nil {
			return nil, err
		}
	}
	region, err := d.region(sub)
	if err != nil {
		return nil, err
	}
	withP := d.params.Samples > 0

	var pmap []float64
	if withP {
		if pmap, err = d.probability(sub); err != nil {
			return nil, err
		}
	}

	var cmap []uint32
	var ids []uint32
	if d.kind == reducer.KindCluster {
		cmap = d.clusterID
		touched := make([]bool, d.nClusters+1)
		for i, id := range cmap {
			if id != 0 && (region == nil || region[i]) {
				touched[id] = true
			}
		}
		for id := 1; id <= d.nClusters; id++ {
			if touched[id] {
				ids = append(ids, uint32(id))
			}
		}
	} else {
		mask := make([]bool, len(pmap))
		for i, p := range pmap {
			mask[i] = p <= *pmin
		}
		if cmap, ids, err = cluster.LabelBinary(mask, d.lay.shape, d.conn, nil); err != nil {
			return nil, err
		}
	}

	var pFull []float64
	if d.kind == reducer.KindCluster && withP && len(sub) > 0 {
		if pFull, err = d.probability(nil); err != nil {
			return nil, err
		}
	}

	// one pass collects v, p, and p_parc per cluster
	index := make(map[uint32]int, len(ids))
	for k, id := range ids {
		index[id] = k
	}
	v := make([]float64, len(ids))
	peak := make([]float64, len(ids))
	p := make([]float64, len(ids))
	pParc := make([]float64, len(ids))
	for k := range ids {
		p[k], pParc[k] = 1, 1
	}
	for i, id := range cmap {
		k, ok := index[id]
		if !ok || (region != nil && !region[i]) {
			continue
		}
		x := d.paramMap[i]
		v[k] += x
		if math.Abs(x) > math.Abs(peak[k]) {
			peak[k] = x
		}
		if pmap != nil && pmap[i] < p[k] {
			p[k] = pmap[i]
		}
		if pFull != nil && pFull[i] < pParc[k] {
			pParc[k] = pFull[i]
		}
	}
	if d.kind != reducer.KindCluster {
		v = peak
	}

	// filter by pmin
	keep := make([]int, 0, len(ids))
	for k := range ids {
		if pmin == nil || p[k] <= *pmin {
			keep = append(keep, k)
		}
	}

	t := &Table{}
	idCol := make([]float64, len(keep))
	for r, k := range keep {
		idCol[r] = float64(ids[k])
	}
	if err := t.Add(ndvar.FloatColumn("id", idCol)); err != nil {
		return nil, err
	}
	props, err := d.properties(cmap, ids, keep, region)
	if err != nil {
		return nil, err
	}
	for _, c := range props {
		if err := t.Add(c); err != nil {
			return nil, err
		}
	}
	if err := t.Add(ndvar.FloatColumn("v", pick(v, keep))); err != nil {
		return nil, err
	}
	if withP {
		ps := pick(p, keep)
		cols := []ndvar.Column{ndvar.FloatColumn("p", ps)}
		if pFull != nil {
			cols = append(cols, ndvar.FloatColumn("p_parc", pick(pParc, keep)))
		}
		cols = append(cols, ndvar.LabelColumn("sig", stars(ps)))
		for _, c := range cols {
			if err := t.Add(c); err != nil {
				return nil, err
			}
		}
	}
	if maps {
		for _, k := range keep {
			t.Maps = append(t.Maps, d.lay.outputNDVar(d.name(), d.maskedByID(cmap, ids[k], region), 0))
		}
	}
	return t, nil
}

// properties summarizes the extent of the kept clusters along every
// dimension, in the caller's dimension order.
func (d *Dist) properties(cmap []uint32, ids []uint32, keep []int, region []bool) ([]ndvar.Column, error) {
	shape := d.lay.shape
	strides := ndvar.Strides(shape)
	row := make(map[uint32]int, len(keep))
	for r, k := range keep {
		row[ids[k]] = r
	}
	extents := make([][][]bool, len(shape))
	for ax := range shape {
		extents[ax] = make([][]bool, len(keep))
		for r := range keep {
			extents[ax][r] = make([]bool, shape[ax])
		}
	}
	for i, id := range cmap {
		r, ok := row[id]
		if !ok || (region != nil && !region[i]) {
			continue
		}
		for ax := range shape {
			extents[ax][r][(i/strides[ax])%shape[ax]] = true
		}
	}

	var cols []ndvar.Column
	for _, name := range ndvar.Names(d.lay.crop) {
		ax, dim, err := d.lay.internalAxis(name)
		if err != nil {
			return nil, err
		}
		c, err := dim.Properties(extents[ax])
		if err != nil {
			return nil, err
		}
		cols = append(cols, c...)
	}
	return cols, nil
}

// FindPeaks returns the local maxima of a raw or tfce map with their value
// and, when permutations exist, their p-value.
func (d *Dist) FindPeaks() (*Table, error) {
	if err := d.requireFinal(); err != nil {
		return nil, err
	}
	if d.kind == reducer.KindCluster {
		return nil, fmt.Errorf("peaks need a threshold-free test: %w", ErrConfiguration)
	}
	x := d.testValues()
	l, err := cluster.NewLabeler(d.lay.shape, d.conn, nil)
	if err != nil {
		return nil, err
	}
	mask := make([]bool, len(x))
	l.FindPeaks(x, mask)
	cmap := make([]uint32, len(x))
	ids := append([]uint32(nil), l.LabelBinary(mask, cmap)...)

	var pmap []float64
	if d.params.Samples > 0 {
		if pmap, err = d.probability(nil); err != nil {
			return nil, err
		}
	}

	// each plateau is reported at its first sample
	first := make([]int, len(ids))
	for k := range first {
		first[k] = -1
	}
	for i, id := range cmap {
		if id != 0 && first[id-1] < 0 {
			first[id-1] = i
		}
	}
	idCol := make([]float64, len(ids))
	v := make([]float64, len(ids))
	p := make([]float64, len(ids))
	for k, i := range first {
		idCol[k] = float64(ids[k])
		v[k] = d.paramMap[i]
		if pmap != nil {
			p[k] = pmap[i]
		}
	}

	t := &Table{}
	cols := []ndvar.Column{ndvar.FloatColumn("id", idCol)}
	keep := make([]int, len(ids))
	for k := range keep {
		keep[k] = k
	}
	props, err := d.properties(cmap, ids, keep, nil)
	if err != nil {
		return nil, err
	}
	cols = append(cols, props...)
	cols = append(cols, ndvar.FloatColumn("v", v))
	if pmap != nil {
		cols = append(cols, ndvar.FloatColumn("p", p), ndvar.LabelColumn("sig", stars(p)))
	}
	for _, c := range cols {
		if err := t.Add(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func pick(x []float64, keep []int) []float64 {
	out := make([]float64, len(keep))
	for r, k := range keep {
		out[r] = x[k]
	}
	return out
}

func stars(p []float64) []string {
	out := make([]string, len(p))
	for i, v := range p {
		switch {
		case v <= 0.001:
			out[i] = "***"
		case v <= 0.01:
			out[i] = "**"
		case v <= 0.05:
			out[i] = "*"
		}
	}
	return out
}
