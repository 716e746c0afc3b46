// Package distribution builds the permutation distribution of a cluster test
// and answers queries about the original map against it.
//
// A Dist goes through Created, OriginalAdded, Permuting, and Finalized. The
// original statistic map is added once, Run feeds permutations through a
// reducer sequentially or on a worker pool, and the queries (Clusters,
// ProbabilityMap, FindPeaks, ...) become available once the Dist is
// finalized.
package distribution

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"permclust/internal/monitoring"
	"permclust/pkg/cluster"
	"permclust/pkg/ndvar"
	"permclust/pkg/permutation"
	"permclust/pkg/reducer"
)

// State is the lifecycle position of a Dist.
type State int

const (
	StateCreated State = iota
	StateOriginalAdded
	StatePermuting
	StateFinalized
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOriginalAdded:
		return "original added"
	case StatePermuting:
		return "permuting"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// RecomputeFunc writes the statistic map of y under p into out. It is called
// concurrently in pooled mode and must not share scratch space between calls.
type RecomputeFunc func(y ndvar.Matrix, p permutation.Permutation, out []float64)

// Dist is the permutation distribution of one test.
type Dist struct {
	params   Params
	kind     reducer.Kind
	lay      *layout
	conn     cluster.Connectivity
	criteria []cluster.Criterion
	entries  *entries
	spec     reducer.Spec

	// y holds the data to permute, in the internal layout
	y ndvar.Matrix

	state     State
	skipped   bool
	paramMap  []float64
	clusterID []uint32
	tfceMap   []float64
	nClusters int
	// dist holds Samples rows of entries.n() values
	dist []float64

	dtOriginal time.Duration
	dtPerm     time.Duration
}

// New prepares the distribution for y. The dataset is converted to the
// internal layout once; y itself is not retained.
func New(y *ndvar.Dataset, p Params) (*Dist, error) {
	if y == nil {
		return nil, fmt.Errorf("nil dataset: %w", ErrConfiguration)
	}
	d, err := newDist(y.Dims, p)
	if err != nil {
		return nil, err
	}
	if y.Y.Cols != d.lay.fullSize() {
		return nil, fmt.Errorf("dataset maps have %d samples, dimensions %v need %d: %w",
			y.Y.Cols, ndvar.Names(y.Dims), d.lay.fullSize(), ErrDimension)
	}
	d.y = ndvar.Matrix{
		Data: d.lay.toInternal(y.Y.Data, y.Y.Rows),
		Rows: y.Y.Rows,
		Cols: d.lay.size(),
	}
	return d, nil
}

func newDist(dims []ndvar.Dimension, p Params) (*Dist, error) {
	if err := p.Threshold.validate(); err != nil {
		return nil, err
	}
	if !p.Tail.Valid() {
		return nil, fmt.Errorf("invalid tail %d: %w", int(p.Tail), ErrConfiguration)
	}
	if p.Samples < 0 {
		return nil, fmt.Errorf("samples=%d; take exhaustive counts from the permutation source: %w", p.Samples, ErrConfiguration)
	}
	kind := p.Threshold.Kind
	if kind == reducer.KindTFCE {
		if p.TFCE == (cluster.TFCEParams{}) {
			p.TFCE = cluster.DefaultTFCEParams()
		}
		if err := p.TFCE.Validate(); err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrConfiguration)
		}
	}
	regional := len(p.DistDim) > 0 || p.DistTStep != 0
	switch {
	case len(p.Criteria) > 0 && kind != reducer.KindCluster:
		return nil, fmt.Errorf("cluster criteria with %s test: %w", kind, ErrConfiguration)
	case regional && kind == reducer.KindCluster:
		return nil, fmt.Errorf("dist_dim and dist_tstep need a raw or tfce test: %w", ErrConfiguration)
	case p.Parc != "" && kind == reducer.KindTFCE:
		return nil, fmt.Errorf("parc needs a raw or cluster test: %w", ErrConfiguration)
	case p.Parc != "" && regional:
		return nil, fmt.Errorf("parc cannot be combined with dist_dim or dist_tstep: %w", ErrConfiguration)
	case p.DistTStep < 0:
		return nil, fmt.Errorf("dist_tstep=%g: %w", p.DistTStep, ErrConfiguration)
	}

	lay, err := newLayout(dims, p.TStart, p.TStop)
	if err != nil {
		return nil, err
	}
	d := &Dist{params: p, kind: kind, lay: lay}

	if lay.graphAx >= 0 {
		g := lay.inDims[0].(ndvar.GraphDimension)
		disconnect := p.Parc == g.Name() && kind == reducer.KindCluster
		conn, err := g.Connectivity(disconnect)
		if err != nil {
			return nil, err
		}
		if conn == nil {
			conn = cluster.Connectivity{}
		}
		d.conn = conn
	}
	if d.criteria, err = d.parseCriteria(p.Criteria); err != nil {
		return nil, err
	}
	if d.entries, err = buildEntries(lay, p); err != nil {
		return nil, err
	}

	d.spec = reducer.Spec{
		Kind:      kind,
		Tail:      p.Tail,
		Threshold: p.Threshold.Value,
		Shape:     lay.shape,
		Conn:      d.conn,
		Criteria:  d.criteria,
		TFCE:      p.TFCE,
		Bins:      d.entries.bins,
	}
	if _, err := reducer.New(d.spec); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrConfiguration)
	}
	return d, nil
}

// parseCriteria converts "mintime" (seconds) and "min<dim>" (samples) into
// criteria on the internal axes, ordered by key.
func (d *Dist) parseCriteria(c map[string]float64) ([]cluster.Criterion, error) {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []cluster.Criterion
	for _, key := range keys {
		name, ok := strings.CutPrefix(key, "min")
		if !ok || name == "" {
			return nil, fmt.Errorf("unknown cluster criterion %q: %w", key, ErrConfiguration)
		}
		ax, dim, err := d.lay.internalAxis(name)
		if err != nil {
			return nil, fmt.Errorf("criterion %q: %v: %w", key, err, ErrConfiguration)
		}
		v := c[key]
		if v < 0 {
			return nil, fmt.Errorf("criterion %s=%g: %w", key, v, ErrConfiguration)
		}
		var n int
		if t, ok := dim.(*ndvar.Time); ok {
			n = t.Samples(v)
		} else {
			n = int(v)
			if float64(n) < v {
				n++
			}
		}
		out = append(out, cluster.Criterion{Axis: ax, MinExtent: n})
	}
	return out, nil
}

func (d *Dist) logf(format string, args ...any) {
	monitoring.Progressf(d.params.Verbose, format, args...)
}

// AddOriginal sets the statistic map of the unpermuted data. stat is laid out
// over the dataset's dimensions.
func (d *Dist) AddOriginal(stat []float64) error {
	if d.state != StateCreated {
		return fmt.Errorf("original map added in state %s: %w", d.state, ErrState)
	}
	if len(stat) != d.lay.fullSize() {
		return fmt.Errorf("original map has %d samples, need %d: %w", len(stat), d.lay.fullSize(), ErrDimension)
	}
	t0 := time.Now()
	d.logf("adding original %s map", d.kind)
	d.paramMap = d.lay.toInternal(stat, 1)

	l, err := cluster.NewLabeler(d.lay.shape, d.conn, d.criteria)
	if err != nil {
		return err
	}
	switch d.kind {
	case reducer.KindCluster:
		d.clusterID = make([]uint32, len(d.paramMap))
		d.nClusters = len(l.Label(d.paramMap, d.params.Threshold.Value, d.params.Tail, d.clusterID))
		d.logf("%d clusters", d.nClusters)
	case reducer.KindTFCE:
		d.tfceMap = make([]float64, len(d.paramMap))
		l.TFCE(d.paramMap, d.params.Tail, d.params.TFCE, d.tfceMap)
		for _, v := range d.tfceMap {
			if v != 0 {
				d.nClusters = 1
				break
			}
		}
	default:
		d.nClusters = 1
	}
	d.dtOriginal = time.Since(t0)
	d.state = StateOriginalAdded

	permute := d.nClusters > 0 || d.params.ForcePermutation || d.entries.bins != nil
	if d.params.Samples == 0 || !permute {
		d.skipped = true
		d.logf("no permutations necessary")
		d.finalize()
		return nil
	}
	d.dist = make([]float64, d.params.Samples*d.entries.n())
	return nil
}

// Run draws every permutation from src, recomputes the statistic map with fn,
// and reduces it into the distribution. src must yield exactly Samples
// permutations. Run on a Dist that needs no permutations returns nil without
// touching src. A cancelled ctx or a failing worker leaves the Dist Failed.
func (d *Dist) Run(ctx context.Context, src permutation.Source, fn RecomputeFunc) error {
	if d.state == StateFinalized && d.skipped {
		return nil
	}
	if d.state != StateOriginalAdded {
		return fmt.Errorf("run in state %s: %w", d.state, ErrState)
	}
	if src.Len() != d.params.Samples {
		return fmt.Errorf("permutation source yields %d permutations, samples=%d: %w",
			src.Len(), d.params.Samples, ErrConfiguration)
	}
	if d.y.Rows == 0 {
		return fmt.Errorf("no data to permute: %w", ErrState)
	}

	d.state = StatePermuting
	if err := ctx.Err(); err != nil {
		d.state = StateFailed
		return err
	}
	t0 := time.Now()
	var err error
	if w := d.params.Mode.Workers(); w > 0 {
		err = d.runPooled(ctx, src, fn, w)
	} else {
		err = d.runSequential(ctx, src, fn)
	}
	if err != nil {
		d.state = StateFailed
		return err
	}
	d.dtPerm = time.Since(t0)
	d.logf("%d permutations done in %s", d.params.Samples, d.dtPerm)
	d.finalize()
	return nil
}

func (d *Dist) finalize() {
	d.state = StateFinalized
	d.y = ndvar.Matrix{}
}

// State returns the lifecycle state.
func (d *Dist) State() State { return d.state }

// Kind returns the test kind.
func (d *Dist) Kind() reducer.Kind { return d.kind }

// Samples returns the number of permutations.
func (d *Dist) Samples() int { return d.params.Samples }

// Params returns the parameters the Dist was created with.
func (d *Dist) Params() Params { return d.params }

// NClusters returns the number of clusters in the original map. Raw tests
// count as one, and tfce tests as one unless the enhanced map is empty.
func (d *Dist) NClusters() int { return d.nClusters }

// Skipped reports whether permutations were skipped.
func (d *Dist) Skipped() bool { return d.skipped }

// Entries returns the dimensions of regional distributions, nil for one
// global distribution.
func (d *Dist) Entries() []ndvar.Dimension { return d.entries.dims }

// Dimensions returns the dimensions of the test after cropping, graph first.
func (d *Dist) Dimensions() []ndvar.Dimension { return d.lay.inDims }

// Values returns a copy of the distribution, Samples rows of one value per
// entry. It is nil when permutations were skipped.
func (d *Dist) Values() []float64 {
	if d.dist == nil {
		return nil
	}
	return append([]float64(nil), d.dist...)
}

// ParameterMap returns the original statistic map.
func (d *Dist) ParameterMap() (*ndvar.NDVar, error) {
	if d.paramMap == nil {
		return nil, fmt.Errorf("no original map: %w", ErrNotReady)
	}
	return d.lay.outputNDVar(d.name(), d.paramMap, 0), nil
}

// TFCEMap returns the enhanced original map. Every threshold step adds
// n^E * h^H * dh, so values are dh times those of an integration that omits
// the step width; p-values do not depend on this scale.
func (d *Dist) TFCEMap() (*ndvar.NDVar, error) {
	if d.tfceMap == nil {
		return nil, fmt.Errorf("no tfce map: %w", ErrNotReady)
	}
	return d.lay.outputNDVar(d.name(), d.tfceMap, 0), nil
}

// ClusterMap returns the cluster id of every sample, 0 outside clusters.
func (d *Dist) ClusterMap() (*ndvar.NDVar, error) {
	if d.clusterID == nil {
		return nil, fmt.Errorf("no cluster map: %w", ErrNotReady)
	}
	x := make([]float64, len(d.clusterID))
	for i, id := range d.clusterID {
		x[i] = float64(id)
	}
	return d.lay.outputNDVar(d.name(), x, 0), nil
}

func (d *Dist) name() string {
	if d.params.Name != "" {
		return d.params.Name
	}
	return d.params.Meas
}

func (d *Dist) String() string {
	var items []string
	if d.paramMap != nil {
		switch d.kind {
		case reducer.KindCluster:
			items = append(items, fmt.Sprintf("%d clusters (%s)", d.nClusters, clock(d.dtOriginal)))
		default:
			items = append(items, fmt.Sprintf("%s map (%s)", d.kind, clock(d.dtOriginal)))
		}
		if d.dist != nil && d.state == StateFinalized {
			items = append(items, fmt.Sprintf("%d permutations (%s)", d.params.Samples, clock(d.dtPerm)))
		}
	} else {
		items = append(items, "no data")
	}
	return "<ClusterDist: " + strings.Join(items, ", ") + ">"
}

// clock formats a duration as hh:mm:ss.
func clock(dt time.Duration) string {
	s := int(dt.Round(time.Second).Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s/60%60, s%60)
}
