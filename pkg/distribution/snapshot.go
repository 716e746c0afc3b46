package distribution

import (
	"fmt"
	"time"

	"permclust/pkg/cluster"
	"permclust/pkg/ndvar"
	"permclust/pkg/reducer"
)

// Snapshot is the serializable state of a finalized Dist. Maps are stored in
// the internal layout.
type Snapshot struct {
	Name      string             `json:"name"`
	Meas      string             `json:"meas"`
	Kind      reducer.Kind       `json:"kind"`
	Threshold float64            `json:"threshold"`
	Tail      cluster.Tail       `json:"tail"`
	Criteria  map[string]float64 `json:"criteria,omitempty"`
	Samples   int                `json:"samples"`
	TStart    *float64           `json:"tstart,omitempty"`
	TStop     *float64           `json:"tstop,omitempty"`
	DistDim   []string           `json:"dist_dim,omitempty"`
	Parc      string             `json:"parc,omitempty"`
	DistTStep float64            `json:"dist_tstep,omitempty"`
	Force     bool               `json:"force_permutation,omitempty"`
	TFCE      cluster.TFCEParams `json:"tfce"`

	Dims         []ndvar.DimSpec `json:"dims"`
	Connectivity [][2]int        `json:"connectivity,omitempty"`
	Graph        bool            `json:"graph"`

	Skipped    bool          `json:"skipped"`
	ParamMap   []float64     `json:"param_map"`
	ClusterMap []uint32      `json:"cluster_map,omitempty"`
	TFCEMap    []float64     `json:"tfce_map,omitempty"`
	NClusters  int           `json:"n_clusters"`
	Dist       []float64     `json:"dist,omitempty"`
	DtOriginal time.Duration `json:"dt_original"`
	DtPerm     time.Duration `json:"dt_perm"`
}

// Snapshot captures a finalized Dist.
func (d *Dist) Snapshot() (*Snapshot, error) {
	if err := d.requireFinal(); err != nil {
		return nil, err
	}
	p := d.params
	s := &Snapshot{
		Name:       p.Name,
		Meas:       p.Meas,
		Kind:       d.kind,
		Threshold:  p.Threshold.Value,
		Tail:       p.Tail,
		Criteria:   p.Criteria,
		Samples:    p.Samples,
		TStart:     p.TStart,
		TStop:      p.TStop,
		DistDim:    p.DistDim,
		Parc:       p.Parc,
		DistTStep:  p.DistTStep,
		Force:      p.ForcePermutation,
		TFCE:       p.TFCE,
		Dims:       ndvar.Specs(d.lay.dims),
		Graph:      d.conn != nil,
		Skipped:    d.skipped,
		ParamMap:   d.paramMap,
		ClusterMap: d.clusterID,
		TFCEMap:    d.tfceMap,
		NClusters:  d.nClusters,
		Dist:       d.dist,
		DtOriginal: d.dtOriginal,
		DtPerm:     d.dtPerm,
	}
	for _, pair := range d.conn {
		s.Connectivity = append(s.Connectivity, [2]int{pair.Src, pair.Dst})
	}
	return s, nil
}

// Params returns the parameters a snapshot was taken with. Execution mode and
// verbosity are not stored.
func (s *Snapshot) Params() Params {
	return Params{
		Samples:          s.Samples,
		Threshold:        Threshold{Kind: s.Kind, Value: s.Threshold},
		Tail:             s.Tail,
		Criteria:         s.Criteria,
		TStart:           s.TStart,
		TStop:            s.TStop,
		DistDim:          s.DistDim,
		Parc:             s.Parc,
		DistTStep:        s.DistTStep,
		ForcePermutation: s.Force,
		TFCE:             s.TFCE,
		Meas:             s.Meas,
		Name:             s.Name,
	}
}

// Restore returns a finalized Dist that answers every query of the Dist the
// snapshot was taken from.
func Restore(s *Snapshot) (*Dist, error) {
	dims, err := ndvar.BuildAll(s.Dims)
	if err != nil {
		return nil, err
	}
	d, err := newDist(dims, s.Params())
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	if s.Graph {
		d.conn = make(cluster.Connectivity, len(s.Connectivity))
		for i, p := range s.Connectivity {
			d.conn[i] = cluster.Pair{Src: p[0], Dst: p[1]}
		}
		if err := d.conn.Validate(d.lay.shape[0]); err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
		d.spec.Conn = d.conn
	}

	n := d.lay.size()
	switch {
	case len(s.ParamMap) != n:
		return nil, fmt.Errorf("restore: parameter map has %d samples, need %d: %w", len(s.ParamMap), n, ErrDimension)
	case d.kind == reducer.KindCluster && len(s.ClusterMap) != n:
		return nil, fmt.Errorf("restore: cluster map has %d samples, need %d: %w", len(s.ClusterMap), n, ErrDimension)
	case d.kind == reducer.KindTFCE && len(s.TFCEMap) != n:
		return nil, fmt.Errorf("restore: tfce map has %d samples, need %d: %w", len(s.TFCEMap), n, ErrDimension)
	case s.Dist != nil && len(s.Dist) != s.Samples*d.entries.n():
		return nil, fmt.Errorf("restore: distribution has %d values, need %d: %w",
			len(s.Dist), s.Samples*d.entries.n(), ErrDimension)
	case s.Dist == nil && s.Samples > 0 && !s.Skipped:
		return nil, fmt.Errorf("restore: distribution missing: %w", ErrNotReady)
	}

	d.paramMap = s.ParamMap
	d.clusterID = s.ClusterMap
	d.tfceMap = s.TFCEMap
	d.nClusters = s.NClusters
	d.dist = s.Dist
	d.skipped = s.Skipped
	d.dtOriginal = s.DtOriginal
	d.dtPerm = s.DtPerm
	d.state = StateFinalized
	return d, nil
}
