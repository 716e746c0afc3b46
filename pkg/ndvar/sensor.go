package ndvar

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"permclust/pkg/cluster"
)

// DefaultConnectDist is the neighbour radius of a Sensor dimension, as a
// multiple of each sensor's nearest-neighbour distance.
const DefaultConnectDist = 1.75

// Sensor is a set of named sensors at fixed 3D locations. Two sensors are
// neighbours when one lies within ConnectDist times the distance of the
// other's closest sensor.
type Sensor struct {
	Names       []string
	Locs        [][3]float64
	ConnectDist float64
	// Parc optionally assigns each sensor to a named group.
	Parc []string
}

// NewSensor returns a sensor dimension. A connectDist of 0 selects
// DefaultConnectDist.
func NewSensor(names []string, locs [][3]float64, connectDist float64) (*Sensor, error) {
	if len(names) != len(locs) {
		return nil, fmt.Errorf("%d sensor names for %d locations: %w", len(names), len(locs), ErrDimension)
	}
	if connectDist == 0 {
		connectDist = DefaultConnectDist
	}
	return &Sensor{Names: names, Locs: locs, ConnectDist: connectDist}, nil
}

// SetParc assigns sensors to groups.
func (s *Sensor) SetParc(parc []string) error {
	if parc != nil && len(parc) != len(s.Names) {
		return fmt.Errorf("parcellation with %d entries for %d sensors: %w", len(parc), len(s.Names), ErrDimension)
	}
	s.Parc = parc
	return nil
}

func (s *Sensor) Name() string { return "sensor" }
func (s *Sensor) Len() int     { return len(s.Names) }
func (s *Sensor) Grid() bool   { return false }

// Parcellation returns the sensor groups, or nil.
func (s *Sensor) Parcellation() []string { return s.Parc }

// Neighbors returns the neighbours of every sensor, sorted by index.
func (s *Sensor) Neighbors() [][]int {
	n := len(s.Locs)
	nb := make([][]int, n)
	if n < 2 {
		return nb
	}
	pts := make(sensorLocs, n)
	for i, l := range s.Locs {
		pts[i] = sensorLoc{X: l[0], Y: l[1], Z: l[2], Index: i}
	}
	tree := kdtree.New(pts, false)

	for i, l := range s.Locs {
		q := sensorLoc{X: l[0], Y: l[1], Z: l[2], Index: i}

		// the closest sensor other than q itself; q is always in the heap
		closest := kdtree.NewNKeeper(2)
		tree.NearestSet(closest, q)
		nearest := -1.0
		for _, item := range closest.Heap {
			if item.Comparable == nil || item.Comparable.(sensorLoc).Index == i {
				continue
			}
			nearest = item.Dist
		}
		if nearest <= 0 {
			continue
		}

		// distances are squared
		radius := nearest * s.ConnectDist * s.ConnectDist
		within := kdtree.NewDistKeeper(radius)
		tree.NearestSet(within, q)
		for _, item := range within.Heap {
			if item.Comparable == nil {
				continue
			}
			j := item.Comparable.(sensorLoc).Index
			if j != i && item.Dist < radius {
				nb[i] = append(nb[i], j)
			}
		}
		sort.Ints(nb[i])
	}
	return nb
}

// Connectivity returns the sorted neighbour pairs.
func (s *Sensor) Connectivity(disconnectParc bool) (cluster.Connectivity, error) {
	var pairs []cluster.Pair
	for i, nbs := range s.Neighbors() {
		for _, j := range nbs {
			pairs = append(pairs, cluster.Pair{Src: i, Dst: j})
		}
	}
	conn := cluster.NewConnectivity(pairs)
	if disconnectParc {
		if s.Parc == nil {
			return nil, fmt.Errorf("sensor dimension has no parcellation: %w", ErrDimension)
		}
		conn = conn.Restrict(s.Parc)
	}
	return conn, nil
}

// Index resolves sensor names, or group names when none of the cells is a
// sensor name.
func (s *Sensor) Index(sel Selector) ([]int, error) {
	if len(sel.Cells) == 0 {
		return nil, fmt.Errorf("sensor needs a cell selector, got %s: %w", sel, ErrDimension)
	}
	if s.Parc != nil && !containsAny(s.Names, sel.Cells) {
		return cellIndex("sensor parcellation", s.Parc, sel.Cells)
	}
	return cellIndex("sensor", s.Names, sel.Cells)
}

func (s *Sensor) Slice(start, stop int) Dimension {
	out := &Sensor{
		Names:       s.Names[start:stop],
		Locs:        s.Locs[start:stop],
		ConnectDist: s.ConnectDist,
	}
	if s.Parc != nil {
		out.Parc = s.Parc[start:stop]
	}
	return out
}

// Properties reports n_sensors and, with a parcellation, the most frequent
// group of every cluster.
func (s *Sensor) Properties(extents [][]bool) ([]Column, error) {
	return graphProperties("n_sensors", extents, s.Parc, 0)
}

func (s *Sensor) Spec() DimSpec {
	return DimSpec{
		Kind:        KindSensor,
		Name:        s.Name(),
		Cells:       s.Names,
		Locs:        s.Locs,
		ConnectDist: s.ConnectDist,
		Parc:        s.Parc,
	}
}

func containsAny(names, cells []string) bool {
	for _, c := range cells {
		for _, n := range names {
			if n == c {
				return true
			}
		}
	}
	return false
}

// graphProperties counts members of every cluster and, when available,
// reports the dominant parcel and the hemisphere. nLH > 0 means indices below
// nLH are in the left hemisphere.
func graphProperties(countName string, extents [][]bool, parc []string, nLH int) ([]Column, error) {
	counts := make([]float64, len(extents))
	var hemi, location []string
	for c, ext := range extents {
		nIn, nLeft := 0, 0
		freq := map[string]int{}
		for i, in := range ext {
			if !in {
				continue
			}
			nIn++
			if i < nLH {
				nLeft++
			}
			if parc != nil {
				freq[parc[i]]++
			}
		}
		if nIn == 0 {
			return nil, fmt.Errorf("empty cluster %d", c)
		}
		counts[c] = float64(nIn)
		if nLH > 0 {
			switch {
			case nLeft == nIn:
				hemi = append(hemi, "lh")
			case nLeft > 0:
				hemi = append(hemi, "bh")
			default:
				hemi = append(hemi, "rh")
			}
		}
		if parc != nil {
			location = append(location, mostFrequent(freq))
		}
	}

	cols := []Column{FloatColumn(countName, counts)}
	if nLH > 0 {
		cols = append(cols, LabelColumn("hemi", hemi))
	}
	if parc != nil {
		cols = append(cols, LabelColumn("location", location))
	}
	return cols, nil
}

// mostFrequent breaks ties by label order.
func mostFrequent(freq map[string]int) string {
	best, bestN := "", -1
	for label, n := range freq {
		if n > bestN || (n == bestN && label < best) {
			best, bestN = label, n
		}
	}
	return best
}

// sensorLoc is a sensor position in the kd-tree.
type sensorLoc struct {
	X, Y, Z float64
	Index   int
}

// Compare implements the kdtree.Comparable interface
func (p sensorLoc) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(sensorLoc)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

func (p sensorLoc) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two sensors.
func (p sensorLoc) Distance(c kdtree.Comparable) float64 {
	q := c.(sensorLoc)
	dx := p.X - q.X
	dy := p.Y - q.Y
	dz := p.Z - q.Z
	return dx*dx + dy*dy + dz*dz
}

// sensorLocs satisfies kdtree.Interface.
type sensorLocs []sensorLoc

func (p sensorLocs) Index(i int) kdtree.Comparable         { return p[i] }
func (p sensorLocs) Len() int                              { return len(p) }
func (p sensorLocs) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p sensorLocs) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(locPlane{sensorLocs: p, Dim: d}, kdtree.MedianOfRandoms(locPlane{sensorLocs: p, Dim: d}, 100))
}

// locPlane implements sort.Interface and kdtree.SortSlicer for sensorLocs.
type locPlane struct {
	sensorLocs
	kdtree.Dim
}

func (p locPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.sensorLocs[i].X < p.sensorLocs[j].X
	case 1:
		return p.sensorLocs[i].Y < p.sensorLocs[j].Y
	case 2:
		return p.sensorLocs[i].Z < p.sensorLocs[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p locPlane) Slice(start, end int) kdtree.SortSlicer {
	return locPlane{sensorLocs: p.sensorLocs[start:end], Dim: p.Dim}
}

func (p locPlane) Swap(i, j int) {
	p.sensorLocs[i], p.sensorLocs[j] = p.sensorLocs[j], p.sensorLocs[i]
}
