package ndvar

import (
	"fmt"

	"permclust/pkg/cluster"
)

// Dimension kinds in a DimSpec.
const (
	KindTime       = "time"
	KindSensor     = "sensor"
	KindSource     = "source"
	KindScalar     = "scalar"
	KindCategorial = "categorial"
)

// DimSpec is the serializable form of a Dimension.
type DimSpec struct {
	Kind        string       `json:"kind"`
	Name        string       `json:"name"`
	TMin        float64      `json:"tmin,omitempty"`
	TStep       float64      `json:"tstep,omitempty"`
	N           int          `json:"n,omitempty"`
	Values      []float64    `json:"values,omitempty"`
	Unit        string       `json:"unit,omitempty"`
	Cells       []string     `json:"cells,omitempty"`
	Locs        [][3]float64 `json:"locs,omitempty"`
	ConnectDist float64      `json:"connect_dist,omitempty"`
	Pairs       [][2]int     `json:"pairs,omitempty"`
	Parc        []string     `json:"parc,omitempty"`
	NLH         int          `json:"nlh,omitempty"`
}

// Build reconstructs the dimension.
func (s DimSpec) Build() (Dimension, error) {
	switch s.Kind {
	case KindTime:
		return NewTime(s.TMin, s.TStep, s.N), nil
	case KindSensor:
		d, err := NewSensor(s.Cells, s.Locs, s.ConnectDist)
		if err != nil {
			return nil, err
		}
		return d, d.SetParc(s.Parc)
	case KindSource:
		pairs := make([]cluster.Pair, len(s.Pairs))
		for i, p := range s.Pairs {
			pairs[i] = cluster.Pair{Src: p[0], Dst: p[1]}
		}
		return NewSource(s.N, pairs, s.Parc, s.NLH)
	case KindScalar:
		return NewScalar(s.Name, s.Values, s.Unit)
	case KindCategorial:
		return NewCategorial(s.Name, s.Cells)
	default:
		return nil, fmt.Errorf("unknown dimension kind %q: %w", s.Kind, ErrDimension)
	}
}

// Specs describes dims.
func Specs(dims []Dimension) []DimSpec {
	specs := make([]DimSpec, len(dims))
	for i, d := range dims {
		specs[i] = d.Spec()
	}
	return specs
}

// BuildAll reconstructs a list of dimensions.
func BuildAll(specs []DimSpec) ([]Dimension, error) {
	dims := make([]Dimension, len(specs))
	for i, s := range specs {
		d, err := s.Build()
		if err != nil {
			return nil, fmt.Errorf("dimension %d (%s): %w", i, s.Name, err)
		}
		dims[i] = d
	}
	return dims, nil
}
