package distribution

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"permclust/pkg/cluster"
	"permclust/pkg/reducer"
)

// Threshold selects the kind of test. The zero value is a raw (extremum)
// test.
type Threshold struct {
	Kind  reducer.Kind
	Value float64
}

// RawThreshold tests the extreme value of the statistic map.
func RawThreshold() Threshold { return Threshold{Kind: reducer.KindRaw} }

// TFCEThreshold tests threshold-free cluster enhanced maps.
func TFCEThreshold() Threshold { return Threshold{Kind: reducer.KindTFCE} }

// ClusterThreshold tests clusters of samples beyond v.
func ClusterThreshold(v float64) Threshold {
	return Threshold{Kind: reducer.KindCluster, Value: v}
}

// ParseThreshold reads "" (raw), "tfce", or a positive number (cluster).
func ParseThreshold(s string) (Threshold, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "raw":
		return RawThreshold(), nil
	case "tfce":
		return TFCEThreshold(), nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("threshold %q is neither a number nor \"tfce\": %w", s, ErrConfiguration)
	}
	t := ClusterThreshold(v)
	return t, t.validate()
}

func (t Threshold) validate() error {
	switch t.Kind {
	case reducer.KindRaw, reducer.KindTFCE:
		return nil
	case reducer.KindCluster:
		if !(t.Value > 0) {
			return fmt.Errorf("cluster threshold must be > 0, got %v: %w", t.Value, ErrConfiguration)
		}
		return nil
	default:
		return fmt.Errorf("unknown threshold kind %v: %w", t.Kind, ErrConfiguration)
	}
}

func (t Threshold) String() string {
	if t.Kind == reducer.KindCluster {
		return strconv.FormatFloat(t.Value, 'g', -1, 64)
	}
	return t.Kind.String()
}

// ExecutionMode selects sequential or pooled permutation. The zero value is
// sequential.
type ExecutionMode struct {
	workers int
}

// Sequential runs every permutation in the calling goroutine.
func Sequential() ExecutionMode { return ExecutionMode{} }

// Pooled runs permutations on n workers. n <= 0 means the number of CPUs
// plus n, but at least one.
func Pooled(n int) ExecutionMode {
	if n <= 0 {
		n = max(1, runtime.NumCPU()+n)
	}
	return ExecutionMode{workers: n}
}

// Workers returns the pool size, 0 for sequential execution.
func (m ExecutionMode) Workers() int { return m.workers }

func (m ExecutionMode) String() string {
	if m.workers == 0 {
		return "sequential"
	}
	return fmt.Sprintf("pooled(%d)", m.workers)
}

// Params configures a Dist.
type Params struct {
	// Samples is the number of permutations. It must equal the length of the
	// permutation source passed to Run; use the source's Len for exhaustive
	// designs.
	Samples   int
	Threshold Threshold
	Tail      cluster.Tail
	// Criteria keys are "mintime" (seconds) and "min<dimension>" (samples).
	Criteria map[string]float64
	// TStart and TStop restrict the test to a time window.
	TStart, TStop *float64
	// DistDim keeps a separate distribution for every point of the named
	// dimensions (raw and tfce only).
	DistDim []string
	// Parc keeps a separate distribution for every parcel of the named graph
	// dimension (raw and cluster only).
	Parc string
	// DistTStep keeps a separate distribution for every time bin of this
	// length (raw and tfce only).
	DistTStep float64
	// ForcePermutation permutes even when the original map has no clusters.
	ForcePermutation bool
	Mode             ExecutionMode
	// TFCE parameters; the zero value selects cluster.DefaultTFCEParams.
	TFCE cluster.TFCEParams
	// Meas names the statistic ("t", "F", ...), Name the result.
	Meas    string
	Name    string
	Verbose bool
}
