package models

// Case represents a single observation of an experiment with its design
// labels
type Case struct {
	// Index is the position of this case in the data file
	Index int

	// Subject identifies the unit the case was measured on; related
	// measures are paired by subject
	Subject string

	// Condition is the cell of the case in the design
	Condition string

	// Predictor is the continuous variable for correlation tests
	Predictor float64

	// Map holds the measured values in the order of the recording's samples
	Map []float64
}

// Recording represents all cases of a data file together with the layout of
// their maps
type Recording struct {
	// Sensors names the sensors of sensor × time maps; nil for time courses
	Sensors []string

	// Times are the sample times in seconds
	Times []float64

	// Cases are the observations in file order
	Cases []Case
}

// NSamples returns the number of values in every case map.
func (r *Recording) NSamples() int {
	n := len(r.Times)
	if r.Sensors != nil {
		n *= len(r.Sensors)
	}
	return n
}

// Select returns the cases for which keep returns true, in file order.
func (r *Recording) Select(keep func(Case) bool) []Case {
	var out []Case
	for _, c := range r.Cases {
		if keep == nil || keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// Conditions returns the distinct conditions in order of first appearance.
func (r *Recording) Conditions() []string {
	var out []string
	seen := map[string]bool{}
	for _, c := range r.Cases {
		if !seen[c.Condition] {
			seen[c.Condition] = true
			out = append(out, c.Condition)
		}
	}
	return out
}
