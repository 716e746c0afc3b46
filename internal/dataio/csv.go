// Package dataio loads experiment data and sensor layouts from CSV files.
//
// A data file has one row per case. Design columns (subject, condition, and
// optionally a predictor) are followed by one column per sample. Sample
// columns are named by their time in seconds ("0.010"), or by sensor and
// time ("Fz@0.010") for sensor × time maps, sensor-major.
package dataio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"permclust/internal/models"
	"permclust/pkg/ndvar"
)

// ErrFormat is returned for files that do not follow the expected layout.
var ErrFormat = errors.New("invalid data file")

// CSVOptions holds options for CSV loading.
type CSVOptions struct {
	SubjectColumn   string // Column name for subjects (default: "subject")
	ConditionColumn string // Column name for conditions (default: "condition")
	PredictorColumn string // Column name for the predictor (default: "x", optional)
	Delimiter       rune   // Field delimiter (default: ',')
}

// DefaultCSVOptions returns default options for CSV loading.
func DefaultCSVOptions() *CSVOptions {
	return &CSVOptions{
		SubjectColumn:   "subject",
		ConditionColumn: "condition",
		PredictorColumn: "x",
		Delimiter:       ',',
	}
}

// LoadCSV loads a recording from a CSV file.
func LoadCSV(filename string, opts *CSVOptions) (*models.Recording, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return LoadCSVFromReader(file, opts)
}

// LoadCSVFromReader loads a recording from an io.Reader.
func LoadCSVFromReader(r io.Reader, opts *CSVOptions) (*models.Recording, error) {
	if opts == nil {
		opts = DefaultCSVOptions()
	}
	reader := csv.NewReader(r)
	reader.Comma = opts.Delimiter
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	subjectIdx, conditionIdx, predictorIdx := -1, -1, -1
	var sampleIdx []int
	var sampleNames []string
	for i, h := range header {
		h = strings.TrimSpace(strings.Trim(h, "\""))
		switch h {
		case opts.SubjectColumn:
			subjectIdx = i
		case opts.ConditionColumn:
			conditionIdx = i
		case opts.PredictorColumn:
			predictorIdx = i
		default:
			sampleIdx = append(sampleIdx, i)
			sampleNames = append(sampleNames, h)
		}
	}
	if len(sampleIdx) == 0 {
		return nil, fmt.Errorf("no sample columns: %w", ErrFormat)
	}
	rec, err := parseSampleNames(sampleNames)
	if err != nil {
		return nil, err
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		c := models.Case{Index: len(rec.Cases), Map: make([]float64, len(sampleIdx))}
		if subjectIdx >= 0 {
			c.Subject = strings.TrimSpace(record[subjectIdx])
		}
		if conditionIdx >= 0 {
			c.Condition = strings.TrimSpace(record[conditionIdx])
		}
		if predictorIdx >= 0 {
			if c.Predictor, err = parseFloat(record[predictorIdx]); err != nil {
				return nil, fmt.Errorf("line %d, column %s: %w", line, opts.PredictorColumn, err)
			}
		}
		for k, i := range sampleIdx {
			if c.Map[k], err = parseFloat(record[i]); err != nil {
				return nil, fmt.Errorf("line %d, column %s: %w", line, sampleNames[k], err)
			}
		}
		rec.Cases = append(rec.Cases, c)
	}
	if len(rec.Cases) == 0 {
		return nil, fmt.Errorf("no cases: %w", ErrFormat)
	}
	return rec, nil
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "na") || strings.EqualFold(s, "nan") {
		return 0, fmt.Errorf("missing value: %w", ErrFormat)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, ErrFormat)
	}
	return v, nil
}

// parseSampleNames reads the time axis, and the sensors when the names have
// the form sensor@time.
func parseSampleNames(names []string) (*models.Recording, error) {
	rec := &models.Recording{}
	if !strings.Contains(names[0], "@") {
		for _, n := range names {
			t, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, fmt.Errorf("sample column %q is not a time: %w", n, ErrFormat)
			}
			rec.Times = append(rec.Times, t)
		}
		return rec, checkTimes(rec.Times)
	}

	var times []float64
	for i, n := range names {
		sensor, ts, ok := strings.Cut(n, "@")
		if !ok {
			return nil, fmt.Errorf("sample column %q is not sensor@time: %w", n, ErrFormat)
		}
		t, err := strconv.ParseFloat(ts, 64)
		if err != nil {
			return nil, fmt.Errorf("sample column %q: %w", n, ErrFormat)
		}
		if len(rec.Sensors) == 0 || rec.Sensors[len(rec.Sensors)-1] != sensor {
			rec.Sensors = append(rec.Sensors, sensor)
		}
		if len(rec.Sensors) == 1 {
			times = append(times, t)
			continue
		}
		k := i % len(times)
		if i/len(times) != len(rec.Sensors)-1 || times[k] != t {
			return nil, fmt.Errorf("sample column %q breaks the sensor × time order: %w", n, ErrFormat)
		}
	}
	if len(names) != len(rec.Sensors)*len(times) {
		return nil, fmt.Errorf("%d sample columns for %d sensors × %d times: %w", len(names), len(rec.Sensors), len(times), ErrFormat)
	}
	rec.Times = times
	return rec, checkTimes(times)
}

func checkTimes(times []float64) error {
	if len(times) < 2 {
		return nil
	}
	step := times[1] - times[0]
	if step <= 0 {
		return fmt.Errorf("times must increase: %w", ErrFormat)
	}
	for i, t := range times {
		if math.Abs(t-(times[0]+float64(i)*step)) > 1e-6*step {
			return fmt.Errorf("times are not evenly spaced at %g: %w", t, ErrFormat)
		}
	}
	return nil
}

// TimeDim returns the time dimension of a recording.
func TimeDim(rec *models.Recording) *ndvar.Time {
	step := 1.0
	if len(rec.Times) > 1 {
		step = rec.Times[1] - rec.Times[0]
	}
	return ndvar.NewTime(rec.Times[0], step, len(rec.Times))
}

// Dataset stacks the maps of cases over dims.
func Dataset(name string, dims []ndvar.Dimension, cases []models.Case) (*ndvar.Dataset, error) {
	maps := make([][]float64, len(cases))
	for i, c := range cases {
		maps[i] = c.Map
	}
	return ndvar.NewDataset(name, dims, maps)
}

// Dims returns the dimensions of a recording. sensors supplies the sensor
// dimension and must list the recording's sensors in the same order; it is
// ignored for time courses.
func Dims(rec *models.Recording, sensors *ndvar.Sensor) ([]ndvar.Dimension, error) {
	t := TimeDim(rec)
	if rec.Sensors == nil {
		return []ndvar.Dimension{t}, nil
	}
	if sensors == nil {
		return nil, fmt.Errorf("sensor × time data need sensor locations: %w", ErrFormat)
	}
	if len(sensors.Names) != len(rec.Sensors) {
		return nil, fmt.Errorf("%d sensor locations for %d sensors: %w", len(sensors.Names), len(rec.Sensors), ErrFormat)
	}
	for i, n := range rec.Sensors {
		if sensors.Names[i] != n {
			return nil, fmt.Errorf("sensor %d is %q in the data and %q in the layout: %w", i, n, sensors.Names[i], ErrFormat)
		}
	}
	return []ndvar.Dimension{sensors, t}, nil
}

// LoadSensors reads a sensor layout with columns name, x, y, z, and an
// optional parc column.
func LoadSensors(filename string, connectDist float64) (*ndvar.Sensor, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return LoadSensorsFromReader(file, connectDist)
}

// LoadSensorsFromReader reads a sensor layout from an io.Reader.
func LoadSensorsFromReader(r io.Reader, connectDist float64) (*ndvar.Sensor, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("sensor layout without sensors: %w", ErrFormat)
	}
	col := map[string]int{}
	for i, h := range records[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, need := range []string{"name", "x", "y", "z"} {
		if _, ok := col[need]; !ok {
			return nil, fmt.Errorf("sensor layout needs a %q column: %w", need, ErrFormat)
		}
	}
	parcIdx, hasParc := col["parc"]

	var names, parc []string
	var locs [][3]float64
	for line, rec := range records[1:] {
		var loc [3]float64
		for k, axis := range []string{"x", "y", "z"} {
			if loc[k], err = parseFloat(rec[col[axis]]); err != nil {
				return nil, fmt.Errorf("sensor line %d: %w", line+2, err)
			}
		}
		names = append(names, strings.TrimSpace(rec[col["name"]]))
		locs = append(locs, loc)
		if hasParc {
			parc = append(parc, strings.TrimSpace(rec[parcIdx]))
		}
	}
	s, err := ndvar.NewSensor(names, locs, connectDist)
	if err != nil {
		return nil, err
	}
	if err := s.SetParc(parc); err != nil {
		return nil, err
	}
	return s, nil
}
