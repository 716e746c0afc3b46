package dataio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permclust/internal/models"
	"permclust/pkg/ndvar"
)

const timeCourse = `subject,condition,x,0.00,0.01,0.02
s1,a,1.5,0.1,0.2,0.3
s1,b,2.5,0.4,0.5,0.6
s2,a,0.5,1,2,3
`

func TestLoadTimeCourse(t *testing.T) {
	rec, err := LoadCSVFromReader(strings.NewReader(timeCourse), nil)
	require.NoError(t, err)

	assert.Nil(t, rec.Sensors)
	assert.InDeltaSlice(t, []float64{0, 0.01, 0.02}, rec.Times, 1e-12)
	require.Len(t, rec.Cases, 3)
	assert.Equal(t, models.Case{Index: 1, Subject: "s1", Condition: "b", Predictor: 2.5, Map: []float64{0.4, 0.5, 0.6}}, rec.Cases[1])
	assert.Equal(t, []string{"a", "b"}, rec.Conditions())
	assert.Equal(t, 3, rec.NSamples())

	dims, err := Dims(rec, nil)
	require.NoError(t, err)
	require.Len(t, dims, 1)
	tm := dims[0].(*ndvar.Time)
	assert.Equal(t, 3, tm.N)
	assert.InDelta(t, 0.01, tm.TStep, 1e-12)

	ds, err := Dataset("y", dims, rec.Select(func(c models.Case) bool { return c.Condition == "a" }))
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Cases())
	assert.Equal(t, []float64{1, 2, 3}, ds.Map(1))
}

func TestLoadSensorTime(t *testing.T) {
	data := "subject;condition;A@0.1;A@0.2;B@0.1;B@0.2\n" +
		"s1;a;1;2;3;4\n"
	opts := DefaultCSVOptions()
	opts.Delimiter = ';'
	rec, err := LoadCSVFromReader(strings.NewReader(data), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, rec.Sensors)
	assert.Equal(t, []float64{0.1, 0.2}, rec.Times)
	assert.Equal(t, 4, rec.NSamples())

	sensors, err := LoadSensorsFromReader(strings.NewReader("name,x,y,z,parc\nA,0,0,0,left\nB,1,0,0,right\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"left", "right"}, sensors.Parc)

	dims, err := Dims(rec, sensors)
	require.NoError(t, err)
	assert.Equal(t, []string{"sensor", "time"}, ndvar.Names(dims))

	_, err = Dims(rec, nil)
	assert.ErrorIs(t, err, ErrFormat)

	other, err := LoadSensorsFromReader(strings.NewReader("name,x,y,z\nB,0,0,0\nA,1,0,0\n"), 0)
	require.NoError(t, err)
	assert.Nil(t, other.Parc)
	_, err = Dims(rec, other)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"no samples":     "subject,condition\ns1,a\n",
		"no cases":       "subject,0.0,0.1\n",
		"not a time":     "subject,foo,bar\ns1,1,2\n",
		"uneven times":   "subject,0.0,0.1,0.3\ns1,1,2,3\n",
		"decreasing":     "subject,0.1,0.0\ns1,1,2\n",
		"missing value":  "subject,0.0,0.1\ns1,1,NA\n",
		"sensor order":   "subject,A@0.1,B@0.1,A@0.2\ns1,1,2,3\n",
		"time mismatch":  "subject,A@0.1,A@0.2,B@0.1,B@0.3\ns1,1,2,3,4\n",
		"mixed columns":  "subject,A@0.1,0.2\ns1,1,2\n",
		"bad predictor":  "subject,x,0.0,0.1\ns1,high,1,2\n",
		"missing sensor": "subject,A@0.1,A@0.2,B@0.1\ns1,1,2,3\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadCSVFromReader(strings.NewReader(data), nil)
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestLoadSensorsErrors(t *testing.T) {
	_, err := LoadSensorsFromReader(strings.NewReader("name,x,y\nA,0,0\n"), 0)
	assert.ErrorIs(t, err, ErrFormat)
	_, err = LoadSensorsFromReader(strings.NewReader("name,x,y,z\n"), 0)
	assert.ErrorIs(t, err, ErrFormat)
	_, err = LoadSensorsFromReader(strings.NewReader("name,x,y,z\nA,0,zero,0\n"), 0)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(timeCourse), 0644))
	rec, err := LoadCSV(path, nil)
	require.NoError(t, err)
	assert.Len(t, rec.Cases, 3)

	_, err = LoadCSV(filepath.Join(dir, "missing.csv"), nil)
	assert.Error(t, err)

	spath := filepath.Join(dir, "sensors.csv")
	require.NoError(t, os.WriteFile(spath, []byte("Name, X, Y, Z\nA,0,0,0\nB,0,1,0\nC,0,2,0\n"), 0644))
	s, err := LoadSensors(spath, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, ndvar.DefaultConnectDist, s.ConnectDist)
}
