package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *[]string {
	t.Helper()
	original := *current.Load()
	t.Cleanup(func() { current.Store(&original) })

	var got []string
	SetLogger(func(format string, v ...interface{}) {
		got = append(got, fmt.Sprintf(format, v...))
	})
	return &got
}

func TestSetLogger(t *testing.T) {
	got := capture(t)
	Logf("permutation %d of %d", 3, 10)
	assert.Equal(t, []string{"permutation 3 of 10"}, *got)

	SetLogger(nil)
	assert.NotPanics(t, func() { Logf("muted %d", 1) })
	assert.Len(t, *got, 1, "muted logger must not reach the previous sink")
}

func TestProgressLevels(t *testing.T) {
	got := capture(t)
	SetVerbose(false)

	Progressf(false, "quiet %d", 1)
	assert.Empty(t, *got)
	Progressf(true, "forced %d", 2)
	assert.Equal(t, []string{"forced 2"}, *got)

	SetVerbose(true)
	assert.True(t, Verbose())
	Progressf(false, "verbose %d", 3)
	assert.Equal(t, []string{"forced 2", "verbose 3"}, *got)

	// replacing the sink keeps the level
	var other []string
	SetLogger(func(format string, v ...interface{}) { other = append(other, fmt.Sprintf(format, v...)) })
	assert.True(t, Verbose())
	Progressf(false, "moved")
	assert.Equal(t, []string{"moved"}, other)
}

func TestDefaultSink(t *testing.T) {
	assert.NotNil(t, current.Load().sink)
	assert.False(t, Verbose())
}
