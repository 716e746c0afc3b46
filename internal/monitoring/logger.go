// Package monitoring holds the diagnostic sink shared by every package of
// permclust.
//
// Messages come in two levels. Logf always reaches the sink; Progressf only
// does when the sink is verbose or the caller asks for it, so a long
// permutation run stays quiet unless progress was requested.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Sink receives formatted diagnostics.
type Sink func(format string, v ...interface{})

type state struct {
	sink    Sink
	verbose bool
}

var current atomic.Pointer[state]

func init() {
	current.Store(&state{sink: log.Printf})
}

// SetLogger replaces the sink and keeps the verbosity. Passing nil mutes
// every message.
func SetLogger(f Sink) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	old := current.Load()
	current.Store(&state{sink: f, verbose: old.verbose})
}

// SetVerbose turns progress messages on or off for all callers.
func SetVerbose(on bool) {
	old := current.Load()
	current.Store(&state{sink: old.sink, verbose: on})
}

// Verbose reports whether progress messages reach the sink.
func Verbose() bool { return current.Load().verbose }

// Logf writes a message to the sink.
func Logf(format string, v ...interface{}) {
	current.Load().sink(format, v...)
}

// Progressf writes a progress message when force is set or the sink is
// verbose.
func Progressf(force bool, format string, v ...interface{}) {
	s := current.Load()
	if force || s.verbose {
		s.sink(format, v...)
	}
}
