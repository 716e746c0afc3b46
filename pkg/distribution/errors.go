package distribution

import (
	"errors"

	"permclust/pkg/ndvar"
)

var (
	// ErrConfiguration reports parameters that cannot be combined or are
	// invalid on their own. It is raised by New.
	ErrConfiguration = errors.New("configuration error")

	// ErrDimension reports a window, dimension, or parcellation that is not
	// present in the data. It is the same value as ndvar.ErrDimension.
	ErrDimension = ndvar.ErrDimension

	// ErrNotReady reports a query whose prerequisite, such as finished
	// permutations, is missing.
	ErrNotReady = errors.New("not ready")

	// ErrState reports an operation that is not valid in the current state.
	ErrState = errors.New("invalid state")
)
