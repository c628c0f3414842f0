package mirror

import "errors"

var (
	// ErrNotFound is returned when path resolution does not match a child.
	ErrNotFound = errors.New("node not found")

	// ErrInvalidOperation is returned when a file-only operation is invoked
	// on a directory node, or vice versa.
	ErrInvalidOperation = errors.New("invalid operation for node kind")

	// ErrIOFailure wraps any disk error hit during a reconciliation pass.
	// The pass is abandoned and the tree is left as it was.
	ErrIOFailure = errors.New("reconcile io failure")
)
