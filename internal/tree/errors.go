package tree

import "errors"

var (
	// ErrGoalLocked rejects structural edits on a goal whose commitment
	// payment has been confirmed.
	ErrGoalLocked = errors.New("goal is locked")
	// ErrLegacyReadOnly rejects structural edits addressed through the
	// deprecated flat path scheme.
	ErrLegacyReadOnly = errors.New("legacy goals are read-only")
	// ErrDepthExceeded aborts materialization of a step tree deeper than
	// the configured guard.
	ErrDepthExceeded = errors.New("step tree exceeds maximum depth")
)
