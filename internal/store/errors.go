package store

import "errors"

var (
	ErrNotFound    = errors.New("document not found")
	ErrInvalidPath = errors.New("invalid document path")
	ErrClosed      = errors.New("store is closed")
)
