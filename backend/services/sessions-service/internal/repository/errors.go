package repository

import "errors"

var (
	// ErrNotFound indicates a missing row.
	ErrNotFound = errors.New("repository: not found")
	// ErrBuildQuery wraps squirrel build failures.
	ErrBuildQuery = errors.New("repository: failed to build query")
)
