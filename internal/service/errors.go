package service

import "errors"

// Errors returned by the entity service.
var (
	// ErrClosed indicates the service has been closed.
	ErrClosed = errors.New("entity service is closed")

	// ErrNotLoaded indicates an operation on an entity that is not in memory.
	ErrNotLoaded = errors.New("entity not loaded")
)
