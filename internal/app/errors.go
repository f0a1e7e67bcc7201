package service

import "errors"

// Sentinel errors returned by Service operations.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrNotFound     = errors.New("not found")
	ErrBackpressure = errors.New("job queue full")
	ErrSessionEnded = errors.New("session already ended")
	ErrInvalidInput = errors.New("invalid input")
)
