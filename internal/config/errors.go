package config

import "errors"

var (
	// ErrInvalidConfig wraps every Validate failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrUnknownBackend is wrapped together with ErrInvalidConfig when
	// ranking_backend names neither the treap nor Redis.
	ErrUnknownBackend = errors.New("unknown ranking backend")
	// ErrLoadConfig wraps file, env and unmarshal failures of Load.
	ErrLoadConfig = errors.New("load config failed")
)
