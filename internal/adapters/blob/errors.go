package blob

import "errors"

// Sentinel errors for bucket operations.
var (
	ErrTooLarge       = errors.New("blob too large")
	ErrNotImage       = errors.New("blob is not an image")
	ErrInvalidKey     = errors.New("invalid blob key")
	ErrInvalidDataURL = errors.New("invalid data url")
	ErrNotFound       = errors.New("blob not found")
)
