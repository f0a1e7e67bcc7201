package model

import "errors"

// Sentinel errors for model validation.
var (
	ErrInvalidDetection = errors.New("invalid detection")
	ErrUnknownEmotion   = errors.New("unknown emotion")
	ErrInvalidScore     = errors.New("invalid score submission")
)
