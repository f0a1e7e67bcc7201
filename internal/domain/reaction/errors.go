package reaction

import "errors"

// Sentinel errors for flow transitions.
var (
	ErrInvalidTransition = errors.New("invalid flow transition")
	ErrNoRounds          = errors.New("flow has no rounds")
)
