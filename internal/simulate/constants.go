package simulate

import "time"

// Defaults used by the CLI.
const (
	DefaultSessions         = 8
	DefaultFramesPerSession = 30
	DefaultPlayers          = 50
	DefaultScoresPerPlayer  = 20
	DefaultDuplicateEvery   = 10
	DefaultTopN             = 20
	DefaultTimeout          = 10 * time.Second
	DefaultSettleTimeout    = 30 * time.Second
)

const (
	frameInterval     = 200 * time.Millisecond
	settlePoll        = 250 * time.Millisecond
	maxSubmitAttempts = 5
	retryBase         = 50 * time.Millisecond
	percentage        = 100
)
