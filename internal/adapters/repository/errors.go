package repository

import "errors"

// Sentinel kinds for ranking errors.
var (
	ErrNotFound     = errors.New("player not found")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	ErrInvalidScore = errors.New("invalid score")
	ErrUnavailable  = errors.New("ranking backend unavailable")
)
