// Package types holds the ranking row shared by the score API and the app.
package types

// Entry is one player on the score ranking. Tied players share Rank and the
// next distinct score skips ahead (1, 1, 3).
type Entry struct {
	Rank     int     `json:"rank"`
	PlayerID string  `json:"player_id"`
	Score    float64 `json:"score"`
}
