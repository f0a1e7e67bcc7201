// Package repository ranks players by their best score.
package repository

import "context"

// Entry is one ranked player.
type Entry struct {
	Rank     int
	PlayerID string
	Score    float64
}

// Store provides read/write access to the ranking state.
//
// Ranking is competition style: players with equal scores share a rank and
// the next distinct score skips the shared places (1, 1, 3).
type Store interface {
	// UpdateBest records score if it beats the player's current best.
	// It reports whether the stored best changed.
	UpdateBest(ctx context.Context, playerID string, score float64) (bool, error)

	// Rank returns the player's rank and best score, or ErrNotFound.
	Rank(ctx context.Context, playerID string) (Entry, error)

	// TopN returns up to n entries ordered by score desc, then player ID asc.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of ranked players.
	Count(ctx context.Context) (int, error)

	// Close releases background resources.
	Close() error
}

// assignCompetitionRanks fills Rank for entries already in leaderboard
// order, where the first entry holds rank first.
func assignCompetitionRanks(entries []Entry, first int) {
	for i := range entries {
		switch {
		case i == 0:
			entries[i].Rank = first
		case entries[i].Score == entries[i-1].Score:
			entries[i].Rank = entries[i-1].Rank
		default:
			entries[i].Rank = first + i
		}
	}
}
