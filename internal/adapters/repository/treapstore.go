package repository

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/facepulse/pkg/metrics"
)

// In-memory Store backed by an order-statistics treap.
//
// Ordering: score DESC, then playerID ASC. "less" means "ranks earlier",
// so an in-order walk yields the leaderboard from best to worst. Every node
// tracks its subtree size, which makes rank queries O(log n).

type node struct {
	id    string
	score float64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func less(aScore float64, aID string, bScore float64, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score float64, prio uint64) *node {
	if n == nil {
		return &node{id: id, score: score, prio: prio, size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, score float64) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	case less(score, id, n.score, n.id):
		n.left = deleteNode(n.left, id, score)
	default:
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// countAbove returns how many nodes hold a score strictly greater than s.
func countAbove(n *node, s float64) int {
	count := 0
	for n != nil {
		if n.score > s {
			count += 1 + nsize(n.left)
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

func collectTopN(n *node, limit int, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, Entry{PlayerID: n.id, Score: n.score})
	}
	collectTopN(n.right, limit, out)
}

// TreapStore is the "memory" ranking backend.
type TreapStore struct {
	mu   sync.RWMutex
	root *node
	best map[string]float64
	rng  *rand.Rand
}

// NewTreapStore constructs an empty treap store.
func NewTreapStore() *TreapStore {
	return &TreapStore{
		best: make(map[string]float64),
		rng:  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Close is a no-op; the treap holds no background resources.
func (s *TreapStore) Close() error { return nil }

// UpdateBest implements Store.UpdateBest in O(log n) expected time.
func (s *TreapStore) UpdateBest(_ context.Context, playerID string, score float64) (bool, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRankingLatency("update", float64(time.Since(start).Microseconds())/1000)
	}()

	if math.IsNaN(score) || math.IsInf(score, 0) {
		return false, ErrInvalidScore
	}

	s.mu.Lock()
	if old, ok := s.best[playerID]; ok {
		if score <= old {
			s.mu.Unlock()
			return false, nil
		}
		s.root = deleteNode(s.root, playerID, old)
	}
	s.best[playerID] = score
	s.root = insert(s.root, playerID, score, s.rng.Uint64())
	total := len(s.best)
	s.mu.Unlock()

	metrics.RecordLeaderboardUpdate()
	metrics.UpdateRankedPlayers(total)
	return true, nil
}

// Rank returns the player's competition rank in O(log n).
func (s *TreapStore) Rank(_ context.Context, playerID string) (Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRankingLatency("rank", float64(time.Since(start).Microseconds())/1000)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	score, ok := s.best[playerID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return Entry{
		Rank:     countAbove(s.root, score) + 1,
		PlayerID: playerID,
		Score:    score,
	}, nil
}

// TopN returns the top n entries.
func (s *TreapStore) TopN(_ context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRankingLatency("top", float64(time.Since(start).Microseconds())/1000)
	}()

	if n < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	out := make([]Entry, 0, min(n, len(s.best)))
	collectTopN(s.root, n, &out)
	s.mu.RUnlock()

	assignCompetitionRanks(out, 1)
	return out, nil
}

// Count returns the number of ranked players.
func (s *TreapStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.best), nil
}
