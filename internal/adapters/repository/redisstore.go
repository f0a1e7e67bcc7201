package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/facepulse/pkg/metrics"
)

const defaultRedisKey = "facepulse:scores"

// RedisStore is the "redis" ranking backend: one sorted set whose members
// are player IDs and whose scores are their best results.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore wraps an existing client. The caller owns the client
// unless Close is called.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, key: defaultRedisKey}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int, opts ...RedisOption) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrUnavailable, addr, err)
	}
	return NewRedisStore(client, opts...), nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// UpdateBest uses ZADD GT CH so the comparison happens inside Redis.
func (s *RedisStore) UpdateBest(ctx context.Context, playerID string, score float64) (bool, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRankingLatency("update", float64(time.Since(start).Microseconds())/1000)
	}()

	if math.IsNaN(score) || math.IsInf(score, 0) {
		return false, ErrInvalidScore
	}
	changed, err := s.client.ZAddArgs(ctx, s.key, redis.ZAddArgs{
		GT:      true,
		Ch:      true,
		Members: []redis.Z{{Score: score, Member: playerID}},
	}).Result()
	if err != nil {
		return false, s.unavailable("update", err)
	}
	if changed == 0 {
		return false, nil
	}
	metrics.RecordLeaderboardUpdate()
	if n, err := s.client.ZCard(ctx, s.key).Result(); err == nil {
		metrics.UpdateRankedPlayers(int(n))
	}
	return true, nil
}

// Rank counts the members with a strictly greater score.
func (s *RedisStore) Rank(ctx context.Context, playerID string) (Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRankingLatency("rank", float64(time.Since(start).Microseconds())/1000)
	}()

	score, err := s.client.ZScore(ctx, s.key, playerID).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, s.unavailable("rank", err)
	}
	above, err := s.client.ZCount(ctx, s.key, "("+formatScore(score), "+inf").Result()
	if err != nil {
		return Entry{}, s.unavailable("rank", err)
	}
	return Entry{Rank: int(above) + 1, PlayerID: playerID, Score: score}, nil
}

// TopN reads the first n members. Redis orders equal scores by member
// descending in reverse ranges, so ties are re-sorted by player ID.
func (s *RedisStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRankingLatency("top", float64(time.Since(start).Microseconds())/1000)
	}()

	if n < 1 {
		return nil, ErrInvalidLimit
	}
	zs, err := s.client.ZRevRangeWithScores(ctx, s.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, s.unavailable("top", err)
	}
	out := make([]Entry, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		out = append(out, Entry{PlayerID: id, Score: z.Score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i].Score, out[i].PlayerID, out[j].Score, out[j].PlayerID)
	})
	assignCompetitionRanks(out, 1)
	return out, nil
}

// Count returns ZCARD of the ranking key.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.key).Result()
	if err != nil {
		return 0, s.unavailable("count", err)
	}
	return int(n), nil
}

func (s *RedisStore) unavailable(op string, err error) error {
	metrics.RecordErrorByComponent("ranking", op)
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
