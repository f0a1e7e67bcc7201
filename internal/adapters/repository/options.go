package repository

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKey sets the sorted-set key holding the ranking.
func WithKey(key string) RedisOption {
	return func(s *RedisStore) {
		if key != "" {
			s.key = key
		}
	}
}
