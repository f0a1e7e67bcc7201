package datastore

// Option configures a Store.
type Option func(*Store)

// WithAutoMigrate controls whether Open creates missing tables.
func WithAutoMigrate(enabled bool) Option {
	return func(s *Store) {
		s.autoMigrate = enabled
	}
}
