package blob

// Option configures a Bucket.
type Option func(*Bucket)

// WithMaxBytes caps a single upload. Non-positive values are ignored.
func WithMaxBytes(n int64) Option {
	return func(b *Bucket) {
		if n > 0 {
			b.maxBytes = n
		}
	}
}
