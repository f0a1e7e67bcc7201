// Package quote serves short quotes for a captured moment, generated by an
// LLM when one is configured and cached per emotion and smile band.
package quote

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/pkg/logger"
	"github.com/okian/facepulse/pkg/metrics"
)

// Sources reported on a Quote.
const (
	SourceLLM     = "llm"
	SourceBuiltin = "builtin"
)

const (
	defaultTTL     = 10 * time.Minute
	defaultTimeout = 8 * time.Second
)

// Quote is the answer to one request.
type Quote struct {
	Text    string        `json:"quote"`
	Emotion model.Emotion `json:"emotion"`
	Source  string        `json:"source"`
	Cached  bool          `json:"cached"`
}

// Service caches generated quotes.
type Service struct {
	gen      Generator
	fallback Generator
	cache    *cache.Cache
	group    singleflight.Group
	timeout  time.Duration
	log      logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithGenerator sets the primary generator. Without one the built-in table
// answers every request.
func WithGenerator(g Generator) Option {
	return func(s *Service) { s.gen = g }
}

// WithTTL sets how long a generated quote is reused.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cache = cache.New(ttl, 2*ttl)
		}
	}
}

// WithTimeout bounds one upstream request.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewService builds a quote service.
func NewService(opts ...Option) *Service {
	s := &Service{
		fallback: StaticGenerator{},
		cache:    cache.New(defaultTTL, 2*defaultTTL),
		timeout:  defaultTimeout,
		log:      logger.Get().Named("quote"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the cache key for a request.
func Key(e model.Emotion, smile int) string {
	return fmt.Sprintf("%s:%d", e, smileBucket(smile))
}

// Quote returns a quote for e and smile. Upstream failures fall back to
// the built-in table and are not cached, so the next request retries.
func (s *Service) Quote(ctx context.Context, e model.Emotion, smile int) (Quote, error) {
	smile = max(0, min(100, smile))
	key := Key(e, smile)

	if v, ok := s.cache.Get(key); ok {
		metrics.RecordQuoteCache(true)
		q, _ := v.(Quote)
		q.Cached = true
		return q, nil
	}
	metrics.RecordQuoteCache(false)

	if s.gen == nil {
		return s.builtin(ctx, e, smile)
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		start := time.Now()
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		text, err := s.gen.Generate(callCtx, e, smile)
		metrics.RecordQuoteLatency(float64(time.Since(start).Milliseconds()))
		if err != nil {
			return nil, err
		}
		q := Quote{Text: text, Emotion: e, Source: SourceLLM}
		s.cache.Set(key, q, cache.DefaultExpiration)
		return q, nil
	})
	if err != nil {
		metrics.RecordQuoteError()
		s.log.Warn(ctx, "quote generation failed, using built-in quote",
			logger.String("key", key),
			logger.Error(err))
		return s.builtin(ctx, e, smile)
	}
	return v.(Quote), nil
}

func (s *Service) builtin(ctx context.Context, e model.Emotion, smile int) (Quote, error) {
	text, err := s.fallback.Generate(ctx, e, smile)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Text: text, Emotion: e, Source: SourceBuiltin}, nil
}
