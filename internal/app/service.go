// Package service wires the FacePulse adapters and domain state machines
// into the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/facepulse/internal/adapters/blob"
	"github.com/okian/facepulse/internal/adapters/datastore"
	eventqueue "github.com/okian/facepulse/internal/adapters/mq/queue"
	workerpool "github.com/okian/facepulse/internal/adapters/mq/worker"
	"github.com/okian/facepulse/internal/adapters/quote"
	"github.com/okian/facepulse/internal/adapters/repository"
	"github.com/okian/facepulse/internal/config"
	"github.com/okian/facepulse/internal/domain/dedupe"
	"github.com/okian/facepulse/internal/domain/theme"
	"github.com/okian/facepulse/pkg/logger"
	"github.com/okian/facepulse/pkg/metrics"
)

const (
	sweepInterval = time.Minute
	flowIdleTTL   = 10 * time.Minute
	stopTimeout   = 30 * time.Second
)

// Service implements the API dependencies.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	store    *datastore.Store
	bucket   *blob.Bucket
	ranking  repository.Store
	queue    *eventqueue.InMemoryQueue
	pool     *workerpool.Pool
	deduper  dedupe.Deduper
	quotes   *quote.Service
	bus      *theme.Bus
	trackers *registry[*Tracker]

	challenges *registry[*challengeEntry]
	reactions  *registry[*reactionEntry]
	capsules   *registry[*capsuleEntry]

	// Injected overrides
	rankingOverride repository.Store
	generator       quote.Generator

	now func() time.Time
	rng *rand.Rand
	// rngMu guards rng.
	rngMu sync.Mutex

	// State
	started bool
	cancel  context.CancelFunc
	sweepWG sync.WaitGroup

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			c := *cfg
			s.cfg = &c
		}
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.cfg.WorkerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cfg.QueueSize = size
		}
	}
}

// WithDedupeSize sets the size of the submission dedupe set.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cfg.DedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRankingStore uses st instead of the configured ranking backend.
func WithRankingStore(st repository.Store) Option {
	return func(s *Service) {
		s.rankingOverride = st
	}
}

// WithQuoteGenerator uses g instead of the configured quote generator.
func WithQuoteGenerator(g quote.Generator) Option {
	return func(s *Service) {
		s.generator = g
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRand sets the random source used to draw reaction targets.
func WithRand(r *rand.Rand) Option {
	return func(s *Service) {
		if r != nil {
			s.rng = r
		}
	}
}

// New constructs a Service. Options are applied in order, so WithConfig
// should come before the per-field options.
func New(opts ...Option) *Service {
	s := &Service{
		cfg: config.New(),
		now: time.Now,
		rng: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.trackers = newRegistry[*Tracker](func(n int) { metrics.UpdateActiveSessions(n) })
	s.challenges = newRegistry[*challengeEntry](func(n int) { metrics.UpdateActiveFlows("challenge", n) })
	s.reactions = newRegistry[*reactionEntry](func(n int) { metrics.UpdateActiveFlows("reaction", n) })
	s.capsules = newRegistry[*capsuleEntry](func(n int) { metrics.UpdateActiveFlows("capsule", n) })
	return s
}

// Config returns the configuration in use.
func (s *Service) Config() *config.Config { return s.cfg }

// Start opens the datastore, bucket and ranking backend and starts the
// worker pool. Calling Start on a started service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting facepulse service...")

	store, err := datastore.Open(ctx, s.cfg.DatabasePath, datastore.WithAutoMigrate(s.cfg.AutoMigrate))
	if err != nil {
		return fmt.Errorf("open datastore: %w", err)
	}
	bucket, err := blob.New(s.cfg.BucketDir, s.cfg.PublicBaseURL, blob.WithMaxBytes(s.cfg.MaxUploadBytes))
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("open bucket: %w", err)
	}
	ranking, err := s.openRanking(ctx)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("open ranking: %w", err)
	}

	s.store = store
	s.bucket = bucket
	s.ranking = ranking
	s.bus = theme.NewBus()
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	s.quotes = quote.NewService(
		quote.WithGenerator(s.quoteGenerator()),
		quote.WithTTL(s.cfg.QuoteCacheTTL()),
		quote.WithTimeout(s.cfg.QuoteTimeout()),
	)
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.cfg.QueueSize))

	// Workers and the sweeper outlive the start context; Stop ends them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool = workerpool.NewPool(s.cfg.WorkerCount, s.queue, s.ranking, s.store,
		workerpool.WithLogger(s.logger.Named("worker")))
	s.pool.Start(runCtx)

	s.sweepWG.Add(1)
	go s.sweepLoop(runCtx)

	s.started = true
	s.logger.Info(ctx, "facepulse service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.cfg.QueueSize),
		logger.Int("dedupeSize", s.cfg.DedupeSize),
		logger.String("ranking", s.cfg.RankingBackend),
	)
	return nil
}

func (s *Service) openRanking(ctx context.Context) (repository.Store, error) {
	if s.rankingOverride != nil {
		return s.rankingOverride, nil
	}
	switch s.cfg.RankingBackend {
	case "redis":
		return repository.DialRedis(ctx, s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB,
			repository.WithKey(s.cfg.RedisKey))
	default:
		return repository.NewTreapStore(), nil
	}
}

func (s *Service) quoteGenerator() quote.Generator {
	if s.generator != nil {
		return s.generator
	}
	if s.cfg.OpenAIAPIKey != "" {
		return quote.NewOpenAIGenerator(s.cfg.OpenAIAPIKey, s.cfg.OpenAIBaseURL, s.cfg.OpenAIModel)
	}
	return quote.StaticGenerator{}
}

// Stop drains the job queue, stops live pollers and closes the stores.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping facepulse service...")

	for _, t := range s.trackers.snapshot() {
		t.stopLive()
	}

	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	if err := s.pool.Shutdown(stopCtx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	s.cancel()
	s.sweepWG.Wait()

	var errs []error
	if err := s.ranking.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close ranking: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close datastore: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error(ctx, "error closing stores", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "facepulse service stopped")
}

// ready returns ErrNotStarted until Start succeeded.
func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Bucket returns the media bucket. It is nil before Start.
func (s *Service) Bucket() *blob.Bucket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bucket
}

// SetupStatus lists the datastore tables that are missing.
func (s *Service) SetupStatus(ctx context.Context) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.SetupStatus(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":        s.started,
		"workerCount":    s.cfg.WorkerCount,
		"queueSize":      s.cfg.QueueSize,
		"dedupeSize":     s.cfg.DedupeSize,
		"rankingBackend": s.cfg.RankingBackend,
	}
	if !s.started {
		return stats
	}

	queueLen := s.queue.Len(ctx)
	stats["queueLength"] = queueLen
	stats["dedupeEntries"] = s.deduper.Size()
	stats["activeSessions"] = s.trackers.len()
	stats["activeChallenges"] = s.challenges.len()
	stats["activeReactions"] = s.reactions.len()
	stats["activeCapsules"] = s.capsules.len()
	if players, err := s.ranking.Count(ctx); err == nil {
		stats["rankedPlayers"] = players
		metrics.UpdateRankedPlayers(players)
	}

	metrics.UpdateQueueSize(queueLen)
	metrics.UpdateWorkerCount(s.pool.Size())
	return stats
}

func (s *Service) sweepLoop(ctx context.Context) {
	defer s.sweepWG.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(s.now())
		}
	}
}

// sweep drops flows nobody has touched for flowIdleTTL.
func (s *Service) sweep(now time.Time) {
	s.reactions.removeIf(func(_ string, e *reactionEntry) bool {
		return now.Sub(e.flow.LastSeen()) > flowIdleTTL
	})
	s.capsules.removeIf(func(_ string, e *capsuleEntry) bool {
		return now.Sub(e.flow.LastSeen()) > flowIdleTTL
	})
	s.challenges.removeIf(func(_ string, e *challengeEntry) bool {
		return now.Sub(e.startedAt) > e.duration+flowIdleTTL
	})
}

func (s *Service) intN(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.IntN(n)
}

// registry is a concurrent map of live objects keyed by ID. observe is
// called with the new size after every change.
type registry[T any] struct {
	mu      sync.RWMutex
	items   map[string]T
	observe func(int)
}

func newRegistry[T any](observe func(int)) *registry[T] {
	return &registry[T]{items: make(map[string]T), observe: observe}
}

func (r *registry[T]) put(id string, v T) {
	r.mu.Lock()
	r.items[id] = v
	n := len(r.items)
	r.mu.Unlock()
	r.observe(n)
}

func (r *registry[T]) get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[id]
	return v, ok
}

func (r *registry[T]) remove(id string) (T, bool) {
	r.mu.Lock()
	v, ok := r.items[id]
	delete(r.items, id)
	n := len(r.items)
	r.mu.Unlock()
	if ok {
		r.observe(n)
	}
	return v, ok
}

func (r *registry[T]) removeIf(pred func(string, T) bool) {
	r.mu.Lock()
	for id, v := range r.items {
		if pred(id, v) {
			delete(r.items, id)
		}
	}
	n := len(r.items)
	r.mu.Unlock()
	r.observe(n)
}

func (r *registry[T]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *registry[T]) snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.items))
	for _, v := range r.items {
		out = append(out, v)
	}
	return out
}
