// Package worker drains the job queue: score jobs update the ranking and
// record the score row, promotion jobs copy a high-smile moment onto the
// leaderboard. Failures are logged and counted; jobs are never retried.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/pkg/logger"
	"github.com/okian/facepulse/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2
	poolShutdownTimeout     = 30 * time.Second
)

// ErrUnknownJob is returned for a job whose kind or payload is missing.
var ErrUnknownJob = errors.New("unknown job")

// Ranker updates the best score of a player.
type Ranker interface {
	UpdateBest(ctx context.Context, playerID string, score float64) (bool, error)
}

// Recorder persists the rows produced by jobs.
type Recorder interface {
	InsertScore(ctx context.Context, s model.ScoreSubmission) error
	InsertLeaderboardEntry(ctx context.Context, e model.LeaderboardEntry) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Job
}

// Worker processes jobs until its queue is drained or it is stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker without draining.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	ranker   Ranker
	recorder Recorder
	name     string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// Option configures a worker.
type Option func(*InMemoryWorker)

// WithName names the worker in its log lines.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger replaces the worker logger; the name is appended to it.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(queue Queue, ranker Ranker, recorder Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		ranker:   ranker,
		recorder: recorder,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "job failed",
					logger.String("kind", string(job.Kind)),
					logger.String("job_id", job.ID()),
					logger.Error(err))
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Shutdown stops the worker loop and waits for it to return.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, job model.Job) error {
	start := time.Now()
	kind := string(job.Kind)

	var err error
	switch {
	case job.Kind == model.JobScore && job.Score != nil:
		err = w.score(ctx, *job.Score)
	case job.Kind == model.JobPromotion && job.Promotion != nil:
		err = w.recorder.InsertLeaderboardEntry(ctx, *job.Promotion)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownJob, kind)
	}

	if err != nil {
		metrics.RecordJobError(kind)
		metrics.RecordErrorByComponent("worker", kind)
		return err
	}
	metrics.RecordJobProcessed(kind, float64(time.Since(start).Microseconds())/1000)
	return nil
}

// score updates the ranking first so a datastore outage never hides a new
// best; the score row is recorded afterwards.
func (w *InMemoryWorker) score(ctx context.Context, s model.ScoreSubmission) error {
	improved, err := w.ranker.UpdateBest(ctx, s.PlayerID, s.Score)
	if err != nil {
		return fmt.Errorf("ranking update for %s: %w", s.PlayerID, err)
	}
	if err := w.recorder.InsertScore(ctx, s); err != nil {
		return fmt.Errorf("record score %s: %w", s.SubmissionID, err)
	}
	if improved {
		w.logger.Debug(ctx, "new best score",
			logger.String("player_id", s.PlayerID),
			logger.Float64("score", s.Score))
	}
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers. A non-positive count
// defaults to twice the number of CPUs. opts apply to every worker before
// its name is set.
func NewPool(workerCount int, queue Queue, ranker Ranker, recorder Recorder, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(queue, ranker, recorder, append(opts[:len(opts):len(opts)], WithName("worker-"+strconv.Itoa(i)))...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-waitCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", waitCtx.Err())
	}
	return nil
}
