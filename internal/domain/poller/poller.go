// Package poller pulls detections on a fixed interval and hands them to a
// sink. A tick that fires while the previous one is still being handled is
// dropped, never queued.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/pkg/logger"
	"github.com/okian/facepulse/pkg/metrics"
)

// DefaultInterval is the detection poll interval.
const DefaultInterval = 200 * time.Millisecond

// ErrNoFrame is returned by a Detector that has nothing new to offer. The
// poller skips the tick instead of reporting an absent face.
var ErrNoFrame = errors.New("no frame available")

// Frame is one detection together with the still image it came from.
type Frame struct {
	Detection *model.Detection
	Image     []byte
}

// Detector produces the detection for the current instant.
type Detector interface {
	Detect(ctx context.Context) (Frame, error)
}

// Sink consumes polled frames.
type Sink interface {
	Handle(ctx context.Context, f Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, f Frame)

// Handle calls f.
func (f SinkFunc) Handle(ctx context.Context, fr Frame) { f(ctx, fr) }

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithName labels log lines, usually with the session ID.
func WithName(name string) Option {
	return func(p *Poller) {
		p.name = name
	}
}

// Poller is started once with Run.
type Poller struct {
	detector Detector
	sink     Sink
	interval time.Duration
	name     string
	log      logger.Logger

	analyzing atomic.Bool
	dropped   atomic.Int64
	wg        sync.WaitGroup
}

// New creates a poller over detector feeding sink.
func New(detector Detector, sink Sink, opts ...Option) *Poller {
	p := &Poller{
		detector: detector,
		sink:     sink,
		interval: DefaultInterval,
		name:     "poller",
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = logger.Get().Named("poller").With(logger.String("stream", p.name))
	return p
}

// Run polls until ctx is done and waits for the in-flight tick to finish.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer p.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// Dropped returns how many ticks were skipped because a previous one was
// still running.
func (p *Poller) Dropped() int64 {
	return p.dropped.Load()
}

func (p *Poller) tick(ctx context.Context) {
	if !p.analyzing.CompareAndSwap(false, true) {
		p.dropped.Add(1)
		metrics.RecordTickDropped()
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.analyzing.Store(false)
		p.analyze(ctx)
	}()
}

func (p *Poller) analyze(ctx context.Context) {
	frame, err := p.detector.Detect(ctx)
	switch {
	case errors.Is(err, ErrNoFrame):
		return
	case err != nil:
		p.log.Warn(ctx, "detection failed; reporting no face", logger.Error(err))
		metrics.RecordDetection("error")
		frame = Frame{Detection: &model.Detection{CapturedAt: time.Now()}}
	}
	if frame.Detection == nil {
		frame.Detection = &model.Detection{CapturedAt: time.Now()}
	}
	p.sink.Handle(ctx, frame)
}
