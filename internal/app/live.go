package service

import (
	"context"
	"fmt"

	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/internal/domain/poller"
	"github.com/okian/facepulse/internal/domain/theme"
)

const liveBuffer = 16

// liveStream is the poller attached to a tracker while at least one live
// client is connected.
type liveStream struct {
	frames *poller.LatestFrame
	poller *poller.Poller
	cancel context.CancelFunc
	done   chan struct{}
	refs   int
}

func (l *liveStream) stop() {
	l.cancel()
	<-l.done
}

// attachLive starts the session poller on first use and returns its frame
// slot.
func (s *Service) attachLive(t *Tracker) *poller.LatestFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.live != nil {
		t.live.refs++
		return t.live.frames
	}

	frames := poller.NewLatestFrame()
	sink := poller.SinkFunc(func(ctx context.Context, f poller.Frame) {
		t.Process(ctx, f.Detection, f.Image, s.now())
	})
	p := poller.New(frames, sink,
		poller.WithInterval(s.cfg.PollInterval()),
		poller.WithName(t.sessionID))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()
	t.live = &liveStream{frames: frames, poller: p, cancel: cancel, done: done, refs: 1}
	return frames
}

// detachLive drops one reference and stops the poller with the last one.
func (t *Tracker) detachLive() {
	t.mu.Lock()
	l := t.live
	if l == nil {
		t.mu.Unlock()
		return
	}
	l.refs--
	if l.refs > 0 {
		t.mu.Unlock()
		return
	}
	t.live = nil
	t.mu.Unlock()
	l.stop()
}

// stopLive stops the poller regardless of references.
func (t *Tracker) stopLive() {
	t.mu.Lock()
	l := t.live
	t.live = nil
	t.mu.Unlock()
	if l != nil {
		l.stop()
	}
}

// Subscribe attaches a live client to a session: it receives one update
// per processed frame, and frames it pushes are analysed on the poll
// interval. The returned func detaches the client.
func (s *Service) Subscribe(ctx context.Context, sessionID string) (<-chan theme.Update, func(), error) {
	if err := s.ready(); err != nil {
		return nil, nil, err
	}
	t, err := s.tracker(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	updates, unsubscribe, err := s.bus.Subscribe(sessionID, liveBuffer)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe %s: %w", sessionID, err)
	}
	s.attachLive(t)
	return updates, func() {
		unsubscribe()
		t.detachLive()
	}, nil
}

// PushFrame hands the newest client frame to the session poller. Frames
// that arrive faster than the poll interval overwrite each other.
func (s *Service) PushFrame(sessionID string, det *model.Detection, frame []byte) error {
	if err := s.ready(); err != nil {
		return err
	}
	if det == nil {
		return fmt.Errorf("%w: detection is required", ErrInvalidInput)
	}
	if err := det.Validate(); err != nil {
		return err
	}
	t, ok := s.trackers.get(sessionID)
	if !ok {
		return fmt.Errorf("%w: session %s is not live", ErrNotFound, sessionID)
	}
	t.mu.Lock()
	l := t.live
	t.mu.Unlock()
	if l == nil {
		return fmt.Errorf("%w: session %s is not live", ErrNotFound, sessionID)
	}
	l.frames.Put(poller.Frame{Detection: det, Image: frame})
	return nil
}

// DroppedTicks returns how many poll ticks of a live session were dropped.
func (s *Service) DroppedTicks(sessionID string) int64 {
	t, ok := s.trackers.get(sessionID)
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.live == nil {
		return 0
	}
	return t.live.poller.Dropped()
}
