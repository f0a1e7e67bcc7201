package poller

import (
	"context"
	"sync"
)

// LatestFrame is a Detector fed by a push source such as a websocket. Each
// frame is handed out at most once; older unread frames are overwritten.
type LatestFrame struct {
	mu    sync.Mutex
	frame *Frame
}

// NewLatestFrame creates an empty LatestFrame.
func NewLatestFrame() *LatestFrame {
	return &LatestFrame{}
}

// Put stores f as the newest frame.
func (l *LatestFrame) Put(f Frame) {
	l.mu.Lock()
	l.frame = &f
	l.mu.Unlock()
}

// Detect takes the newest frame, or returns ErrNoFrame.
func (l *LatestFrame) Detect(context.Context) (Frame, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frame == nil {
		return Frame{}, ErrNoFrame
	}
	f := *l.frame
	l.frame = nil
	return f, nil
}
