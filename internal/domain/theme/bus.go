package theme

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"github.com/okian/facepulse/internal/domain/model"
)

const topicPrefix = "session:"

// CaptureInfo describes a capture that happened on this sample.
type CaptureInfo struct {
	MomentID string        `json:"moment_id,omitempty"`
	Emotion  model.Emotion `json:"emotion"`
	ImageURL string        `json:"image_url,omitempty"`
	Saved    bool          `json:"saved"`
}

// Update is published for every processed sample of a session.
type Update struct {
	SessionID string               `json:"session_id"`
	Metrics   model.DerivedMetrics `json:"metrics"`
	Theme     Theme                `json:"theme"`
	Capture   *CaptureInfo         `json:"capture,omitempty"`
	Absence   bool                 `json:"absence,omitempty"`
}

// Bus fans session updates out to subscribers. Each session topic has one
// handler on the underlying event bus; slow subscribers drop updates.
//
// Lock order: topicMu, then the event bus lock, then subsMu. The event bus
// holds its own lock while dispatching, so subsMu is never held across a
// call into it.
type Bus struct {
	bus evbus.Bus

	topicMu sync.Mutex
	subsMu  sync.RWMutex
	nextID  uint64
	subs    map[string]map[uint64]chan Update
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		bus:  evbus.New(),
		subs: make(map[string]map[uint64]chan Update),
	}
}

// Publish delivers u to the subscribers of u.SessionID.
func (b *Bus) Publish(u Update) {
	if !b.bus.HasCallback(topicPrefix + u.SessionID) {
		return
	}
	b.bus.Publish(topicPrefix+u.SessionID, u)
}

// Subscribe returns a channel of updates for sessionID and a cancel func
// that closes it. buffer bounds how many updates may queue up.
func (b *Bus) Subscribe(sessionID string, buffer int) (<-chan Update, func(), error) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Update, buffer)

	b.topicMu.Lock()
	defer b.topicMu.Unlock()

	b.subsMu.RLock()
	_, ok := b.subs[sessionID]
	b.subsMu.RUnlock()
	if !ok {
		if err := b.bus.Subscribe(topicPrefix+sessionID, b.dispatch); err != nil {
			return nil, nil, err
		}
	}

	b.subsMu.Lock()
	set, ok := b.subs[sessionID]
	if !ok {
		set = make(map[uint64]chan Update)
		b.subs[sessionID] = set
	}
	b.nextID++
	id := b.nextID
	set[id] = ch
	b.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { b.unsubscribe(sessionID, id) })
	}
	return ch, cancel, nil
}

// Subscribers returns how many subscribers sessionID has.
func (b *Bus) Subscribers(sessionID string) int {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	return len(b.subs[sessionID])
}

func (b *Bus) unsubscribe(sessionID string, id uint64) {
	b.topicMu.Lock()
	defer b.topicMu.Unlock()

	b.subsMu.Lock()
	set := b.subs[sessionID]
	ch, ok := set[id]
	if ok {
		delete(set, id)
		close(ch)
	}
	last := ok && len(set) == 0
	if last {
		delete(b.subs, sessionID)
	}
	b.subsMu.Unlock()

	if last {
		_ = b.bus.Unsubscribe(topicPrefix+sessionID, b.dispatch)
	}
}

func (b *Bus) dispatch(u Update) {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	for _, ch := range b.subs[u.SessionID] {
		select {
		case ch <- u:
		default:
		}
	}
}
