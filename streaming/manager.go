package streaming

import (
	"encoding/json"
	"sync"
	"time"
)

// Event is one progress update of a research run, as delivered over SSE and WebSocket.
type Event struct {
	ThreadID  string          `json:"thread_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Seq       uint64          `json:"seq"`
}

// Manager provides in-memory pub/sub for session events.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	// per-session ring buffer for replay and Last-Event-ID support
	history  map[string]*ring
	capacity int
}

const DefaultCapacity = 256

func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Subscribe adds a subscriber channel for threadID; caller must drain and call Unsubscribe.
func (m *Manager) Subscribe(threadID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[threadID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[threadID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (m *Manager) Unsubscribe(threadID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[threadID]; ok {
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(m.subscribers, threadID)
		}
	}
}

// Publish records evt in the session history and sends it to all subscribers (non-blocking).
// It returns the event as stored, with its sequence number.
func (m *Manager) Publish(threadID string, evt Event) Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	rg := m.history[threadID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[threadID] = rg
	}
	rg.nextSeq++
	evt.Seq = rg.nextSeq
	evt.ThreadID = threadID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	rg.push(evt)
	for ch := range m.subscribers[threadID] {
		select {
		case ch <- evt:
		default:
			// Drop if subscriber is slow
		}
	}
	return evt
}

// Marshal returns JSON for event payloads in SSE or logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// ReplaySince returns events with Seq > since (best-effort within ring capacity).
func (m *Manager) ReplaySince(threadID string, since uint64) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rg := m.history[threadID]
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Forget drops the history of a session that was reset. Live subscribers stay attached.
func (m *Manager) Forget(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.history, threadID)
}

// ring is a fixed-capacity ring buffer of events
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	// overwrite oldest
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
