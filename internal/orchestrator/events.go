package orchestrator

import (
	"encoding/json"
	"sync"
	"time"
)

// Event names published on the hub.
const (
	EventStage = "stage"
	EventToken = "token"
	EventTurn  = "turn"
	EventError = "error"
	EventReset = "reset"
)

// Event is a generic SSE payload wrapper.
type Event struct {
	Event     string `json:"event"`
	SessionID string `json:"session_id"`
	Payload   any    `json:"payload,omitempty"`
}

type subscriber chan []byte

// Hub fans JSON-encoded events out to the subscribers of each session.
// Slow subscribers miss events rather than blocking publishers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[subscriber]struct{} // sessionID -> set of subscribers

	tokMu   sync.Mutex
	tokBuf  map[string]map[string]string // sessionID -> streamID -> buffered chunks
	tokStop map[string]chan struct{}     // sessionID -> stop channel
	tokDone map[string]chan struct{}     // sessionID -> closed when the flush loop exits

	// FlushInterval is the token coalescing cadence.
	FlushInterval time.Duration
}

func NewHub() *Hub {
	return &Hub{
		subs:          map[string]map[subscriber]struct{}{},
		tokBuf:        map[string]map[string]string{},
		tokStop:       map[string]chan struct{}{},
		tokDone:       map[string]chan struct{}{},
		FlushInterval: 100 * time.Millisecond,
	}
}

// Subscribe returns a channel carrying JSON-encoded events for one session.
// The caller must call the returned unsubscribe func when done.
func (h *Hub) Subscribe(sessionID string) (<-chan []byte, func()) {
	ch := make(subscriber, 64)
	h.mu.Lock()
	set := h.subs[sessionID]
	if set == nil {
		set = map[subscriber]struct{}{}
		h.subs[sessionID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[sessionID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, sessionID)
				}
			}
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, unsubscribe
}

// Subscribers reports how many subscribers a session has.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

func (h *Hub) Publish(sessionID string, ev Event) {
	ev.SessionID = sessionID
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.RLock()
	for ch := range h.subs[sessionID] {
		// non-blocking send
		select {
		case ch <- b:
		default:
		}
	}
	h.mu.RUnlock()
}

// TokenAppender returns a function that buffers streamed chunks per stream
// and publishes them as coalesced token events on the flush cadence.
func (h *Hub) TokenAppender(sessionID string) func(streamID, chunk string) {
	h.tokMu.Lock()
	if _, ok := h.tokBuf[sessionID]; !ok {
		h.tokBuf[sessionID] = map[string]string{}
	}
	if _, ok := h.tokStop[sessionID]; !ok {
		stop, done := make(chan struct{}), make(chan struct{})
		h.tokStop[sessionID] = stop
		h.tokDone[sessionID] = done
		go h.flushLoop(sessionID, stop, done)
	}
	h.tokMu.Unlock()
	return func(streamID, chunk string) {
		if chunk == "" || streamID == "" {
			return
		}
		h.tokMu.Lock()
		if _, ok := h.tokBuf[sessionID]; !ok {
			h.tokBuf[sessionID] = map[string]string{}
		}
		h.tokBuf[sessionID][streamID] += chunk
		h.tokMu.Unlock()
	}
}

func (h *Hub) takeTokens(sessionID string) map[string]string {
	h.tokMu.Lock()
	defer h.tokMu.Unlock()
	buf := h.tokBuf[sessionID]
	if len(buf) == 0 {
		return nil
	}
	out := make(map[string]string, len(buf))
	for sid, s := range buf {
		if s != "" {
			out[sid] = s
		}
		delete(buf, sid)
	}
	return out
}

func (h *Hub) publishTokens(sessionID string, chunks map[string]string) {
	for sid, chunk := range chunks {
		h.Publish(sessionID, Event{Event: EventToken, Payload: map[string]any{"stream_id": sid, "chunk": chunk}})
	}
}

func (h *Hub) flushLoop(sessionID string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := h.FlushInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.publishTokens(sessionID, h.takeTokens(sessionID))
		}
	}
}

// StopTokenAppender stops the coalescer for a session and flushes what is
// left. It returns once the flush loop has exited.
func (h *Hub) StopTokenAppender(sessionID string) {
	h.tokMu.Lock()
	stop, done := h.tokStop[sessionID], h.tokDone[sessionID]
	delete(h.tokStop, sessionID)
	delete(h.tokDone, sessionID)
	h.tokMu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
	h.publishTokens(sessionID, h.takeTokens(sessionID))
	h.tokMu.Lock()
	delete(h.tokBuf, sessionID)
	h.tokMu.Unlock()
}
