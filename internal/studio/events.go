package studio

import (
	"sync"
	"time"
)

// Event targets.
const (
	TargetFrequencies = "frequencies"
	TargetMusic       = "music"
	TargetMixer       = "mixer"
	TargetExport      = "export"
)

// Event is a state change or status message for the user interface.
type Event struct {
	Target  string    `json:"target"`
	State   string    `json:"state,omitempty"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// subscriberBuffer is how many events a slow subscriber may lag behind
// before events are dropped for it.
const subscriberBuffer = 32

type hub struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[chan Event]struct{})}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

func (h *hub) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, drop the event
		}
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// Subscribe returns a channel of events and a func that ends the
// subscription. The channel is closed when the subscription ends or the
// studio closes. Slow subscribers miss events rather than block playback.
func (s *Studio) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

// Subscribers returns the number of live subscriptions.
func (s *Studio) Subscribers() int {
	return s.events.count()
}
