package events

import "sync"

// Event is one recorded publication.
type Event struct {
	Channel string
	Payload any
}

// Recorder is a Sink that keeps every event in memory for inspection in
// tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Sink.
func (r *Recorder) Publish(channel string, payload any) {
	r.mu.Lock()
	r.events = append(r.events, Event{Channel: channel, Payload: payload})
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Channel returns the payloads recorded on one channel, in order.
func (r *Recorder) Channel(channel string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []any
	for _, e := range r.events {
		if e.Channel == channel {
			out = append(out, e.Payload)
		}
	}
	return out
}

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
