package events

import (
	"sync"
)

// Sink receives published events.
type Sink interface {
	Publish(channel string, payload any)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(channel string, payload any)

// Publish implements Sink.
func (f SinkFunc) Publish(channel string, payload any) { f(channel, payload) }

// Nop discards every event.
type Nop struct{}

// Publish implements Sink.
func (Nop) Publish(string, any) {}

// Logger defines the logging interface used by Fanout.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Fanout delivers each event to every registered sink in registration order.
// A panicking sink is logged and skipped so it cannot take down a run.
//
// Thread Safety: All methods are safe for concurrent use.
type Fanout struct {
	mu     sync.RWMutex
	sinks  []Sink
	logger Logger
}

// NewFanout creates a Fanout over sinks. Nil sinks are ignored.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{logger: noopLogger{}}
	for _, s := range sinks {
		f.Add(s)
	}
	return f
}

// SetLogger sets the logger used to report panicking sinks.
func (f *Fanout) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	f.mu.Lock()
	f.logger = logger
	f.mu.Unlock()
}

// Add registers another sink.
func (f *Fanout) Add(s Sink) {
	if s == nil {
		return
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
}

// Len returns the number of registered sinks.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sinks)
}

// Publish implements Sink.
func (f *Fanout) Publish(channel string, payload any) {
	f.mu.RLock()
	sinks := f.sinks
	logger := f.logger
	f.mu.RUnlock()

	for _, s := range sinks {
		deliver(s, channel, payload, logger)
	}
}

func deliver(s Sink, channel string, payload any, logger Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event sink panicked", "channel", channel, "panic", r)
		}
	}()
	s.Publish(channel, payload)
}
