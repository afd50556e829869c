package history

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/flashline-core/internal/events"
)

// Activity actions.
const (
	ActionRun       = "run"
	ActionZeroTouch = "zerotouch"
	actionBatch     = "batch:" // followed by the batch action name
)

const (
	queueSize    = 256
	drainTimeout = 5 * time.Second
)

// Logger defines the logging interface used by the Sink.
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

// Sink turns bus events into activity rows.
//
// Publish never blocks: when the queue is full the entry is dropped and a
// warning logged. Nothing is written until Run is started.
type Sink struct {
	repo   Repository
	logger Logger
	queue  chan Entry
	now    func() time.Time
}

// NewSink creates a sink writing to repo.
func NewSink(repo Repository, logger Logger) *Sink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Sink{
		repo:   repo,
		logger: logger,
		queue:  make(chan Entry, queueSize),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Publish implements events.Sink.
func (s *Sink) Publish(channel string, payload any) {
	e, ok := s.entryFor(channel, payload)
	if !ok {
		return
	}
	select {
	case s.queue <- e:
	default:
		s.logger.Warn("activity queue full, entry dropped", "action", e.Action, "serial", e.DeviceSerial)
	}
}

// Run writes queued entries until ctx ends, then drains what is left.
func (s *Sink) Run(ctx context.Context) error {
	for {
		select {
		case e := <-s.queue:
			s.write(ctx, e)
		case <-ctx.Done():
			s.drain(ctx)
			return nil
		}
	}
}

func (s *Sink) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	for {
		select {
		case e := <-s.queue:
			s.write(drainCtx, e)
		default:
			return
		}
	}
}

func (s *Sink) write(ctx context.Context, e Entry) {
	if err := s.repo.Record(ctx, &e); err != nil {
		s.logger.Error("recording activity failed", "action", e.Action, "error", err)
	}
}

func (s *Sink) entryFor(channel string, payload any) (Entry, bool) {
	switch p := payload.(type) {
	case events.RunFinished:
		if channel != events.ChannelRunFinished {
			return Entry{}, false
		}
		details := fmt.Sprintf("plan %s: %d/%d steps run, %d failed", p.Plan, p.StepsRun, p.StepsTotal, p.Failed)
		if p.Error != "" {
			details += ": " + p.Error
		}
		ts := p.Timestamp
		if ts.IsZero() {
			ts = s.now()
		}
		return Entry{
			Action:       ActionRun,
			Details:      details,
			Status:       p.Status,
			Timestamp:    ts,
			DeviceSerial: p.Key,
			RunID:        p.RunID,
		}, true

	case events.BatchProgress:
		status := "success"
		if !p.Success {
			status = "error"
		}
		return Entry{
			Action:       actionBatch + p.Action,
			Details:      p.Message,
			Status:       status,
			Timestamp:    s.now(),
			DeviceSerial: p.Serial,
			RunID:        p.JobID,
		}, true

	case events.ZeroTouch:
		if p.Status == events.ZeroTouchCountdown {
			return Entry{}, false
		}
		return Entry{
			Action:       ActionZeroTouch,
			Details:      p.Message,
			Status:       string(p.Status),
			Timestamp:    s.now(),
			DeviceSerial: p.Serial,
		}, true
	}
	return Entry{}, false
}
