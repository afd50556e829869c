// Package telemetry turns bus events into time-series points.
package telemetry

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/flashline-core/internal/events"
)

// Measurement names.
const (
	MeasurementStep      = "flash_step"
	MeasurementRun       = "flash_run"
	MeasurementBatch     = "batch_task"
	MeasurementZeroTouch = "zerotouch"
)

// PointWriter queues points. influxdb.Client satisfies it.
type PointWriter interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time)
}

// Sink writes one point per finished step, run, batch task and zero-touch
// transition. Writes are queued by the PointWriter, so Publish stays cheap.
type Sink struct {
	writer PointWriter
	now    func() time.Time

	mu      sync.Mutex
	started map[string]time.Time // "<run_id>/<step>" → running timestamp
}

// NewSink creates a telemetry sink over writer.
func NewSink(writer PointWriter) *Sink {
	return &Sink{
		writer:  writer,
		now:     time.Now,
		started: make(map[string]time.Time),
	}
}

// Publish implements events.Sink.
func (s *Sink) Publish(channel string, payload any) {
	switch p := payload.(type) {
	case events.StepUpdate:
		s.step(p)

	case events.RunFinished:
		if channel != events.ChannelRunFinished {
			return
		}
		ts := p.Timestamp
		if ts.IsZero() {
			ts = s.now()
		}
		s.writer.WritePointWithTime(MeasurementRun,
			map[string]string{"device": p.Key, "plan": p.Plan, "status": p.Status},
			map[string]any{
				"steps_total": p.StepsTotal,
				"steps_run":   p.StepsRun,
				"failed":      p.Failed,
				"duration_ms": p.DurationMS,
			},
			ts,
		)

	case events.BatchProgress:
		s.writer.WritePointWithTime(MeasurementBatch,
			map[string]string{"action": p.Action, "device": p.Serial, "success": strconv.FormatBool(p.Success)},
			map[string]any{"completed": p.Completed, "total": p.Total},
			s.now(),
		)

	case events.ZeroTouch:
		if p.Status == events.ZeroTouchCountdown {
			return
		}
		s.writer.WritePointWithTime(MeasurementZeroTouch,
			map[string]string{"device": p.Serial, "status": string(p.Status)},
			map[string]any{"count": 1},
			s.now(),
		)
	}
}

func (s *Sink) step(u events.StepUpdate) {
	key := fmt.Sprintf("%s/%d", u.RunID, u.StepIndex)
	ts := u.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	s.mu.Lock()
	switch u.Status {
	case events.StepRunning:
		s.started[key] = ts
		s.mu.Unlock()
		return
	case events.StepSuccess, events.StepError:
	default:
		s.mu.Unlock()
		return
	}
	start, ok := s.started[key]
	delete(s.started, key)
	s.mu.Unlock()

	fields := map[string]any{"step_index": u.StepIndex}
	if ok {
		fields["duration_ms"] = ts.Sub(start).Milliseconds()
	}
	s.writer.WritePointWithTime(MeasurementStep,
		map[string]string{"device": u.Key, "status": string(u.Status)},
		fields,
		ts,
	)
}

// Pending returns how many steps are running without a result yet.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.started)
}
