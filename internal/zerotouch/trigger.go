package zerotouch

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/flashline-core/internal/device"
	"github.com/nerrad567/flashline-core/internal/engine"
	"github.com/nerrad567/flashline-core/internal/events"
	"github.com/nerrad567/flashline-core/internal/plan"
)

// Runner executes a plan synchronously. engine.Supervisor satisfies it.
type Runner interface {
	Run(ctx context.Context, key string, p *plan.Plan) (engine.Summary, error)
}

// Logger defines the logging interface used by the Trigger.
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

// Outcome is the result of one evaluation.
type Outcome string

// Evaluation outcomes.
const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeCancelled Outcome = "cancelled"
	OutcomePlanError Outcome = "plan_error"
	OutcomeFailed    Outcome = "failed"
	OutcomeCompleted Outcome = "completed"
)

// Trigger reacts to device arrivals.
type Trigger struct {
	state    *State
	runner   Runner
	sink     events.Sink
	logger   Logger
	loadPlan func(path string) (*plan.Plan, error)

	// tick is the countdown step; one second outside tests.
	tick time.Duration

	wg sync.WaitGroup
}

// NewTrigger creates a trigger over a shared state.
func NewTrigger(state *State, runner Runner, sink events.Sink, logger Logger) *Trigger {
	if sink == nil {
		sink = events.Nop{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Trigger{
		state:    state,
		runner:   runner,
		sink:     sink,
		logger:   logger,
		loadPlan: plan.LoadFile,
		tick:     time.Second,
	}
}

// OnDevices evaluates every device in the latest listing. Serials that
// have left since the previous tick get a fresh session, so a device whose
// countdown was cancelled is offered again after it is replugged.
func (t *Trigger) OnDevices(ctx context.Context, all []device.Status, _ []string) {
	t.state.forgetAbsent(all)
	t.Observe(ctx, all)
}

// Observe spawns one independent evaluation per device.
func (t *Trigger) Observe(ctx context.Context, devices []device.Status) {
	for _, d := range devices {
		t.wg.Add(1)
		go func(serial string) {
			defer t.wg.Done()
			t.Evaluate(ctx, serial)
		}(d.Serial)
	}
}

// Wait blocks until every evaluation spawned by Observe has returned or ctx ends.
func (t *Trigger) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Evaluate runs the zero-touch flow for one serial and blocks until the
// countdown is cancelled or the plan finishes.
func (t *Trigger) Evaluate(ctx context.Context, serial string) Outcome {
	countdownCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, reason := t.state.reserve(serial, cancel)
	if reason != skipNone {
		t.logger.Debug("zero-touch skipped", "serial", serial, "reason", string(reason))
		return OutcomeSkipped
	}

	t.logger.Info("zero-touch device detected",
		"serial", serial,
		"plan_path", cfg.PlanPath,
		"countdown_seconds", cfg.CountdownSeconds,
	)
	t.publish(events.ZeroTouch{Serial: serial, Status: events.ZeroTouchDetected})

	if !t.countdown(countdownCtx, serial, cfg.CountdownSeconds) {
		t.state.dismiss(serial)
		t.publish(events.ZeroTouch{Serial: serial, Status: events.ZeroTouchCancelled})
		t.logger.Info("zero-touch countdown cancelled", "serial", serial)
		return OutcomeCancelled
	}

	t.publish(events.ZeroTouch{Serial: serial, Status: events.ZeroTouchStarted})
	t.state.release(serial, true)

	p, err := t.loadPlan(cfg.PlanPath)
	if err != nil {
		t.publish(events.ZeroTouch{Serial: serial, Status: events.ZeroTouchError, Message: err.Error()})
		t.logger.Warn("zero-touch plan load failed", "serial", serial, "plan_path", cfg.PlanPath, "error", err)
		return OutcomePlanError
	}

	summary, err := t.runner.Run(ctx, serial, p)
	if err != nil {
		t.publish(events.ZeroTouch{Serial: serial, Status: events.ZeroTouchError, Message: err.Error()})
		t.logger.Warn("zero-touch run failed", "serial", serial, "plan", p.Name, "error", err)
		return OutcomeFailed
	}

	t.logger.Info("zero-touch run finished", "serial", serial, "plan", p.Name, "status", summary.Status)
	return OutcomeCompleted
}

// countdown publishes remaining seconds from n down to 0, one tick apart.
// A zero countdown publishes nothing. It returns false if ctx ends first.
func (t *Trigger) countdown(ctx context.Context, serial string, n uint64) bool {
	if n == 0 {
		return ctx.Err() == nil
	}
	for remaining := n; remaining > 0; remaining-- {
		t.tickEvent(serial, remaining)

		timer := time.NewTimer(t.tick)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return false
		}
	}
	if ctx.Err() != nil {
		return false
	}
	t.tickEvent(serial, 0)
	return true
}

func (t *Trigger) tickEvent(serial string, remaining uint64) {
	t.publish(events.ZeroTouch{Serial: serial, Status: events.ZeroTouchCountdown, Remaining: &remaining})
}

func (t *Trigger) publish(ev events.ZeroTouch) {
	t.sink.Publish(events.ChannelZeroTouch, ev)
}
