package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/flashline-core/internal/device"
	"github.com/nerrad567/flashline-core/internal/events"
	"github.com/nerrad567/flashline-core/internal/plan"
)

// pauseRecheckInterval bounds how long a paused run sleeps between flag
// checks if a wake-up notification is missed.
const pauseRecheckInterval = 500 * time.Millisecond

// Engine interprets one plan at a time.
//
// Thread Safety: Execute may be called from any goroutine but only one call
// is active at a time; a second concurrent call fails with ErrRunInProgress.
// Pause, Resume and Cancel are safe at any time.
type Engine struct {
	key     string
	serial  string
	adapter Adapter
	sink    events.Sink
	logger  Logger
	state   *RunState
	running atomic.Bool

	now         func() time.Time
	pauseRetick time.Duration
}

// NewEngine creates an engine.
//
// Parameters:
//   - serial: Device the engine is bound to; used when a plan targets "auto".
//     Empty leaves "auto" plans to pick the first bootloader device.
//   - adapter: adb/fastboot control surface
//   - sink: Receives execution log entries (may be nil)
//   - logger: Logger instance (may be nil)
func NewEngine(serial string, adapter Adapter, sink events.Sink, logger Logger) *Engine {
	if sink == nil {
		sink = events.Nop{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	bound := serial
	if bound == plan.AutoTarget {
		bound = ""
	}
	return &Engine{
		key:         serial,
		serial:      bound,
		adapter:     adapter,
		sink:        sink,
		logger:      logger,
		state:       newRunState(),
		now:         time.Now,
		pauseRetick: pauseRecheckInterval,
	}
}

// Pause holds the run before its next step. Pausing an idle engine arms the
// pause for the next run.
func (e *Engine) Pause() { e.state.setPaused(true) }

// Resume releases a pause.
func (e *Engine) Resume() { e.state.setPaused(false) }

// Cancel stops the active run at the next step boundary, or immediately if
// it is paused. The step in flight completes.
func (e *Engine) Cancel() { e.state.cancel() }

// Paused reports whether the engine is paused.
func (e *Engine) Paused() bool { return e.state.Paused() }

// Running reports whether a run is active.
func (e *Engine) Running() bool { return e.running.Load() }

// Execute runs every step of p in order and blocks until the run ends.
//
// Returns:
//   - Summary: Outcome of the run; StatusPartial when continue_on_error saw failures
//   - error: nil on success (including partial), or:
//   - ErrRunInProgress if another Execute is active
//   - ErrCancelled (possibly wrapping the context error) on cancellation
//   - *StepError for the first failed step when continue_on_error is false
func (e *Engine) Execute(ctx context.Context, p *plan.Plan) (Summary, error) {
	return e.execute(ctx, uuid.NewString(), p)
}

func (e *Engine) execute(ctx context.Context, runID string, p *plan.Plan) (Summary, error) { //nolint:gocognit // interpreter loop: pause, cancel, dispatch, failure policy
	if p == nil || len(p.Steps) == 0 {
		return Summary{}, plan.ErrEmptyPlan
	}
	if !e.running.CompareAndSwap(false, true) {
		return Summary{}, ErrRunInProgress
	}
	defer e.running.Store(false)

	e.state.resetCancelled()

	vars := e.buildVars(ctx, p)
	serial := vars[plan.VarDeviceSerial]

	summary := Summary{
		RunID:      runID,
		Key:        e.key,
		Plan:       p.Name,
		Serial:     serial,
		StepsTotal: len(p.Steps),
		StartedAt:  e.now().UTC(),
	}

	e.logger.Info("plan run started",
		"run_id", runID,
		"plan", p.Name,
		"serial", serial,
		"steps", len(p.Steps),
	)

	for i, step := range p.Steps {
		if err := e.checkCancelled(ctx); err != nil {
			e.publishStep(runID, i, events.StepError, cancelMessage(err))
			return e.finish(summary, StatusCancelled), err
		}

		if err := e.waitWhilePaused(ctx, runID, i); err != nil {
			e.publishStep(runID, i, events.StepError, cancelMessage(err))
			return e.finish(summary, StatusCancelled), err
		}

		e.publishStep(runID, i, events.StepRunning, fmt.Sprintf("executing step %d: %s", i+1, step.Kind()))

		resolved := step.Substitute(vars)
		msg, err := e.dispatch(ctx, p, runID, i, adapterSerial(serial), resolved)
		summary.StepsRun++

		if err == nil {
			e.publishStep(runID, i, events.StepSuccess, msg)
			continue
		}

		e.publishStep(runID, i, events.StepError, err.Error())
		e.logger.Warn("plan step failed",
			"run_id", runID,
			"step", i+1,
			"kind", step.Kind(),
			"error", err,
		)

		summary.FailedSteps = append(summary.FailedSteps, i)
		if !p.ContinueOnError {
			return e.finish(summary, StatusFailed), &StepError{Index: i, Kind: step.Kind(), Err: err}
		}
	}

	status := StatusCompleted
	if len(summary.FailedSteps) > 0 {
		status = StatusPartial
	}
	summary = e.finish(summary, status)

	e.sink.Publish(events.ChannelPlanComplete, events.PlanComplete{
		RunID:       runID,
		Key:         e.key,
		Plan:        p.Name,
		Status:      string(status),
		FailedSteps: summary.FailedSteps,
		Timestamp:   summary.FinishedAt,
	})
	return summary, nil
}

func (e *Engine) finish(s Summary, status RunStatus) Summary {
	s.Status = status
	s.FinishedAt = e.now().UTC()
	e.logger.Info("plan run finished",
		"run_id", s.RunID,
		"plan", s.Plan,
		"status", status,
		"steps_run", s.StepsRun,
		"failed", len(s.FailedSteps),
		"duration_ms", s.Duration().Milliseconds(),
	)
	return s
}

// checkCancelled treats an ended context the same as Cancel.
func (e *Engine) checkCancelled(ctx context.Context) error {
	if e.state.Cancelled() {
		return ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}

// waitWhilePaused blocks until the engine is resumed. The step index never
// advances while paused.
func (e *Engine) waitWhilePaused(ctx context.Context, runID string, index int) error {
	announced := false
	for e.state.Paused() {
		if err := e.checkCancelled(ctx); err != nil {
			return err
		}
		if !announced {
			e.publishStep(runID, index, events.StepPaused, "paused, waiting for resume")
			announced = true
		}

		changed := e.state.wait()
		if !e.state.Paused() || e.state.Cancelled() {
			continue
		}

		timer := time.NewTimer(e.pauseRetick)
		select {
		case <-changed:
		case <-timer.C:
		case <-ctx.Done():
		}
		timer.Stop()
	}
	return e.checkCancelled(ctx)
}

// buildVars resolves the run variables. An explicit plan target wins; an
// "auto" plan uses the engine's bound serial, then the first device in
// bootloader mode, and stays "auto" if none is found.
func (e *Engine) buildVars(ctx context.Context, p *plan.Plan) plan.Vars {
	serial := p.DeviceTarget
	if serial == plan.AutoTarget {
		switch {
		case e.serial != "":
			serial = e.serial
		case e.adapter != nil:
			devices, err := e.adapter.Devices(ctx, device.ConnectionFastboot)
			if err != nil {
				e.logger.Debug("auto target enumeration failed", "error", err)
			} else if len(devices) > 0 {
				serial = devices[0].Serial
			}
		}
	}
	return plan.NewVars(e.now(), serial)
}

func (e *Engine) publishStep(runID string, index int, status events.StepStatus, message string) {
	e.sink.Publish(events.ChannelPlanUpdate, events.StepUpdate{
		RunID:     runID,
		Key:       e.key,
		StepIndex: index,
		Status:    status,
		Message:   message,
		Timestamp: e.now().UTC(),
	})
}

func cancelMessage(err error) string {
	if err == nil || err == ErrCancelled { //nolint:errorlint // exact sentinel means a user cancel
		return ErrCancelled.Error()
	}
	return "cancelled: service shutting down"
}

// adapterSerial maps an unresolved "auto" target to an empty serial so the
// tools address their only attached device.
func adapterSerial(serial string) string {
	if serial == plan.AutoTarget {
		return ""
	}
	return serial
}
