package batch

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/flashline-core/internal/events"
)

// DefaultMaxParallel bounds concurrent tasks when no limit is configured.
const DefaultMaxParallel = 8

// Action names.
const (
	ActionReboot           = "reboot"
	ActionRebootBootloader = "reboot-bootloader"
	ActionRebootRecovery   = "reboot-recovery"
	ActionRebootFastboot   = "reboot-fastboot"
	ActionRebootSideload   = "reboot-sideload"
)

// rebootModes maps each action to the reboot target it requests.
var rebootModes = map[string]string{
	ActionReboot:           "system",
	ActionRebootBootloader: "bootloader",
	ActionRebootRecovery:   "recovery",
	ActionRebootFastboot:   "fastboot",
	ActionRebootSideload:   "sideload",
}

// Actions lists the supported action names.
func Actions() []string {
	return []string{
		ActionReboot,
		ActionRebootBootloader,
		ActionRebootRecovery,
		ActionRebootFastboot,
		ActionRebootSideload,
	}
}

// Supported reports whether action is known.
func Supported(action string) bool {
	_, ok := rebootModes[action]
	return ok
}

// Status is the overall outcome of a job.
type Status string

// Job statuses.
const (
	StatusCompleted Status = "completed" // every device succeeded
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed" // no device succeeded
)

// Result is the outcome for one device.
type Result struct {
	Serial  string `json:"serial"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Job describes a finished batch.
type Job struct {
	ID            string   `json:"id"`
	DeviceSerials []string `json:"device_serials"`
	Action        string   `json:"action"`
	Status        Status   `json:"status"`
	Results       []Result `json:"results"`
}

// Adapter is the device control surface used by batch actions.
type Adapter interface {
	Reboot(ctx context.Context, serial, mode string) (string, error)
	RebootBootloader(ctx context.Context, serial, mode string) (string, error)
}

// Logger defines the logging interface used by the Dispatcher.
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

// Dispatcher runs batch jobs.
type Dispatcher struct {
	adapter     Adapter
	sink        events.Sink
	logger      Logger
	maxParallel int
}

// NewDispatcher creates a dispatcher. maxParallel <= 0 selects DefaultMaxParallel.
func NewDispatcher(adapter Adapter, sink events.Sink, maxParallel int, logger Logger) *Dispatcher {
	if sink == nil {
		sink = events.Nop{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	return &Dispatcher{
		adapter:     adapter,
		sink:        sink,
		logger:      logger,
		maxParallel: maxParallel,
	}
}

// Execute runs action on every serial and waits for all of them.
// Task failures never abort sibling tasks. An unsupported action fails
// every task with "unsupported action: <name>".
func (d *Dispatcher) Execute(ctx context.Context, serials []string, action string) Job {
	job := Job{
		ID:            uuid.NewString(),
		DeviceSerials: append([]string(nil), serials...),
		Action:        action,
		Results:       make([]Result, len(serials)),
	}

	d.logger.Info("batch started", "job_id", job.ID, "action", action, "devices", len(serials))

	var completed atomic.Int32
	var g errgroup.Group
	g.SetLimit(d.maxParallel)

	for i, serial := range serials {
		g.Go(func() error {
			res := d.run(ctx, serial, action)
			job.Results[i] = res

			d.sink.Publish(events.ChannelBatchProgress, events.BatchProgress{
				JobID:     job.ID,
				Action:    action,
				Serial:    serial,
				Success:   res.Success,
				Message:   res.Message,
				Completed: int(completed.Add(1)),
				Total:     len(serials),
			})
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // tasks report through Results

	job.Status = summarise(job.Results)
	d.logger.Info("batch finished", "job_id", job.ID, "action", action, "status", job.Status)
	return job
}

func (d *Dispatcher) run(ctx context.Context, serial, action string) Result {
	mode, ok := rebootModes[action]
	if !ok {
		return Result{Serial: serial, Message: "unsupported action: " + action}
	}

	msg, adbErr := d.adapter.Reboot(ctx, serial, mode)
	if adbErr == nil {
		return Result{Serial: serial, Success: true, Message: msg}
	}

	msg, fbErr := d.adapter.RebootBootloader(ctx, serial, mode)
	if fbErr == nil {
		return Result{Serial: serial, Success: true, Message: msg}
	}

	d.logger.Debug("batch task failed", "serial", serial, "action", action, "error", fbErr)
	return Result{
		Serial:  serial,
		Message: fmt.Sprintf("adb: %v; fastboot: %v", adbErr, fbErr),
	}
}

func summarise(results []Result) Status {
	ok := 0
	for _, r := range results {
		if r.Success {
			ok++
		}
	}
	switch {
	case ok == len(results):
		return StatusCompleted
	case ok == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}
