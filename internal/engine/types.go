package engine

import (
	"context"
	"time"

	"github.com/nerrad567/flashline-core/internal/device"
)

// Adapter is the device control surface the engine drives.
// adapter.CLI satisfies it.
type Adapter interface {
	Devices(ctx context.Context, mode device.ConnectionType) ([]device.Status, error)
	Erase(ctx context.Context, serial, partition string) (string, error)
	Flash(ctx context.Context, serial, partition, file string) (string, error)
	Update(ctx context.Context, serial, file string) (string, error)
	Boot(ctx context.Context, serial, file string) (string, error)
	Sideload(ctx context.Context, serial, file string, onLine func(string)) (string, error)
	Reboot(ctx context.Context, serial, mode string) (string, error)
	RebootBootloader(ctx context.Context, serial, mode string) (string, error)
}

// Logger defines the logging interface used by the Engine and Supervisor.
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

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	StatusRunning   RunStatus = "running"
	StatusPaused    RunStatus = "paused"
	StatusCompleted RunStatus = "completed" // every step succeeded
	StatusPartial   RunStatus = "partial"   // continue_on_error with at least one failure
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Summary describes a finished run.
type Summary struct {
	RunID       string    `json:"run_id"`
	Key         string    `json:"key,omitempty"`
	Plan        string    `json:"plan"`
	Serial      string    `json:"serial"`
	Status      RunStatus `json:"status"`
	StepsTotal  int       `json:"steps_total"`
	StepsRun    int       `json:"steps_run"`
	FailedSteps []int     `json:"failed_steps,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Duration returns the wall time of the run.
func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
