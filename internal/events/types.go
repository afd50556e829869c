package events

import (
	"time"

	"github.com/nerrad567/flashline-core/internal/device"
)

// Channel names.
const (
	ChannelPlanUpdate    = "plan.update"
	ChannelPlanComplete  = "plan.complete"
	ChannelPlanOutput    = "plan.output"
	ChannelRunFinished   = "run.finished"
	ChannelDeviceStatus  = "device.status"
	ChannelBatchProgress = "batch.progress"
	ChannelZeroTouch     = "zerotouch"
)

// AllChannels lists every channel a consumer may subscribe to.
func AllChannels() []string {
	return []string{
		ChannelPlanUpdate,
		ChannelPlanComplete,
		ChannelPlanOutput,
		ChannelRunFinished,
		ChannelDeviceStatus,
		ChannelBatchProgress,
		ChannelZeroTouch,
	}
}

// StepStatus is the lifecycle marker of an execution log entry.
type StepStatus string

// Step statuses.
const (
	StepRunning StepStatus = "running"
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
	StepPaused  StepStatus = "paused"
)

// StepUpdate is an execution log entry, published on ChannelPlanUpdate.
type StepUpdate struct {
	RunID     string     `json:"run_id"`
	Key       string     `json:"key,omitempty"`
	StepIndex int        `json:"step_index"`
	Status    StepStatus `json:"status"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

// PlanComplete is published on ChannelPlanComplete when a run reaches the
// end of its steps.
type PlanComplete struct {
	RunID       string    `json:"run_id"`
	Key         string    `json:"key,omitempty"`
	Plan        string    `json:"plan"`
	Status      string    `json:"status"`
	FailedSteps []int     `json:"failed_steps,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// OutputLine is one line of streamed tool output, on ChannelPlanOutput.
type OutputLine struct {
	RunID     string `json:"run_id"`
	Key       string `json:"key,omitempty"`
	StepIndex int    `json:"step_index"`
	Line      string `json:"line"`
}

// RunFinished is published on ChannelRunFinished for every run outcome,
// including failures and cancellations.
type RunFinished struct {
	RunID      string    `json:"run_id"`
	Key        string    `json:"key"`
	Plan       string    `json:"plan"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StepsTotal int       `json:"steps_total"`
	StepsRun   int       `json:"steps_run"`
	Failed     int       `json:"failed"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// DeviceStatus is the merged device list, on ChannelDeviceStatus.
type DeviceStatus struct {
	Devices []device.Status `json:"devices"`
	Added   []string        `json:"added,omitempty"`
}

// BatchProgress is one finished batch task, on ChannelBatchProgress.
type BatchProgress struct {
	JobID     string `json:"job_id"`
	Action    string `json:"action"`
	Serial    string `json:"serial"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// ZeroTouchStatus is the lifecycle marker of a zero-touch event.
type ZeroTouchStatus string

// Zero-touch statuses.
const (
	ZeroTouchDetected  ZeroTouchStatus = "detected"
	ZeroTouchCountdown ZeroTouchStatus = "countdown"
	ZeroTouchCancelled ZeroTouchStatus = "cancelled"
	ZeroTouchStarted   ZeroTouchStatus = "started"
	ZeroTouchError     ZeroTouchStatus = "error"
)

// ZeroTouch is published on ChannelZeroTouch.
type ZeroTouch struct {
	Serial    string          `json:"serial"`
	Status    ZeroTouchStatus `json:"status"`
	Remaining *uint64         `json:"remaining,omitempty"`
	Message   string          `json:"message,omitempty"`
}
