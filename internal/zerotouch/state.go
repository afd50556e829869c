package zerotouch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/flashline-core/internal/device"
)

// MaxCountdownSeconds caps the configurable countdown.
const MaxCountdownSeconds = 3600

// Config is the operator-controlled part of the zero-touch state.
type Config struct {
	Enabled          bool   `json:"enabled"`
	TargetSerial     string `json:"target_serial,omitempty"`
	PlanPath         string `json:"plan_path,omitempty"`
	CountdownSeconds uint64 `json:"countdown_seconds"`
}

// Validate checks a configuration before it is applied from the API.
func (c Config) Validate() error {
	if c.Enabled && c.PlanPath == "" {
		return ErrNoPlanPath
	}
	if c.CountdownSeconds > MaxCountdownSeconds {
		return fmt.Errorf("%w: %d > %d", ErrCountdownTooLong, c.CountdownSeconds, MaxCountdownSeconds)
	}
	return nil
}

// Snapshot is a point-in-time copy of the full state.
type Snapshot struct {
	Config
	ProcessedDevices []string `json:"processed_devices"`
	CountingDown     bool     `json:"counting_down"`
	CountingSerials  []string `json:"counting_serials,omitempty"`
}

// State is the shared zero-touch state. One instance is injected into the
// trigger and the API handlers.
//
// Thread Safety: All methods are safe for concurrent use.
type State struct {
	mu        sync.Mutex
	cfg       Config
	processed map[string]struct{}
	counting  map[string]context.CancelFunc
	// dismissed holds serials whose countdown was cancelled while attached.
	dismissed map[string]struct{}
}

// NewState creates a state with an initial configuration.
func NewState(cfg Config) *State {
	return &State{
		cfg:       cfg,
		processed: make(map[string]struct{}),
		counting:  make(map[string]context.CancelFunc),
		dismissed: make(map[string]struct{}),
	}
}

// Snapshot returns a copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Config:           s.cfg,
		ProcessedDevices: make([]string, 0, len(s.processed)),
		CountingDown:     len(s.counting) > 0,
	}
	for serial := range s.processed {
		snap.ProcessedDevices = append(snap.ProcessedDevices, serial)
	}
	for serial := range s.counting {
		snap.CountingSerials = append(snap.CountingSerials, serial)
	}
	sort.Strings(snap.ProcessedDevices)
	sort.Strings(snap.CountingSerials)
	return snap
}

// Config returns the current configuration.
func (s *State) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Configure replaces the configuration. Processed devices and running
// countdowns are untouched.
func (s *State) Configure(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// CancelCountdown aborts every running countdown. It reports whether any
// countdown was running.
func (s *State) CancelCountdown() bool {
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.counting))
	for _, cancel := range s.counting {
		cancels = append(cancels, cancel)
	}
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return len(cancels) > 0
}

// Processed reports whether serial has already been handled.
func (s *State) Processed(serial string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[serial]
	return ok
}

// Reset forgets every processed device, as if the service had restarted.
func (s *State) Reset() {
	s.mu.Lock()
	s.processed = make(map[string]struct{})
	s.dismissed = make(map[string]struct{})
	s.mu.Unlock()
}

// skipReason explains why a device was not reserved.
type skipReason string

const (
	skipNone      skipReason = ""
	skipDisabled  skipReason = "disabled"
	skipProcessed skipReason = "already processed"
	skipBusy      skipReason = "countdown in progress"
	skipDismissed skipReason = "countdown cancelled"
	skipTarget    skipReason = "target mismatch"
	skipNoPlan    skipReason = "no plan path"
)

// reserve checks eligibility and claims serial for a countdown in one
// critical section, so two observers of the same device cannot both start.
func (s *State) reserve(serial string, cancel context.CancelFunc) (Config, skipReason) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg
	if !cfg.Enabled {
		return cfg, skipDisabled
	}
	if _, done := s.processed[serial]; done {
		return cfg, skipProcessed
	}
	if _, busy := s.counting[serial]; busy {
		return cfg, skipBusy
	}
	if _, gone := s.dismissed[serial]; gone {
		return cfg, skipDismissed
	}
	if cfg.TargetSerial != "" && cfg.TargetSerial != serial {
		return cfg, skipTarget
	}
	if cfg.PlanPath == "" {
		return cfg, skipNoPlan
	}
	s.counting[serial] = cancel
	return cfg, skipNone
}

// release drops a reservation, optionally marking the serial processed.
func (s *State) release(serial string, processed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counting, serial)
	if processed {
		s.processed[serial] = struct{}{}
	}
}

// dismiss drops a reservation after a cancelled countdown. The serial is not
// processed and is skipped until it leaves and comes back.
func (s *State) dismiss(serial string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counting, serial)
	s.dismissed[serial] = struct{}{}
}

// forgetAbsent clears the dismissal of every serial missing from present.
func (s *State) forgetAbsent(present []device.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dismissed) == 0 {
		return
	}
	attached := make(map[string]struct{}, len(present))
	for _, d := range present {
		attached[d.Serial] = struct{}{}
	}
	for serial := range s.dismissed {
		if _, ok := attached[serial]; !ok {
			delete(s.dismissed, serial)
		}
	}
}
