package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/flashline-core/internal/events"
	"github.com/nerrad567/flashline-core/internal/plan"
)

// RunInfo is a snapshot of a supervised run.
type RunInfo struct {
	ID         string     `json:"id"`
	Key        string     `json:"key"`
	Plan       string     `json:"plan"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Summary    *Summary   `json:"summary,omitempty"`
}

type supervised struct {
	engine *Engine
	info   RunInfo
	active bool
}

// Supervisor keeps one Engine per run key so several devices can be flashed
// at once while each device still runs a single plan at a time.
//
// Thread Safety: All methods are safe for concurrent use.
type Supervisor struct {
	adapter Adapter
	sink    events.Sink
	logger  Logger

	mu   sync.Mutex
	runs map[string]*supervised
	wg   sync.WaitGroup

	// newRunID is replaced in tests.
	newRunID func() string
}

// NewSupervisor creates a supervisor whose engines share adapter and sink.
func NewSupervisor(adapter Adapter, sink events.Sink, logger Logger) *Supervisor {
	if sink == nil {
		sink = events.Nop{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Supervisor{
		adapter:  adapter,
		sink:     sink,
		logger:   logger,
		runs:     make(map[string]*supervised),
		newRunID: uuid.NewString,
	}
}

// RunKey picks the supervisor key for a run: the serial when known,
// otherwise the plan's device target.
func RunKey(serial string, p *plan.Plan) string {
	if serial != "" {
		return serial
	}
	if p != nil {
		return p.DeviceTarget
	}
	return ""
}

// Start launches p in the background and returns immediately.
//
// The run is detached from ctx's cancellation so it outlives the request
// that started it; stop it with Cancel or Shutdown.
func (s *Supervisor) Start(ctx context.Context, key string, p *plan.Plan) (RunInfo, error) {
	entry, info, err := s.begin(key, p)
	if err != nil {
		return RunInfo{}, err
	}

	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer s.wg.Done()
		summary, runErr := entry.engine.execute(runCtx, info.ID, p)
		s.complete(key, summary, runErr)
	}()
	return info, nil
}

// Run executes p synchronously under ctx. Zero-touch and schedule flows use
// it so devices are handled one plan after another.
func (s *Supervisor) Run(ctx context.Context, key string, p *plan.Plan) (Summary, error) {
	entry, info, err := s.begin(key, p)
	if err != nil {
		return Summary{}, err
	}
	defer s.wg.Done()

	summary, runErr := entry.engine.execute(ctx, info.ID, p)
	s.complete(key, summary, runErr)
	return summary, runErr
}

func (s *Supervisor) begin(key string, p *plan.Plan) (*supervised, RunInfo, error) {
	if p == nil || len(p.Steps) == 0 {
		return nil, RunInfo{}, plan.ErrEmptyPlan
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entryLocked(key)
	if entry.active {
		return nil, RunInfo{}, ErrRunInProgress
	}

	entry.active = true
	entry.info = RunInfo{
		ID:        s.newRunID(),
		Key:       key,
		Plan:      p.Name,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	s.wg.Add(1)
	return entry, entry.info, nil
}

func (s *Supervisor) entryLocked(key string) *supervised {
	entry, ok := s.runs[key]
	if !ok {
		entry = &supervised{engine: NewEngine(key, s.adapter, s.sink, s.logger)}
		s.runs[key] = entry
	}
	return entry
}

func (s *Supervisor) complete(key string, summary Summary, runErr error) {
	s.mu.Lock()
	entry := s.runs[key]
	entry.active = false
	finished := time.Now().UTC()
	entry.info.FinishedAt = &finished
	entry.info.Status = summary.Status
	if entry.info.Status == "" {
		entry.info.Status = StatusFailed
	}
	if runErr != nil {
		entry.info.Error = runErr.Error()
	}
	entry.info.Summary = &summary
	info := entry.info
	s.mu.Unlock()

	finishedEvent := events.RunFinished{
		RunID:      info.ID,
		Key:        key,
		Plan:       info.Plan,
		Status:     string(info.Status),
		Error:      info.Error,
		StepsTotal: summary.StepsTotal,
		StepsRun:   summary.StepsRun,
		Failed:     len(summary.FailedSteps),
		DurationMS: finished.Sub(info.StartedAt).Milliseconds(),
		Timestamp:  finished,
	}
	s.sink.Publish(events.ChannelRunFinished, finishedEvent)
}

// Pause pauses the engine for key. An idle key is created so the pause is
// armed for its next run.
func (s *Supervisor) Pause(key string) {
	s.mu.Lock()
	entry := s.entryLocked(key)
	s.mu.Unlock()
	entry.engine.Pause()
}

// Resume resumes the engine for key.
func (s *Supervisor) Resume(key string) error {
	e, err := s.engine(key)
	if err != nil {
		return err
	}
	e.Resume()
	return nil
}

// Cancel cancels the active run for key.
func (s *Supervisor) Cancel(key string) error {
	s.mu.Lock()
	entry, ok := s.runs[key]
	active := ok && entry.active
	s.mu.Unlock()
	if !active {
		return ErrRunNotFound
	}
	entry.engine.Cancel()
	return nil
}

func (s *Supervisor) engine(key string) (*Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.runs[key]
	if !ok {
		return nil, ErrRunNotFound
	}
	return entry.engine, nil
}

// Get returns the latest run for key.
func (s *Supervisor) Get(key string) (RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.runs[key]
	if !ok || entry.info.ID == "" {
		return RunInfo{}, ErrRunNotFound
	}
	return snapshot(entry), nil
}

// Runs lists the latest run of every key, oldest first.
func (s *Supervisor) Runs() []RunInfo {
	s.mu.Lock()
	out := make([]RunInfo, 0, len(s.runs))
	for _, entry := range s.runs {
		if entry.info.ID == "" {
			continue
		}
		out = append(out, snapshot(entry))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Active reports whether key has a run in progress.
func (s *Supervisor) Active(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.runs[key]
	return ok && entry.active
}

func snapshot(entry *supervised) RunInfo {
	info := entry.info
	if entry.active && entry.engine.Paused() {
		info.Status = StatusPaused
	}
	return info
}

// Wait blocks until every supervised run has returned or ctx ends.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels every active run and waits for them to stop at their
// next step boundary.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	var active []*Engine
	for _, entry := range s.runs {
		if entry.active {
			active = append(active, entry.engine)
		}
	}
	s.mu.Unlock()

	for _, e := range active {
		e.Cancel()
	}
	if err := s.Wait(ctx); err != nil {
		return errors.Join(errors.New("runs still active at shutdown"), err)
	}
	return nil
}
