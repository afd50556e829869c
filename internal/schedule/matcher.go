package schedule

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/flashline-core/internal/device"
	"github.com/nerrad567/flashline-core/internal/engine"
	"github.com/nerrad567/flashline-core/internal/plan"
	"github.com/nerrad567/flashline-core/internal/rules"
)

// Runner executes a plan synchronously. engine.Supervisor satisfies it.
type Runner interface {
	Run(ctx context.Context, key string, p *plan.Plan) (engine.Summary, error)
}

// Logger defines the logging interface used by the Matcher.
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

// Matcher runs scheduled plans for arriving devices.
type Matcher struct {
	store    *Store
	runner   Runner
	eval     *rules.Evaluator
	logger   Logger
	loadPlan func(path string) (*plan.Plan, error)

	mu      sync.Mutex
	handled map[string]struct{}

	wg sync.WaitGroup
}

// NewMatcher creates a matcher over store.
func NewMatcher(store *Store, runner Runner, logger Logger) (*Matcher, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	eval, err := rules.NewEvaluator("device")
	if err != nil {
		return nil, err
	}
	return &Matcher{
		store:    store,
		runner:   runner,
		eval:     eval,
		logger:   logger,
		loadPlan: plan.LoadFile,
		handled:  make(map[string]struct{}),
	}, nil
}

// Store returns the underlying schedule store.
func (m *Matcher) Store() *Store {
	return m.store
}

// Save validates entry, including its condition, and appends it.
func (m *Matcher) Save(entry Entry) error {
	if entry.When != "" {
		if err := m.eval.Compile(entry.When); err != nil {
			return fmt.Errorf("%w: when: %w", ErrInvalidEntry, err)
		}
	}
	return m.store.Add(entry)
}

// OnDevices spawns a match for every added serial not handled before. A
// serial for which no plan started is released again, so it is matched on
// its next arrival.
func (m *Matcher) OnDevices(ctx context.Context, all []device.Status, added []string) {
	if len(added) == 0 {
		return
	}

	byserial := make(map[string]device.Status, len(all))
	for _, s := range all {
		byserial[s.Serial] = s
	}

	for _, serial := range added {
		if !m.claim(serial) {
			continue
		}
		status, ok := byserial[serial]
		if !ok {
			status = device.Status{Serial: serial}
		}

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if m.Match(ctx, status) == 0 {
				m.Forget(status.Serial)
			}
		}()
	}
}

// Match runs every enabled entry that applies to d, one after another in
// file order, and returns how many plans were started.
func (m *Matcher) Match(ctx context.Context, d device.Status) int {
	doc, err := m.store.Load()
	if err != nil {
		m.logger.Debug("schedule load failed", "path", m.store.Path(), "error", err)
		return 0
	}

	input := map[string]any{
		"device": map[string]any{
			"serial":          d.Serial,
			"state":           d.State,
			"connection_type": string(d.ConnectionType),
		},
	}

	ran := 0
	for i, entry := range doc.Tasks {
		if !entry.Matches(d.Serial) {
			continue
		}
		if entry.When != "" {
			ok, err := m.eval.Eval(entry.When, input)
			if err != nil {
				m.logger.Warn("schedule condition failed", "entry", i, "serial", d.Serial, "error", err)
				continue
			}
			if !ok {
				continue
			}
		}

		path := m.store.WorkflowPath(entry.WorkflowFile)
		p, err := m.loadPlan(path)
		if err != nil {
			m.logger.Warn("scheduled workflow invalid", "entry", i, "path", path, "error", err)
			continue
		}

		m.logger.Info("scheduled plan starting", "serial", d.Serial, "plan", p.Name, "workflow", entry.WorkflowFile)
		ran++
		summary, err := m.runner.Run(ctx, d.Serial, p)
		if err != nil {
			m.logger.Warn("scheduled plan failed", "serial", d.Serial, "plan", p.Name, "error", err)
			continue
		}
		m.logger.Info("scheduled plan finished", "serial", d.Serial, "plan", p.Name, "status", summary.Status)
	}
	return ran
}

// Handled reports whether serial has already been matched.
func (m *Matcher) Handled(serial string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handled[serial]
	return ok
}

// Forget lets serial be matched again on its next arrival.
func (m *Matcher) Forget(serial string) {
	m.mu.Lock()
	delete(m.handled, serial)
	m.mu.Unlock()
}

// Reset forgets every handled serial.
func (m *Matcher) Reset() {
	m.mu.Lock()
	m.handled = make(map[string]struct{})
	m.mu.Unlock()
}

// Wait blocks until spawned matches return or ctx ends.
func (m *Matcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Matcher) claim(serial string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handled[serial]; ok {
		return false
	}
	m.handled[serial] = struct{}{}
	return true
}
