package zerotouch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/flashline-core/internal/device"
	"github.com/nerrad567/flashline-core/internal/engine"
	"github.com/nerrad567/flashline-core/internal/events"
	"github.com/nerrad567/flashline-core/internal/plan"
)

type fakeRunner struct {
	mu    sync.Mutex
	keys  []string
	err   error
	block chan struct{}
}

func (r *fakeRunner) Run(_ context.Context, key string, p *plan.Plan) (engine.Summary, error) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	if r.err != nil {
		return engine.Summary{Status: engine.StatusFailed}, r.err
	}
	return engine.Summary{Plan: p.Name, Status: engine.StatusCompleted}, nil
}

func (r *fakeRunner) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func newTestTrigger(cfg Config, runner Runner) (*Trigger, *State, *events.Recorder) {
	state := NewState(cfg)
	rec := &events.Recorder{}
	tr := NewTrigger(state, runner, rec, nil)
	tr.tick = time.Millisecond
	tr.loadPlan = func(path string) (*plan.Plan, error) {
		if path == "missing.yaml" {
			return nil, errors.New("reading plan missing.yaml: no such file")
		}
		return &plan.Plan{Name: path, DeviceTarget: plan.AutoTarget, Steps: []plan.Step{plan.Wait{}}}, nil
	}
	return tr, state, rec
}

func statuses(rec *events.Recorder) []events.ZeroTouchStatus {
	var out []events.ZeroTouchStatus
	for _, p := range rec.Channel(events.ChannelZeroTouch) {
		out = append(out, p.(events.ZeroTouch).Status)
	}
	return out
}

func TestEvaluate_FullFlow(t *testing.T) {
	runner := &fakeRunner{}
	tr, state, rec := newTestTrigger(Config{Enabled: true, PlanPath: "p.yaml", CountdownSeconds: 3}, runner)

	if got := tr.Evaluate(context.Background(), "S1"); got != OutcomeCompleted {
		t.Fatalf("Evaluate() = %s, want completed", got)
	}

	zt := rec.Channel(events.ChannelZeroTouch)
	want := []events.ZeroTouchStatus{
		events.ZeroTouchDetected,
		events.ZeroTouchCountdown,
		events.ZeroTouchCountdown,
		events.ZeroTouchCountdown,
		events.ZeroTouchCountdown,
		events.ZeroTouchStarted,
	}
	got := statuses(rec)
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
	for i, wantRemaining := range []uint64{3, 2, 1, 0} {
		ev := zt[i+1].(events.ZeroTouch)
		if ev.Remaining == nil || *ev.Remaining != wantRemaining {
			t.Errorf("countdown %d remaining = %v, want %d", i, ev.Remaining, wantRemaining)
		}
	}

	if !state.Processed("S1") {
		t.Error("S1 not marked processed")
	}
	if keys := runner.Keys(); len(keys) != 1 || keys[0] != "S1" {
		t.Errorf("runner keys = %v", keys)
	}
	if state.Snapshot().CountingDown {
		t.Error("CountingDown still true after start")
	}
}

func TestEvaluate_ZeroCountdown(t *testing.T) {
	tr, _, rec := newTestTrigger(Config{Enabled: true, PlanPath: "p.yaml"}, &fakeRunner{})

	tr.Evaluate(context.Background(), "S1")
	got := statuses(rec)
	if len(got) != 2 || got[0] != events.ZeroTouchDetected || got[1] != events.ZeroTouchStarted {
		t.Errorf("events = %v", got)
	}
}

func TestEvaluate_Skips(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"disabled", Config{Enabled: false, PlanPath: "p.yaml"}},
		{"target mismatch", Config{Enabled: true, PlanPath: "p.yaml", TargetSerial: "OTHER"}},
		{"no plan path", Config{Enabled: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			tr, state, rec := newTestTrigger(tt.cfg, runner)

			if got := tr.Evaluate(context.Background(), "S1"); got != OutcomeSkipped {
				t.Errorf("Evaluate() = %s, want skipped", got)
			}
			if len(rec.Events()) != 0 || len(runner.Keys()) != 0 || state.Processed("S1") {
				t.Errorf("skip had side effects: events=%v runs=%v", rec.Events(), runner.Keys())
			}
		})
	}
}

func TestEvaluate_MatchingTarget(t *testing.T) {
	tr, _, _ := newTestTrigger(Config{Enabled: true, PlanPath: "p.yaml", TargetSerial: "S1"}, &fakeRunner{})
	if got := tr.Evaluate(context.Background(), "S1"); got != OutcomeCompleted {
		t.Errorf("Evaluate() = %s, want completed", got)
	}
}

func TestEvaluate_ProcessedOnce(t *testing.T) {
	runner := &fakeRunner{}
	tr, state, _ := newTestTrigger(Config{Enabled: true, PlanPath: "p.yaml"}, runner)

	tr.Evaluate(context.Background(), "S1")
	if got := tr.Evaluate(context.Background(), "S1"); got != OutcomeSkipped {
		t.Errorf("second Evaluate() = %s, want skipped", got)
	}
	if len(runner.Keys()) != 1 {
		t.Errorf("runs = %v, want exactly one", runner.Keys())
	}

	state.Reset()
	if got := tr.Evaluate(context.Background(), "S1"); got != OutcomeCompleted {
		t.Errorf("Evaluate() after Reset = %s, want completed", got)
	}
}

func TestEvaluate_ConcurrentObservationsStartOnce(t *testing.T) {
	var runs atomic.Int32
	runner := &fakeRunner{}
	tr, _, _ := newTestTrigger(Config{Enabled: true, PlanPath: "p.yaml", CountdownSeconds: 2}, runner)

	var wg sync.WaitGroup
	outcomes := make(chan Outcome, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o := tr.Evaluate(context.Background(), "S1")
			if o == OutcomeCompleted {
				runs.Add(1)
			}
			outcomes <- o
		}()
	}
	wg.Wait()

	if runs.Load() != 1 {
		t.Errorf("completed runs = %d, want 1", runs.Load())
	}
	if len(runner.Keys()) != 1 {
		t.Errorf("runner called %d times, want 1", len(runner.Keys()))
	}
}

func TestEvaluate_CancelCountdown(t *testing.T) {
	runner := &fakeRunner{}
	tr, state, rec := newTestTrigger(Config{Enabled: true, PlanPath: "p.yaml", CountdownSeconds: 1000}, runner)
	tr.tick = 10 * time.Millisecond

	done := make(chan Outcome, 1)
	go func() { done <- tr.Evaluate(context.Background(), "S1") }()

	deadline := time.Now().Add(2 * time.Second)
	for !state.Snapshot().CountingDown {
		if time.Now().After(deadline) {
			t.Fatal("countdown never started")
		}
		time.Sleep(time.Millisecond)
	}

	if !state.CancelCountdown() {
		t.Error("CancelCountdown() = false while counting")
	}

	select {
	case got := <-done:
		if got != OutcomeCancelled {
			t.Errorf("Evaluate() = %s, want cancelled", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not stop")
	}

	got := statuses(rec)
	if got[len(got)-1] != events.ZeroTouchCancelled {
		t.Errorf("last event = %s, want cancelled", got[len(got)-1])
	}
	if state.Processed("S1") {
		t.Error("cancelled device marked processed")
	}
	if state.Snapshot().CountingDown {
		t.Error("CountingDown still true")
	}
	if len(runner.Keys()) != 0 {
		t.Errorf("runner called after cancel: %v", runner.Keys())
	}
	if state.CancelCountdown() {
		t.Error("CancelCountdown() = true with nothing running")
	}
}

func TestEvaluate_ContextCancelStopsCountdown(t *testing.T) {
	tr, state, _ := newTestTrigger(Config{Enabled: true, PlanPath: "p.yaml", CountdownSeconds: 5}, &fakeRunner{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got := tr.Evaluate(ctx, "S1"); got != OutcomeCancelled {
		t.Errorf("Evaluate() = %s, want cancelled", got)
	}
	if state.Processed("S1") {
		t.Error("device marked processed")
	}
}

func TestEvaluate_PlanLoadError(t *testing.T) {
	runner := &fakeRunner{}
	tr, state, rec := newTestTrigger(Config{Enabled: true, PlanPath: "missing.yaml"}, runner)

	if got := tr.Evaluate(context.Background(), "S1"); got != OutcomePlanError {
		t.Errorf("Evaluate() = %s, want plan_error", got)
	}
	zt := rec.Channel(events.ChannelZeroTouch)
	last := zt[len(zt)-1].(events.ZeroTouch)
	if last.Status != events.ZeroTouchError || last.Message == "" {
		t.Errorf("last event = %+v", last)
	}
	if !state.Processed("S1") {
		t.Error("device should be processed once started")
	}
	if len(runner.Keys()) != 0 {
		t.Error("runner called with no plan")
	}
}

func TestEvaluate_RunFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("step 1 (wipe) failed")}
	tr, _, rec := newTestTrigger(Config{Enabled: true, PlanPath: "p.yaml"}, runner)

	if got := tr.Evaluate(context.Background(), "S1"); got != OutcomeFailed {
		t.Errorf("Evaluate() = %s, want failed", got)
	}
	got := statuses(rec)
	if got[len(got)-1] != events.ZeroTouchError {
		t.Errorf("events = %v", got)
	}
}

func waitTrigger(t *testing.T, tr *Trigger) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestOnDevices_EnableWhileAttached(t *testing.T) {
	runner := &fakeRunner{}
	tr, state, _ := newTestTrigger(Config{}, runner)
	all := []device.Status{{Serial: "A"}}

	tr.OnDevices(context.Background(), all, []string{"A"})
	waitTrigger(t, tr)
	if len(runner.Keys()) != 0 {
		t.Fatalf("runner called while disabled: %v", runner.Keys())
	}

	state.Configure(Config{Enabled: true, PlanPath: "p.yaml"})
	for i := 0; i < 3; i++ {
		tr.OnDevices(context.Background(), all, nil)
		waitTrigger(t, tr)
	}

	if keys := runner.Keys(); len(keys) != 1 || keys[0] != "A" {
		t.Errorf("runner keys = %v, want [A]", keys)
	}
	if !state.Processed("A") {
		t.Error("A not marked processed")
	}
}

func TestOnDevices_CancelledCountdownWaitsForReplug(t *testing.T) {
	runner := &fakeRunner{}
	tr, state, _ := newTestTrigger(Config{Enabled: true, PlanPath: "p.yaml", CountdownSeconds: 1000}, runner)
	tr.tick = 10 * time.Millisecond
	all := []device.Status{{Serial: "A"}}

	tr.OnDevices(context.Background(), all, []string{"A"})
	deadline := time.Now().Add(2 * time.Second)
	for !state.Snapshot().CountingDown {
		if time.Now().After(deadline) {
			t.Fatal("countdown never started")
		}
		time.Sleep(time.Millisecond)
	}
	state.CancelCountdown()
	waitTrigger(t, tr)

	state.Configure(Config{Enabled: true, PlanPath: "p.yaml"})
	tr.OnDevices(context.Background(), all, nil)
	waitTrigger(t, tr)
	if len(runner.Keys()) != 0 {
		t.Fatalf("cancelled device restarted while still attached: %v", runner.Keys())
	}
	if state.Processed("A") {
		t.Error("cancelled device marked processed")
	}

	tr.OnDevices(context.Background(), nil, nil)
	tr.OnDevices(context.Background(), all, []string{"A"})
	waitTrigger(t, tr)
	if keys := runner.Keys(); len(keys) != 1 || keys[0] != "A" {
		t.Errorf("runner keys after replug = %v, want [A]", keys)
	}
}

func TestState_ConfigurePreservesProgress(t *testing.T) {
	tr, state, _ := newTestTrigger(Config{Enabled: true, PlanPath: "p.yaml"}, &fakeRunner{})
	tr.Evaluate(context.Background(), "S1")

	state.Configure(Config{Enabled: false, CountdownSeconds: 7})

	snap := state.Snapshot()
	if snap.Enabled || snap.CountdownSeconds != 7 {
		t.Errorf("config not applied: %+v", snap.Config)
	}
	if len(snap.ProcessedDevices) != 1 || snap.ProcessedDevices[0] != "S1" {
		t.Errorf("ProcessedDevices = %v", snap.ProcessedDevices)
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := (Config{Enabled: true}).Validate(); !errors.Is(err, ErrNoPlanPath) {
		t.Errorf("Validate() = %v, want ErrNoPlanPath", err)
	}
	if err := (Config{CountdownSeconds: MaxCountdownSeconds + 1}).Validate(); !errors.Is(err, ErrCountdownTooLong) {
		t.Errorf("Validate() = %v, want ErrCountdownTooLong", err)
	}
	if err := (Config{Enabled: true, PlanPath: "p.yaml", CountdownSeconds: 10}).Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}
