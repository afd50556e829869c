package engine

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/flashline-core/internal/device"
	"github.com/nerrad567/flashline-core/internal/events"
	"github.com/nerrad567/flashline-core/internal/plan"
)

func TestExecute_DispatchesEveryStepInOrder(t *testing.T) {
	adapter := newMockAdapter()
	rec := &events.Recorder{}
	e := NewEngine("", adapter, rec, nil)

	p := testPlan(
		plan.Wipe{Partitions: []string{"userdata", "cache"}},
		plan.FlashImage{Partition: "boot", File: "boot.img", Slot: "a"},
		plan.FlashImage{Partition: "dtbo", File: "dtbo.img"},
		plan.FlashZip{File: "update.zip"},
		plan.FlashRecovery{File: "twrp.img", Slot: "all", Boot: true},
		plan.FlashRecovery{File: "r.img", Slot: "b"},
		plan.FlashRecovery{File: "r.img"},
		plan.Sideload{File: "rom.zip"},
		plan.Reboot{Mode: "system"},
		plan.Wait{Seconds: 0},
	)

	summary, err := e.Execute(context.Background(), p)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if summary.Status != StatusCompleted {
		t.Errorf("Status = %s, want completed", summary.Status)
	}
	if summary.StepsRun != len(p.Steps) {
		t.Errorf("StepsRun = %d, want %d", summary.StepsRun, len(p.Steps))
	}

	want := []string{
		"erase userdata [SER1]",
		"erase cache [SER1]",
		"flash boot_a boot.img [SER1]",
		"flash dtbo dtbo.img [SER1]",
		"update update.zip [SER1]",
		"flash recovery_a twrp.img [SER1]",
		"flash recovery_b twrp.img [SER1]",
		"boot twrp.img [SER1]",
		"flash recovery_b r.img [SER1]",
		"flash recovery r.img [SER1]",
		"sideload rom.zip [SER1]",
		"adb-reboot system [SER1]",
	}
	if got := adapter.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls =\n%v\nwant\n%v", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}

	updates := stepUpdates(rec)
	if len(updates) != 2*len(p.Steps) {
		t.Fatalf("got %d updates, want %d", len(updates), 2*len(p.Steps))
	}
	for i := range p.Steps {
		running, success := updates[2*i], updates[2*i+1]
		if running.StepIndex != i || running.Status != events.StepRunning {
			t.Errorf("update %d = %+v, want running", 2*i, running)
		}
		if success.StepIndex != i || success.Status != events.StepSuccess {
			t.Errorf("update %d = %+v, want success", 2*i+1, success)
		}
	}
	if updates[0].Message != "executing step 1: wipe" {
		t.Errorf("running message = %q", updates[0].Message)
	}
	if updates[len(updates)-1].Message != "waited 0s" {
		t.Errorf("wait message = %q", updates[len(updates)-1].Message)
	}

	complete := rec.Channel(events.ChannelPlanComplete)
	if len(complete) != 1 {
		t.Fatalf("plan.complete events = %d, want 1", len(complete))
	}
	pc := complete[0].(events.PlanComplete)
	if pc.Plan != "test" || pc.Status != "completed" || pc.RunID != summary.RunID {
		t.Errorf("plan.complete = %+v", pc)
	}
}

func TestExecute_SubstitutesVariables(t *testing.T) {
	adapter := newMockAdapter()
	e := NewEngine("", adapter, nil, nil)
	fixed := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	p := testPlan(plan.FlashImage{Partition: "boot", File: "/img/$DEVICE_SERIAL-$DATE-$TIME-$NOPE.img"})
	if _, err := e.Execute(context.Background(), p); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want := "flash boot /img/SER1-2026-05-04-03:02:01-$NOPE.img [SER1]"
	if got := adapter.Calls(); len(got) != 1 || got[0] != want {
		t.Errorf("calls = %v, want [%s]", got, want)
	}
}

func TestExecute_AutoTarget(t *testing.T) {
	tests := []struct {
		name       string
		bound      string
		devices    []device.Status
		wantCall   string
		wantSerial string
	}{
		{
			name:       "first bootloader device",
			devices:    []device.Status{{Serial: "FB1"}, {Serial: "FB2"}},
			wantCall:   "update FB1.zip [FB1]",
			wantSerial: "FB1",
		},
		{
			name:       "no devices stays auto",
			wantCall:   "update auto.zip []",
			wantSerial: "auto",
		},
		{
			name:       "bound serial wins",
			bound:      "R58M",
			devices:    []device.Status{{Serial: "FB1"}},
			wantCall:   "update R58M.zip [R58M]",
			wantSerial: "R58M",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newMockAdapter()
			adapter.devices = tt.devices
			e := NewEngine(tt.bound, adapter, nil, nil)

			p := testPlan(plan.FlashZip{File: "$DEVICE_SERIAL.zip"})
			p.DeviceTarget = plan.AutoTarget

			summary, err := e.Execute(context.Background(), p)
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if summary.Serial != tt.wantSerial {
				t.Errorf("Serial = %q, want %q", summary.Serial, tt.wantSerial)
			}
			if got := adapter.Calls(); len(got) != 1 || got[0] != tt.wantCall {
				t.Errorf("calls = %v, want [%s]", got, tt.wantCall)
			}
		})
	}
}

func TestExecute_ExplicitTargetBeatsBoundSerial(t *testing.T) {
	adapter := newMockAdapter()
	e := NewEngine("OTHER", adapter, nil, nil)

	if _, err := e.Execute(context.Background(), testPlan(plan.FlashZip{File: "u.zip"})); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := adapter.Calls(); got[0] != "update u.zip [SER1]" {
		t.Errorf("call = %q", got[0])
	}
}

func TestExecute_StopsOnFirstFailure(t *testing.T) {
	adapter := newMockAdapter()
	adapter.setFail("update u.zip", errTool)
	rec := &events.Recorder{}
	e := NewEngine("", adapter, rec, nil)

	p := testPlan(
		plan.Wipe{Partitions: []string{"cache"}},
		plan.FlashZip{File: "u.zip"},
		plan.Reboot{Mode: "system"},
	)

	summary, err := e.Execute(context.Background(), p)

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("Execute() error = %v, want *StepError", err)
	}
	if stepErr.Index != 1 || stepErr.Kind != plan.KindFlashZip {
		t.Errorf("StepError = %+v", stepErr)
	}
	if !errors.Is(err, errTool) {
		t.Errorf("error does not wrap tool failure: %v", err)
	}
	if summary.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", summary.Status)
	}
	if len(adapter.Calls()) != 2 {
		t.Errorf("calls = %v, reboot must not run", adapter.Calls())
	}
	if !hasUpdate(rec, 1, events.StepError) {
		t.Error("no error entry for step 1")
	}
	if hasUpdate(rec, 2, events.StepRunning) {
		t.Error("step 2 was started")
	}
	if len(rec.Channel(events.ChannelPlanComplete)) != 0 {
		t.Error("plan.complete published for failed run")
	}
}

func TestExecute_ContinueOnError(t *testing.T) {
	adapter := newMockAdapter()
	adapter.setFail("erase system", errTool)
	adapter.setFail("update u.zip", errTool)
	rec := &events.Recorder{}
	e := NewEngine("", adapter, rec, nil)

	p := testPlan(
		plan.Wipe{Partitions: []string{"system", "cache"}},
		plan.FlashZip{File: "u.zip"},
		plan.Reboot{Mode: "recovery"},
	)
	p.ContinueOnError = true

	summary, err := e.Execute(context.Background(), p)
	if err != nil {
		t.Fatalf("Execute() error = %v, want nil", err)
	}
	if summary.Status != StatusPartial {
		t.Errorf("Status = %s, want partial", summary.Status)
	}
	if !reflect.DeepEqual(summary.FailedSteps, []int{0, 1}) {
		t.Errorf("FailedSteps = %v, want [0 1]", summary.FailedSteps)
	}

	// Wipe stops at its first failing partition; cache is never erased.
	want := []string{"erase system [SER1]", "update u.zip [SER1]", "adb-reboot recovery [SER1]"}
	if got := adapter.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}

	complete := rec.Channel(events.ChannelPlanComplete)
	if len(complete) != 1 || complete[0].(events.PlanComplete).Status != "partial" {
		t.Errorf("plan.complete = %v", complete)
	}
}

func TestExecute_RebootFallsBackToFastboot(t *testing.T) {
	adapter := newMockAdapter()
	adapter.setFail("adb-reboot bootloader", errors.New("adb: no devices/emulators found"))
	e := NewEngine("", adapter, nil, nil)

	if _, err := e.Execute(context.Background(), testPlan(plan.Reboot{Mode: "bootloader"})); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := []string{"adb-reboot bootloader [SER1]", "fastboot-reboot bootloader [SER1]"}
	if got := adapter.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestExecute_CustomRebootMode(t *testing.T) {
	p, err := plan.Parse([]byte("name: test\ndevice: SER1\nsteps:\n  - type: reboot\n    params: { mode: edl }\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	adapter := newMockAdapter()
	e := NewEngine("", adapter, nil, nil)

	if _, err := e.Execute(context.Background(), p); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := []string{"adb-reboot edl [SER1]"}
	if got := adapter.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestExecute_RebootBothFail(t *testing.T) {
	adapter := newMockAdapter()
	adapter.setFail("adb-reboot system", errors.New("adb gone"))
	adapter.setFail("fastboot-reboot system", errors.New("fastboot gone"))
	e := NewEngine("", adapter, nil, nil)

	_, err := e.Execute(context.Background(), testPlan(plan.Reboot{Mode: "system"}))
	if err == nil {
		t.Fatal("Execute() error = nil")
	}
	if !strings.Contains(err.Error(), "adb gone") || !strings.Contains(err.Error(), "fastboot gone") {
		t.Errorf("error %q should carry both failures", err)
	}
}

func TestExecute_SideloadPublishesOutput(t *testing.T) {
	adapter := newMockAdapter()
	adapter.sideloadLines = []string{"serving: 'rom.zip'  (~50%)", "Total xfer: 1.00x"}
	rec := &events.Recorder{}
	e := NewEngine("", adapter, rec, nil)

	summary, err := e.Execute(context.Background(), testPlan(plan.Wait{}, plan.Sideload{File: "rom.zip"}))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	out := rec.Channel(events.ChannelPlanOutput)
	if len(out) != 2 {
		t.Fatalf("plan.output events = %d, want 2", len(out))
	}
	line := out[1].(events.OutputLine)
	if line.Line != "Total xfer: 1.00x" || line.StepIndex != 1 || line.RunID != summary.RunID {
		t.Errorf("output = %+v", line)
	}
}

func TestExecute_EmptyPlan(t *testing.T) {
	e := NewEngine("", newMockAdapter(), nil, nil)
	if _, err := e.Execute(context.Background(), &plan.Plan{Name: "x"}); !errors.Is(err, plan.ErrEmptyPlan) {
		t.Errorf("Execute() error = %v, want ErrEmptyPlan", err)
	}
}

func TestExecute_RunInProgress(t *testing.T) {
	adapter := newMockAdapter()
	release := make(chan struct{})
	adapter.flashHook = func(context.Context) { <-release }
	e := NewEngine("", adapter, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := e.Execute(context.Background(), testPlan(plan.FlashImage{Partition: "boot", File: "b.img"}))
		done <- err
	}()
	waitFor(t, "run to start", e.Running)

	_, err := e.Execute(context.Background(), testPlan(plan.Wait{}))
	if !errors.Is(err, ErrRunInProgress) {
		t.Errorf("second Execute() error = %v, want ErrRunInProgress", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first Execute() error = %v", err)
	}
}

func TestExecute_CancelStopsAtNextStep(t *testing.T) {
	adapter := newMockAdapter()
	release := make(chan struct{})
	adapter.flashHook = func(context.Context) { <-release }
	rec := &events.Recorder{}
	e := NewEngine("", adapter, rec, nil)

	done := make(chan error, 1)
	go func() {
		_, err := e.Execute(context.Background(), testPlan(
			plan.FlashImage{Partition: "boot", File: "b.img"},
			plan.Reboot{Mode: "system"},
		))
		done <- err
	}()
	waitFor(t, "flash to start", func() bool { return hasUpdate(rec, 0, events.StepRunning) })

	e.Cancel()
	close(release)

	if err := <-done; !errors.Is(err, ErrCancelled) {
		t.Fatalf("Execute() error = %v, want ErrCancelled", err)
	}
	if got := adapter.Calls(); len(got) != 1 {
		t.Errorf("calls = %v, reboot must not run", got)
	}
	if !hasUpdate(rec, 0, events.StepSuccess) {
		t.Error("in-flight step should complete")
	}

	updates := stepUpdates(rec)
	last := updates[len(updates)-1]
	if last.StepIndex != 1 || last.Status != events.StepError || last.Message != "cancelled by user" {
		t.Errorf("last update = %+v", last)
	}
}

func TestExecute_CancelResetsOnNextRun(t *testing.T) {
	e := NewEngine("", newMockAdapter(), nil, nil)
	e.Cancel()

	if _, err := e.Execute(context.Background(), testPlan(plan.Wait{})); err != nil {
		t.Errorf("Execute() after idle Cancel error = %v", err)
	}
}

func TestExecute_PrearmedPause(t *testing.T) {
	adapter := newMockAdapter()
	rec := &events.Recorder{}
	e := NewEngine("", adapter, rec, nil)
	e.Pause()

	done := make(chan error, 1)
	go func() {
		_, err := e.Execute(context.Background(), testPlan(plan.Wipe{Partitions: []string{"x"}}))
		done <- err
	}()

	waitFor(t, "paused entry", func() bool { return hasUpdate(rec, 0, events.StepPaused) })
	time.Sleep(20 * time.Millisecond)
	if len(adapter.Calls()) != 0 {
		t.Fatalf("step ran while paused: %v", adapter.Calls())
	}
	if hasUpdate(rec, 0, events.StepRunning) {
		t.Fatal("running entry published while paused")
	}

	e.Resume()
	if err := <-done; err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(adapter.Calls()) != 1 {
		t.Errorf("calls = %v", adapter.Calls())
	}
	paused := stepUpdates(rec)[0]
	if paused.Message != "paused, waiting for resume" {
		t.Errorf("paused message = %q", paused.Message)
	}
	count := 0
	for _, u := range stepUpdates(rec) {
		if u.Status == events.StepPaused {
			count++
		}
	}
	if count != 1 {
		t.Errorf("paused entries = %d, want 1 per pause", count)
	}
}

func TestExecute_CancelWhilePaused(t *testing.T) {
	adapter := newMockAdapter()
	rec := &events.Recorder{}
	e := NewEngine("", adapter, rec, nil)
	e.pauseRetick = time.Hour // only the change notification can wake it
	e.Pause()

	done := make(chan error, 1)
	go func() {
		_, err := e.Execute(context.Background(), testPlan(plan.Wait{}))
		done <- err
	}()
	waitFor(t, "paused entry", func() bool { return hasUpdate(rec, 0, events.StepPaused) })

	e.Cancel()
	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("Execute() error = %v, want ErrCancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not wake paused run")
	}
	if len(adapter.Calls()) != 0 {
		t.Errorf("calls = %v", adapter.Calls())
	}
}

func TestExecute_ContextCancelWhilePaused(t *testing.T) {
	e := NewEngine("", newMockAdapter(), nil, nil)
	e.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := e.Execute(ctx, testPlan(plan.Wait{}))
		done <- err
	}()
	waitFor(t, "run to start", e.Running)

	cancel()
	if err := <-done; !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want ErrCancelled wrapping context.Canceled", err)
	}
}

func TestExecute_AdapterCallsSurviveShutdown(t *testing.T) {
	adapter := newMockAdapter()
	captured := make(chan context.Context, 1)
	release := make(chan struct{})
	adapter.flashHook = func(ctx context.Context) {
		captured <- ctx
		<-release
	}
	e := NewEngine("", adapter, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := e.Execute(ctx, testPlan(plan.FlashImage{Partition: "boot", File: "b.img"}, plan.Wait{}))
		done <- err
	}()

	callCtx := <-captured
	cancel()
	if callCtx.Err() != nil {
		t.Errorf("adapter context cancelled with run context: %v", callCtx.Err())
	}
	close(release)

	if err := <-done; !errors.Is(err, ErrCancelled) {
		t.Errorf("Execute() error = %v, want ErrCancelled at next step", err)
	}
}

func TestExecute_StepTimeout(t *testing.T) {
	adapter := newMockAdapter()
	adapter.flashHook = func(ctx context.Context) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("adapter context has no deadline")
		}
	}
	e := NewEngine("", adapter, nil, nil)

	p := testPlan(plan.FlashImage{Partition: "boot", File: "b.img"})
	p.StepTimeout = time.Minute
	if _, err := e.Execute(context.Background(), p); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestWaitStep_InterruptedByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := waitStep(ctx, plan.Wait{Seconds: 60}); !errors.Is(err, context.Canceled) {
		t.Errorf("waitStep() error = %v, want context.Canceled", err)
	}
}

func TestStepError_Message(t *testing.T) {
	err := &StepError{Index: 2, Kind: plan.KindWipe, Err: errTool}
	if !strings.HasPrefix(err.Error(), "step 3 (wipe) failed: ") {
		t.Errorf("Error() = %q", err.Error())
	}
}
