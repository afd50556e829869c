package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/flashline-core/internal/device"
	"github.com/nerrad567/flashline-core/internal/events"
	"github.com/nerrad567/flashline-core/internal/plan"
)

// mockAdapter records every call as "op serial args..." and fails calls
// whose key (without serial) appears in fail.
type mockAdapter struct {
	mu            sync.Mutex
	calls         []string
	fail          map[string]error
	devices       []device.Status
	sideloadLines []string

	// flashHook runs inside Flash before it returns.
	flashHook func(ctx context.Context)
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{fail: make(map[string]error)}
}

func (m *mockAdapter) record(serial, op string, args ...string) error {
	key := strings.Join(append([]string{op}, args...), " ")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, strings.TrimSpace(fmt.Sprintf("%s [%s]", key, serial)))
	return m.fail[key]
}

func (m *mockAdapter) setFail(key string, err error) {
	m.mu.Lock()
	m.fail[key] = err
	m.mu.Unlock()
}

func (m *mockAdapter) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockAdapter) Devices(_ context.Context, mode device.ConnectionType) ([]device.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mode != device.ConnectionFastboot {
		return nil, nil
	}
	return append([]device.Status(nil), m.devices...), nil
}

func (m *mockAdapter) Erase(_ context.Context, serial, partition string) (string, error) {
	return "erased", m.record(serial, "erase", partition)
}

func (m *mockAdapter) Flash(ctx context.Context, serial, partition, file string) (string, error) {
	m.mu.Lock()
	hook := m.flashHook
	m.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	return "flashed", m.record(serial, "flash", partition, file)
}

func (m *mockAdapter) Update(_ context.Context, serial, file string) (string, error) {
	return "updated", m.record(serial, "update", file)
}

func (m *mockAdapter) Boot(_ context.Context, serial, file string) (string, error) {
	return "booted", m.record(serial, "boot", file)
}

func (m *mockAdapter) Sideload(_ context.Context, serial, file string, onLine func(string)) (string, error) {
	m.mu.Lock()
	lines := m.sideloadLines
	m.mu.Unlock()
	for _, l := range lines {
		onLine(l)
	}
	return "sideloaded", m.record(serial, "sideload", file)
}

func (m *mockAdapter) Reboot(_ context.Context, serial, mode string) (string, error) {
	return "adb rebooted", m.record(serial, "adb-reboot", mode)
}

func (m *mockAdapter) RebootBootloader(_ context.Context, serial, mode string) (string, error) {
	return "fastboot rebooted", m.record(serial, "fastboot-reboot", mode)
}

var errTool = errors.New("FAILED (remote: 'partition not found')")

// stepUpdates returns the plan.update entries recorded so far.
func stepUpdates(rec *events.Recorder) []events.StepUpdate {
	var out []events.StepUpdate
	for _, p := range rec.Channel(events.ChannelPlanUpdate) {
		out = append(out, p.(events.StepUpdate))
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func hasUpdate(rec *events.Recorder, index int, status events.StepStatus) bool {
	for _, u := range stepUpdates(rec) {
		if u.StepIndex == index && u.Status == status {
			return true
		}
	}
	return false
}

func testPlan(steps ...plan.Step) *plan.Plan {
	return &plan.Plan{Name: "test", DeviceTarget: "SER1", Version: "1", Steps: steps}
}
