package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/flashline-core/internal/events"
	"github.com/nerrad567/flashline-core/internal/plan"
)

// dispatch performs one resolved step. Adapter calls are detached from ctx
// so shutting the service down never kills a flash midway; the plan's
// step timeout, when set, still bounds them.
func (e *Engine) dispatch(ctx context.Context, p *plan.Plan, runID string, index int, serial string, step plan.Step) (string, error) {
	if w, ok := step.(plan.Wait); ok {
		return waitStep(ctx, w)
	}

	callCtx := context.WithoutCancel(ctx)
	if p.StepTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, p.StepTimeout)
		defer cancel()
	}

	switch s := step.(type) {
	case plan.Wipe:
		return e.wipe(callCtx, serial, s)
	case plan.FlashImage:
		target := s.Partition
		if s.Slot != "" {
			target = s.Partition + "_" + s.Slot
		}
		return e.adapter.Flash(callCtx, serial, target, s.File)
	case plan.FlashZip:
		return e.adapter.Update(callCtx, serial, s.File)
	case plan.FlashRecovery:
		return e.flashRecovery(callCtx, serial, s)
	case plan.Sideload:
		return e.adapter.Sideload(callCtx, serial, s.File, func(line string) {
			e.sink.Publish(events.ChannelPlanOutput, events.OutputLine{
				RunID:     runID,
				Key:       e.key,
				StepIndex: index,
				Line:      line,
			})
		})
	case plan.Reboot:
		return e.reboot(callCtx, serial, s.Mode)
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownStep, step)
	}
}

func (e *Engine) wipe(ctx context.Context, serial string, s plan.Wipe) (string, error) {
	done := make([]string, 0, len(s.Partitions))
	for _, partition := range s.Partitions {
		if _, err := e.adapter.Erase(ctx, serial, partition); err != nil {
			return "", fmt.Errorf("erasing %s: %w", partition, err)
		}
		done = append(done, partition)
	}
	return "wiped " + strings.Join(done, ", "), nil
}

func (e *Engine) flashRecovery(ctx context.Context, serial string, s plan.FlashRecovery) (string, error) {
	var targets []string
	switch s.Slot {
	case plan.SlotA, plan.SlotB:
		targets = []string{"recovery_" + s.Slot}
	case plan.SlotAll:
		targets = []string{"recovery_a", "recovery_b"}
	default:
		targets = []string{"recovery"}
	}

	for _, target := range targets {
		if _, err := e.adapter.Flash(ctx, serial, target, s.File); err != nil {
			return "", fmt.Errorf("flashing %s: %w", target, err)
		}
	}
	msg := "flashed " + strings.Join(targets, ", ")

	if s.Boot {
		if _, err := e.adapter.Boot(ctx, serial, s.File); err != nil {
			return "", fmt.Errorf("booting recovery: %w", err)
		}
		msg += " and booted recovery"
	}
	return msg, nil
}

// reboot tries adb first since most modes are reachable from a booted
// device, then fastboot for devices sitting in the bootloader.
func (e *Engine) reboot(ctx context.Context, serial, mode string) (string, error) {
	msg, adbErr := e.adapter.Reboot(ctx, serial, mode)
	if adbErr == nil {
		return msg, nil
	}

	msg, fbErr := e.adapter.RebootBootloader(ctx, serial, mode)
	if fbErr == nil {
		return msg, nil
	}
	return "", fmt.Errorf("adb reboot failed: %v; fastboot reboot failed: %w", adbErr, fbErr)
}

func waitStep(ctx context.Context, w plan.Wait) (string, error) {
	timer := time.NewTimer(time.Duration(w.Seconds) * time.Second) //nolint:gosec // bounded by schema
	defer timer.Stop()

	select {
	case <-timer.C:
		return fmt.Sprintf("waited %ds", w.Seconds), nil
	case <-ctx.Done():
		return "", fmt.Errorf("wait interrupted: %w", ctx.Err())
	}
}
