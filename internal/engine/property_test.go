//go:build property

package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nerrad567/flashline-core/internal/events"
	"github.com/nerrad567/flashline-core/internal/plan"
)

// zipPlan builds a plan of n flash_zip steps with distinct files.
func zipPlan(n int, continueOnError bool) *plan.Plan {
	steps := make([]plan.Step, n)
	for i := range steps {
		steps[i] = plan.FlashZip{File: fmt.Sprintf("f%d.zip", i)}
	}
	p := testPlan(steps...)
	p.ContinueOnError = continueOnError
	return p
}

func TestProperty_StepsRunInOrder(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	properties := gopter.NewProperties(params)

	properties.Property("adapter sees steps in plan order", prop.ForAll(
		func(n int) bool {
			adapter := newMockAdapter()
			e := NewEngine("", adapter, nil, nil)
			if _, err := e.Execute(context.Background(), zipPlan(n, false)); err != nil {
				return false
			}
			calls := adapter.Calls()
			if len(calls) != n {
				return false
			}
			for i, c := range calls {
				if c != fmt.Sprintf("update f%d.zip [SER1]", i) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 40),
	))

	properties.Property("each step emits running then a terminal entry", prop.ForAll(
		func(n int) bool {
			rec := &events.Recorder{}
			e := NewEngine("", newMockAdapter(), rec, nil)
			if _, err := e.Execute(context.Background(), zipPlan(n, false)); err != nil {
				return false
			}
			updates := stepUpdates(rec)
			if len(updates) != 2*n {
				return false
			}
			for i := 0; i < n; i++ {
				if updates[2*i].StepIndex != i || updates[2*i].Status != events.StepRunning {
					return false
				}
				if updates[2*i+1].StepIndex != i || updates[2*i+1].Status != events.StepSuccess {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}

func TestProperty_FailurePolicy(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	properties := gopter.NewProperties(params)

	properties.Property("without continue_on_error nothing after the failed step runs", prop.ForAll(
		func(n, failAt int) bool {
			failAt %= n
			adapter := newMockAdapter()
			adapter.setFail(fmt.Sprintf("update f%d.zip", failAt), errTool)
			e := NewEngine("", adapter, nil, nil)

			_, err := e.Execute(context.Background(), zipPlan(n, false))
			var stepErr *StepError
			return errors.As(err, &stepErr) && stepErr.Index == failAt && len(adapter.Calls()) == failAt+1
		},
		gen.IntRange(1, 30),
		gen.IntRange(0, 1000),
	))

	properties.Property("with continue_on_error every step runs and failures are listed", prop.ForAll(
		func(n int, failMask []bool) bool {
			adapter := newMockAdapter()
			var wantFailed []int
			for i := 0; i < n && i < len(failMask); i++ {
				if failMask[i] {
					adapter.setFail(fmt.Sprintf("update f%d.zip", i), errTool)
					wantFailed = append(wantFailed, i)
				}
			}
			e := NewEngine("", adapter, nil, nil)

			summary, err := e.Execute(context.Background(), zipPlan(n, true))
			if err != nil || len(adapter.Calls()) != n {
				return false
			}
			if len(summary.FailedSteps) != len(wantFailed) {
				return false
			}
			for i := range wantFailed {
				if summary.FailedSteps[i] != wantFailed[i] {
					return false
				}
			}
			if len(wantFailed) == 0 {
				return summary.Status == StatusCompleted
			}
			return summary.Status == StatusPartial
		},
		gen.IntRange(1, 30),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestProperty_CancelNeverAdvances(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	properties := gopter.NewProperties(params)

	properties.Property("cancel during step k stops before step k+1", prop.ForAll(
		func(n, at int) bool {
			at %= n
			adapter := newMockAdapter()
			e := NewEngine("", adapter, nil, nil)
			calls := 0

			steps := make([]plan.Step, n)
			for i := range steps {
				steps[i] = plan.FlashImage{Partition: fmt.Sprintf("p%d", i), File: "x.img"}
			}
			adapter.flashHook = func(context.Context) {
				if calls == at {
					e.Cancel()
				}
				calls++
			}

			_, err := e.Execute(context.Background(), testPlan(steps...))
			if at == n-1 {
				return err == nil && len(adapter.Calls()) == n
			}
			return errors.Is(err, ErrCancelled) && len(adapter.Calls()) == at+1
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
