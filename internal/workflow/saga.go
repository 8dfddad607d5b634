package workflow

import (
	"context"
	"fmt"

	"github.com/katalyst-run/katalyst/internal/errs"
	"github.com/katalyst-run/katalyst/klog"
)

var log = klog.For("workflow")

// Step is one pair (execute, compensate) in a workflow (spec §4.9).
type Step struct {
	Name       string
	Execute    func(ctx context.Context) (any, error)
	Compensate func(ctx context.Context, result any) error
}

// Workflow is a named ordered list of steps.
type Workflow struct {
	ID    string
	Steps []Step
}

// compensationEntry pairs a step with the result its Execute produced, so
// Compensate can be called with the right argument during unwind.
type compensationEntry struct {
	step   Step
	result any
}

// ExecutionContext accumulates per-step results, the LIFO compensation
// stack, and any compensation errors (spec §4.9 step 3: best-effort,
// logged, non-halting).
type ExecutionContext struct {
	WorkflowID        string
	Results           map[string]any
	compensationStack []compensationEntry
	Errors            []error
	StateMachine      *StateMachine
}

func newExecutionContext(workflowID string) *ExecutionContext {
	return &ExecutionContext{
		WorkflowID:   workflowID,
		Results:      map[string]any{},
		StateMachine: NewStateMachine(),
	}
}

// Engine runs non-durable sagas in memory (spec §4.9 steps 1-4).
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Execute runs every step of w in order. On any step's execute failure it
// transitions to Compensating, unwinds the compensation stack LIFO, and
// ends in Compensated; otherwise it stays in Executing so the caller can
// call Commit.
func (e *Engine) Execute(ctx context.Context, w Workflow) (*ExecutionContext, error) {
	ec := newExecutionContext(w.ID)
	if !ec.StateMachine.Transition(EventBeginExecution) {
		return ec, errs.New(errs.KindWorkflowInvalidTransition, "workflow already started")
	}

	for _, step := range w.Steps {
		result, err := step.Execute(ctx)
		if err != nil {
			ec.StateMachine.Transition(EventStepFailed)
			e.compensate(ctx, ec)
			ec.StateMachine.Transition(EventCompensated)
			return ec, errs.Wrap(errs.KindWorkflowStepFailure, fmt.Sprintf("step %q failed", step.Name), err)
		}
		ec.Results[step.Name] = result
		ec.compensationStack = append(ec.compensationStack, compensationEntry{step: step, result: result})
	}

	return ec, nil
}

// Commit transitions Executing -> Committing -> Committed. Returns false if
// the workflow is not in a committable state.
func (e *Engine) Commit(ec *ExecutionContext) bool {
	if !ec.StateMachine.Transition(EventCommit) {
		return false
	}
	return ec.StateMachine.Transition(EventCommitted)
}

// compensate pops the compensation stack LIFO, invoking Compensate on each
// entry. A compensation failure is logged and recorded, never halting the
// remaining compensations.
func (e *Engine) compensate(ctx context.Context, ec *ExecutionContext) {
	for i := len(ec.compensationStack) - 1; i >= 0; i-- {
		entry := ec.compensationStack[i]
		if entry.step.Compensate == nil {
			continue
		}
		if err := entry.step.Compensate(ctx, entry.result); err != nil {
			wrapped := errs.Wrap(errs.KindWorkflowCompensationFailure, fmt.Sprintf("compensating step %q", entry.step.Name), err)
			log.WithError(wrapped).Error("compensation failed, continuing with remaining steps")
			ec.Errors = append(ec.Errors, wrapped)
		}
	}
}
