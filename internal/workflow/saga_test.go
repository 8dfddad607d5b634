package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteRunsAllStepsAndAllowsCommit(t *testing.T) {
	e := NewEngine()
	w := Workflow{
		ID: "wf-1",
		Steps: []Step{
			{Name: "reserve", Execute: func(ctx context.Context) (any, error) { return "reserved", nil }},
			{Name: "charge", Execute: func(ctx context.Context) (any, error) { return "charged", nil }},
		},
	}

	ec, err := e.Execute(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, StateExecuting, ec.StateMachine.State())
	assert.True(t, e.Commit(ec))
	assert.Equal(t, StateCommitted, ec.StateMachine.State())
}

func TestExecuteCompensatesLIFOOnStepFailure(t *testing.T) {
	e := NewEngine()
	var compensated []string

	w := Workflow{
		ID: "wf-2",
		Steps: []Step{
			{
				Name:       "a",
				Execute:    func(ctx context.Context) (any, error) { return "a-result", nil },
				Compensate: func(ctx context.Context, r any) error { compensated = append(compensated, "a"); return nil },
			},
			{
				Name:       "b",
				Execute:    func(ctx context.Context) (any, error) { return "b-result", nil },
				Compensate: func(ctx context.Context, r any) error { compensated = append(compensated, "b"); return nil },
			},
			{
				Name:    "c",
				Execute: func(ctx context.Context) (any, error) { return nil, assertErr{} },
			},
		},
	}

	ec, err := e.Execute(context.Background(), w)
	require.Error(t, err)
	assert.Equal(t, StateCompensated, ec.StateMachine.State())
	assert.Equal(t, []string{"b", "a"}, compensated)
}

func TestCompensationFailureIsLoggedAndDoesNotHaltOthers(t *testing.T) {
	e := NewEngine()
	var compensated []string

	w := Workflow{
		ID: "wf-3",
		Steps: []Step{
			{
				Name:       "a",
				Execute:    func(ctx context.Context) (any, error) { return nil, nil },
				Compensate: func(ctx context.Context, r any) error { compensated = append(compensated, "a"); return nil },
			},
			{
				Name:       "b",
				Execute:    func(ctx context.Context) (any, error) { return nil, nil },
				Compensate: func(ctx context.Context, r any) error { return assertErr{} },
			},
			{
				Name:    "c",
				Execute: func(ctx context.Context) (any, error) { return nil, assertErr{} },
			},
		},
	}

	ec, err := e.Execute(context.Background(), w)
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, compensated)
	assert.Len(t, ec.Errors, 1)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestCommitFailsFromNonExecutingState(t *testing.T) {
	e := NewEngine()
	ec := newExecutionContext("wf-4")
	assert.False(t, e.Commit(ec))
}

func TestStateMachineTransitionReturnsFalseForInvalidEvent(t *testing.T) {
	sm := NewStateMachine()
	assert.False(t, sm.Transition(EventCommit))
	assert.Equal(t, StateIdle, sm.State())
}

func TestStateMachineNotifiesListeners(t *testing.T) {
	sm := NewStateMachine()
	var seen [][2]State
	sm.OnTransition(func(from, to State) { seen = append(seen, [2]State{from, to}) })

	assert.True(t, sm.Transition(EventBeginExecution))
	assert.Equal(t, [2]State{StateIdle, StateExecuting}, seen[0])
}
