package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLog struct {
	mu  sync.Mutex
	ops map[string][]Operation
}

func newMemoryLog() *memoryLog { return &memoryLog{ops: map[string][]Operation{}} }

func (l *memoryLog) Append(ctx context.Context, op Operation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops[op.WorkflowID] = append(l.ops[op.WorkflowID], op)
	return nil
}

func (l *memoryLog) UpdateStatus(ctx context.Context, workflowID string, index int, status OperationStatus, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.ops[workflowID] {
		if l.ops[workflowID][i].Index == index {
			l.ops[workflowID][i].Status = status
			l.ops[workflowID][i].FailureReason = reason
		}
	}
	return nil
}

func (l *memoryLog) ListForWorkflow(ctx context.Context, workflowID string) ([]Operation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Operation{}, l.ops[workflowID]...), nil
}

func TestUndoEngineUsesRegisteredStrategyByType(t *testing.T) {
	u := NewUndoEngine()
	var undone []string
	u.Register(OperationInsert, UndoStrategyFunc(func(ctx context.Context, op Operation) error {
		undone = append(undone, op.ResourceID)
		return nil
	}))

	log := newMemoryLog()
	ops := []Operation{
		{WorkflowID: "wf", Index: 0, Type: OperationInsert, ResourceID: "r1", Status: OperationPending},
		{WorkflowID: "wf", Index: 1, Type: OperationInsert, ResourceID: "r2", Status: OperationPending},
	}

	errs := u.UndoAll(context.Background(), log, ops)
	assert.Empty(t, errs)
	assert.Equal(t, []string{"r2", "r1"}, undone) // reverse order
}

func TestUndoEngineFallsBackToNoopForUnknownType(t *testing.T) {
	u := NewUndoEngine()
	log := newMemoryLog()
	ops := []Operation{{WorkflowID: "wf", Index: 0, Type: "MysteryType", Status: OperationPending}}

	errs := u.UndoAll(context.Background(), log, ops)
	assert.Empty(t, errs)

	rows, _ := log.ListForWorkflow(context.Background(), "wf")
	assert.Equal(t, OperationUndone, rows[0].Status)
}

func TestUndoEngineContinuesPastFailure(t *testing.T) {
	u := NewUndoEngine()
	var calls []int
	u.Register(OperationDelete, UndoStrategyFunc(func(ctx context.Context, op Operation) error {
		calls = append(calls, op.Index)
		if op.Index == 1 {
			return assertErr{}
		}
		return nil
	}))

	log := newMemoryLog()
	ops := []Operation{
		{WorkflowID: "wf", Index: 0, Type: OperationDelete, Status: OperationPending},
		{WorkflowID: "wf", Index: 1, Type: OperationDelete, Status: OperationPending},
	}

	errs := u.UndoAll(context.Background(), log, ops)
	assert.Len(t, errs, 1)
	assert.Equal(t, []int{1, 0}, calls)
}

func TestDurableEngineRecordsOperationsBeforeEffect(t *testing.T) {
	log := newMemoryLog()
	engine := NewDurableEngine(log, NewUndoEngine())

	require.NoError(t, engine.RecordOperation(context.Background(), Operation{WorkflowID: "wf", Index: 0, Type: OperationInsert, ResourceID: "r1"}))

	rows, _ := log.ListForWorkflow(context.Background(), "wf")
	require.Len(t, rows, 1)
	assert.Equal(t, OperationPending, rows[0].Status)
}

func TestDurableEngineCommitMarksAllOperationsCommitted(t *testing.T) {
	log := newMemoryLog()
	engine := NewDurableEngine(log, NewUndoEngine())
	require.NoError(t, engine.RecordOperation(context.Background(), Operation{WorkflowID: "wf", Index: 0, Type: OperationInsert}))
	require.NoError(t, engine.RecordOperation(context.Background(), Operation{WorkflowID: "wf", Index: 1, Type: OperationUpdate}))

	require.NoError(t, engine.CommitOperations(context.Background(), "wf"))

	rows, _ := log.ListForWorkflow(context.Background(), "wf")
	for _, r := range rows {
		assert.Equal(t, OperationCommitted, r.Status)
	}
}

func TestDurableEngineRecoverUndoesLoggedOperations(t *testing.T) {
	log := newMemoryLog()
	undo := NewUndoEngine()
	var undone []string
	undo.Register(OperationInsert, UndoStrategyFunc(func(ctx context.Context, op Operation) error {
		undone = append(undone, op.ResourceID)
		return nil
	}))
	engine := NewDurableEngine(log, undo)
	require.NoError(t, engine.RecordOperation(context.Background(), Operation{WorkflowID: "wf", Index: 0, Type: OperationInsert, ResourceID: "r1"}))

	errs := engine.Recover(context.Background(), "wf")
	assert.Empty(t, errs)
	assert.Equal(t, []string{"r1"}, undone)
}
