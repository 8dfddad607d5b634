package workflow

import (
	"context"
	"fmt"

	"github.com/katalyst-run/katalyst/internal/errs"
)

// OperationType classifies an operation for undo-strategy selection.
// Unrecognized types are handled by the no-op strategy, so this is
// intentionally an open string set rather than a closed enum (spec §4.9
// names Insert/Update/Delete/ApiCall as examples, not an exhaustive list).
type OperationType string

const (
	OperationInsert  OperationType = "Insert"
	OperationUpdate  OperationType = "Update"
	OperationDelete  OperationType = "Delete"
	OperationAPICall OperationType = "ApiCall"
)

// OperationStatus is one operation log row's lifecycle state.
type OperationStatus string

const (
	OperationPending   OperationStatus = "Pending"
	OperationCommitted OperationStatus = "Committed"
	OperationUndone    OperationStatus = "Undone"
	OperationFailed    OperationStatus = "Failed"
)

// Operation is one durable operation-log row (spec §4.9).
type Operation struct {
	WorkflowID    string
	Index         int
	Type          OperationType
	ResourceType  string
	ResourceID    string
	OperationData any
	UndoData      any
	Status        OperationStatus
	FailureReason string
}

// OperationLog is the persistence contract for the durable operation log.
// The log is the source of truth for recovery: every operation is appended
// before its effect is attempted.
type OperationLog interface {
	Append(ctx context.Context, op Operation) error
	UpdateStatus(ctx context.Context, workflowID string, index int, status OperationStatus, reason string) error
	ListForWorkflow(ctx context.Context, workflowID string) ([]Operation, error)
}

// UndoStrategy reverses one operation's effect.
type UndoStrategy interface {
	Undo(ctx context.Context, op Operation) error
}

// UndoStrategyFunc adapts a plain function to UndoStrategy.
type UndoStrategyFunc func(ctx context.Context, op Operation) error

func (f UndoStrategyFunc) Undo(ctx context.Context, op Operation) error { return f(ctx, op) }

// noopStrategy is the fallback for unregistered operation types: it
// succeeds without doing anything, so the remainder of the undo continues
// (spec §4.9).
var noopStrategy UndoStrategy = UndoStrategyFunc(func(ctx context.Context, op Operation) error { return nil })

// UndoEngine selects an UndoStrategy by operation type.
type UndoEngine struct {
	strategies map[OperationType]UndoStrategy
}

func NewUndoEngine() *UndoEngine {
	return &UndoEngine{strategies: map[OperationType]UndoStrategy{}}
}

// Register binds a strategy to an operation type.
func (u *UndoEngine) Register(opType OperationType, strategy UndoStrategy) {
	u.strategies[opType] = strategy
}

func (u *UndoEngine) strategyFor(opType OperationType) UndoStrategy {
	if s, ok := u.strategies[opType]; ok {
		return s
	}
	return noopStrategy
}

// UndoAll runs the operation list's undo path in reverse (LIFO) order,
// updating each row's status as it goes. Only Pending and Failed rows are
// undone; Committed and Undone rows are skipped. Every such operation is
// attempted even if an earlier one fails; failures are collected and
// returned together.
func (u *UndoEngine) UndoAll(ctx context.Context, log OperationLog, ops []Operation) []error {
	var errors []error
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		if op.Status != OperationPending && op.Status != OperationFailed {
			continue
		}
		strategy := u.strategyFor(op.Type)
		if err := strategy.Undo(ctx, op); err != nil {
			reason := err.Error()
			_ = log.UpdateStatus(ctx, op.WorkflowID, op.Index, OperationFailed, reason)
			errors = append(errors, errs.Wrap(errs.KindWorkflowCompensationFailure, fmt.Sprintf("undo failed for %s operation %d", op.Type, op.Index), err))
			continue
		}
		_ = log.UpdateStatus(ctx, op.WorkflowID, op.Index, OperationUndone, "")
	}
	return errors
}

// DurableEngine wraps Engine with the operation log: every step's
// side-effecting work is expected to call RecordOperation before attempting
// its effect, so the log reflects intent before outcome.
type DurableEngine struct {
	*Engine
	log  OperationLog
	undo *UndoEngine
}

func NewDurableEngine(log OperationLog, undo *UndoEngine) *DurableEngine {
	return &DurableEngine{Engine: NewEngine(), log: log, undo: undo}
}

// RecordOperation appends op to the log as Pending before its effect is
// attempted, per spec §4.9.
func (d *DurableEngine) RecordOperation(ctx context.Context, op Operation) error {
	op.Status = OperationPending
	return d.log.Append(ctx, op)
}

// CommitOperations marks every logged operation for workflowID Committed,
// called after the workflow's steps all succeed and commit() is invoked.
func (d *DurableEngine) CommitOperations(ctx context.Context, workflowID string) error {
	ops, err := d.log.ListForWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	for _, op := range ops {
		if err := d.log.UpdateStatus(ctx, workflowID, op.Index, OperationCommitted, ""); err != nil {
			return err
		}
	}
	return nil
}

// Recover drives the undo path for workflowID's logged operations, in
// reverse order, via the UndoEngine.
func (d *DurableEngine) Recover(ctx context.Context, workflowID string) []error {
	ops, err := d.log.ListForWorkflow(ctx, workflowID)
	if err != nil {
		return []error{err}
	}
	return d.undo.UndoAll(ctx, d.log, ops)
}
