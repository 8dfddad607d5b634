package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStateStore struct {
	mu        sync.Mutex
	failed    []WorkflowState
	recovered map[string]bool
	retries   map[string]int
}

func newMemoryStateStore(failed ...WorkflowState) *memoryStateStore {
	return &memoryStateStore{failed: failed, recovered: map[string]bool{}, retries: map[string]int{}}
}

func (s *memoryStateStore) ListFailed(ctx context.Context, maxRetry, batchSize int) ([]WorkflowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []WorkflowState
	for _, wf := range s.failed {
		if s.recovered[wf.ID] {
			continue
		}
		if s.retries[wf.ID] >= maxRetry {
			continue
		}
		out = append(out, wf)
		if len(out) >= batchSize {
			break
		}
	}
	return out, nil
}

func (s *memoryStateStore) IncrementRetry(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries[workflowID]++
	return nil
}

func (s *memoryStateStore) MarkRecovered(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recovered[workflowID] = true
	return nil
}

func TestRecoveryJobRecordsStatsAcrossScans(t *testing.T) {
	log := newMemoryLog()
	require.NoError(t, log.Append(context.Background(), Operation{WorkflowID: "wf-1", Index: 0, Type: OperationInsert, ResourceID: "r1", Status: OperationPending}))
	undo := NewUndoEngine()
	undo.Register(OperationInsert, UndoStrategyFunc(func(ctx context.Context, op Operation) error { return nil }))
	engine := NewDurableEngine(log, undo)

	store := newMemoryStateStore(WorkflowState{ID: "wf-1"})
	job := NewRecoveryJob(store, engine, 3, 10)

	require.NoError(t, job.RunOnce(context.Background()))

	stats := job.Stats()
	assert.Equal(t, 1, stats.TotalScans)
	assert.Equal(t, 1, stats.WorkflowsFound)
	assert.Equal(t, 1.0, stats.SuccessRate)
	assert.True(t, store.recovered["wf-1"])
}

func TestRecoveryJobOneWorkflowFailureDoesNotAffectOthers(t *testing.T) {
	log := newMemoryLog()
	require.NoError(t, log.Append(context.Background(), Operation{WorkflowID: "bad", Index: 0, Type: OperationDelete, Status: OperationPending}))
	require.NoError(t, log.Append(context.Background(), Operation{WorkflowID: "good", Index: 0, Type: OperationInsert, Status: OperationPending}))

	undo := NewUndoEngine()
	undo.Register(OperationDelete, UndoStrategyFunc(func(ctx context.Context, op Operation) error { return assertErr{} }))
	undo.Register(OperationInsert, UndoStrategyFunc(func(ctx context.Context, op Operation) error { return nil }))
	engine := NewDurableEngine(log, undo)

	store := newMemoryStateStore(WorkflowState{ID: "bad"}, WorkflowState{ID: "good"})
	job := NewRecoveryJob(store, engine, 3, 10)

	require.NoError(t, job.RunOnce(context.Background()))

	assert.False(t, store.recovered["bad"])
	assert.True(t, store.recovered["good"])
	assert.Equal(t, 1, store.retries["bad"])
}

func TestRecoveryJobSkipsWorkflowsAtRetryCeiling(t *testing.T) {
	store := newMemoryStateStore(WorkflowState{ID: "exhausted"})
	store.retries["exhausted"] = 3

	log := newMemoryLog()
	engine := NewDurableEngine(log, NewUndoEngine())
	job := NewRecoveryJob(store, engine, 3, 10)

	require.NoError(t, job.RunOnce(context.Background()))
	assert.Equal(t, 0, job.Stats().WorkflowsFound)
}

func TestRecoveryJobRateLimitAbortsOnContextCancellation(t *testing.T) {
	log := newMemoryLog()
	engine := NewDurableEngine(log, NewUndoEngine())
	store := newMemoryStateStore(WorkflowState{ID: "wf-1"}, WorkflowState{ID: "wf-2"})
	job := NewRecoveryJob(store, engine, 3, 10).WithRecoveryRateLimit(1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := job.RunOnce(ctx)
	assert.Error(t, err)
}
