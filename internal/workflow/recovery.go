package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/katalyst-run/katalyst/klog"
	"golang.org/x/time/rate"
)

var recoveryLog = klog.For("workflow.recovery")

// WorkflowState is one row the recovery job scans: a workflow that reached
// Failed status, with its retry counter.
type WorkflowState struct {
	ID         string
	RetryCount int
}

// WorkflowStateStore lists and updates the failed-workflow ledger the
// recovery job scans.
type WorkflowStateStore interface {
	ListFailed(ctx context.Context, maxRetry int, batchSize int) ([]WorkflowState, error)
	IncrementRetry(ctx context.Context, workflowID string) error
	MarkRecovered(ctx context.Context, workflowID string) error
}

// RecoveryStats is the per-scan metrics the job records (spec §4.9).
type RecoveryStats struct {
	TotalScans      int
	WorkflowsFound  int
	SuccessRate     float64
}

// RecoveryJob periodically scans Failed workflows under the retry ceiling,
// in batches, driving DurableEngine.Recover on each. One workflow's failure
// never affects the others in the same batch.
type RecoveryJob struct {
	store    WorkflowStateStore
	engine   *DurableEngine
	maxRetry int
	batch    int
	limiter  *rate.Limiter

	mu    sync.Mutex
	stats RecoveryStats
}

func NewRecoveryJob(store WorkflowStateStore, engine *DurableEngine, maxRetry, batchSize int) *RecoveryJob {
	return &RecoveryJob{store: store, engine: engine, maxRetry: maxRetry, batch: batchSize, limiter: rate.NewLimiter(rate.Inf, 0)}
}

// WithRecoveryRateLimit caps how many workflow recovery attempts run per
// second, so a batch of failed workflows never hammers a struggling
// downstream dependency all at once.
func (j *RecoveryJob) WithRecoveryRateLimit(perSecond float64, burst int) *RecoveryJob {
	j.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return j
}

// Stats returns a snapshot of the recovery metrics: TotalScans and
// WorkflowsFound accumulate across scans, while SuccessRate is that of the
// most recent scan that found at least one workflow.
func (j *RecoveryJob) Stats() RecoveryStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}

// RunOnce performs a single scan, suitable for wiring as a scheduler.Task.
func (j *RecoveryJob) RunOnce(ctx context.Context) error {
	workflows, err := j.store.ListFailed(ctx, j.maxRetry, j.batch)
	if err != nil {
		return err
	}

	succeeded := 0
	for _, wf := range workflows {
		if err := j.limiter.Wait(ctx); err != nil {
			return err
		}
		errs := j.engine.Recover(ctx, wf.ID)
		if len(errs) == 0 {
			if err := j.store.MarkRecovered(ctx, wf.ID); err != nil {
				recoveryLog.WithError(err).Warnf("failed to mark workflow %q recovered", wf.ID)
				continue
			}
			succeeded++
			continue
		}
		for _, e := range errs {
			recoveryLog.WithError(e).Warnf("recovery attempt failed for workflow %q", wf.ID)
		}
		if err := j.store.IncrementRetry(ctx, wf.ID); err != nil {
			recoveryLog.WithError(err).Warnf("failed to increment retry counter for workflow %q", wf.ID)
		}
	}

	j.mu.Lock()
	j.stats.TotalScans++
	j.stats.WorkflowsFound += len(workflows)
	if len(workflows) > 0 {
		j.stats.SuccessRate = float64(succeeded) / float64(len(workflows))
	}
	j.mu.Unlock()

	return nil
}

// RunPeriodically runs RunOnce every interval until ctx is cancelled.
func (j *RecoveryJob) RunPeriodically(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				recoveryLog.WithError(err).Error("recovery scan failed")
			}
		}
	}
}
