package txn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/katalyst-run/katalyst/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	name     string
	priority int
	critical bool
	failOn   Phase
	calls    *[]string
}

func (a *fakeAdapter) Name() string  { return a.name }
func (a *fakeAdapter) Priority() int { return a.priority }
func (a *fakeAdapter) Critical() bool { return a.critical }
func (a *fakeAdapter) Run(ctx context.Context, phase Phase, tc *Context) error {
	*a.calls = append(*a.calls, a.name+":"+string(phase))
	if phase == a.failOn {
		return errors.New("adapter failure")
	}
	return nil
}

func TestTransactionCommitsOnSuccess(t *testing.T) {
	m := NewManager()
	var phases []Phase
	err := m.Transaction(context.Background(), Config{}, func(ctx context.Context, tc *Context) error {
		tc.OnPhaseChanged(func(p Phase) { phases = append(phases, p) })
		return nil
	})
	require.NoError(t, err)
}

func TestTransactionRollsBackOnBodyError(t *testing.T) {
	m := NewManager()
	var calls []string
	m.RegisterAdapter(&fakeAdapter{name: "audit", priority: 10, calls: &calls})

	err := m.Transaction(context.Background(), Config{Retry: NoRetry()}, func(ctx context.Context, tc *Context) error {
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Contains(t, calls, "audit:on_rollback")
	assert.Contains(t, calls, "audit:after_rollback")
	assert.NotContains(t, calls, "audit:after_commit")
}

func TestCriticalAdapterFailureForcesRollback(t *testing.T) {
	m := NewManager()
	var calls []string
	m.RegisterAdapter(&fakeAdapter{name: "critical", priority: 10, critical: true, failOn: PhaseBeforeCommit, calls: &calls})

	err := m.Transaction(context.Background(), Config{FailFast: true, Retry: NoRetry()}, func(ctx context.Context, tc *Context) error {
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, calls, "critical:on_rollback")
}

func TestNonCriticalAdapterFailureDoesNotAlterOutcome(t *testing.T) {
	m := NewManager()
	var calls []string
	m.RegisterAdapter(&fakeAdapter{name: "best-effort", priority: 10, critical: false, failOn: PhaseBeforeCommit, calls: &calls})

	err := m.Transaction(context.Background(), Config{FailFast: true, Retry: NoRetry()}, func(ctx context.Context, tc *Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, calls, "best-effort:after_commit")
}

func TestAdaptersRunInDescendingPriorityOrder(t *testing.T) {
	m := NewManager()
	var calls []string
	m.RegisterAdapter(&fakeAdapter{name: "low", priority: 1, calls: &calls})
	m.RegisterAdapter(&fakeAdapter{name: "high", priority: 100, calls: &calls})

	_ = m.Transaction(context.Background(), Config{Retry: NoRetry()}, func(ctx context.Context, tc *Context) error {
		return nil
	})

	assert.Equal(t, "high:before_begin", calls[0])
	assert.Equal(t, "low:before_begin", calls[1])
}

func TestTransactionRetriesRetryableKindAndSucceeds(t *testing.T) {
	m := NewManager()
	attempts := 0
	err := m.Transaction(context.Background(), Config{
		Retry: RetryPolicy{Max: 2, InitialDelay: time.Millisecond, Kind: BackoffImmediate},
	}, func(ctx context.Context, tc *Context) error {
		attempts++
		if attempts < 2 {
			return errs.New(errs.KindTxUnavailable, "db unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestTransactionDoesNotRetryPermanentKind(t *testing.T) {
	m := NewManager()
	attempts := 0
	err := m.Transaction(context.Background(), Config{
		Retry: RetryPolicy{Max: 3, InitialDelay: time.Millisecond},
	}, func(ctx context.Context, tc *Context) error {
		attempts++
		return errs.New(errs.KindTxPermanent, "constraint violation")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestPendingEventsDrainOnCommitAndClearOnRollback(t *testing.T) {
	tc := NewContext("t1", "", ReadCommitted)
	tc.EnqueueEvent("a")
	tc.EnqueueEvent("b")

	drained := tc.DrainEvents()
	assert.Equal(t, []any{"a", "b"}, drained)
	assert.Empty(t, tc.DrainEvents())

	tc.EnqueueEvent("c")
	tc.ClearEvents()
	assert.Empty(t, tc.DrainEvents())
}

func TestRetryPolicyDelayRespectsCapAndBackoffKind(t *testing.T) {
	p := RetryPolicy{InitialDelay: 10 * time.Millisecond, MaxDelay: 25 * time.Millisecond, Kind: BackoffExponential}
	assert.Equal(t, 10*time.Millisecond, p.delay(0))
	assert.Equal(t, 20*time.Millisecond, p.delay(1))
	assert.Equal(t, 25*time.Millisecond, p.delay(2)) // 40ms capped to 25ms
}

type fakeExporter struct {
	metrics []Metrics
}

func (e *fakeExporter) Export(m Metrics) { e.metrics = append(e.metrics, m) }

func TestMetricsReportEventAndOperationCountsBeforeQueueIsDrained(t *testing.T) {
	m := NewManager()
	exporter := &fakeExporter{}
	m.RegisterExporter(exporter)
	m.RegisterAdapter(&fakeAdapter{name: "audit", priority: 10, calls: &[]string{}})

	err := m.Transaction(context.Background(), Config{Retry: NoRetry()}, func(ctx context.Context, tc *Context) error {
		tc.EnqueueEvent("a")
		tc.EnqueueEvent("b")
		return nil
	})
	require.NoError(t, err)
	require.Len(t, exporter.metrics, 1)
	assert.Equal(t, 2, exporter.metrics[0].EventCount)
	assert.NotZero(t, exporter.metrics[0].OperationCount)
}

func TestMetricsRecordRetryCountAcrossAttempts(t *testing.T) {
	m := NewManager()
	exporter := &fakeExporter{}
	m.RegisterExporter(exporter)

	attempts := 0
	err := m.Transaction(context.Background(), Config{
		Retry: RetryPolicy{Max: 2, InitialDelay: time.Millisecond, Kind: BackoffImmediate},
	}, func(ctx context.Context, tc *Context) error {
		attempts++
		if attempts < 2 {
			return errs.New(errs.KindTxUnavailable, "db unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, exporter.metrics, 2)
	assert.Equal(t, 0, exporter.metrics[0].RetryCount)
	assert.Equal(t, 1, exporter.metrics[1].RetryCount)
}

func TestNoRetryRunsExactlyOnceEvenForRetryableErrors(t *testing.T) {
	m := NewManager()
	attempts := 0
	err := m.Transaction(context.Background(), Config{Retry: NoRetry()}, func(ctx context.Context, tc *Context) error {
		attempts++
		return errs.New(errs.KindTxUnavailable, "db unavailable")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicyNonRetryableListTakesPrecedence(t *testing.T) {
	p := RetryPolicy{NonRetryableKinds: map[errs.Kind]bool{errs.KindTxUnavailable: true}}
	err := errs.New(errs.KindTxUnavailable, "down")
	assert.False(t, p.classify(err))
}
