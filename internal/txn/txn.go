// Package txn implements the Transaction Manager and Adapter Pipeline (spec
// §4.5). The phase sequence and listener-notification style is grounded on
// the teacher's coordinator.PhaseManager (phases.go), and the retry
// backoff/jitter arithmetic is grounded on coordinator.Coordinator's
// reconnect loop (coordinator.go: ReconnectInitialDelay/MaxDelay/BackoffFactor).
package txn

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/katalyst-run/katalyst/internal/errs"
	"github.com/katalyst-run/katalyst/klog"
)

var log = klog.For("txn")

// Phase is one point in the transaction lifecycle (spec §4.5).
type Phase string

const (
	PhaseBeforeBegin  Phase = "before_begin"
	PhaseAfterBegin   Phase = "after_begin"
	PhaseBeforeCommit Phase = "before_commit"
	PhaseAfterCommit  Phase = "after_commit"
	PhaseOnRollback   Phase = "on_rollback"
	PhaseAfterRollback Phase = "after_rollback"
)

// Isolation is the transaction isolation level (spec §4.5).
type Isolation int

const (
	ReadUncommitted Isolation = iota
	ReadCommitted
	RepeatableRead
	Serializable
)

// Backoff is the retry delay growth model.
type Backoff int

const (
	BackoffExponential Backoff = iota
	BackoffLinear
	BackoffImmediate
)

// RetryPolicy configures retry behavior (spec §4.5).
type RetryPolicy struct {
	Max              int
	Kind             Backoff
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	JitterFactor     float64
	RetryableKinds   map[errs.Kind]bool
	NonRetryableKinds map[errs.Kind]bool
}

// DefaultRetryPolicy mirrors the teacher's reconnect defaults (1s initial,
// 30s cap) adapted to the transaction domain's smaller attempt budget.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Max:          3,
		Kind:         BackoffExponential,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		JitterFactor: 0.1,
	}
}

// NoRetry returns a policy that runs a transaction exactly once. The
// zero-value RetryPolicy{} (an unconfigured Config.Retry) is reserved for
// "apply DefaultRetryPolicy" — callers that deliberately want a single
// attempt, such as the migration runner executing a transactional
// migration, use this sentinel instead so their intent isn't silently
// replaced by the default retry budget.
func NoRetry() RetryPolicy {
	return RetryPolicy{Max: -1}
}

// classify decides whether err should be retried under p. Explicit
// non-retryable list takes precedence over explicit retryable, which takes
// precedence over the built-in transient classifier. KindOf walks the cause
// chain with outermost-type-wins semantics, so a permanent kind wrapping a
// transient cause still classifies permanent (spec §4.5).
func (p RetryPolicy) classify(err error) bool {
	kind, ok := errs.KindOf(err)
	if !ok {
		return false
	}
	if p.NonRetryableKinds[kind] {
		return false
	}
	if p.RetryableKinds[kind] {
		return true
	}
	return errs.IsRetryable(kind)
}

// delay computes the backoff duration for attempt n (0-based), capped at
// MaxDelay and perturbed by ± JitterFactor × base uniform jitter.
func (p RetryPolicy) delay(attempt int) time.Duration {
	var base time.Duration
	switch p.Kind {
	case BackoffExponential:
		base = p.InitialDelay * time.Duration(1<<uint(attempt))
	case BackoffLinear:
		base = p.InitialDelay * time.Duration(attempt+1)
	default: // BackoffImmediate
		base = 0
	}
	if p.MaxDelay > 0 && base > p.MaxDelay {
		base = p.MaxDelay
	}
	if p.JitterFactor <= 0 || base == 0 {
		return base
	}
	jitter := (rand.Float64()*2 - 1) * p.JitterFactor * float64(base)
	result := time.Duration(float64(base) + jitter)
	if result < 0 {
		result = 0
	}
	return result
}

// AdapterResult is one adapter's outcome for one phase (spec §4.5).
type AdapterResult struct {
	Adapter  string
	Phase    Phase
	Success  bool
	Error    error
	Duration time.Duration
}

// Adapter participates in every transaction phase. Critical adapters can
// force a rollback from BeforeCommit; non-critical failures are always
// logged and never alter the outcome.
type Adapter interface {
	Name() string
	Priority() int
	Critical() bool
	Run(ctx context.Context, phase Phase, tc *Context) error
}

// Context is the per-transaction state threaded through every phase and
// handed to adapters; it also carries the pending-events queue the event
// bus drains on commit (spec §4.6).
type Context struct {
	ID            string
	WorkflowID    string
	Isolation     Isolation
	mu            sync.Mutex
	pendingEvents []any
	listeners     []func(Phase)
	Executions    []AdapterResult
}

// NewContext builds a standalone transaction context — used internally by
// runOnce and exposed so collaborators like the event bus can construct one
// for testing their transactional integration in isolation.
func NewContext(id, workflowID string, isolation Isolation) *Context {
	return &Context{ID: id, WorkflowID: workflowID, Isolation: isolation}
}

// EnqueueEvent adds an event to the pending-events queue instead of
// dispatching it immediately (spec §4.6's transactional publish mode).
func (tc *Context) EnqueueEvent(event any) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.pendingEvents = append(tc.pendingEvents, event)
}

// PendingEventCount reports how many events are currently queued, read
// before the queue is drained or cleared so Metrics.EventCount reflects
// what was actually published rather than the emptied queue.
func (tc *Context) PendingEventCount() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.pendingEvents)
}

// DrainEvents returns and clears the pending-events queue in insertion
// order, used on AfterCommit.
func (tc *Context) DrainEvents() []any {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	drained := tc.pendingEvents
	tc.pendingEvents = nil
	return drained
}

// ClearEvents discards the pending-events queue without publishing, used on
// OnRollback.
func (tc *Context) ClearEvents() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.pendingEvents = nil
}

// OnPhaseChanged registers a listener invoked as each phase runs, grounded
// on the teacher's PhaseManager.OnPhaseChanged callback style.
func (tc *Context) OnPhaseChanged(listener func(Phase)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, listener)
}

func (tc *Context) notify(phase Phase) {
	tc.mu.Lock()
	listeners := append([]func(Phase){}, tc.listeners...)
	tc.mu.Unlock()
	for _, l := range listeners {
		l(phase)
	}
}

// Config configures one transaction invocation (spec §4.5).
type Config struct {
	Isolation   Isolation
	Timeout     time.Duration
	Retry       RetryPolicy
	FailFast    bool
	WorkflowID  string
}

// Exporter receives transaction metrics (spec §4.5); exporter failures are
// logged and never propagate.
type Exporter interface {
	Export(m Metrics)
}

// Metrics is the per-transaction summary emitted to every exporter.
type Metrics struct {
	ID         string
	WorkflowID string
	Status     string
	Duration   time.Duration
	// OperationCount is the number of adapter-pipeline operations run for
	// this attempt (len(AdapterExecutions)).
	OperationCount    int
	EventCount        int
	RetryCount        int
	AdapterExecutions []AdapterResult
	Errors            []error
}

// Manager runs transactions through the adapter pipeline (spec §4.5).
type Manager struct {
	mu        sync.RWMutex
	adapters  []Adapter
	exporters []Exporter
	now       func() time.Time
}

func NewManager() *Manager {
	return &Manager{now: time.Now}
}

// RegisterAdapter adds an adapter, keeping the registry sorted by
// descending priority (ties broken by registration order).
func (m *Manager) RegisterAdapter(a Adapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapters = append(m.adapters, a)
	sort.SliceStable(m.adapters, func(i, j int) bool {
		return m.adapters[i].Priority() > m.adapters[j].Priority()
	})
}

// RegisterExporter adds a metrics exporter.
func (m *Manager) RegisterExporter(e Exporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exporters = append(m.exporters, e)
}

// nextID mints a transaction ID, matching the teacher's use of uuid for
// document and service identifiers throughout db/ and registry/.
func (m *Manager) nextID() string {
	return uuid.New().String()
}

// Body is the user's transactional work.
type Body func(ctx context.Context, tc *Context) error

// Transaction runs body inside the full phase sequence, with retry per
// cfg.Retry's classification, and returns the body's final error (after
// retries are exhausted).
func (m *Manager) Transaction(ctx context.Context, cfg Config, body Body) error {
	if cfg.Retry.Max == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}

		err := m.runOnce(ctx, cfg, body, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			lastErr = errs.Wrap(errs.KindTxTimeout, "transaction exceeded its timeout", err)
		}

		if attempt >= cfg.Retry.Max || !cfg.Retry.classify(lastErr) {
			return lastErr
		}
		wait := cfg.Retry.delay(attempt)
		log.WithError(lastErr).Warnf("transaction attempt %d failed, retrying in %s", attempt+1, wait)
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(wait):
		}
	}
}

// ReadOnly runs body without the commit/rollback branch's write-path
// adapters firing a critical failure into rollback — it still runs the full
// phase sequence so read-side adapters (auditing, metrics) still observe it.
func (m *Manager) ReadOnly(ctx context.Context, cfg Config, body Body) error {
	cfg.Retry = NoRetry()
	cfg.FailFast = false
	return m.runOnce(ctx, cfg, body, 0)
}

func (m *Manager) runOnce(ctx context.Context, cfg Config, body Body, retryCount int) error {
	start := m.now()
	tc := NewContext(m.nextID(), cfg.WorkflowID, cfg.Isolation)

	m.runPhase(ctx, PhaseBeforeBegin, tc, cfg.FailFast)
	m.runPhase(ctx, PhaseAfterBegin, tc, cfg.FailFast)

	bodyErr := body(ctx, tc)

	var status string
	var finalErr error
	var eventCount int
	if bodyErr == nil {
		critical := m.runPhase(ctx, PhaseBeforeCommit, tc, cfg.FailFast)
		eventCount = tc.PendingEventCount()
		if critical != nil && cfg.FailFast {
			finalErr = errs.Wrap(errs.KindTxAdapterCritical, "critical adapter failed in before_commit", critical)
			status = "rolled_back"
			m.runPhase(ctx, PhaseOnRollback, tc, false)
			m.runPhase(ctx, PhaseAfterRollback, tc, false)
			tc.ClearEvents()
		} else {
			status = "committed"
			m.runPhase(ctx, PhaseAfterCommit, tc, false)
		}
	} else {
		eventCount = tc.PendingEventCount()
		status = "rolled_back"
		finalErr = bodyErr
		m.runPhase(ctx, PhaseOnRollback, tc, false)
		m.runPhase(ctx, PhaseAfterRollback, tc, false)
		tc.ClearEvents()
	}

	m.exportMetrics(Metrics{
		ID:                tc.ID,
		WorkflowID:        tc.WorkflowID,
		Status:            status,
		Duration:          m.now().Sub(start),
		OperationCount:    len(tc.Executions),
		EventCount:        eventCount,
		RetryCount:        retryCount,
		AdapterExecutions: tc.Executions,
		Errors:            errSlice(finalErr),
	})

	return finalErr
}

func errSlice(err error) []error {
	if err == nil {
		return nil
	}
	return []error{err}
}

// runPhase runs every adapter for phase in priority order, notifying
// Context listeners first. A non-nil return is the first critical adapter's
// error (only meaningful to the caller in BeforeCommit with failFast).
func (m *Manager) runPhase(ctx context.Context, phase Phase, tc *Context, failFast bool) error {
	tc.notify(phase)

	m.mu.RLock()
	adapters := append([]Adapter{}, m.adapters...)
	m.mu.RUnlock()

	var critical error
	for _, a := range adapters {
		start := m.now()
		err := a.Run(ctx, phase, tc)
		duration := m.now().Sub(start)
		result := AdapterResult{Adapter: a.Name(), Phase: phase, Success: err == nil, Error: err, Duration: duration}
		tc.Executions = append(tc.Executions, result)

		if err == nil {
			continue
		}
		if a.Critical() && phase == PhaseBeforeCommit && failFast {
			if critical == nil {
				critical = err
			}
			continue
		}
		log.WithError(err).Warnf("adapter %q failed in phase %q (non-fatal)", a.Name(), phase)
	}
	return critical
}

func (m *Manager) exportMetrics(metrics Metrics) {
	m.mu.RLock()
	exporters := append([]Exporter{}, m.exporters...)
	m.mu.RUnlock()

	for _, e := range exporters {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("metrics exporter panicked: %v", r)
				}
			}()
			e.Export(metrics)
		}()
	}
}
