// Package migration implements the Migration Runner (spec §4.8): baseline
// phase, tag/target filtering, checksum verification, dry-run, and
// transactional/non-transactional execution. Grounded on the teacher's
// db/postgres.go connection-pool setup (heavy doc-comment style, explicit
// transaction boundaries) and wired to the txn package's Manager for the
// transactional execution path.
package migration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/katalyst-run/katalyst/internal/errs"
	"github.com/katalyst-run/katalyst/internal/txn"
	"github.com/katalyst-run/katalyst/klog"
)

var log = klog.For("migration")

// Status is a history row's recorded outcome.
type Status string

const (
	StatusBaselined Status = "BASELINED"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
)

// HistoryRecord is one row of the migration history table.
type HistoryRecord struct {
	ID        string
	Checksum  string
	Status    Status
	Duration  time.Duration
	AppliedAt time.Time
}

// HistoryStore is the persistence contract for the history table; a real
// deployment backs this with whatever PersistenceDriver pkg/txhost wires in.
type HistoryStore interface {
	EnsureTable(ctx context.Context) error
	Get(ctx context.Context, id string) (HistoryRecord, bool, error)
	Insert(ctx context.Context, record HistoryRecord) error
}

// Migration is one user-declared migration (spec §4.8).
type Migration struct {
	ID            string
	Order         int
	Tags          []string
	Content       string // defining content the checksum is computed over
	Transactional bool
	Up            func(ctx context.Context) error
}

// Checksum computes the stable SHA-256 hex digest of m.Content. Whitespace
// is significant: callers must assemble Content the same way every run.
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.Content))
	return hex.EncodeToString(sum[:])
}

// Options configures one run (spec §4.8).
type Options struct {
	BaselineVersion string // inclusive upper bound for the baseline phase; empty disables baselining
	TargetVersion   string // inclusive upper bound for execution; empty means no bound
	IncludeTags     []string
	ExcludeTags     []string
	DryRun          bool
	Blocking        bool
	StopOnFailure   bool
}

// Result summarizes one run.
type Result struct {
	Applied   []string
	Skipped   []string
	Baselined []string
	Failed    []string
	Errors    []error
}

// Runner executes migrations against a HistoryStore, optionally driving
// transactional migrations through a txn.Manager.
type Runner struct {
	history HistoryStore
	txn     *txn.Manager
}

func NewRunner(history HistoryStore, txManager *txn.Manager) *Runner {
	return &Runner{history: history, txn: txManager}
}

// Run ensures the history table, applies the baseline phase, then executes
// every remaining candidate in (order, id) order, per spec §4.8's 5-step
// per-candidate algorithm.
func (r *Runner) Run(ctx context.Context, migrations []Migration, opts Options) (Result, error) {
	if err := r.history.EnsureTable(ctx); err != nil {
		return Result{}, errs.Wrap(errs.KindMigrationHistoryWrite, "ensuring history table", err)
	}

	ordered := append([]Migration{}, migrations...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Order != ordered[j].Order {
			return ordered[i].Order < ordered[j].Order
		}
		return ordered[i].ID < ordered[j].ID
	})

	var result Result

	if opts.BaselineVersion != "" {
		for _, m := range ordered {
			if m.ID > opts.BaselineVersion {
				continue
			}
			if _, exists, err := r.history.Get(ctx, m.ID); err != nil {
				return result, errs.Wrap(errs.KindMigrationHistoryWrite, "reading history for baseline", err)
			} else if exists {
				continue
			}
			if err := r.history.Insert(ctx, HistoryRecord{ID: m.ID, Checksum: m.Checksum(), Status: StatusBaselined, AppliedAt: time.Now()}); err != nil {
				return result, errs.Wrap(errs.KindMigrationHistoryWrite, "writing baseline row", err)
			}
			result.Baselined = append(result.Baselined, m.ID)
		}
	}

	baselined := make(map[string]bool, len(result.Baselined))
	for _, id := range result.Baselined {
		baselined[id] = true
	}

	for _, m := range ordered {
		if baselined[m.ID] {
			continue
		}
		if !matchesTags(m.Tags, opts.IncludeTags, opts.ExcludeTags) {
			continue
		}
		if opts.TargetVersion != "" && m.ID > opts.TargetVersion {
			continue
		}

		if err := r.runOne(ctx, m, opts, &result); err != nil {
			result.Errors = append(result.Errors, err)
			if kind, _ := errs.KindOf(err); kind == errs.KindMigrationChecksumMismatch {
				return result, err
			}
			if opts.Blocking && opts.StopOnFailure {
				return result, err
			}
		}
	}

	return result, nil
}

func matchesTags(tags, include, exclude []string) bool {
	for _, ex := range exclude {
		if contains(tags, ex) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, inc := range include {
		if contains(tags, inc) {
			return true
		}
	}
	return false
}

func contains(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func (r *Runner) runOne(ctx context.Context, m Migration, opts Options, result *Result) error {
	existing, exists, err := r.history.Get(ctx, m.ID)
	if err != nil {
		return errs.Wrap(errs.KindMigrationHistoryWrite, "reading history", err)
	}
	computed := m.Checksum()
	if exists {
		if existing.Checksum != computed {
			return errs.New(errs.KindMigrationChecksumMismatch, "checksum mismatch for "+m.ID+": migration content changed after it was applied")
		}
		result.Skipped = append(result.Skipped, m.ID)
		return nil
	}

	if opts.DryRun {
		log.Infof("dry-run: would apply migration %q", m.ID)
		result.Skipped = append(result.Skipped, m.ID)
		return nil
	}

	start := time.Now()
	var runErr error
	if m.Transactional && r.txn != nil {
		runErr = r.txn.Transaction(ctx, txn.Config{Retry: txn.NoRetry()}, func(ctx context.Context, tc *txn.Context) error {
			return m.Up(ctx)
		})
	} else {
		runErr = m.Up(ctx)
	}
	duration := time.Since(start)

	if runErr != nil {
		log.WithError(runErr).Errorf("migration %q failed", m.ID)
		result.Failed = append(result.Failed, m.ID)
		if err := r.history.Insert(ctx, HistoryRecord{ID: m.ID, Checksum: computed, Status: StatusFailed, Duration: duration, AppliedAt: time.Now()}); err != nil {
			log.WithError(err).Warn("failed to record failed-migration history row")
		}
		return errs.Wrap(errs.KindMigrationExecutionFailure, "executing migration "+m.ID, runErr)
	}

	if err := r.history.Insert(ctx, HistoryRecord{ID: m.ID, Checksum: computed, Status: StatusSuccess, Duration: duration, AppliedAt: time.Now()}); err != nil {
		return errs.Wrap(errs.KindMigrationHistoryWrite, "writing success history row", err)
	}
	result.Applied = append(result.Applied, m.ID)
	return nil
}
