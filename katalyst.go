// Package katalyst wires the framework's components together in the boot
// order the design calls for: Scanner → Graph → Validator → Container →
// Feature hooks → Migration Runner → Scheduler/EventBus ready → application
// (spec §2). Grounded on the teacher's coordinator.Coordinator — a Config
// struct with defaults, a long-lived struct holding every subsystem, and an
// explicit Start/Shutdown lifecycle rather than an implicit init().
package katalyst

import (
	"context"
	"fmt"

	"github.com/katalyst-run/katalyst/internal/container"
	"github.com/katalyst-run/katalyst/internal/errs"
	"github.com/katalyst-run/katalyst/internal/eventbus"
	"github.com/katalyst-run/katalyst/internal/graph"
	"github.com/katalyst-run/katalyst/internal/migration"
	"github.com/katalyst-run/katalyst/internal/scanner"
	"github.com/katalyst-run/katalyst/internal/scheduler"
	"github.com/katalyst-run/katalyst/internal/txn"
	"github.com/katalyst-run/katalyst/internal/validator"
	"github.com/katalyst-run/katalyst/klog"
	"github.com/katalyst-run/katalyst/pkg/config"
	"github.com/katalyst-run/katalyst/pkg/feature"
)

var log = klog.For("katalyst")

// Config configures one boot of the framework.
type Config struct {
	// Config is the resolved configuration surface the core and features
	// read from (spec §6's ConfigProvider contract).
	Config config.Provider

	// Scanner holds the manifest of registered component loaders.
	Scanner *scanner.Scanner
	// Factories builds one component's instance per its type key; a key
	// present in Scanner's output with no matching factory is treated as
	// an interface-only or externally-supplied node.
	Factories map[string]container.Factory

	// WellKnown is the fixed registry of framework-injected properties
	// (clock, request-id source, and similar) resolvable by key.
	WellKnown map[string]any
	// Features are the optional subsystems contributing pre-built modules
	// and observing container readiness.
	Features []feature.Feature

	// Migrations, run once the container is ready, before the event bus
	// and scheduler are declared ready.
	Migrations    []migration.Migration
	MigrationOpts migration.Options

	// EventHierarchy declares sealed event-type hierarchies for fanout.
	EventHierarchy eventbus.Hierarchy
	// EventPublisher is the optional external bridge (spec §4.6).
	EventPublisher eventbus.Publisher

	// TxRetry is not applied by Boot: each Transaction call takes its retry
	// policy from its own txn.Config.Retry, and falls back to
	// txn.DefaultRetryPolicy when that is left unset.
	TxRetry txn.RetryPolicy
}

// wellKnownRegistry and enabledFeatures adapt Config's plain maps/slices to
// the validator's narrow interfaces.
type wellKnownRegistry map[string]any

func (w wellKnownRegistry) Has(key string) bool { _, ok := w[key]; return ok }

type enabledFeatures map[string]bool

func (e enabledFeatures) Enabled(name string) bool { return e[name] }

// App is a fully booted Katalyst runtime: the instantiated container plus
// the long-lived subsystems every request or timer interacts with.
type App struct {
	Container *container.Container
	TxManager *txn.Manager
	EventBus  *eventbus.Bus
	Scheduler *scheduler.Scheduler
	Migration migration.Result

	features []feature.Feature
}

// Boot runs the full startup control flow (spec §2): scan, build the
// dependency graph, validate, instantiate, notify features, run pending
// migrations, and bring the event bus and scheduler online. A non-empty
// validator report aborts boot with a consolidated error, exactly as the
// container is specified to refuse partial instantiation.
func Boot(ctx context.Context, cfg Config) (*App, error) {
	types := cfg.Scanner.Scan(nil, func(err error) {
		log.WithError(err).Warn("component discovery skipped a loader")
	})

	g := graph.BuildFromMetadata(types)

	v := validator.New(wellKnownRegistry(cfg.WellKnown), enabledFeaturesFrom(cfg))
	findings := v.Validate(types, g)
	if len(findings) > 0 {
		return nil, errs.New(errs.KindDIUninstantiable, "\n"+validator.Report(findings))
	}

	var externalModules []feature.Module
	for _, f := range cfg.Features {
		externalModules = append(externalModules, f.ProvideModules()...)
	}

	c, err := container.Build(types, cfg.Factories, g, cfg.WellKnown, externalModules)
	if err != nil {
		return nil, fmt.Errorf("building container: %w", err)
	}

	container.NotifyReady(c, cfg.Features)

	txManager := txn.NewManager()

	migrationResult := migration.Result{}
	if len(cfg.Migrations) > 0 {
		store, ok := c.Get("migrationHistoryStore")
		if ok {
			runner := migration.NewRunner(store.(migration.HistoryStore), txManager)
			migrationResult, err = runner.Run(ctx, cfg.Migrations, cfg.MigrationOpts)
			if err != nil {
				return nil, fmt.Errorf("running migrations: %w", err)
			}
		} else {
			log.Warn("migrations configured but no migrationHistoryStore registered, skipping")
		}
	}

	bus := eventbus.New(
		eventbus.WithHierarchy(cfg.EventHierarchy),
		eventbus.WithPublisher(cfg.EventPublisher),
	)
	txManager.RegisterAdapter(eventDrainAdapter{bus: bus})

	sched := scheduler.New()

	log.Info("boot complete: container, event bus, and scheduler are ready")

	return &App{
		Container: c,
		TxManager: txManager,
		EventBus:  bus,
		Scheduler: sched,
		Migration: migrationResult,
		features:  cfg.Features,
	}, nil
}

// Shutdown cancels every scheduled task and closes components in reverse
// instantiation order, collecting every error rather than stopping at the
// first.
func (a *App) Shutdown() []error {
	a.Scheduler.CancelAll()
	return a.Container.Shutdown()
}

// eventDrainAdapter wires the event bus's pending-events queue into the
// transaction manager's AfterCommit phase (spec §4.6): events published
// inside a transaction are enqueued, not dispatched, until the transaction
// actually commits.
type eventDrainAdapter struct{ bus *eventbus.Bus }

func (eventDrainAdapter) Name() string      { return "eventbus-drain" }
func (eventDrainAdapter) Priority() int     { return 0 }
func (eventDrainAdapter) Critical() bool    { return false }
func (a eventDrainAdapter) Run(_ context.Context, phase txn.Phase, tc *txn.Context) error {
	switch phase {
	case txn.PhaseAfterCommit:
		a.bus.DrainPending(tc)
	case txn.PhaseOnRollback:
		tc.ClearEvents()
	}
	return nil
}

func enabledFeaturesFrom(cfg Config) enabledFeatures {
	e := enabledFeatures{}
	for _, f := range cfg.Features {
		e[f.ID()] = true
	}
	return e
}

// DefaultTxRetry mirrors the teacher's DefaultConfig pattern: sensible
// defaults callers rarely need to override.
func DefaultTxRetry() txn.RetryPolicy {
	return txn.DefaultRetryPolicy()
}
