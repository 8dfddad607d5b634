// Package errs defines the Katalyst error taxonomy from spec §7 as a sum
// type (a Kind enum plus a typed Error) rather than distinct exception
// classes, so callers branch on Kind instead of doing type assertions.
package errs

import "fmt"

// Kind is one leaf of the taxonomy in spec §7.
type Kind string

const (
	// Config
	KindConfigMissingKey  Kind = "config.missing_key"
	KindConfigParse       Kind = "config.parse"
	KindConfigInvalid     Kind = "config.invalid"

	// DI
	KindDIMissingDependency     Kind = "di.missing_dependency"
	KindDICircularDependency    Kind = "di.circular_dependency"
	KindDIUninstantiable        Kind = "di.uninstantiable"
	KindDIMissingSecondary      Kind = "di.missing_secondary_binding"
	KindDIMissingFeatureType    Kind = "di.missing_feature_provided_type"
	KindDIWellKnownProperty     Kind = "di.well_known_property_missing"
	KindDIInstantiationFailure  Kind = "di.instantiation_failure"

	// Transaction
	KindTxTimeout         Kind = "tx.timeout"
	KindTxDeadlock        Kind = "tx.deadlock"
	KindTxUnavailable     Kind = "tx.unavailable"
	KindTxPermanent       Kind = "tx.permanent"
	KindTxAdapterCritical Kind = "tx.adapter_critical"

	// Event
	KindEventValidation     Kind = "event.validation"
	KindEventSerialization  Kind = "event.serialization"
	KindEventDeserialize    Kind = "event.deserialization"
	KindEventHandler        Kind = "event.handler"
	KindEventRouting        Kind = "event.routing"
	KindEventPublish        Kind = "event.publish"

	// Scheduler
	KindSchedulerCronInvalid  Kind = "scheduler.cron_invalid"
	KindSchedulerTaskTimeout  Kind = "scheduler.task_timeout"
	KindSchedulerTaskError    Kind = "scheduler.task_exception"

	// Migration
	KindMigrationChecksumMismatch Kind = "migration.checksum_mismatch"
	KindMigrationExecutionFailure Kind = "migration.execution_failure"
	KindMigrationHistoryWrite     Kind = "migration.history_write_failure"

	// Workflow
	KindWorkflowStepFailure         Kind = "workflow.step_failure"
	KindWorkflowCompensationFailure Kind = "workflow.compensation_failure"
	KindWorkflowInvalidTransition   Kind = "workflow.invalid_transition"
)

// retryable is the set of kinds the transaction manager's built-in
// classifier treats as transient (spec §4.5's transient classifier).
var retryable = map[Kind]bool{
	KindTxTimeout:     true,
	KindTxDeadlock:    true,
	KindTxUnavailable: true,
}

// Error is a Katalyst error value: a Kind plus the human message and the
// wrapped cause, so %w-unwrapping and errors.Is still work while transaction
// retry classification switches on Kind rather than a Go type assertion.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable reports whether kind belongs to the built-in transient set.
// Non-retryable kinds (Permanent, AdapterCritical) are excluded; anything
// not in the error taxonomy at all is treated as non-retryable by default.
func IsRetryable(kind Kind) bool {
	return retryable[kind]
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error, walking the cause chain so a permanent error type wrapping a
// transient cause still classifies as permanent — exception *type* takes
// precedence over message, per spec §4.5.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return "", false
}
