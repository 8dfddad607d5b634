// Package repository defines the Repository and PersistenceDriver/
// TransactionHost contracts consumed from external collaborators (spec
// §6). Grounded on the teacher's db/repository/interfaces.go — the core
// interfaces here narrow that file's four specialized repositories (Document
// /Graph/Metrics/Cache) down to the single table-reference/mapRow/
// assignEntity shape the spec calls for, since Katalyst's core never
// introspects row structure the way the teacher's semantic layer does.
package repository

import (
	"context"
	"time"
)

// Row is one raw row a driver hands back; Repository implementations never
// interpret its shape themselves, only via MapRow/AssignEntity.
type Row map[string]any

// Repository is the core's only view of persisted data: a table reference
// plus the two functions that translate between rows and domain entities
// (spec §6: "the core never introspects row structure").
type Repository struct {
	TableReference string
	MapRow         func(row Row) (any, error)
	AssignEntity   func(entity any) (Row, error)
}

// Isolation mirrors txn.Isolation without importing internal/txn, so
// external drivers don't need to depend on the framework's internals.
type Isolation int

const (
	ReadUncommitted Isolation = iota
	ReadCommitted
	RepeatableRead
	Serializable
)

// Tx is an open transaction handle a PersistenceDriver hands back from
// Begin; Query/Exec run against it, and exactly one of Commit/Rollback
// closes it.
type Tx interface {
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	Exec(ctx context.Context, query string, args ...any) (rowsAffected int64, err error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// PersistenceDriver opens transactions against a concrete store. Retry
// policy selection is the caller's responsibility (the txn package's
// RetryPolicy); the driver's only job is honest open/commit/rollback.
type PersistenceDriver interface {
	Begin(ctx context.Context, isolation Isolation, timeout time.Duration) (Tx, error)
}

// TransactionHost adapts a PersistenceDriver into the shape the txn
// package's adapter pipeline drives: one Tx per transaction context,
// scoped to that context's lifetime.
type TransactionHost interface {
	PersistenceDriver
	// WithTx runs fn against a fresh Tx, committing on success and rolling
	// back on error or panic.
	WithTx(ctx context.Context, isolation Isolation, timeout time.Duration, fn func(tx Tx) error) error
}
