// Package txhost is the reference PersistenceDriver/TransactionHost adapter
// backed by GORM + PostgreSQL (spec §6). Grounded on the teacher's
// db/postgres.go connection-pool setup (MaxIdleConns/MaxOpenConns/
// ConnMaxLifetime) and doc-comment density, adapted from a one-shot
// PGInfo() admin helper into a long-lived driver the txn package's adapter
// pipeline can open transactions against.
package txhost

import (
	"context"
	"fmt"
	"time"

	"github.com/katalyst-run/katalyst/pkg/repository"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Config configures the PostgreSQL connection pool.
//
// Connection Pool Configuration:
//   - MaxIdleConns: connections kept idle for reuse
//   - MaxOpenConns: maximum concurrent connections
//   - ConnMaxLifetime: maximum connection age before recycling
type Config struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 100
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	return c
}

// Driver is the GORM-backed PersistenceDriver/TransactionHost.
type Driver struct {
	db *gorm.DB
}

// Open establishes the connection pool per cfg.
func Open(cfg Config) (*Driver, error) {
	cfg = cfg.withDefaults()

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("retrieving underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Driver{db: db}, nil
}

// Close releases the connection pool.
func (d *Driver) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var isolationClause = map[repository.Isolation]sqlIsolation{
	repository.ReadUncommitted: {"READ UNCOMMITTED"},
	repository.ReadCommitted:   {"READ COMMITTED"},
	repository.RepeatableRead:  {"REPEATABLE READ"},
	repository.Serializable:    {"SERIALIZABLE"},
}

type sqlIsolation struct{ clause string }

// Begin opens a GORM transaction at the requested isolation level, bounded
// by timeout.
func (d *Driver) Begin(ctx context.Context, isolation repository.Isolation, timeout time.Duration) (repository.Tx, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		_ = cancel // cancel is invoked by Commit/Rollback via tx.cancel
		tx := d.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			cancel()
			return nil, fmt.Errorf("beginning transaction: %w", tx.Error)
		}
		if clause, ok := isolationClause[isolation]; ok {
			if err := tx.Exec("SET TRANSACTION ISOLATION LEVEL " + clause.clause).Error; err != nil {
				tx.Rollback()
				cancel()
				return nil, fmt.Errorf("setting isolation level: %w", err)
			}
		}
		return &gormTx{tx: tx, cancel: cancel}, nil
	}

	tx := d.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("beginning transaction: %w", tx.Error)
	}
	if clause, ok := isolationClause[isolation]; ok {
		if err := tx.Exec("SET TRANSACTION ISOLATION LEVEL " + clause.clause).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("setting isolation level: %w", err)
		}
	}
	return &gormTx{tx: tx}, nil
}

// WithTx runs fn against a fresh Tx, committing on success and rolling back
// on error or panic.
func (d *Driver) WithTx(ctx context.Context, isolation repository.Isolation, timeout time.Duration, fn func(tx repository.Tx) error) (err error) {
	tx, err := d.Begin(ctx, isolation, timeout)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

type gormTx struct {
	tx     *gorm.DB
	cancel context.CancelFunc
}

func (t *gormTx) Query(ctx context.Context, query string, args ...any) ([]repository.Row, error) {
	rows, err := t.tx.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []repository.Row
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := repository.Row{}
		for i, col := range columns {
			row[col] = values[i]
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (t *gormTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	result := t.tx.WithContext(ctx).Exec(query, args...)
	return result.RowsAffected, result.Error
}

func (t *gormTx) Commit(ctx context.Context) error {
	if t.cancel != nil {
		defer t.cancel()
	}
	return t.tx.Commit().Error
}

func (t *gormTx) Rollback(ctx context.Context) error {
	if t.cancel != nil {
		defer t.cancel()
	}
	return t.tx.Rollback().Error
}
