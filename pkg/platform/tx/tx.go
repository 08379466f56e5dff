// Package tx provides the transactional boundary shared by all governed
// mutations. A mutation and its audit entry always run inside one unit of
// work: either both commit or neither does.
package tx

import (
	"context"
	"database/sql"
	"sync"
	"time"

	dErrors "shrinktrack/pkg/domain-errors"
)

type txCtxKey struct{}

var txKey = txCtxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Runner executes a function within a transactional unit of work.
// Implementations may wrap a database transaction or, in-memory, a coarse
// lock with compensation hooks.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// defaultTxTimeout bounds a unit of work so a stuck caller cannot hold the
// per-fact or per-scope lock indefinitely.
const defaultTxTimeout = 5 * time.Second

// -----------------------------------------------------------------------------
// SQL-backed runner
// -----------------------------------------------------------------------------

// SQLRunner runs the unit of work inside a database transaction. The *sql.Tx
// travels in the context so every store touched by the function writes
// through the same transaction.
type SQLRunner struct {
	DB      *sql.DB
	Timeout time.Duration
}

func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{DB: db}
}

func (r *SQLRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "transaction aborted: context cancelled")
	}

	timeout := r.Timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sqlTx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit transaction")
	}
	return nil
}

// -----------------------------------------------------------------------------
// In-memory runner
// -----------------------------------------------------------------------------

type unitCtxKey struct{}

var unitKey = unitCtxKey{}

type unit struct {
	mu    sync.Mutex
	undos []func()
}

func (u *unit) rollback() {
	u.mu.Lock()
	defer u.mu.Unlock()
	// Reverse order: later writes compensate first.
	for i := len(u.undos) - 1; i >= 0; i-- {
		u.undos[i]()
	}
	u.undos = nil
}

// OnRollback registers a compensation to run if the enclosing in-memory unit
// of work fails. In-memory stores call this after applying a write so a later
// failure (typically the audit append) undoes the whole unit. Outside a
// MemoryRunner unit this is a no-op; SQL stores rely on the database rollback
// instead.
func OnRollback(ctx context.Context, undo func()) {
	u, ok := ctx.Value(unitKey).(*unit)
	if !ok {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.undos = append(u.undos, undo)
}

// MemoryRunner serializes units of work under one coarse lock and rolls back
// registered compensations on failure. The coarse lock makes the per-fact
// window check and write atomic, matching what FOR UPDATE provides in the
// SQL-backed runner.
type MemoryRunner struct {
	mu sync.Mutex
}

func NewMemoryRunner() *MemoryRunner {
	return &MemoryRunner{}
}

func (r *MemoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "transaction aborted: context cancelled")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Check again after acquiring the lock: a caller that abandoned the
	// request while waiting must observe no partial effect.
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "transaction aborted: context cancelled")
	}

	u := &unit{}
	if err := fn(context.WithValue(ctx, unitKey, u)); err != nil {
		u.rollback()
		return err
	}
	return nil
}
