package postgres

import (
	"context"
	"errors"

	"bridge-orchestrator/internal/resilience"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// GuardedPool routes every pool entry point through the datastore circuit
// breaker. Connection-level failures feed the breaker; errors the server
// itself produced (no rows, constraint violations) pass through without
// counting against it, since they prove the datastore is reachable.
type GuardedPool struct {
	inner   Pool
	breaker *resilience.Breaker
}

// NewGuardedPool wraps pool with breaker. A nil breaker disables the guard.
func NewGuardedPool(inner Pool, breaker *resilience.Breaker) *GuardedPool {
	return &GuardedPool{inner: inner, breaker: breaker}
}

// serverResponded reports whether err came from the database answering the
// query rather than from failing to reach it.
func serverResponded(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}

func (p *GuardedPool) guard(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.breaker == nil {
		return fn(ctx)
	}
	var opErr error
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		opErr = fn(ctx)
		if opErr != nil && serverResponded(opErr) {
			return nil
		}
		return opErr
	})
	if err != nil {
		return err
	}
	return opErr
}

func (p *GuardedPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	var tag pgconn.CommandTag
	err := p.guard(ctx, func(ctx context.Context) error {
		var err error
		tag, err = p.inner.Exec(ctx, sql, args...)
		return err
	})
	return tag, err
}

// Query keeps the caller's context on the inner call: the cursor is read
// after the guard returns, and the guard's hard timeout would cancel it
// mid-iteration.
func (p *GuardedPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	var rows pgx.Rows
	err := p.guard(ctx, func(context.Context) error {
		var err error
		rows, err = p.inner.Query(ctx, sql, args...)
		return err
	})
	return rows, err
}

// QueryRow defers the guard to Scan, where pgx surfaces the query's error.
func (p *GuardedPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return &guardedRow{pool: p, ctx: ctx, sql: sql, args: args}
}

// Begin keeps the caller's context on the inner call; the transaction
// outlives the guard.
func (p *GuardedPool) Begin(ctx context.Context) (pgx.Tx, error) {
	var tx pgx.Tx
	err := p.guard(ctx, func(context.Context) error {
		var err error
		tx, err = p.inner.Begin(ctx)
		return err
	})
	return tx, err
}

func (p *GuardedPool) Ping(ctx context.Context) error {
	return p.guard(ctx, func(ctx context.Context) error {
		return p.inner.Ping(ctx)
	})
}

type guardedRow struct {
	pool *GuardedPool
	ctx  context.Context
	sql  string
	args []any
}

func (r *guardedRow) Scan(dest ...any) error {
	return r.pool.guard(r.ctx, func(ctx context.Context) error {
		return r.pool.inner.QueryRow(ctx, r.sql, r.args...).Scan(dest...)
	})
}
