package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrConnectionUnavailable means no pooled connection could be acquired.
	ErrConnectionUnavailable = errors.New("connection unavailable")
	// ErrQueryFailed means the backend rejected or failed a statement.
	ErrQueryFailed = errors.New("query failed")
)

// StoreError describes a failed counter operation. It matches either
// ErrConnectionUnavailable or ErrQueryFailed through errors.Is, as well as the
// underlying driver error.
type StoreError struct {
	Kind   error
	Op     string
	Target string
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %q: %v: %v", e.Op, e.Target, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// HitRepository persists per-target visit counters.
type HitRepository interface {
	// IncrementAndFetch adds one to the counter for target, creating it at 1
	// when absent, and returns the count observed right after. Concurrent
	// increments of the same target may already be included in the result.
	IncrementAndFetch(ctx context.Context, target string) (int64, error)
}

// Conn is the part of a pooled connection the repository uses.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Release()
}

// ConnPool hands out one connection per logical operation.
type ConnPool interface {
	Acquire(ctx context.Context) (Conn, error)
}

// HitRepositoryOptions bounds the time spent waiting on the pool and the backend.
// Zero values disable the corresponding timeout.
type HitRepositoryOptions struct {
	AcquireTimeout time.Duration
	QueryTimeout   time.Duration
}

type hitRepository struct {
	pool ConnPool
	opts HitRepositoryOptions
}

// NewHitRepository returns a Postgres-backed implementation.
func NewHitRepository(pool *pgxpool.Pool, opts HitRepositoryOptions) HitRepository {
	return NewHitRepositoryWithPool(pgxConnPool{pool: pool}, opts)
}

// NewHitRepositoryWithPool builds the repository on top of any ConnPool.
func NewHitRepositoryWithPool(pool ConnPool, opts HitRepositoryOptions) HitRepository {
	return &hitRepository{pool: pool, opts: opts}
}

const (
	upsertHitQuery = `
        INSERT INTO hits (target, count)
        VALUES ($1, 1)
        ON CONFLICT (target) DO UPDATE SET count = hits.count + 1`
	selectHitCountQuery = `
        SELECT count FROM hits WHERE target = $1`
)

// IncrementAndFetch runs the upsert and the read-back as two statements on a
// single borrowed connection. They are not wrapped in a transaction: once the
// upsert returns, the increment is durable even if the read-back fails.
func (r *hitRepository) IncrementAndFetch(ctx context.Context, target string) (int64, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return 0, &StoreError{Kind: ErrConnectionUnavailable, Op: "acquire", Target: target, Err: err}
	}
	defer conn.Release()

	if err := r.exec(ctx, conn, upsertHitQuery, target); err != nil {
		return 0, &StoreError{Kind: ErrQueryFailed, Op: "upsert", Target: target, Err: err}
	}

	count, err := r.readCount(ctx, conn, target)
	if err != nil {
		return 0, &StoreError{Kind: ErrQueryFailed, Op: "select", Target: target, Err: err}
	}
	return count, nil
}

func (r *hitRepository) acquire(ctx context.Context) (Conn, error) {
	if r.pool == nil {
		return nil, errors.New("pool not configured")
	}
	if r.opts.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.AcquireTimeout)
		defer cancel()
	}
	return r.pool.Acquire(ctx)
}

func (r *hitRepository) exec(ctx context.Context, conn Conn, query, target string) error {
	if r.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.QueryTimeout)
		defer cancel()
	}
	_, err := conn.Exec(ctx, query, target)
	return err
}

func (r *hitRepository) readCount(ctx context.Context, conn Conn, target string) (int64, error) {
	if r.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.QueryTimeout)
		defer cancel()
	}
	var count int64
	if err := conn.QueryRow(ctx, selectHitCountQuery, target).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// pgxConnPool adapts *pgxpool.Pool to ConnPool.
type pgxConnPool struct {
	pool *pgxpool.Pool
}

func (p pgxConnPool) Acquire(ctx context.Context) (Conn, error) {
	if p.pool == nil {
		return nil, errors.New("pool not configured")
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
