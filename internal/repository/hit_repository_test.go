package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// fakePool is a bounded in-memory stand-in for pgxpool. The upsert is applied
// under a single lock the way the backend applies it atomically per statement.
type fakePool struct {
	slots chan struct{}

	mu        sync.Mutex
	counts    map[string]int64
	execErr   error
	selectErr error
	inUse     int
}

func newFakePool(size int) *fakePool {
	return &fakePool{
		slots:  make(chan struct{}, size),
		counts: make(map[string]int64),
	}
}

func (p *fakePool) Acquire(ctx context.Context) (Conn, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	p.mu.Lock()
	p.inUse++
	p.mu.Unlock()
	return &fakeConn{pool: p}, nil
}

func (p *fakePool) count(target string) (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.counts[target]
	return c, ok
}

func (p *fakePool) acquired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

type fakeConn struct {
	pool     *fakePool
	released bool
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if err := ctx.Err(); err != nil {
		return pgconn.CommandTag{}, err
	}
	if sql != upsertHitQuery {
		return pgconn.CommandTag{}, errors.New("unexpected statement")
	}
	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()
	if c.pool.execErr != nil {
		return pgconn.CommandTag{}, c.pool.execErr
	}
	c.pool.counts[args[0].(string)]++
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (c *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if err := ctx.Err(); err != nil {
		return fakeRow{err: err}
	}
	if sql != selectHitCountQuery {
		return fakeRow{err: errors.New("unexpected statement")}
	}
	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()
	if c.pool.selectErr != nil {
		return fakeRow{err: c.pool.selectErr}
	}
	count, ok := c.pool.counts[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{count: count}
}

func (c *fakeConn) Release() {
	if c.released {
		return
	}
	c.released = true
	c.pool.mu.Lock()
	c.pool.inUse--
	c.pool.mu.Unlock()
	<-c.pool.slots
}

type fakeRow struct {
	count int64
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.count
	return nil
}

func TestIncrementAndFetchFirstHitIsOne(t *testing.T) {
	pool := newFakePool(2)
	repo := NewHitRepositoryWithPool(pool, HitRepositoryOptions{})

	count, err := repo.IncrementAndFetch(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Zero(t, pool.acquired())
}

func TestIncrementAndFetchSequential(t *testing.T) {
	repo := NewHitRepositoryWithPool(newFakePool(2), HitRepositoryOptions{})

	for want := int64(1); want <= 25; want++ {
		got, err := repo.IncrementAndFetch(context.Background(), "seq")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestIncrementAndFetchScenario(t *testing.T) {
	pool := newFakePool(2)
	repo := NewHitRepositoryWithPool(pool, HitRepositoryOptions{})
	ctx := context.Background()

	steps := []struct {
		target string
		want   int64
	}{
		{"foo", 1},
		{"foo", 2},
		{"bar", 1},
		{"foo", 3},
	}
	for _, step := range steps {
		got, err := repo.IncrementAndFetch(ctx, step.target)
		require.NoError(t, err)
		assert.Equal(t, step.want, got, step.target)
	}

	bar, _ := pool.count("bar")
	assert.Equal(t, int64(1), bar)
}

func TestIncrementAndFetchKeysAreCaseSensitive(t *testing.T) {
	repo := NewHitRepositoryWithPool(newFakePool(1), HitRepositoryOptions{})
	ctx := context.Background()

	_, err := repo.IncrementAndFetch(ctx, "Foo")
	require.NoError(t, err)
	got, err := repo.IncrementAndFetch(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	got, err = repo.IncrementAndFetch(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestIncrementAndFetchConcurrent(t *testing.T) {
	const callers = 200
	pool := newFakePool(8)
	repo := NewHitRepositoryWithPool(pool, HitRepositoryOptions{AcquireTimeout: 5 * time.Second})

	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			count, err := repo.IncrementAndFetch(context.Background(), "contested")
			if err != nil {
				return err
			}
			if count < 1 || count > callers {
				return errors.New("count out of range")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	final, ok := pool.count("contested")
	require.True(t, ok)
	assert.Equal(t, int64(callers), final)
	assert.Zero(t, pool.acquired())
}

func TestIncrementAndFetchPoolExhausted(t *testing.T) {
	pool := newFakePool(1)
	repo := NewHitRepositoryWithPool(pool, HitRepositoryOptions{AcquireTimeout: 20 * time.Millisecond})

	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	_, err = repo.IncrementAndFetch(context.Background(), "blocked")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrQueryFailed)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "acquire", storeErr.Op)
	assert.Equal(t, "blocked", storeErr.Target)

	_, exists := pool.count("blocked")
	assert.False(t, exists, "no row may be written without a connection")

	held.Release()
	got, err := repo.IncrementAndFetch(context.Background(), "blocked")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestIncrementAndFetchCancelledBeforeAcquire(t *testing.T) {
	pool := newFakePool(1)
	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := NewHitRepositoryWithPool(pool, HitRepositoryOptions{})
	_, err = repo.IncrementAndFetch(ctx, "gone")
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIncrementAndFetchUpsertFailure(t *testing.T) {
	pool := newFakePool(1)
	pool.execErr = errors.New("relation \"hits\" does not exist")
	repo := NewHitRepositoryWithPool(pool, HitRepositoryOptions{})

	_, err := repo.IncrementAndFetch(context.Background(), "foo")
	assert.ErrorIs(t, err, ErrQueryFailed)
	assert.ErrorIs(t, err, pool.execErr)
	assert.Zero(t, pool.acquired(), "connection must be released on failure")
}

func TestIncrementAndFetchReadBackFailureKeepsIncrement(t *testing.T) {
	pool := newFakePool(1)
	pool.selectErr = errors.New("connection reset by peer")
	repo := NewHitRepositoryWithPool(pool, HitRepositoryOptions{})

	_, err := repo.IncrementAndFetch(context.Background(), "foo")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueryFailed)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "select", storeErr.Op)

	count, ok := pool.count("foo")
	require.True(t, ok)
	assert.Equal(t, int64(1), count)
	assert.Zero(t, pool.acquired())
}

func TestIncrementAndFetchNilPool(t *testing.T) {
	repo := NewHitRepository(nil, HitRepositoryOptions{})

	_, err := repo.IncrementAndFetch(context.Background(), "foo")
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
}

func TestStoreErrorMessage(t *testing.T) {
	err := &StoreError{Kind: ErrQueryFailed, Op: "upsert", Target: "foo", Err: errors.New("boom")}
	assert.Equal(t, `upsert "foo": query failed: boom`, err.Error())
}
