package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/hit-counter/internal/config"
	"github.com/spec-kit/hit-counter/internal/events"
	"github.com/spec-kit/hit-counter/internal/observability"
	"github.com/spec-kit/hit-counter/internal/persistence"
	"github.com/spec-kit/hit-counter/internal/repository"
	"github.com/spec-kit/hit-counter/internal/service"
	"github.com/spec-kit/hit-counter/internal/worker"
)

// State is the process-wide handle built once at startup and shared by
// pointer with every request handler until Close. The pool inside Postgres is
// safe for concurrent use, so handlers need no extra locking; each operation
// borrows a connection and returns it before responding.
type State struct {
	Config     config.Config
	Logger     *zap.Logger
	Postgres   *persistence.Postgres
	Redis      *persistence.Redis
	Hits       repository.HitRepository
	HitService *service.HitService
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics

	feed       *service.FeedService
	cancelFeed context.CancelFunc
	closeOnce  sync.Once
}

// New connects to the configured database and assembles the state. It fails
// when the database cannot be reached so the process never starts serving
// without a store.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	repo := repository.NewHitRepository(pg.PoolHandle(), repository.HitRepositoryOptions{
		AcquireTimeout: cfg.Postgres.AcquireTimeout(),
		QueryTimeout:   cfg.Postgres.QueryTimeout(),
	})

	s := NewWithRepository(cfg, logger, repo)
	s.Postgres = pg
	s.Metrics.ObservePool(pg.PoolHandle().Stat)
	s.StartFeed(persistence.NewRedis(cfg.Redis, logger))

	logger.Info("state created", zap.String("service", cfg.App.Name))
	return s, nil
}

// NewWithRepository assembles the state around an existing repository
// without touching the network.
func NewWithRepository(cfg *config.Config, logger *zap.Logger, repo repository.HitRepository) *State {
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	return &State{
		Config:     *cfg,
		Logger:     logger,
		Hits:       repo,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		HitService: service.NewHitService(service.HitDependencies{
			HitRepo:    repo,
			Dispatcher: dispatcher,
			Metrics:    metrics,
			Logger:     logger,
		}),
	}
}

// StartFeed mirrors recorded hits into Redis. A nil client leaves the feed off.
func (s *State) StartFeed(r *persistence.Redis) {
	if r == nil || r.Client == nil || s.feed != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.Redis = r
	s.feed = service.NewFeedService(s.Dispatcher, r.Client, s.Logger, s.Config.Redis)
	s.cancelFeed = cancel
	worker.StartFeedWorker(ctx, s.feed)
}

// Close flushes the feed and releases the Redis client and the pool. It is
// safe to call more than once.
func (s *State) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		if s.cancelFeed != nil {
			s.cancelFeed()
			s.feed.Wait()
		}
		s.Redis.Close()
		s.Postgres.Close()
	})
}
