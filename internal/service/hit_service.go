package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/hit-counter/internal/domain"
	"github.com/spec-kit/hit-counter/internal/events"
	"github.com/spec-kit/hit-counter/internal/observability"
	"github.com/spec-kit/hit-counter/internal/repository"
)

// HitService records visits against the counter store.
type HitService struct {
	hits       repository.HitRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// HitDependencies bundles collaborators for the hit service.
type HitDependencies struct {
	HitRepo    repository.HitRepository
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewHitService constructs the service.
func NewHitService(deps HitDependencies) *HitService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HitService{
		hits:       deps.HitRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Hit increments the counter for target and returns the current total.
// Store errors are returned unchanged and never retried.
func (s *HitService) Hit(ctx context.Context, target string) (int64, error) {
	s.logger.Info("hit", zap.String("target", target))

	count, err := s.hits.IncrementAndFetch(ctx, target)
	if err != nil {
		s.metrics.RecordStoreError(storeErrorKind(err))
		return 0, err
	}
	s.metrics.RecordHit()
	s.logger.Info("total hits", zap.String("target", target), zap.Int64("hits", count))

	if s.dispatcher != nil {
		if err := s.dispatcher.Publish(ctx, events.NewHitRecorded(domain.HitRecord{Target: target, Count: count}, s.now())); err != nil {
			s.logger.Warn("hit event handlers failed", zap.String("target", target), zap.Error(err))
		}
	}
	return count, nil
}

func storeErrorKind(err error) string {
	switch {
	case errors.Is(err, repository.ErrConnectionUnavailable):
		return "connection_unavailable"
	case errors.Is(err, repository.ErrQueryFailed):
		return "query_failed"
	default:
		return "unknown"
	}
}
