package service

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/hit-counter/internal/config"
	"github.com/spec-kit/hit-counter/internal/events"
)

const feedAppendTimeout = 2 * time.Second

// FeedService mirrors recorded hits into a capped Redis stream. The stream is
// an audit trail only; counts are never read back from it.
type FeedService struct {
	dispatcher events.Dispatcher
	client     redis.Cmdable
	logger     *zap.Logger
	cfg        config.RedisConfig

	queue chan events.Event
	done  chan struct{}
}

// NewFeedService creates the service. Nothing is delivered until Start runs.
func NewFeedService(dispatcher events.Dispatcher, client redis.Cmdable, logger *zap.Logger, cfg config.RedisConfig) *FeedService {
	buffer := cfg.FeedBuffer
	if buffer <= 0 {
		buffer = 1
	}
	return &FeedService{
		dispatcher: dispatcher,
		client:     client,
		logger:     logger,
		cfg:        cfg,
		queue:      make(chan events.Event, buffer),
		done:       make(chan struct{}),
	}
}

// RegisterHandlers subscribes to events.
func (f *FeedService) RegisterHandlers() {
	if f.dispatcher == nil {
		return
	}
	f.dispatcher.Subscribe(events.EventHitRecorded, f.handleHitRecorded)
}

// handleHitRecorded enqueues without blocking the request path; when the
// buffer is full the event is dropped.
func (f *FeedService) handleHitRecorded(_ context.Context, event events.Event) error {
	select {
	case f.queue <- event:
	default:
		f.logger.Warn("hit feed buffer full; dropping event",
			zap.String("event_id", event.ID),
			zap.String("target", event.Target))
	}
	return nil
}

// Run drains the queue into Redis until ctx is cancelled, then flushes what is
// already buffered. Each append gets its own deadline so the flush still works
// after ctx is done.
func (f *FeedService) Run(ctx context.Context) {
	defer close(f.done)
	for {
		select {
		case event := <-f.queue:
			f.append(event)
		case <-ctx.Done():
			f.drain()
			return
		}
	}
}

// Wait blocks until Run has returned.
func (f *FeedService) Wait() {
	<-f.done
}

func (f *FeedService) drain() {
	for {
		select {
		case event := <-f.queue:
			f.append(event)
		default:
			return
		}
	}
}

func (f *FeedService) append(event events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), feedAppendTimeout)
	defer cancel()

	var count int64
	if payload, ok := event.Payload.(events.HitRecordedPayload); ok {
		count = payload.Count
	}
	err := f.client.XAdd(ctx, &redis.XAddArgs{
		Stream: f.cfg.FeedStream,
		MaxLen: f.cfg.FeedMaxLen,
		Approx: true,
		Values: map[string]any{
			"id":     event.ID,
			"target": event.Target,
			"count":  strconv.FormatInt(count, 10),
			"ts":     event.Timestamp.Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		f.logger.Warn("append hit feed", zap.String("target", event.Target), zap.Error(err))
		return
	}
	f.logger.Debug("hit feed appended",
		zap.String("stream", f.cfg.FeedStream),
		zap.String("target", event.Target),
		zap.Int64("count", count))
}
