package worker

import (
	"context"

	"github.com/spec-kit/hit-counter/internal/service"
)

// StartFeedWorker registers feed handlers and starts delivery in the background.
// It returns immediately; call feed.Wait after cancelling ctx to flush.
func StartFeedWorker(ctx context.Context, feed *service.FeedService) {
	if feed == nil {
		return
	}
	feed.RegisterHandlers()
	go feed.Run(ctx)
}
