package main

import (
	"context"
	"log"
	"time"

	"github.com/newsdesk/analytics-back/internal/queue"
)

type trackingWaiter interface {
	WaitTracking()
}

type queueDrainer interface {
	Wait(ctx context.Context) error
	Stats() queue.QueueStats
}

// drainBackgroundWork waits up to timeout for detached read tracking and then for the
// aggregation queue to empty, and only afterwards cancels the background context.
// It reports whether everything finished in time.
func drainBackgroundWork(
	tracker trackingWaiter,
	aggregationQueue queueDrainer,
	stopWork context.CancelFunc,
	timeout time.Duration,
	logger *log.Logger,
) bool {
	defer stopWork()

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	trackingDone := make(chan struct{})
	go func() {
		tracker.WaitTracking()
		close(trackingDone)
	}()

	select {
	case <-trackingDone:
	case <-ctx.Done():
		if logger != nil {
			logger.Printf("read tracking still running at shutdown timeout=%s", timeout)
		}
		return false
	}

	if err := aggregationQueue.Wait(ctx); err != nil {
		if logger != nil {
			stats := aggregationQueue.Stats()
			logger.Printf("analytics queue abandoned pending=%d processing=%t", stats.Pending, stats.Processing)
		}
		return false
	}
	return true
}
