package queue

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/newsdesk/analytics-back/internal/domain"
)

// AggregationQueue is an in-process FIFO of aggregation jobs, deduplicated by job key,
// drained by at most one goroutine at a time. Jobs are lost on process exit.
type AggregationQueue struct {
	ctx     context.Context
	handler JobHandler
	logger  *log.Logger

	mu          sync.Mutex
	pending     []domain.AggregationJob
	pendingKeys map[string]struct{}
	processing  bool
	idle        chan struct{}

	sessions  int
	processed int
	failed    int
}

type QueueStats struct {
	Pending    int  `json:"pending"`
	Processing bool `json:"processing"`
	Sessions   int  `json:"sessions"`
	Processed  int  `json:"processed"`
	Failed     int  `json:"failed"`
}

// NewAggregationQueue builds a queue whose drain loop runs handler with ctx.
// Cancelling ctx abandons whatever is still pending.
func NewAggregationQueue(ctx context.Context, handler JobHandler, logger *log.Logger) *AggregationQueue {
	if ctx == nil {
		ctx = context.Background()
	}
	idle := make(chan struct{})
	close(idle)
	return &AggregationQueue{
		ctx:         ctx,
		handler:     handler,
		logger:      logger,
		pending:     make([]domain.AggregationJob, 0),
		pendingKeys: make(map[string]struct{}),
		idle:        idle,
	}
}

// Enqueue adds job unless a job with the same key is still waiting. It reports whether
// the job was accepted and starts the drain loop if it is not running.
func (q *AggregationQueue) Enqueue(job domain.AggregationJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	accepted := q.pushLocked(job)
	if accepted {
		q.startDrainLocked()
	}
	return accepted
}

// EnqueueMany adds jobs in order under a single lock and triggers the drain loop once.
// It returns how many jobs were accepted.
func (q *AggregationQueue) EnqueueMany(jobs []domain.AggregationJob) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	accepted := 0
	for _, job := range jobs {
		if q.pushLocked(job) {
			accepted++
		}
	}
	if accepted > 0 {
		q.startDrainLocked()
	}
	return accepted
}

// Stats returns a snapshot of the queue counters.
func (q *AggregationQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Pending:    len(q.pending),
		Processing: q.processing,
		Sessions:   q.sessions,
		Processed:  q.processed,
		Failed:     q.failed,
	}
}

// Wait blocks until no drain session is running or ctx is done.
func (q *AggregationQueue) Wait(ctx context.Context) error {
	for {
		q.mu.Lock()
		idle := q.idle
		processing := q.processing
		q.mu.Unlock()
		if !processing {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
		}
	}
}

func (q *AggregationQueue) pushLocked(job domain.AggregationJob) bool {
	key := job.Key()
	if _, exists := q.pendingKeys[key]; exists {
		return false
	}
	q.pendingKeys[key] = struct{}{}
	q.pending = append(q.pending, job)
	return true
}

func (q *AggregationQueue) startDrainLocked() {
	if q.processing {
		return
	}
	q.processing = true
	q.sessions++
	q.idle = make(chan struct{})
	go q.drain(q.idle)
}

func (q *AggregationQueue) drain(done chan struct{}) {
	defer close(done)

	for {
		job, ok := q.pop()
		if !ok {
			return
		}

		err := q.run(job)

		q.mu.Lock()
		if err != nil {
			q.failed++
		} else {
			q.processed++
		}
		q.mu.Unlock()

		if err != nil && q.logger != nil {
			q.logger.Printf("analytics job failed article_id=%s date=%s err=%v", job.ArticleID, job.Date, err)
		}
	}
}

// pop removes the front job and its key in one critical section. When there is nothing
// left to do it clears the processing flag under the same lock.
func (q *AggregationQueue) pop() (domain.AggregationJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 || q.ctx.Err() != nil {
		if len(q.pending) > 0 && q.logger != nil {
			q.logger.Printf("analytics queue stopped pending=%d err=%v", len(q.pending), q.ctx.Err())
		}
		q.processing = false
		return domain.AggregationJob{}, false
	}

	job := q.pending[0]
	q.pending[0] = domain.AggregationJob{}
	q.pending = q.pending[1:]
	delete(q.pendingKeys, job.Key())
	return job, true
}

func (q *AggregationQueue) run(job domain.AggregationJob) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	if q.handler == nil {
		return fmt.Errorf("no job handler configured")
	}
	return q.handler(q.ctx, job)
}
