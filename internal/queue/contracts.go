package queue

import (
	"context"

	"github.com/newsdesk/analytics-back/internal/domain"
)

// Scheduler accepts aggregation jobs without waiting for them to run.
type Scheduler interface {
	Enqueue(job domain.AggregationJob) bool
	EnqueueMany(jobs []domain.AggregationJob) int
}

// JobHandler executes a single aggregation job.
type JobHandler func(ctx context.Context, job domain.AggregationJob) error
