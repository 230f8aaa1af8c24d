package worker

import (
	"context"
	"fmt"
	"log"

	"github.com/newsdesk/analytics-back/internal/domain"
	"github.com/newsdesk/analytics-back/internal/repository"
)

// Store is the slice of persistence the processor needs.
type Store interface {
	CountReadsFor(ctx context.Context, articleID string, date string) (int, error)
	UpsertDailyAggregate(ctx context.Context, articleID string, date string, viewCount int) error
}

var _ Store = (repository.AnalyticsRepository)(nil)

// Processor recomputes one daily aggregate per job.
type Processor struct {
	store  Store
	logger *log.Logger
}

func NewProcessor(store Store, logger *log.Logger) *Processor {
	return &Processor{
		store:  store,
		logger: logger,
	}
}

// Process counts the reads persisted so far for the job's article and day and overwrites the
// aggregate row with that total.
func (p *Processor) Process(ctx context.Context, job domain.AggregationJob) error {
	viewCount, err := p.store.CountReadsFor(ctx, job.ArticleID, job.Date)
	if err != nil {
		return fmt.Errorf("count reads article_id=%s date=%s: %w", job.ArticleID, job.Date, err)
	}

	if err := p.store.UpsertDailyAggregate(ctx, job.ArticleID, job.Date, viewCount); err != nil {
		return fmt.Errorf("upsert aggregate article_id=%s date=%s: %w", job.ArticleID, job.Date, err)
	}

	if p.logger != nil {
		p.logger.Printf("analytics job processed article_id=%s date=%s view_count=%d", job.ArticleID, job.Date, viewCount)
	}
	return nil
}
