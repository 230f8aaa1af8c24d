package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newsdesk/analytics-back/internal/domain"
)

var ErrNotFound = errors.New("resource not found")

// DefaultReadDedupWindow is how long repeat reads from the same identified reader are ignored.
const DefaultReadDedupWindow = 10 * time.Second

// ReadLogRepository records read events and answers per-day read queries.
type ReadLogRepository interface {
	// RecordReadEvent returns a nil event when the read is suppressed as a repeat.
	RecordReadEvent(ctx context.Context, articleID string, readerID *string) (*domain.ReadEvent, error)
	ListArticleIDsWithReadsOn(ctx context.Context, date string) ([]string, error)
	CountReadsFor(ctx context.Context, articleID string, date string) (int, error)
}

// DailyAggregateRepository stores the recomputed (article, day) view counts.
type DailyAggregateRepository interface {
	UpsertDailyAggregate(ctx context.Context, articleID string, date string, viewCount int) error
	ListDailyAggregates(ctx context.Context, filter domain.DailyAggregateFilter) ([]domain.DailyAggregate, int, error)
}

type AnalyticsRepository interface {
	ReadLogRepository
	DailyAggregateRepository
}

// MemoryAnalyticsRepository keeps read logs and aggregates in memory for local development.
type MemoryAnalyticsRepository struct {
	mu          sync.RWMutex
	reads       []domain.ReadEvent
	aggregates  map[string]domain.DailyAggregate
	dedupWindow time.Duration
	now         func() time.Time
}

func NewMemoryAnalyticsRepository(dedupWindow time.Duration) *MemoryAnalyticsRepository {
	if dedupWindow < 0 {
		dedupWindow = 0
	}
	return &MemoryAnalyticsRepository{
		reads:       make([]domain.ReadEvent, 0),
		aggregates:  make(map[string]domain.DailyAggregate),
		dedupWindow: dedupWindow,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryAnalyticsRepository) RecordReadEvent(
	_ context.Context,
	articleID string,
	readerID *string,
) (*domain.ReadEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if readerID != nil && r.dedupWindow > 0 {
		threshold := now.Add(-r.dedupWindow)
		for i := len(r.reads) - 1; i >= 0; i-- {
			read := r.reads[i]
			if read.ArticleID != articleID || read.ReaderID == nil || *read.ReaderID != *readerID {
				continue
			}
			if !read.ReadAt.Before(threshold) {
				return nil, nil
			}
		}
	}

	event := domain.ReadEvent{
		ID:        uuid.NewString(),
		ArticleID: articleID,
		ReaderID:  cloneString(readerID),
		ReadAt:    now,
	}
	r.reads = append(r.reads, event)

	result := event
	result.ReaderID = cloneString(event.ReaderID)
	return &result, nil
}

func (r *MemoryAnalyticsRepository) ListArticleIDsWithReadsOn(_ context.Context, date string) ([]string, error) {
	start, end, err := domain.DayBounds(date)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, read := range r.reads {
		if read.ReadAt.Before(start) || !read.ReadAt.Before(end) {
			continue
		}
		if _, ok := seen[read.ArticleID]; ok {
			continue
		}
		seen[read.ArticleID] = struct{}{}
		ids = append(ids, read.ArticleID)
	}
	return ids, nil
}

func (r *MemoryAnalyticsRepository) CountReadsFor(_ context.Context, articleID string, date string) (int, error) {
	start, end, err := domain.DayBounds(date)
	if err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, read := range r.reads {
		if read.ArticleID != articleID {
			continue
		}
		if read.ReadAt.Before(start) || !read.ReadAt.Before(end) {
			continue
		}
		total++
	}
	return total, nil
}

func (r *MemoryAnalyticsRepository) UpsertDailyAggregate(
	_ context.Context,
	articleID string,
	date string,
	viewCount int,
) error {
	if _, err := domain.ParseDate(date); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	key := domain.AggregationJob{ArticleID: articleID, Date: date}.Key()
	aggregate, ok := r.aggregates[key]
	if !ok {
		aggregate = domain.DailyAggregate{
			ArticleID: articleID,
			Date:      date,
			CreatedAt: now,
		}
	}
	aggregate.ViewCount = viewCount
	aggregate.UpdatedAt = now
	r.aggregates[key] = aggregate
	return nil
}

func (r *MemoryAnalyticsRepository) ListDailyAggregates(
	_ context.Context,
	filter domain.DailyAggregateFilter,
) ([]domain.DailyAggregate, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	items := make([]domain.DailyAggregate, 0)
	for _, aggregate := range r.aggregates {
		if filter.ArticleID != "" && aggregate.ArticleID != filter.ArticleID {
			continue
		}
		if filter.From != "" && aggregate.Date < filter.From {
			continue
		}
		if filter.To != "" && aggregate.Date > filter.To {
			continue
		}
		items = append(items, aggregate)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Date != items[j].Date {
			return items[i].Date > items[j].Date
		}
		return items[i].ArticleID < items[j].ArticleID
	})

	total := len(items)
	start := (filter.Page - 1) * filter.PageSize
	if start >= total {
		return []domain.DailyAggregate{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}

	return items[start:end], total, nil
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
