package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/newsdesk/analytics-back/internal/domain"
	"github.com/newsdesk/analytics-back/internal/queue"
	"github.com/newsdesk/analytics-back/internal/repository"
)

// ReadLogStore is the persistence the service needs to discover aggregation work.
type ReadLogStore interface {
	RecordReadEvent(ctx context.Context, articleID string, readerID *string) (*domain.ReadEvent, error)
	ListArticleIDsWithReadsOn(ctx context.Context, date string) ([]string, error)
	ListDailyAggregates(ctx context.Context, filter domain.DailyAggregateFilter) ([]domain.DailyAggregate, int, error)
}

var _ ReadLogStore = (repository.AnalyticsRepository)(nil)

type DailyAggregationResult struct {
	Date     string `json:"date"`
	Enqueued int    `json:"enqueued"`
}

type AnalyticsDependencies struct {
	Store     ReadLogStore
	Scheduler queue.Scheduler
	Logger    *log.Logger
	// BaseContext bounds detached read tracking. Defaults to context.Background.
	BaseContext     context.Context
	TrackingEnabled bool
	Now             func() time.Time
}

type AnalyticsService struct {
	store           ReadLogStore
	scheduler       queue.Scheduler
	logger          *log.Logger
	baseCtx         context.Context
	trackingEnabled bool
	now             func() time.Time

	tracking sync.WaitGroup
}

func NewAnalyticsService(deps AnalyticsDependencies) *AnalyticsService {
	baseCtx := deps.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &AnalyticsService{
		store:           deps.Store,
		scheduler:       deps.Scheduler,
		logger:          deps.Logger,
		baseCtx:         baseCtx,
		trackingEnabled: deps.TrackingEnabled,
		now:             now,
	}
}

// TrackReadInBackground records a content view and schedules the matching aggregation job on
// a detached goroutine. It never blocks and never reports failures to the caller.
func (s *AnalyticsService) TrackReadInBackground(articleID string, readerID *string) {
	if !s.trackingEnabled {
		return
	}

	var reader *string
	if readerID != nil {
		value := *readerID
		reader = &value
	}

	s.tracking.Add(1)
	go func() {
		defer s.tracking.Done()
		defer func() {
			if recovered := recover(); recovered != nil && s.logger != nil {
				s.logger.Printf("read tracking panicked article_id=%s err=%v", articleID, recovered)
			}
		}()

		if err := s.trackRead(s.baseCtx, articleID, reader); err != nil && s.logger != nil {
			s.logger.Printf("read tracking failed article_id=%s err=%v", articleID, err)
		}
	}()
}

// WaitTracking blocks until every detached read-tracking goroutine has returned.
func (s *AnalyticsService) WaitTracking() {
	s.tracking.Wait()
}

func (s *AnalyticsService) trackRead(ctx context.Context, articleID string, readerID *string) error {
	event, err := s.store.RecordReadEvent(ctx, articleID, readerID)
	if err != nil {
		return fmt.Errorf("record read event: %w", err)
	}
	if event == nil {
		return nil
	}

	s.scheduler.Enqueue(domain.AggregationJob{
		ArticleID: event.ArticleID,
		Date:      domain.ToUTCDate(event.ReadAt),
	})
	return nil
}

// EnqueueDailyAggregation schedules a recount for every article read on date and returns
// without waiting for them. An empty date means today in UTC.
func (s *AnalyticsService) EnqueueDailyAggregation(ctx context.Context, date string) (DailyAggregationResult, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		date = s.Today()
	}
	if _, err := domain.ParseDate(date); err != nil {
		return DailyAggregationResult{}, err
	}

	articleIDs, err := s.store.ListArticleIDsWithReadsOn(ctx, date)
	if err != nil {
		return DailyAggregationResult{}, fmt.Errorf("list articles read on %s: %w", date, err)
	}

	jobs := make([]domain.AggregationJob, 0, len(articleIDs))
	for _, articleID := range articleIDs {
		jobs = append(jobs, domain.AggregationJob{ArticleID: articleID, Date: date})
	}
	s.scheduler.EnqueueMany(jobs)

	return DailyAggregationResult{
		Date:     date,
		Enqueued: len(articleIDs),
	}, nil
}

func (s *AnalyticsService) ListDailyAggregates(
	ctx context.Context,
	filter domain.DailyAggregateFilter,
) ([]domain.DailyAggregate, int, error) {
	if filter.From != "" {
		if _, err := domain.ParseDate(filter.From); err != nil {
			return nil, 0, err
		}
	}
	if filter.To != "" {
		if _, err := domain.ParseDate(filter.To); err != nil {
			return nil, 0, err
		}
	}
	return s.store.ListDailyAggregates(ctx, filter)
}

func (s *AnalyticsService) Today() string {
	return domain.ToUTCDate(s.now())
}
