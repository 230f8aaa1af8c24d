package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/newsdesk/analytics-back/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresAnalyticsRepository struct {
	pool        *pgxpool.Pool
	dedupWindow time.Duration
}

func NewPostgresAnalyticsRepository(
	ctx context.Context,
	databaseURL string,
	dedupWindow time.Duration,
) (*PostgresAnalyticsRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	if dedupWindow < 0 {
		dedupWindow = 0
	}
	return &PostgresAnalyticsRepository{pool: pool, dedupWindow: dedupWindow}, nil
}

func (r *PostgresAnalyticsRepository) Close() {
	r.pool.Close()
}

func (r *PostgresAnalyticsRepository) RecordReadEvent(
	ctx context.Context,
	articleID string,
	readerID *string,
) (*domain.ReadEvent, error) {
	now := time.Now().UTC()

	if readerID != nil && r.dedupWindow > 0 {
		query, args, err := recentReadQuery(articleID, *readerID, now.Add(-r.dedupWindow)).ToSql()
		if err != nil {
			return nil, fmt.Errorf("build recent read query: %w", err)
		}

		var exists int
		err = r.pool.QueryRow(ctx, query, args...).Scan(&exists)
		if err == nil {
			return nil, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("query recent read: %w", err)
		}
	}

	query, args, err := insertReadQuery(articleID, readerID, now).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert read query: %w", err)
	}

	var (
		event  domain.ReadEvent
		reader *string
	)
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&event.ID, &event.ArticleID, &reader, &event.ReadAt); err != nil {
		return nil, fmt.Errorf("insert read log: %w", err)
	}
	event.ReaderID = reader
	event.ReadAt = event.ReadAt.UTC()
	return &event, nil
}

func (r *PostgresAnalyticsRepository) ListArticleIDsWithReadsOn(ctx context.Context, date string) ([]string, error) {
	start, end, err := domain.DayBounds(date)
	if err != nil {
		return nil, err
	}

	query, args, err := distinctArticlesQuery(start, end).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build distinct articles query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list article ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan article id: %w", err)
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate article ids: %w", rows.Err())
	}
	return ids, nil
}

func (r *PostgresAnalyticsRepository) CountReadsFor(ctx context.Context, articleID string, date string) (int, error) {
	start, end, err := domain.DayBounds(date)
	if err != nil {
		return 0, err
	}

	query, args, err := countReadsQuery(articleID, start, end).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count reads query: %w", err)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count reads: %w", err)
	}
	return int(total), nil
}

func (r *PostgresAnalyticsRepository) UpsertDailyAggregate(
	ctx context.Context,
	articleID string,
	date string,
	viewCount int,
) error {
	day, err := domain.ParseDate(date)
	if err != nil {
		return err
	}

	query, args, err := upsertAggregateQuery(articleID, day, viewCount, time.Now().UTC()).ToSql()
	if err != nil {
		return fmt.Errorf("build upsert aggregate query: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert daily aggregate: %w", err)
	}
	return nil
}

func (r *PostgresAnalyticsRepository) ListDailyAggregates(
	ctx context.Context,
	filter domain.DailyAggregateFilter,
) ([]domain.DailyAggregate, int, error) {
	countBuilder, listBuilder, err := aggregateQueries(filter)
	if err != nil {
		return nil, 0, err
	}

	countQuery, countArgs, err := countBuilder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count aggregates query: %w", err)
	}
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count aggregates: %w", err)
	}

	listQuery, listArgs, err := listBuilder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list aggregates query: %w", err)
	}

	rows, err := r.pool.Query(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list aggregates: %w", err)
	}
	defer rows.Close()

	items := make([]domain.DailyAggregate, 0)
	for rows.Next() {
		var (
			item domain.DailyAggregate
			day  time.Time
		)
		if err := rows.Scan(&item.ArticleID, &day, &item.ViewCount, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan aggregate: %w", err)
		}
		item.Date = day.Format(domain.DateLayout)
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("iterate aggregates: %w", rows.Err())
	}

	return items, int(total), nil
}

func recentReadQuery(articleID, readerID string, since time.Time) sq.SelectBuilder {
	return psql.
		Select("1").
		From("read_logs").
		Where(sq.Eq{"article_id": articleID, "reader_id": readerID}).
		Where(sq.GtOrEq{"read_at": since}).
		Limit(1)
}

// insertReadQuery stamps the reader as the row's author; anonymous reads leave the audit columns NULL.
func insertReadQuery(articleID string, readerID *string, readAt time.Time) sq.InsertBuilder {
	return psql.
		Insert("read_logs").
		Columns("article_id", "reader_id", "read_at", "created_by", "updated_by").
		Values(articleID, readerID, readAt, readerID, readerID).
		Suffix("RETURNING id::text, article_id::text, reader_id::text, read_at")
}

func distinctArticlesQuery(start, end time.Time) sq.SelectBuilder {
	return psql.
		Select("DISTINCT article_id::text").
		From("read_logs").
		Where(sq.GtOrEq{"read_at": start}).
		Where(sq.Lt{"read_at": end})
}

func countReadsQuery(articleID string, start, end time.Time) sq.SelectBuilder {
	return psql.
		Select("COUNT(*)").
		From("read_logs").
		Where(sq.Eq{"article_id": articleID}).
		Where(sq.GtOrEq{"read_at": start}).
		Where(sq.Lt{"read_at": end})
}

// upsertAggregateQuery overwrites the stored count; the recount is always the full day.
// updated_by is cleared because the drain loop, not a user, wrote the row.
func upsertAggregateQuery(articleID string, day time.Time, viewCount int, now time.Time) sq.InsertBuilder {
	return psql.
		Insert("daily_analytics").
		Columns("article_id", "date", "view_count", "created_at", "updated_at").
		Values(articleID, day, viewCount, now, now).
		Suffix("ON CONFLICT (article_id, date) DO UPDATE SET " +
			"view_count = EXCLUDED.view_count, updated_at = EXCLUDED.updated_at, updated_by = NULL")
}

func aggregateQueries(filter domain.DailyAggregateFilter) (sq.SelectBuilder, sq.SelectBuilder, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	where, err := buildAggregateFilters(filter)
	if err != nil {
		return sq.SelectBuilder{}, sq.SelectBuilder{}, err
	}

	count := psql.Select("COUNT(*)").From("daily_analytics").Where(where)
	list := psql.
		Select("article_id::text", "date", "view_count", "created_at", "updated_at").
		From("daily_analytics").
		Where(where).
		OrderBy("date DESC", "article_id ASC").
		Limit(uint64(filter.PageSize)).
		Offset(uint64((filter.Page - 1) * filter.PageSize))
	return count, list, nil
}

func buildAggregateFilters(filter domain.DailyAggregateFilter) (sq.And, error) {
	where := sq.And{}
	if filter.ArticleID != "" {
		where = append(where, sq.Eq{"article_id": filter.ArticleID})
	}
	if filter.From != "" {
		from, err := domain.ParseDate(filter.From)
		if err != nil {
			return nil, err
		}
		where = append(where, sq.GtOrEq{"date": from})
	}
	if filter.To != "" {
		to, err := domain.ParseDate(filter.To)
		if err != nil {
			return nil, err
		}
		where = append(where, sq.LtOrEq{"date": to})
	}
	return where, nil
}
