package domain

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the ISO calendar-day format used for aggregation dates.
const DateLayout = "2006-01-02"

var (
	ErrInvalidDate      = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidArticleID = errors.New("invalid article id")
)

// AggregationJob asks for one article's view count on one UTC day to be recomputed.
type AggregationJob struct {
	ArticleID string `json:"article_id"`
	Date      string `json:"date"`
}

// Key identifies duplicate jobs. It is never persisted.
func (j AggregationJob) Key() string {
	return j.ArticleID + ":" + j.Date
}

// ReadEvent is a persisted read-log row.
type ReadEvent struct {
	ID        string
	ArticleID string
	ReaderID  *string
	ReadAt    time.Time
}

type DailyAggregate struct {
	ArticleID string
	Date      string
	ViewCount int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type DailyAggregateFilter struct {
	ArticleID string
	From      string
	To        string
	Page      int
	PageSize  int
}

// ToUTCDate returns the UTC calendar day of t.
func ToUTCDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate validates a YYYY-MM-DD value and returns midnight UTC of that day.
func ParseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, ErrInvalidDate
	}
	parsed, err := time.ParseInLocation(DateLayout, trimmed, time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return parsed, nil
}

// DayBounds returns the half-open interval [date 00:00 UTC, date+1 00:00 UTC).
func DayBounds(date string) (time.Time, time.Time, error) {
	start, err := ParseDate(date)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 1), nil
}
