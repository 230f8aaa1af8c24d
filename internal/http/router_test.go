package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/newsdesk/analytics-back/internal/domain"
	"github.com/newsdesk/analytics-back/internal/http/handlers"
	"github.com/newsdesk/analytics-back/internal/queue"
	"github.com/newsdesk/analytics-back/internal/repository"
	"github.com/newsdesk/analytics-back/internal/service"
	"github.com/newsdesk/analytics-back/internal/worker"
)

const (
	testToken    = "author-token"
	testArticle  = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	otherArticle = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
	testReader   = "11111111-1111-1111-1111-111111111111"
)

type testRuntime struct {
	handler   http.Handler
	repo      *repository.MemoryAnalyticsRepository
	queue     *queue.AggregationQueue
	analytics *service.AnalyticsService
}

func newTestRuntime(t *testing.T) testRuntime {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := log.New(io.Discard, "", 0)
	repo := repository.NewMemoryAnalyticsRepository(10 * time.Second)
	processor := worker.NewProcessor(repo, logger)
	aggregationQueue := queue.NewAggregationQueue(ctx, processor.Process, logger)
	analytics := service.NewAnalyticsService(service.AnalyticsDependencies{
		Store:           repo,
		Scheduler:       aggregationQueue,
		Logger:          logger,
		BaseContext:     ctx,
		TrackingEnabled: true,
	})

	router := NewRouter(RouterDependencies{
		API:            handlers.NewAPI(analytics, aggregationQueue),
		Logger:         logger,
		AuthToken:      testToken,
		RateLimitRPS:   10000,
		RateLimitBurst: 10000,
	})

	return testRuntime{handler: router, repo: repo, queue: aggregationQueue, analytics: analytics}
}

func (rt testRuntime) settle(t *testing.T) {
	t.Helper()
	rt.analytics.WaitTracking()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rt.queue.Wait(ctx); err != nil {
		t.Fatalf("queue did not drain: %v", err)
	}
}

func (rt testRuntime) do(
	t *testing.T,
	method string,
	target string,
	body any,
	headers map[string]string,
) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, target, reader)
	request.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()

	rt.handler.ServeHTTP(recorder, request)

	decoded := map[string]any{}
	if recorder.Body.Len() > 0 {
		if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response (%d): %s", recorder.Code, recorder.Body.String())
		}
	}
	return recorder.Code, decoded
}

func authHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testToken}
}

func TestReadTrackingUpdatesDailyAggregate(t *testing.T) {
	rt := newTestRuntime(t)

	for i := 0; i < 3; i++ {
		status, body := rt.do(t, http.MethodPost, "/v1/articles/"+testArticle+"/reads", nil, nil)
		if status != http.StatusAccepted {
			t.Fatalf("expected 202, got %d %v", status, body)
		}
	}
	rt.settle(t)

	status, body := rt.do(t, http.MethodGet, "/v1/analytics/daily?article_id="+testArticle, nil, authHeaders())
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", status, body)
	}
	items, _ := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one aggregate row, got %v", body)
	}
	row := items[0].(map[string]any)
	if row["view_count"] != float64(3) {
		t.Fatalf("expected view_count 3, got %v", row["view_count"])
	}
	if row["date"] != domain.ToUTCDate(time.Now()) && row["date"] != domain.ToUTCDate(time.Now().Add(-time.Minute)) {
		t.Fatalf("unexpected date %v", row["date"])
	}
}

func TestReadTrackingSuppressesRepeatIdentifiedReader(t *testing.T) {
	rt := newTestRuntime(t)
	headers := map[string]string{"X-Reader-Id": testReader}

	for i := 0; i < 2; i++ {
		status, _ := rt.do(t, http.MethodPost, "/v1/articles/"+testArticle+"/reads", nil, headers)
		if status != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", status)
		}
		rt.settle(t)
	}

	count, err := rt.repo.CountReadsFor(context.Background(), testArticle, domain.ToUTCDate(time.Now()))
	if err != nil {
		t.Fatalf("count reads: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected repeat read to be suppressed, got %d reads", count)
	}
}

func TestReadTrackingRejectsInvalidIdentifiers(t *testing.T) {
	rt := newTestRuntime(t)

	status, body := rt.do(t, http.MethodPost, "/v1/articles/not-a-uuid/reads", nil, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %v", status, body)
	}

	status, _ = rt.do(t, http.MethodPost, "/v1/articles/"+testArticle+"/reads", nil, map[string]string{"X-Reader-Id": "nope"})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid reader, got %d", status)
	}
}

func TestProcessAnalyticsRequiresToken(t *testing.T) {
	rt := newTestRuntime(t)

	status, body := rt.do(t, http.MethodPost, "/v1/analytics/process", map[string]any{"date": "2026-02-24"}, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %v", status, body)
	}
}

func TestProcessAnalyticsEnqueuesArticlesReadOnDate(t *testing.T) {
	rt := newTestRuntime(t)
	today := domain.ToUTCDate(time.Now())

	rt.do(t, http.MethodPost, "/v1/articles/"+testArticle+"/reads", nil, nil)
	rt.do(t, http.MethodPost, "/v1/articles/"+otherArticle+"/reads", nil, nil)
	rt.do(t, http.MethodPost, "/v1/articles/"+otherArticle+"/reads", nil, nil)
	rt.settle(t)

	status, body := rt.do(t, http.MethodPost, "/v1/analytics/process", map[string]any{"date": today}, authHeaders())
	if status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %v", status, body)
	}
	data, _ := body["data"].(map[string]any)
	if data["date"] != today || data["enqueued"] != float64(2) {
		t.Fatalf("unexpected data %v", data)
	}
	rt.settle(t)

	items, total, err := rt.repo.ListDailyAggregates(context.Background(), domain.DailyAggregateFilter{From: today, To: today})
	if err != nil {
		t.Fatalf("list aggregates: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected two aggregates, got %d", total)
	}
	for _, item := range items {
		expected := 1
		if item.ArticleID == otherArticle {
			expected = 2
		}
		if item.ViewCount != expected {
			t.Fatalf("article %s: expected %d views, got %d", item.ArticleID, expected, item.ViewCount)
		}
	}
}

func TestProcessAnalyticsDefaultsToTodayWithEmptyBody(t *testing.T) {
	rt := newTestRuntime(t)

	status, body := rt.do(t, http.MethodPost, "/v1/analytics/process", nil, authHeaders())
	if status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %v", status, body)
	}
	data, _ := body["data"].(map[string]any)
	if data["enqueued"] != float64(0) {
		t.Fatalf("expected nothing enqueued, got %v", data)
	}
	if _, ok := data["date"].(string); !ok {
		t.Fatalf("expected date in response, got %v", data)
	}
}

func TestProcessAnalyticsValidatesPayload(t *testing.T) {
	rt := newTestRuntime(t)

	status, _ := rt.do(t, http.MethodPost, "/v1/analytics/process", map[string]any{"date": "24/02/2026"}, authHeaders())
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid date, got %d", status)
	}

	status, _ = rt.do(t, http.MethodPost, "/v1/analytics/process", map[string]any{"day": "2026-02-24"}, authHeaders())
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", status)
	}

	status, _ = rt.do(t, http.MethodGet, "/v1/analytics/process", nil, authHeaders())
	if status != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", status)
	}
}

func TestDailyAnalyticsClampsOversizedPage(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		articleID := fmt.Sprintf("00000000-0000-0000-0000-%012d", i)
		if err := rt.repo.UpsertDailyAggregate(ctx, articleID, "2026-02-24", i+1); err != nil {
			t.Fatalf("seed aggregate: %v", err)
		}
	}

	status, body := rt.do(t, http.MethodGet, "/v1/analytics/daily?page_size=500", nil, authHeaders())
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", status, body)
	}
	if body["page_size"] != float64(100) {
		t.Fatalf("expected page_size clamped to 100, got %v", body["page_size"])
	}
	items, _ := body["items"].([]any)
	if len(items) != 25 || body["has_next"] != false {
		t.Fatalf("expected all 25 rows on one page, got %d has_next=%v", len(items), body["has_next"])
	}

	_, body = rt.do(t, http.MethodGet, "/v1/analytics/daily?page_size=abc", nil, authHeaders())
	if body["page_size"] != float64(20) {
		t.Fatalf("expected default page_size 20, got %v", body["page_size"])
	}
}

func TestHealthReportsQueueStats(t *testing.T) {
	rt := newTestRuntime(t)

	status, body := rt.do(t, http.MethodGet, "/healthz", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	stats, ok := body["analytics_queue"].(map[string]any)
	if !ok {
		t.Fatalf("expected analytics_queue in health response, got %v", body)
	}
	if stats["pending"] != float64(0) || stats["processing"] != false {
		t.Fatalf("unexpected stats %v", stats)
	}
}
