package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newsdesk/analytics-back/internal/domain"
	httpserver "github.com/newsdesk/analytics-back/internal/http"
	"github.com/newsdesk/analytics-back/internal/http/handlers"
	"github.com/newsdesk/analytics-back/internal/queue"
	"github.com/newsdesk/analytics-back/internal/repository"
	"github.com/newsdesk/analytics-back/internal/service"
	"github.com/newsdesk/analytics-back/internal/worker"
)

const benchmarkToken = "readload-token"

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type runResult struct {
	GeneratedAtUTC  string           `json:"generated_at_utc"`
	Articles        int              `json:"articles"`
	Results         []scenarioResult `json:"results"`
	Queue           queue.QueueStats `json:"queue"`
	TotalReads      int              `json:"total_reads"`
	AggregatedReads int              `json:"aggregated_reads"`
}

type benchmarkEnv struct {
	server *httptest.Server
	repo   *repository.MemoryAnalyticsRepository
	queue  *queue.AggregationQueue
	svc    *service.AnalyticsService
	cancel context.CancelFunc
}

func main() {
	articles := flag.Int("articles", 40, "distinct articles to read")
	readers := flag.Int("readers", 200, "distinct identified readers")
	readsTotal := flag.Int("reads-total", 2000, "total read tracking requests")
	readsConcurrency := flag.Int("reads-concurrency", 32, "concurrency for read tracking requests")
	processTotal := flag.Int("process-total", 60, "total analytics process requests")
	processConcurrency := flag.Int("process-concurrency", 8, "concurrency for analytics process requests")
	listTotal := flag.Int("list-total", 120, "total daily analytics list requests")
	listConcurrency := flag.Int("list-concurrency", 16, "concurrency for daily analytics list requests")
	outputPath := flag.String("output", "", "optional path to persist benchmark results JSON")
	flag.Parse()

	env := startBenchmarkEnvironment()
	defer env.cancel()
	defer env.server.Close()

	client := &http.Client{Timeout: 10 * time.Second}
	articleIDs := make([]string, 0, *articles)
	for i := 0; i < *articles; i++ {
		articleIDs = append(articleIDs, uuid.NewString())
	}
	readerIDs := make([]string, 0, *readers)
	for i := 0; i < *readers; i++ {
		readerIDs = append(readerIDs, uuid.NewString())
	}
	today := domain.ToUTCDate(time.Now())

	readsScenario := runScenario("reads_track", *readsTotal, *readsConcurrency, func(index int) error {
		headers := map[string]string{}
		// Every third read is anonymous.
		if index%3 != 0 && len(readerIDs) > 0 {
			headers["X-Reader-Id"] = readerIDs[index%len(readerIDs)]
		}
		url := fmt.Sprintf("%s/v1/articles/%s/reads", env.server.URL, articleIDs[index%len(articleIDs)])
		return postJSON(client, url, nil, headers, http.StatusAccepted)
	})

	processScenario := runScenario("analytics_process", *processTotal, *processConcurrency, func(index int) error {
		headers := map[string]string{"Authorization": "Bearer " + benchmarkToken}
		return postJSON(client, env.server.URL+"/v1/analytics/process", map[string]any{"date": today}, headers, http.StatusAccepted)
	})

	listScenario := runScenario("analytics_daily_list", *listTotal, *listConcurrency, func(index int) error {
		url := fmt.Sprintf("%s/v1/analytics/daily?from=%s&to=%s&page=%d&page_size=20", env.server.URL, today, today, 1+index%3)
		return getJSON(client, url, map[string]string{"Authorization": "Bearer " + benchmarkToken}, http.StatusOK)
	})

	env.svc.WaitTracking()
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := env.queue.Wait(drainCtx); err != nil {
		log.Printf("analytics queue did not drain: %v", err)
	}

	totalReads, aggregated := countReads(env, articleIDs, today)
	output := runResult{
		GeneratedAtUTC:  time.Now().UTC().Format(time.RFC3339),
		Articles:        len(articleIDs),
		Results:         []scenarioResult{readsScenario, processScenario, listScenario},
		Queue:           env.queue.Stats(),
		TotalReads:      totalReads,
		AggregatedReads: aggregated,
	}

	encoded, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		log.Fatalf("failed to encode result: %v", err)
	}
	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, encoded, 0o644); err != nil {
			log.Fatalf("failed to write output file: %v", err)
		}
	}
	_, _ = fmt.Fprintln(os.Stdout, string(encoded))
}

func startBenchmarkEnvironment() *benchmarkEnv {
	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard, "", 0)

	repo := repository.NewMemoryAnalyticsRepository(repository.DefaultReadDedupWindow)
	processor := worker.NewProcessor(repo, logger)
	aggregationQueue := queue.NewAggregationQueue(ctx, processor.Process, logger)
	analytics := service.NewAnalyticsService(service.AnalyticsDependencies{
		Store:           repo,
		Scheduler:       aggregationQueue,
		Logger:          logger,
		BaseContext:     ctx,
		TrackingEnabled: true,
	})

	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            handlers.NewAPI(analytics, aggregationQueue),
		Logger:         logger,
		AuthToken:      benchmarkToken,
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})

	return &benchmarkEnv{
		server: httptest.NewServer(router),
		repo:   repo,
		queue:  aggregationQueue,
		svc:    analytics,
		cancel: cancel,
	}
}

// countReads compares persisted read logs with the aggregated view counts for date.
func countReads(env *benchmarkEnv, articleIDs []string, date string) (int, int) {
	ctx := context.Background()
	totalReads := 0
	for _, articleID := range articleIDs {
		count, err := env.repo.CountReadsFor(ctx, articleID, date)
		if err != nil {
			continue
		}
		totalReads += count
	}

	aggregated := 0
	page := 1
	for {
		items, total, err := env.repo.ListDailyAggregates(ctx, domain.DailyAggregateFilter{
			From:     date,
			To:       date,
			Page:     page,
			PageSize: 100,
		})
		if err != nil {
			break
		}
		for _, item := range items {
			aggregated += item.ViewCount
		}
		if page*100 >= total {
			break
		}
		page++
	}
	return totalReads, aggregated
}

func runScenario(
	name string,
	total int,
	concurrency int,
	requestFn func(index int) error,
) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		err        string
	}

	jobs := make(chan int, total)
	results := make(chan sample, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				requestStart := time.Now()
				err := requestFn(index)
				s := sample{
					durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0,
				}
				if err != nil {
					s.err = err.Error()
				}
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	success := 0
	errorsCount := 0
	for item := range results {
		durations = append(durations, item.durationMS)
		if item.err == "" {
			success++
			continue
		}
		errorsCount++
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	elapsedSeconds := time.Since(startedAt).Seconds()
	throughput := 0.0
	if elapsedSeconds > 0 {
		throughput = float64(total) / elapsedSeconds
	}

	return scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        errorsCount,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
}

func postJSON(
	client *http.Client,
	url string,
	payload any,
	headers map[string]string,
	expectedStatus int,
) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	return execute(client, request, expectedStatus)
}

func getJSON(client *http.Client, url string, headers map[string]string, expectedStatus int) error {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	return execute(client, request, expectedStatus)
}

func execute(client *http.Client, request *http.Request, expectedStatus int) error {
	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return round2(values[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
