package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/newsdesk/analytics-back/internal/domain"
	"github.com/newsdesk/analytics-back/internal/http/middleware"
)

func (api *API) ProcessAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var request processAnalyticsRequest
	if err := decodeOptionalJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}

	result, err := api.analyticsService.EnqueueDailyAggregation(r.Context(), request.Date)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidDate) {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to enqueue analytics processing")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":    "Analytics processing enqueued",
		"data":       result,
		"request_id": middleware.GetRequestID(r.Context()),
	})
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (api *API) DailyAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	pageSize, _ := strconv.Atoi(query.Get("page_size"))
	if page <= 0 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}

	filter := domain.DailyAggregateFilter{
		From:     strings.TrimSpace(query.Get("from")),
		To:       strings.TrimSpace(query.Get("to")),
		Page:     page,
		PageSize: pageSize,
	}
	if raw := strings.TrimSpace(query.Get("article_id")); raw != "" {
		articleID, err := parseUUID(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "article_id must be a UUID")
			return
		}
		filter.ArticleID = articleID
	}

	items, total, err := api.analyticsService.ListDailyAggregates(r.Context(), filter)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidDate) {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "from and to must be YYYY-MM-DD")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to list daily analytics")
		return
	}

	payloadItems := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payloadItems = append(payloadItems, map[string]any{
			"article_id": item.ArticleID,
			"date":       item.Date,
			"view_count": item.ViewCount,
			"updated_at": item.UpdatedAt.Format(time.RFC3339Nano),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":     payloadItems,
		"page":      page,
		"page_size": pageSize,
		"total":     total,
		"has_next":  page*pageSize < total,
	})
}
