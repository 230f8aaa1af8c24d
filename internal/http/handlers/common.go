package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/newsdesk/analytics-back/internal/http/middleware"
	"github.com/newsdesk/analytics-back/internal/queue"
	"github.com/newsdesk/analytics-back/internal/service"
)

var errInvalidPayload = errors.New("invalid payload")

// QueueStatsProvider exposes the aggregation queue counters to the health endpoint.
type QueueStatsProvider interface {
	Stats() queue.QueueStats
}

type API struct {
	analyticsService *service.AnalyticsService
	queueStats       QueueStatsProvider
}

func NewAPI(analyticsService *service.AnalyticsService, queueStats QueueStatsProvider) *API {
	return &API{
		analyticsService: analyticsService,
		queueStats:       queueStats,
	}
}

type processAnalyticsRequest struct {
	Date string `json:"date,omitempty"`
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

// decodeOptionalJSON treats an empty body as an empty object.
func decodeOptionalJSON(r *http.Request, value any) error {
	if r.Body == nil {
		return nil
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errInvalidPayload
	}
	return nil
}

// parseUUID returns the canonical form of a UUID path or header value.
func parseUUID(value string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return "", errInvalidPayload
	}
	return parsed.String(), nil
}
