package httpserver

import (
	"log"
	"net/http"

	"github.com/newsdesk/analytics-back/internal/http/handlers"
	"github.com/newsdesk/analytics-back/internal/http/middleware"
)

type RouterDependencies struct {
	API            *handlers.API
	Logger         *log.Logger
	AuthToken      string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(deps RouterDependencies) http.Handler {
	protected := middleware.Auth(deps.AuthToken)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", deps.API.Health)
	mux.HandleFunc("/v1/articles/{articleID}/reads", deps.API.TrackRead)
	mux.Handle("/v1/analytics/process", protected(http.HandlerFunc(deps.API.ProcessAnalytics)))
	mux.Handle("/v1/analytics/daily", protected(http.HandlerFunc(deps.API.DailyAnalytics)))

	handler := http.Handler(mux)
	handler = middleware.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst)(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: deps.CORSOrigins,
	})(handler)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
