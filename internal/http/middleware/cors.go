package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

const defaultCORSMaxAgeSeconds = 600

// corsPolicy is what a browser may send to one group of routes.
type corsPolicy struct {
	methods []string
	headers []string
}

var (
	// Article pages call the read beacon from the publication site. Readers never hold
	// the dashboard token, so Authorization is not offered here.
	readTrackingCORS = corsPolicy{
		methods: []string{http.MethodPost, http.MethodOptions},
		headers: []string{"Content-Type", "X-Reader-Id", "X-Request-Id"},
	}
	dashboardCORS = corsPolicy{
		methods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		headers: []string{"Authorization", "Content-Type", "X-Request-Id"},
	}
	healthCORS = corsPolicy{
		methods: []string{http.MethodGet, http.MethodOptions},
		headers: []string{"X-Request-Id"},
	}
)

func (p corsPolicy) allowsMethod(method string) bool {
	for _, allowed := range p.methods {
		if allowed == method {
			return true
		}
	}
	return false
}

type CORSConfig struct {
	AllowedOrigins []string
	MaxAgeSeconds  int
}

// CORS answers preflights with the policy of the route group being called and
// sets Access-Control-Allow-Origin for origins on the allow-list.
// Requests from other origins pass through untouched.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	allowAnyOrigin := false
	for _, raw := range cfg.AllowedOrigins {
		origin := strings.ToLower(strings.TrimSpace(raw))
		switch origin {
		case "":
		case "*":
			allowAnyOrigin = true
		default:
			origins[origin] = struct{}{}
		}
	}

	maxAgeSeconds := cfg.MaxAgeSeconds
	if maxAgeSeconds <= 0 {
		maxAgeSeconds = defaultCORSMaxAgeSeconds
	}
	maxAge := strconv.Itoa(maxAgeSeconds)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := origins[strings.ToLower(origin)]; !ok && !allowAnyOrigin {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Origin")
			if allowAnyOrigin {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}

			requestedMethod := r.Header.Get("Access-Control-Request-Method")
			if r.Method != http.MethodOptions || requestedMethod == "" {
				next.ServeHTTP(w, r)
				return
			}

			policy := corsPolicyFor(r.URL.Path)
			w.Header().Add("Vary", "Access-Control-Request-Method")
			w.Header().Add("Vary", "Access-Control-Request-Headers")
			if !policy.allowsMethod(requestedMethod) {
				writeError(w, r, http.StatusForbidden, "cors_method_not_allowed", "method not allowed for this route")
				return
			}
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(policy.methods, ", "))
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(policy.headers, ", "))
			w.Header().Set("Access-Control-Max-Age", maxAge)
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func corsPolicyFor(path string) corsPolicy {
	switch {
	case strings.HasPrefix(path, "/v1/analytics/"):
		return dashboardCORS
	case strings.HasPrefix(path, "/v1/articles/") && strings.HasSuffix(path, "/reads"):
		return readTrackingCORS
	default:
		return healthCORS
	}
}
