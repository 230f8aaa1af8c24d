package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const newsOrigin = "https://news.example.com"

func newCORSHandler(t *testing.T, nextCalled *bool) http.Handler {
	t.Helper()
	return CORS(CORSConfig{
		AllowedOrigins: []string{" " + newsOrigin + " ", ""},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*nextCalled = true
		w.WriteHeader(http.StatusTeapot)
	}))
}

func preflight(handler http.Handler, path, origin, method, headers string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodOptions, path, nil)
	request.Header.Set("Origin", origin)
	request.Header.Set("Access-Control-Request-Method", method)
	if headers != "" {
		request.Header.Set("Access-Control-Request-Headers", headers)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestCORSReadBeaconPreflightOffersReaderHeader(t *testing.T) {
	nextCalled := false
	handler := newCORSHandler(t, &nextCalled)

	recorder := preflight(handler, "/v1/articles/8d5e1c57-3a0f-4c4e-9a53-1e0c2f7b6a11/reads", newsOrigin, http.MethodPost, "x-reader-id")

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
	if nextCalled {
		t.Fatalf("expected preflight to short-circuit the chain")
	}
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != newsOrigin {
		t.Fatalf("expected allow origin %q, got %q", newsOrigin, got)
	}
	allowHeaders := strings.ToLower(recorder.Header().Get("Access-Control-Allow-Headers"))
	if !strings.Contains(allowHeaders, "x-reader-id") {
		t.Fatalf("expected X-Reader-Id in allow headers, got %q", allowHeaders)
	}
	if strings.Contains(allowHeaders, "authorization") {
		t.Fatalf("read beacon must not offer Authorization, got %q", allowHeaders)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Methods"); strings.Contains(got, http.MethodGet) {
		t.Fatalf("read beacon only accepts POST, got %q", got)
	}
}

func TestCORSDashboardPreflightOffersAuthorization(t *testing.T) {
	nextCalled := false
	handler := newCORSHandler(t, &nextCalled)

	recorder := preflight(handler, "/v1/analytics/daily", newsOrigin, http.MethodGet, "authorization")

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
	allowHeaders := strings.ToLower(recorder.Header().Get("Access-Control-Allow-Headers"))
	if !strings.Contains(allowHeaders, "authorization") {
		t.Fatalf("expected Authorization in allow headers, got %q", allowHeaders)
	}
	if strings.Contains(allowHeaders, "x-reader-id") {
		t.Fatalf("dashboard routes do not take a reader id, got %q", allowHeaders)
	}
	if got := recorder.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Fatalf("expected default max age, got %q", got)
	}
}

func TestCORSRejectsMethodOutsideRoutePolicy(t *testing.T) {
	nextCalled := false
	handler := newCORSHandler(t, &nextCalled)

	recorder := preflight(handler, "/v1/articles/a/reads", newsOrigin, http.MethodDelete, "")

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", recorder.Code)
	}
	if nextCalled {
		t.Fatalf("expected rejected preflight not to reach the handler")
	}
	if got := recorder.Header().Get("Access-Control-Allow-Methods"); got != "" {
		t.Fatalf("expected no allow methods, got %q", got)
	}
}

func TestCORSMatchesOriginCaseInsensitively(t *testing.T) {
	nextCalled := false
	handler := newCORSHandler(t, &nextCalled)

	request := httptest.NewRequest(http.MethodPost, "/v1/articles/a/reads", nil)
	request.Header.Set("Origin", "https://NEWS.example.com")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if !nextCalled || recorder.Code != http.StatusTeapot {
		t.Fatalf("expected actual request to reach the handler, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "https://NEWS.example.com" {
		t.Fatalf("expected request origin echoed, got %q", got)
	}
}

func TestCORSIgnoresDisallowedOrigin(t *testing.T) {
	nextCalled := false
	handler := newCORSHandler(t, &nextCalled)

	recorder := preflight(handler, "/v1/analytics/process", "https://evil.example", http.MethodPost, "")

	if !nextCalled {
		t.Fatalf("expected disallowed origin to pass through")
	}
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow origin, got %q", got)
	}
}

func TestCORSWildcardOrigin(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"*"}, MaxAgeSeconds: 60})(http.NotFoundHandler())

	recorder := preflight(handler, "/healthz", "https://anywhere.example", http.MethodGet, "")

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
	if got := recorder.Header().Get("Access-Control-Max-Age"); got != "60" {
		t.Fatalf("expected configured max age, got %q", got)
	}
}
