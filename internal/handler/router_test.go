package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/cyclelog/internal/middleware"
	"github.com/hitoshi/cyclelog/internal/model"
)

type stubSessionFinder map[string]string

func (s stubSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	userID, ok := s[id]
	if !ok {
		return nil, nil
	}
	return &model.Session{ID: id, UserID: userID}, nil
}

func newTestRouter(t *testing.T, limits middleware.RateLimiterConfig, metrics http.Handler) http.Handler {
	t.Helper()
	rl := middleware.NewRateLimiter(limits)
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		SessionFinder:     stubSessionFinder{"session-1": "user-1"},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		AuthService:       &mockAuthService{},
		AuthConfig:        testAuthConfig,
		CycleService:      &mockCycleService{},
		ShareService:      &mockShareService{},
		DataClearer:       &mockDataClearer{},
		UserService:       &mockUserService{},
		MetricsHandler:    metrics,
	})
}

// sessionRequest はセッションCookieとCSRFトークンを付けたリクエストを作る。
func sessionRequest(method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-1"})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "token-1"})
	req.Header.Set("X-CSRF-Token", "token-1")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	w := serve(newTestRouter(t, middleware.DefaultRateLimiterConfig(), nil), httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

func TestRouter_MetricsRoute(t *testing.T) {
	without := serve(newTestRouter(t, middleware.DefaultRateLimiterConfig(), nil), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if without.Code != http.StatusNotFound {
		t.Errorf("without handler: status = %d, want %d", without.Code, http.StatusNotFound)
	}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "# metrics\n")
	})
	with := serve(newTestRouter(t, middleware.DefaultRateLimiterConfig(), metrics), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if with.Code != http.StatusOK || !strings.Contains(with.Body.String(), "# metrics") {
		t.Errorf("with handler: status = %d, body = %q", with.Code, with.Body.String())
	}
}

func TestRouter_CSRFTokenEndpoint(t *testing.T) {
	w := serve(newTestRouter(t, middleware.DefaultRateLimiterConfig(), nil), httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp.Token == "" {
		t.Errorf("token = %q, err = %v", resp.Token, err)
	}
}

func TestRouter_APIRequiresSession(t *testing.T) {
	router := newTestRouter(t, middleware.DefaultRateLimiterConfig(), nil)

	for _, path := range []string{"/api/cycles", "/api/analytics", "/api/export.csv", "/api/users/visible"} {
		w := serve(router, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want %d", path, w.Code, http.StatusUnauthorized)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/cycles", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "unknown"})
	if w := serve(router, req); w.Code != http.StatusUnauthorized {
		t.Errorf("unknown session: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRouter_AuthenticatedRead(t *testing.T) {
	router := newTestRouter(t, middleware.DefaultRateLimiterConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/cycles", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-1"})
	w := serve(router, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if c := findResponseCookie(w, "csrf_token"); c == nil || c.Value == "" {
		t.Error("csrf token cookie should be issued on safe requests")
	}

	notFound := serve(router, sessionRequest(http.MethodGet, "/api/cycles/missing", ""))
	if notFound.Code != http.StatusNotFound {
		t.Errorf("unknown cycle: status = %d, want %d", notFound.Code, http.StatusNotFound)
	}
}

func TestRouter_WritesRequireCSRF(t *testing.T) {
	router := newTestRouter(t, middleware.DefaultRateLimiterConfig(), nil)
	body := `{"date":"2024-03-05","intercourse":true}`

	req := httptest.NewRequest(http.MethodPut, "/api/days", strings.NewReader(body))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-1"})
	if w := serve(router, req); w.Code != http.StatusForbidden {
		t.Errorf("without token: status = %d, want %d", w.Code, http.StatusForbidden)
	}

	if w := serve(router, sessionRequest(http.MethodPut, "/api/days", body)); w.Code != http.StatusOK {
		t.Errorf("with token: status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestRouter_RangeLimiter(t *testing.T) {
	router := newTestRouter(t, middleware.NewRateLimiterConfig(120, 1), nil)
	body := `{"start_date":"2024-03-01","end_date":"2024-03-03","intercourse":true}`

	if w := serve(router, sessionRequest(http.MethodPut, "/api/days/range", body)); w.Code != http.StatusOK {
		t.Fatalf("first range request: status = %d, want %d", w.Code, http.StatusOK)
	}
	w := serve(router, sessionRequest(http.MethodPut, "/api/days/range", body))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second range request: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header should be set")
	}

	// 期間一括更新の制限は単日更新に影響しない
	single := serve(router, sessionRequest(http.MethodPut, "/api/days", `{"date":"2024-03-05","intercourse":true}`))
	if single.Code != http.StatusOK {
		t.Errorf("single-day upsert: status = %d, want %d", single.Code, http.StatusOK)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/days", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	w := serve(newTestRouter(t, middleware.DefaultRateLimiterConfig(), nil), req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
