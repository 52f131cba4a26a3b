package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// HTTPRecorder はリクエスト単位のメトリクス記録先。
type HTTPRecorder interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// requestInfo は内側のミドルウェアが解決した値をログ出力側へ渡すための入れ物。
// セッションミドルウェアはロギングより内側で動くため、コンテキスト経由では値が戻らない。
type requestInfo struct {
	userID string
}

var requestInfoContextKey = contextKey("request_info")

// statusRecorder はhttp.ResponseWriterをラップし、最初に書き込まれたステータスコードを保持する。
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.status = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.status = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// NewLoggingMiddleware はリクエストごとにJSON構造化ログを出力し、
// ステータスコードとレイテンシをrecorderへ記録するミドルウェアを返す。
// ログにはmethod、path、route、status、duration_ms、user_id（認証済みの場合）、target（指定時）を含む。
// recorderはnilでもよい。
func NewLoggingMiddleware(logger *slog.Logger, recorder HTTPRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			info := &requestInfo{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestInfoContextKey, info)))

			elapsed := time.Since(start)
			if recorder != nil {
				recorder.RecordHTTPStatus(rec.status)
				recorder.RecordRequestLatency(elapsed)
			}

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				args = append(args, slog.String("route", rctx.RoutePattern()))
			}
			if info.userID != "" {
				args = append(args, slog.String("user_id", info.userID))
			}
			if target := r.URL.Query().Get("target"); target != "" {
				args = append(args, slog.String("target", target))
			}

			level := slog.LevelInfo
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}
