// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サイクルエンジン、アクセス制御、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordCycleOpened()
	RecordReadingUpserted(created bool)
	RecordRangeResult(applied, skipped int)
	RecordAuthorizationDenied()
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordSessionsExpired(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cyclesOpened     prometheus.Counter
	readingsUpserted *prometheus.CounterVec
	rangeDates       *prometheus.CounterVec
	authDenied       prometheus.Counter
	httpStatus       *prometheus.CounterVec
	requestLatency   prometheus.Histogram
	sessionsExpired  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cyclesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cyclelog_cycles_opened_total",
			Help: "開始されたサイクルの合計数",
		}),
		readingsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cyclelog_readings_upserted_total",
			Help: "アップサートされた日次記録の合計数",
		}, []string{"op"}),
		rangeDates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cyclelog_range_dates_total",
			Help: "期間一括更新で処理された日付数",
		}, []string{"result"}),
		authDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cyclelog_authorization_denied_total",
			Help: "アクセス権限不足で拒否されたリクエスト数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cyclelog_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cyclelog_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cyclelog_sessions_expired_total",
			Help: "クリーンアップで削除された期限切れセッション数",
		}),
	}

	reg.MustRegister(
		c.cyclesOpened,
		c.readingsUpserted,
		c.rangeDates,
		c.authDenied,
		c.httpStatus,
		c.requestLatency,
		c.sessionsExpired,
	)

	return c
}

// RecordCycleOpened はサイクル開始を記録する。
func (c *Collector) RecordCycleOpened() {
	c.cyclesOpened.Inc()
}

// RecordReadingUpserted は日次記録のアップサートを記録する。
func (c *Collector) RecordReadingUpserted(created bool) {
	op := "update"
	if created {
		op = "insert"
	}
	c.readingsUpserted.WithLabelValues(op).Inc()
}

// RecordRangeResult は期間一括更新の適用数とスキップ数を記録する。
func (c *Collector) RecordRangeResult(applied, skipped int) {
	c.rangeDates.WithLabelValues("applied").Add(float64(applied))
	c.rangeDates.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordAuthorizationDenied は権限不足による拒否を記録する。
func (c *Collector) RecordAuthorizationDenied() {
	c.authDenied.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordSessionsExpired は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsExpired(count int64) {
	c.sessionsExpired.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordCycleOpened()                 {}
func (Nop) RecordReadingUpserted(bool)         {}
func (Nop) RecordRangeResult(int, int)         {}
func (Nop) RecordAuthorizationDenied()         {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}
func (Nop) RecordSessionsExpired(int64)        {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
