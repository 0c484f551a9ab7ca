// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// サインイン結果のラベル値
const (
	SignInSuccess            = "success"
	SignInInvalidCredentials = "invalid_credentials"
	SignInError              = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー、店舗操作、ワーカーから利用する。
type MetricsCollector interface {
	RecordSignIn(result string)
	RecordSignOut()
	RecordAction(action, outcome string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordViewCache(hit bool)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signIn          *prometheus.CounterVec
	signOut         prometheus.Counter
	actions         *prometheus.CounterVec
	actionLatency   *prometheus.HistogramVec
	httpStatus      *prometheus.CounterVec
	viewCache       *prometheus.CounterVec
	sessionsCleaned prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "barberadmin_sign_in_total",
			Help: "結果別のサインイン試行数",
		}, []string{"result"}),
		signOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "barberadmin_sign_out_total",
			Help: "サインアウトの合計数",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "barberadmin_barbershop_actions_total",
			Help: "操作・結果別の店舗操作数",
		}, []string{"action", "outcome"}),
		actionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "barberadmin_barbershop_action_seconds",
			Help:    "店舗操作のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "barberadmin_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		viewCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "barberadmin_view_cache_requests_total",
			Help: "ビューキャッシュのヒット・ミス数",
		}, []string{"result"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "barberadmin_sessions_cleaned_total",
			Help: "削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.signIn,
		c.signOut,
		c.actions,
		c.actionLatency,
		c.httpStatus,
		c.viewCache,
		c.sessionsCleaned,
	)

	return c
}

// RecordSignIn はサインイン試行を結果別に記録する。
func (c *Collector) RecordSignIn(result string) {
	c.signIn.WithLabelValues(result).Inc()
}

// RecordSignOut はサインアウトを記録する。
func (c *Collector) RecordSignOut() {
	c.signOut.Inc()
}

// RecordAction は店舗操作の結果とレイテンシを記録する。
func (c *Collector) RecordAction(action, outcome string, duration time.Duration) {
	c.actions.WithLabelValues(action, outcome).Inc()
	c.actionLatency.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordViewCache はビューキャッシュの参照結果を記録する。
func (c *Collector) RecordViewCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.viewCache.WithLabelValues(result).Inc()
}

// RecordSessionsCleaned は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
