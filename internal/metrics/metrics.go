// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証操作の種類。
const (
	AuthActionRegister = "register"
	AuthActionLogin    = "login"
	AuthActionLogout   = "logout"
)

// 認証操作の結果。
const (
	AuthOutcomeSuccess   = "success"
	AuthOutcomeInvalid   = "invalid_input"
	AuthOutcomeDuplicate = "duplicate"
	AuthOutcomeRejected  = "rejected"
	AuthOutcomeError     = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordAuthAttempt(action, outcome string)
	RecordChatSuccess()
	RecordChatFailure(reason string)
	RecordUpstreamLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordRevocationsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authAttempts      *prometheus.CounterVec
	chatSuccess       prometheus.Counter
	chatFail          *prometheus.CounterVec
	upstreamLatency   prometheus.Histogram
	httpStatus        *prometheus.CounterVec
	revocationsPurged prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatproxy_auth_attempts_total",
			Help: "認証操作の結果別件数",
		}, []string{"action", "outcome"}),
		chatSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatproxy_chat_success_total",
			Help: "言語モデル呼び出し成功の合計数",
		}),
		chatFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatproxy_chat_fail_total",
			Help: "言語モデル呼び出し失敗の理由別件数",
		}, []string{"reason"}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatproxy_upstream_latency_seconds",
			Help:    "言語モデルAPIのレイテンシ（秒）",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatproxy_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		revocationsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatproxy_revocations_purged_total",
			Help: "期限切れにより削除された失効トークンの合計数",
		}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.chatSuccess,
		c.chatFail,
		c.upstreamLatency,
		c.httpStatus,
		c.revocationsPurged,
	)

	return c
}

// RecordAuthAttempt は認証操作の結果を記録する。
func (c *Collector) RecordAuthAttempt(action, outcome string) {
	c.authAttempts.WithLabelValues(action, outcome).Inc()
}

// RecordChatSuccess は言語モデル呼び出しの成功を記録する。
func (c *Collector) RecordChatSuccess() {
	c.chatSuccess.Inc()
}

// RecordChatFailure は言語モデル呼び出しの失敗を記録する。
func (c *Collector) RecordChatFailure(reason string) {
	c.chatFail.WithLabelValues(reason).Inc()
}

// RecordUpstreamLatency は言語モデルAPIのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(duration time.Duration) {
	c.upstreamLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRevocationsPurged は削除した失効トークン数を記録する。
func (c *Collector) RecordRevocationsPurged(count int64) {
	c.revocationsPurged.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordAuthAttempt(string, string) {}
func (Nop) RecordChatSuccess() {}
func (Nop) RecordChatFailure(string) {}
func (Nop) RecordUpstreamLatency(time.Duration) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordRevocationsPurged(int64) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
