// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// APIクライアントと書評キャッシュから利用される。
type Collector struct {
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  prometheus.Histogram
	pageFetches      *prometheus.CounterVec
	cacheInvalidated prometheus.Counter
	staleDiscarded   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shohyo_upstream_requests_total",
			Help: "書評サービスAPI呼び出しの操作・ステータスコード別の合計数",
		}, []string{"operation", "status_code"}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shohyo_upstream_latency_seconds",
			Help:    "書評サービスAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		pageFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shohyo_page_fetches_total",
			Help: "書評一覧のページフェッチのエンドポイント別の合計数",
		}, []string{"endpoint"}),
		cacheInvalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shohyo_cache_invalidations_total",
			Help: "認証状態の変化によるページキャッシュ無効化の合計数",
		}),
		staleDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shohyo_stale_responses_discarded_total",
			Help: "キー変更後に完了し破棄されたフェッチ結果の合計数",
		}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamLatency,
		c.pageFetches,
		c.cacheInvalidated,
		c.staleDiscarded,
	)

	return c
}

// RecordUpstreamRequest は外部API呼び出しを記録する。
// statusCode 0 はレスポンスを受信できなかったことを表す。
func (c *Collector) RecordUpstreamRequest(operation string, statusCode int, duration time.Duration) {
	c.upstreamRequests.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
	c.upstreamLatency.Observe(duration.Seconds())
}

// RecordPageFetch は書評一覧のページフェッチを記録する。
func (c *Collector) RecordPageFetch(authenticated bool) {
	endpoint := "public"
	if authenticated {
		endpoint = "authenticated"
	}
	c.pageFetches.WithLabelValues(endpoint).Inc()
}

// RecordCacheInvalidation はページキャッシュの無効化を記録する。
func (c *Collector) RecordCacheInvalidation() {
	c.cacheInvalidated.Inc()
}

// RecordStaleDiscard は古いフェッチ結果の破棄を記録する。
func (c *Collector) RecordStaleDiscard() {
	c.staleDiscarded.Inc()
}

// Handler はメトリクス公開用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
