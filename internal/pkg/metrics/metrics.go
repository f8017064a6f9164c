package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 予約申込みの総数（outcome: reserved, waitlisted, slot_confirmed, busy, error）
	BookingAttemptsTotal *prometheus.CounterVec

	// ウェイトリスト繰り上げの総数
	WaitlistPromotionsTotal prometheus.Counter

	// 自動失効スイープの処理件数（kind: expired, promoted, cancelled_waitlist）
	SweepItemsTotal *prometheus.CounterVec

	// スイープ1回あたりの実行時間
	SweepDuration prometheus.Histogram

	// リコンサイラーの処理件数（kind: repaired, flagged）
	ReconcileItemsTotal *prometheus.CounterVec

	// 分散ロックの操作時間（operation: acquire/release, status: success/failed）
	DistributedLockDuration *prometheus.HistogramVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		BookingAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_attempts_total",
				Help: "Total number of booking attempts by outcome",
			},
			[]string{"outcome"},
		),
		WaitlistPromotionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "waitlist_promotions_total",
				Help: "Total number of waitlist entries promoted to reservations",
			},
		),
		SweepItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expiration_sweep_items_total",
				Help: "Total number of items processed by the expiration sweep",
			},
			[]string{"kind"},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "expiration_sweep_duration_seconds",
				Help:    "Duration of a single expiration sweep pass",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30},
			},
		),
		ReconcileItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciliation_items_total",
				Help: "Total number of items repaired or flagged by the reconciler",
			},
			[]string{"kind"},
		),
		DistributedLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distributed_lock_duration_seconds",
				Help:    "Time spent on distributed lock operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.BookingAttemptsTotal,
		m.WaitlistPromotionsTotal,
		m.SweepItemsTotal,
		m.SweepDuration,
		m.ReconcileItemsTotal,
		m.DistributedLockDuration,
	)

	return m
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
