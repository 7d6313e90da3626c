package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector 指标收集器
type MetricsCollector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 支付指标
	attemptsTotal   *prometheus.CounterVec
	settledTotal    *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec

	// 插件与轮询
	hookDuration  *prometheus.HistogramVec
	hookErrors    *prometheus.CounterVec
	pollRounds    *prometheus.CounterVec
	activeSession prometheus.Gauge

	// 流水写入
	journalWrites *prometheus.CounterVec
	journalQueue  prometheus.Gauge
}

// NewMetricsCollector 在 reg 上注册指标，reg 为 nil 时使用默认注册表
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &MetricsCollector{
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "endpoint"},
		),

		attemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashier_payment_attempts_total",
				Help: "Total number of payment attempts",
			},
			[]string{"strategy"},
		),
		settledTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashier_payment_settled_total",
				Help: "Total number of settled payment results by status",
			},
			[]string{"strategy", "status"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashier_payment_errors_total",
				Help: "Total number of failed payment attempts by error code",
			},
			[]string{"strategy", "code"},
		),
		attemptDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cashier_payment_attempt_duration_seconds",
				Help:    "Payment attempt duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"strategy"},
		),

		hookDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cashier_plugin_hook_duration_seconds",
				Help:    "Plugin hook duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"plugin", "hook"},
		),
		hookErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashier_plugin_hook_errors_total",
				Help: "Total number of plugin hook failures",
			},
			[]string{"plugin", "hook"},
		),
		pollRounds: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashier_polling_rounds_total",
				Help: "Total number of status polling rounds by outcome",
			},
			[]string{"outcome"},
		),
		activeSession: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "cashier_active_sessions",
				Help: "Number of live payment sessions",
			},
		),

		journalWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashier_journal_writes_total",
				Help: "Total number of payment journal writes",
			},
			[]string{"status"},
		),
		journalQueue: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "cashier_journal_queue_depth",
				Help: "Number of journal entries waiting to be written",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, status string, duration time.Duration, responseSize int) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.httpResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

func (m *MetricsCollector) AttemptStarted(strategy string) {
	m.attemptsTotal.WithLabelValues(strategy).Inc()
}

func (m *MetricsCollector) Settled(strategy, status string) {
	m.settledTotal.WithLabelValues(strategy, status).Inc()
}

func (m *MetricsCollector) Failed(strategy, code string) {
	m.errorsTotal.WithLabelValues(strategy, code).Inc()
}

func (m *MetricsCollector) AttemptFinished(strategy string, elapsed time.Duration) {
	m.attemptDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// ObserveHook 记录插件钩子耗时，err 非空时计入失败
func (m *MetricsCollector) ObserveHook(plugin, hook string, elapsed time.Duration, err error) {
	m.hookDuration.WithLabelValues(plugin, hook).Observe(elapsed.Seconds())
	if err != nil {
		m.hookErrors.WithLabelValues(plugin, hook).Inc()
	}
}

// ObservePoll 记录一轮查单结果
func (m *MetricsCollector) ObservePoll(outcome string) {
	m.pollRounds.WithLabelValues(outcome).Inc()
}

// SetActiveSessions 更新会话数量
func (m *MetricsCollector) SetActiveSessions(n int) {
	m.activeSession.Set(float64(n))
}

// RecordJournalWrite 记录流水写入结果
func (m *MetricsCollector) RecordJournalWrite(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.journalWrites.WithLabelValues(status).Inc()
}

// SetJournalQueueDepth 更新待写入流水数量
func (m *MetricsCollector) SetJournalQueueDepth(n int) {
	m.journalQueue.Set(float64(n))
}

// StatusCategory 获取状态分类
func StatusCategory(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

var (
	globalCollector *MetricsCollector
	globalOnce      sync.Once
)

// GetGlobalCollector 获取注册在默认注册表上的全局指标收集器
func GetGlobalCollector() *MetricsCollector {
	globalOnce.Do(func() {
		globalCollector = NewMetricsCollector(prometheus.DefaultRegisterer)
	})
	return globalCollector
}
