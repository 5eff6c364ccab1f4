// Package metrics 定义服务暴露的 Prometheus 指标。
//
// 指标在包级变量中创建，调用 InitMetrics 后注册到默认 Registry，
// 未注册时写入指标也是安全的（测试中常见）。
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal 按路由、方法与状态码统计请求数。
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trackmyteam_http_requests_total",
		Help: "Total HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	// HTTPRequestDuration 请求耗时分布。
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trackmyteam_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// AuthEventsTotal 注册/登录结果计数。
	AuthEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trackmyteam_auth_events_total",
		Help: "Registration and login outcomes.",
	}, []string{"event", "result"})

	// LoginThrottledTotal 被限流拒绝的登录请求数。
	LoginThrottledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trackmyteam_login_throttled_total",
		Help: "Login attempts rejected by the rate limiter.",
	})

	// ReminderSweepsTotal 按结果统计扫描次数: completed / skipped / failed。
	ReminderSweepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trackmyteam_reminder_sweeps_total",
		Help: "Reminder sweeps by outcome.",
	}, []string{"outcome"})

	// ReminderSweepDuration 单次扫描耗时。
	ReminderSweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "trackmyteam_reminder_sweep_duration_seconds",
		Help:    "Duration of a full reminder sweep.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	})

	// ReminderNotificationsTotal 按结果统计提醒: sent / failed / duplicate。
	ReminderNotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trackmyteam_reminder_notifications_total",
		Help: "Reminder notifications by result.",
	}, []string{"result"})

	// ReminderLastSweepTimestamp 最近一次完成扫描的 Unix 时间。
	ReminderLastSweepTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trackmyteam_reminder_last_sweep_timestamp_seconds",
		Help: "Unix time of the last completed reminder sweep.",
	})

	// ReminderWorkers 发送协程数量（配置值）。
	ReminderWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trackmyteam_reminder_workers",
		Help: "Configured number of concurrent reminder senders.",
	})
)

var registerOnce sync.Once

// InitMetrics 注册所有指标，重复调用只生效一次。
func InitMetrics(reminderWorkers int) {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AuthEventsTotal,
			LoginThrottledTotal,
			ReminderSweepsTotal,
			ReminderSweepDuration,
			ReminderNotificationsTotal,
			ReminderLastSweepTimestamp,
			ReminderWorkers,
		)
	})
	ReminderWorkers.Set(float64(reminderWorkers))
}
