package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 请求分发指标
	DispatchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surveydesk_dispatch_requests_total",
			Help: "Total number of dispatched API requests by outcome",
		},
		[]string{"method", "outcome"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "surveydesk_dispatch_duration_seconds",
			Help:    "Dispatched API request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "outcome"},
	)

	// 并发请求数
	DispatchInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "surveydesk_dispatch_inflight",
			Help: "Number of dispatched API requests currently in flight",
		},
	)

	DispatchCanceledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surveydesk_dispatch_canceled_total",
			Help: "Total number of dispatched requests canceled, by reason",
		},
		[]string{"reason"},
	)

	// 会话引导
	BootstrapAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surveydesk_bootstrap_attempts_total",
			Help: "Total number of visitor session bootstrap attempts by result",
		},
		[]string{"result"},
	)

	// 凭证写入
	CredentialWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surveydesk_credential_writes_total",
			Help: "Total number of credential slot writes",
		},
		[]string{"slot", "op"},
	)

	// 开发服务器
	DevServerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surveydesk_devserver_requests_total",
			Help: "Total number of requests served by the development server",
		},
		[]string{"method", "path", "status_class"},
	)
)

// StatusClass buckets an HTTP status code, e.g. 404 -> "4xx".
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "other"
	}
}
