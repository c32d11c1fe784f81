package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Exchange outcomes recorded by the worker loop.
const (
	OutcomeReplied    = "replied"
	OutcomeNoReply    = "no_reply"
	OutcomeFailed     = "transform_failed"
	OutcomeSendFailed = "send_failed"
	OutcomeBadFrame   = "bad_frame"
	OutcomeSkipped    = "skipped"
)

var (
	registerOnce sync.Once

	exchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "postproc",
			Subsystem: "worker",
			Name:      "exchanges_total",
			Help:      "Accepted connections by outcome.",
		},
		[]string{"worker", "outcome"},
	)
	exchangeBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "postproc",
			Subsystem: "worker",
			Name:      "bytes_total",
			Help:      "Payload bytes received and sent.",
		},
		[]string{"worker", "direction"},
	)
	handleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "postproc",
			Subsystem: "worker",
			Name:      "handle_duration_seconds",
			Help:      "Time from message receipt to connection close.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"worker"},
	)
	listenerTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "postproc",
			Subsystem: "listener",
			Name:      "timeouts_total",
			Help:      "Accept waits that ended without a connection.",
		},
		[]string{"worker"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "postproc",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total diagnostics HTTP requests.",
		},
		[]string{"worker", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "postproc",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Diagnostics HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"worker", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(exchanges, exchangeBytes, handleDuration, listenerTimeouts, httpRequests, httpDuration)
	})
}

func RecordExchange(worker, outcome string, bytesIn, bytesOut int, duration time.Duration) {
	RegisterMetrics()
	exchanges.WithLabelValues(worker, outcome).Inc()
	if bytesIn > 0 {
		exchangeBytes.WithLabelValues(worker, "in").Add(float64(bytesIn))
	}
	if bytesOut > 0 {
		exchangeBytes.WithLabelValues(worker, "out").Add(float64(bytesOut))
	}
	if duration > 0 {
		handleDuration.WithLabelValues(worker).Observe(duration.Seconds())
	}
}

func RecordListenerTimeout(worker string) {
	RegisterMetrics()
	listenerTimeouts.WithLabelValues(worker).Inc()
}

func RecordHTTPRequest(worker, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(worker, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(worker, method, path, statusLabel).Observe(duration.Seconds())
}
