package transport

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records outbound platform traffic. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	mints    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil. Create one Metrics per process and share it between transports.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallet_agent",
			Name:      "platform_requests_total",
			Help:      "Signed requests sent to the wallet platform, by method and response code.",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wallet_agent",
			Name:      "platform_request_duration_seconds",
			Help:      "Latency of signed platform requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		mints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallet_agent",
			Name:      "tokens_minted_total",
			Help:      "Bearer tokens minted, by scheme and result.",
		}, []string{"scheme", "result"}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.mints)
	}
	return m
}

func (m *Metrics) observeRequest(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(method, code).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) observeMint(scheme Scheme, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.mints.WithLabelValues(string(scheme), result).Inc()
}
