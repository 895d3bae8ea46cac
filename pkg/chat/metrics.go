package chat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 失败原因
const (
	ReasonPanic   = "panic"
	ReasonTimeout = "timeout"
)

// Metrics 分发指标，按订阅者打标签
type Metrics struct {
	invocations *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	dropped     prometheus.Counter
}

// NewMetrics 创建分发指标，reg 为 nil 时不注册
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "norbert_chat_handler_invocations_total",
				Help: "Total number of message handler invocations",
			},
			[]string{"subscriber"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "norbert_chat_handler_failures_total",
				Help: "Total number of message handler invocations that panicked or timed out",
			},
			[]string{"subscriber", "reason"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "norbert_chat_handler_duration_seconds",
				Help:    "Message handler duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"subscriber"},
		),
		dropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "norbert_chat_messages_dropped_total",
				Help: "Total number of messages published after the hub was closed",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.invocations, m.failures, m.duration, m.dropped)
	}
	return m
}

func (m *Metrics) observe(subscriber string, d time.Duration) {
	m.invocations.WithLabelValues(subscriber).Inc()
	m.duration.WithLabelValues(subscriber).Observe(d.Seconds())
}

func (m *Metrics) fail(subscriber, reason string) {
	m.failures.WithLabelValues(subscriber, reason).Inc()
}
