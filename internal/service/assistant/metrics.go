package assistant

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricExchanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ga_webserver",
		Name:      "exchanges_total",
		Help:      "Assistant exchanges by upstream status code.",
	}, []string{"code"})
	metricExchangeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ga_webserver",
		Name:      "exchange_duration_seconds",
		Help:      "Wall time of one assistant exchange.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})
	metricConversationStateBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ga_webserver",
		Name:      "conversation_state_bytes",
		Help:      "Size of the stored continuation token.",
	})
)

func observeExchange(err error, elapsed time.Duration, stateLen int) {
	metricExchanges.WithLabelValues(CodeOf(err).String()).Inc()
	metricExchangeDuration.Observe(elapsed.Seconds())
	metricConversationStateBytes.Set(float64(stateLen))
}
