// Package metrics provides Prometheus metrics for slike.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests by route and status code.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slike",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "code"},
	)

	// RequestDuration measures HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "slike",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// StageFailuresTotal counts pipeline failures by stage.
	StageFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slike",
			Name:      "stage_failures_total",
			Help:      "Total number of pipeline failures by stage",
		},
		[]string{"stage"},
	)

	// UpstreamDuration measures upstream fetch duration by outcome.
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "slike",
			Name:      "upstream_fetch_duration_seconds",
			Help:      "Duration of upstream image fetches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// CodecsReady is 1 once codec warm-up succeeded.
	CodecsReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "slike",
			Name:      "codecs_ready",
			Help:      "Codec initialization status (1 = ready, 0 = not ready)",
		},
	)
)

// RecordRequest records a finished HTTP request.
func RecordRequest(route string, code int, duration time.Duration) {
	RequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordStageFailure records a pipeline failure.
func RecordStageFailure(stage string) {
	StageFailuresTotal.WithLabelValues(stage).Inc()
}

// ObserveUpstream records an upstream fetch.
func ObserveUpstream(outcome string, duration time.Duration) {
	UpstreamDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// SetCodecsReady records the codec initialization status.
func SetCodecsReady(ready bool) {
	if ready {
		CodecsReady.Set(1)
		return
	}
	CodecsReady.Set(0)
}
