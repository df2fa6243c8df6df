// Package metrics exposes the engine's Prometheus collectors. Collectors
// are package-level and registered once so any package can record without
// plumbing a registry around.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campwatch_polls_total",
		Help: "Polling jobs executed, by outcome.",
	}, []string{"result"})

	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campwatch_upstream_requests_total",
		Help: "HTTP requests to recreation.gov, by endpoint and status code.",
	}, []string{"endpoint", "code"})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campwatch_notifications_total",
		Help: "Notification delivery attempts, by channel and outcome.",
	}, []string{"type", "status"})

	rateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campwatch_rate_limit_waits_total",
		Help: "Times a poll had to sleep for the API rate governor.",
	})

	pollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "campwatch_poll_duration_seconds",
		Help:    "Wall time of one campground poll, fetch through notify.",
		Buckets: prometheus.DefBuckets,
	})
)

// IncPoll records one finished polling job. result is "success", "error",
// or "skipped".
func IncPoll(result string) {
	pollsTotal.WithLabelValues(result).Inc()
}

// IncUpstreamRequest records one upstream HTTP request. code < 0 means the
// request never produced a response.
func IncUpstreamRequest(endpoint string, code int) {
	label := "error"
	if code >= 0 {
		label = strconv.Itoa(code)
	}
	upstreamRequestsTotal.WithLabelValues(endpoint, label).Inc()
}

// IncNotification records one delivery attempt, e.g. ("email", "sent").
func IncNotification(typ, status string) {
	notificationsTotal.WithLabelValues(typ, status).Inc()
}

// IncRateLimitWait records one governor-imposed sleep.
func IncRateLimitWait() {
	rateLimitWaits.Inc()
}

// ObservePollDuration records the wall time of one poll.
func ObservePollDuration(d time.Duration) {
	pollDuration.Observe(d.Seconds())
}

// Handler serves the default registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
