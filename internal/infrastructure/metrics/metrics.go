package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_lineage_api_requests_total",
		Help: "Outbound pipeline API requests by operation and status code",
	}, []string{"operation", "code"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_lineage_api_request_duration_seconds",
		Help:    "Outbound pipeline API request latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
	}, []string{"operation"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_lineage_cache_lookups_total",
		Help: "Resolution cache lookups by cache and result",
	}, []string{"cache", "result"})

	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_lineage_resolutions_total",
		Help: "Pipeline dependency resolutions by result",
	}, []string{"result"})
)

type ResolutionCounter struct{}

func (ResolutionCounter) ObserveResolution(err error) {
	if err != nil {
		Resolutions.WithLabelValues("error").Inc()
		return
	}
	Resolutions.WithLabelValues("ok").Inc()
}

func Handler() http.Handler { return promhttp.Handler() }
