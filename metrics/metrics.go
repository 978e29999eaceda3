package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusdesk_http_requests_total",
		Help: "HTTP requests by method and status code.",
	}, []string{"method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campusdesk_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	PushDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusdesk_push_deliveries_total",
		Help: "Push notification deliveries by target type and result.",
	}, []string{"target_type", "result"})

	UploadJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusdesk_upload_jobs_total",
		Help: "Finished upload jobs by status.",
	}, []string{"status"})
)

// RecordDelivery adds the success and failure counts of one fan-out.
func RecordDelivery(targetType string, success, failure int) {
	if success > 0 {
		PushDeliveries.WithLabelValues(targetType, "success").Add(float64(success))
	}
	if failure > 0 {
		PushDeliveries.WithLabelValues(targetType, "failure").Add(float64(failure))
	}
}
