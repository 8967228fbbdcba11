package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission outcomes recorded in SubmissionsTotal.
const (
	OutcomeOK             = "ok"
	OutcomeMissingField   = "missing_field"
	OutcomeCaptchaMissing = "captcha_missing"
	OutcomeCaptchaFailed  = "captcha_failed"
	OutcomeRelayError     = "relay_error"
	OutcomeError          = "error"
)

var (
	// Recorded by middleware for every routed request.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"handler", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method"},
	)

	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscribe_submissions_total",
			Help: "Form submissions by form and outcome",
		},
		[]string{"form", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(SubmissionsTotal)
}

// Handler serves the registered metrics under /metrics. It is meant for a
// private listener, not the public site mux.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
