package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	apiRequestsTotal     *prometheus.CounterVec
	apiLatencySeconds    *prometheus.HistogramVec
	apiErrorsTotal       *prometheus.CounterVec
	eligibilityDecisions *prometheus.CounterVec
	gradingDispatchTotal *prometheus.CounterVec
	exerciseFetchSeconds *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors of the exercise API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		eligibilityDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eligibility_decisions_total",
			Help: "Submission eligibility decisions by outcome.",
		}, []string{"outcome"})

		gradingDispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_dispatch_total",
			Help: "Submissions dispatched to graders by exercise kind and result.",
		}, []string{"kind", "result"})

		exerciseFetchSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exercise_fetch_seconds",
			Help:    "Time spent loading exercise pages from exercise services.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			eligibilityDecisions,
			gradingDispatchTotal,
			exerciseFetchSeconds,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// EligibilityDecisions counts allowed, staff-override and denied evaluations.
func EligibilityDecisions() *prometheus.CounterVec {
	RegisterMetrics()
	return eligibilityDecisions
}

// GradingDispatches counts grading round-trips.
func GradingDispatches() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingDispatchTotal
}

// ExerciseFetchDuration observes exercise page loads.
func ExerciseFetchDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return exerciseFetchSeconds
}
