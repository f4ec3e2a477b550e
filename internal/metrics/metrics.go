package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// OptimizeRuns counts optimization runs by outcome (solved, infeasible, error)
	OptimizeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimize_runs_total", Help: "Optimization runs by outcome."},
		[]string{"status"},
	)
	// OptimizeDuration tracks end-to-end run time including the travel matrix
	OptimizeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "optimize_duration_seconds", Help: "Optimization run duration in seconds.", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}},
		[]string{"status"},
	)
	// SolverIterations counts improvement iterations by stop reason
	SolverIterations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solver_iterations_total", Help: "Local search iterations by stop reason."},
		[]string{"stop_reason"},
	)
	// UnassignableStops counts routable stops left out, by reason
	UnassignableStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "unassignable_stops_total", Help: "Routable stops that could not be scheduled."},
		[]string{"reason"},
	)
	// MatrixRequests counts travel matrix lookups by provider and outcome
	MatrixRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "travel_matrix_requests_total", Help: "Travel matrix requests by provider and outcome."},
		[]string{"provider", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(OptimizeRuns)
		Registry.MustRegister(OptimizeDuration)
		Registry.MustRegister(SolverIterations)
		Registry.MustRegister(UnassignableStops)
		Registry.MustRegister(MatrixRequests)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
