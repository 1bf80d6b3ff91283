package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	schemaBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_schema_builds_total",
			Help: "Schema build attempts by outcome.",
		},
		[]string{"outcome"},
	)

	requestValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_request_validations_total",
			Help: "Request validation outcomes, labelled ok or by error kind.",
		},
		[]string{"outcome"},
	)

	closureCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_closure_cache_total",
			Help: "Role closure cache lookups by result.",
		},
		[]string{"result"},
	)

	closureSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "authz_role_closure_size",
		Help:    "Number of roles in computed membership closures.",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
	})
)

var initOnce sync.Once

// Init registers the library metrics with the default prometheus registry.
// The embedding process decides how (or whether) to expose them.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			schemaBuildsTotal,
			requestValidationsTotal,
			closureCacheTotal,
			closureSize,
		)
	})
}

// SchemaBuild records a schema build attempt.
func SchemaBuild(outcome string) {
	schemaBuildsTotal.WithLabelValues(outcome).Inc()
}

// RequestValidation records a request validation outcome ("ok" or an error kind).
func RequestValidation(outcome string) {
	requestValidationsTotal.WithLabelValues(outcome).Inc()
}

// ClosureCache records a closure cache lookup ("hit" or "miss").
func ClosureCache(result string) {
	closureCacheTotal.WithLabelValues(result).Inc()
}

// ClosureSize records the size of a computed role closure.
func ClosureSize(n int) {
	closureSize.Observe(float64(n))
}
