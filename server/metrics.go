package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// instrumentation wraps handlers with Prometheus request counters,
// duration histograms, and response-size histograms, curried per handler
// name, the same shape as the teacher's instrumentHandler closure in
// server.NewServer.
type instrumentation struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	size     *prometheus.HistogramVec
}

func newInstrumentation(reg prometheus.Registerer) *instrumentation {
	in := &instrumentation{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authagent_http_requests_total",
			Help: "Count of all HTTP requests.",
		}, []string{"code", "method", "handler"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authagent_request_duration_seconds",
			Help:    "A histogram of latencies for requests.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"code", "method", "handler"}),
		size: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authagent_response_size_bytes",
			Help:    "A histogram of response sizes for requests.",
			Buckets: []float64{200, 500, 900, 1500, 5000},
		}, []string{"code", "method", "handler"}),
	}
	if reg != nil {
		// A second Server in the same process (as in tests) reuses the
		// collectors the first one registered.
		if err := reg.Register(in.requests); err != nil {
			in.requests = err.(prometheus.AlreadyRegisteredError).ExistingCollector.(*prometheus.CounterVec)
		}
		if err := reg.Register(in.duration); err != nil {
			in.duration = err.(prometheus.AlreadyRegisteredError).ExistingCollector.(*prometheus.HistogramVec)
		}
		if err := reg.Register(in.size); err != nil {
			in.size = err.(prometheus.AlreadyRegisteredError).ExistingCollector.(*prometheus.HistogramVec)
		}
	}
	return in
}

func (in *instrumentation) wrap(handlerName string, h http.HandlerFunc) http.HandlerFunc {
	labels := prometheus.Labels{"handler": handlerName}
	return promhttp.InstrumentHandlerDuration(in.duration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(in.requests.MustCurryWith(labels),
			promhttp.InstrumentHandlerResponseSize(in.size.MustCurryWith(labels), h),
		),
	).ServeHTTP
}
