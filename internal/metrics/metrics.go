package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_http_requests_total",
		Help: "Total number of HTTP requests by route and status code",
	}, []string{"route", "code"})
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "camwatch_http_request_duration_seconds",
		Help:    "Duration of HTTP request handling in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// Frame relay metrics
	FramesStoredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camwatch_frames_stored_total",
		Help: "Total number of frames written to the frame store",
	})
	FramesEvictedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camwatch_frames_evicted_total",
		Help: "Total number of expired frames swept from the frame store",
	})
	FrameReadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_frame_reads_total",
		Help: "Frame reads by result (hit or miss)",
	}, []string{"result"})
	FramesLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "camwatch_frames_live",
		Help: "Number of frames held by the store after the last write or sweep",
	})

	// Escalation metrics
	ClassificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_classifications_total",
		Help: "Classification events received by danger level",
	}, []string{"level"})
	EscalationOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_escalation_outcomes_total",
		Help: "Escalation pipeline outcomes (dispatched, throttled, not_escalating, failed)",
	}, []string{"outcome"})
	NotificationFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_notification_failures_total",
		Help: "Notifier failures by message kind",
	}, []string{"kind"})
	StatePersistFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camwatch_state_persist_failures_total",
		Help: "Alert state writes that failed to reach durable storage",
	})
	ConsecutiveDangerCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "camwatch_consecutive_danger_count",
		Help: "Current consecutive DANGER streak",
	})

	registerOnce sync.Once
)

func init() {
	InitMetrics()
}

// InitMetrics registers all Prometheus collectors used by the application.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			FramesStoredTotal,
			FramesEvictedTotal,
			FrameReadsTotal,
			FramesLive,
			ClassificationsTotal,
			EscalationOutcomesTotal,
			NotificationFailuresTotal,
			StatePersistFailuresTotal,
			ConsecutiveDangerCount,
		)
	})
}

// Handler returns an HTTP handler that exposes the registered Prometheus metrics.
func Handler() http.Handler {
	InitMetrics()
	return promhttp.Handler()
}

// HTTPMiddleware instruments HTTP handlers with request/latency metrics.
func HTTPMiddleware(routeResolver func(*http.Request) string) func(http.Handler) http.Handler {
	if routeResolver == nil {
		routeResolver = func(r *http.Request) string { return r.URL.Path }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(recorder, r)

			// resolved after ServeHTTP so routers can fill in the matched pattern
			route := routeResolver(r)
			HTTPRequestDurationSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
			HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		})
	}
}

// statusRecorder captures the response status code for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer so websocket upgrades keep working.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
