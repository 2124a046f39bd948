// Package telemetry exposes Prometheus metrics for the booking portal: HTTP
// traffic, calls to the booking authority, slot resolution, wizard
// submissions and status transitions.
package telemetry

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wellness/booking/internal/domain/booking"
)

// Config names the service in metric labels.
type Config struct {
	ServiceName string
	// Registry defaults to a fresh registry with Go and process collectors.
	Registry *prometheus.Registry
}

// Metrics owns every collector the portal reports.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge

	remoteCalls    *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec

	catalogLookups *prometheus.CounterVec
	slotsResolved  *prometheus.HistogramVec
	staleDropped   *prometheus.CounterVec
	submissions    *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	overrides      prometheus.Counter
	framesDropped  *prometheus.CounterVec
	instances      *prometheus.GaugeVec
}

// New creates and registers the collectors.
func New(cfg Config) *Metrics {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "booking-portal"
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	constLabels := prometheus.Labels{"service": cfg.ServiceName}

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "Duration of HTTP requests in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests being served",
			ConstLabels: constLabels,
		}),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "booking_api_calls_total",
			Help:        "Calls to the booking authority by operation and outcome",
			ConstLabels: constLabels,
		}, []string{"op", "status_code", "kind"}),
		remoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "booking_api_call_duration_seconds",
			Help:        "Duration of calls to the booking authority in seconds",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			ConstLabels: constLabels,
		}, []string{"op"}),
		catalogLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "catalog_cache_lookups_total",
			Help:        "Service catalog cache lookups",
			ConstLabels: constLabels,
		}, []string{"kind", "result"}),
		slotsResolved: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "slots_resolved",
			Help:        "Number of bookable slots returned per resolution",
			Buckets:     []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
			ConstLabels: constLabels,
		}, []string{"scope"}),
		staleDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stale_responses_dropped_total",
			Help:        "Fetch results discarded because a newer request superseded them",
			ConstLabels: constLabels,
		}, []string{"component"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "wizard_submissions_total",
			Help:        "Booking wizard submissions by outcome",
			ConstLabels: constLabels,
		}, []string{"mode", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "appointment_transitions_total",
			Help:        "Appointment status transitions by role and outcome",
			ConstLabels: constLabels,
		}, []string{"role", "to", "outcome"}),
		overrides: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "appointment_status_overrides_total",
			Help:        "Admin transitions out of a terminal status",
			ConstLabels: constLabels,
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "websocket_frames_dropped_total",
			Help:        "Signal frames dropped for slow WebSocket clients",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		instances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "portal_instances",
			Help:        "Live calendar and wizard instances",
			ConstLabels: constLabels,
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.httpRequests, m.httpDuration, m.httpInFlight,
		m.remoteCalls, m.remoteDuration,
		m.catalogLookups, m.slotsResolved, m.staleDropped,
		m.submissions, m.transitions, m.overrides,
		m.framesDropped, m.instances,
	)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts, latency and in-flight requests. The
// route pattern is used as label so IDs do not explode cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.httpInFlight.Inc()
			defer m.httpInFlight.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// ErrorKind returns a short label for err's place in the booking error
// taxonomy.
func ErrorKind(err error) string {
	switch booking.Kind(err) {
	case nil:
		if err == nil {
			return "none"
		}
		return "other"
	case booking.ErrValidation:
		return "validation"
	case booking.ErrSlotUnavailable:
		return "slot_unavailable"
	case booking.ErrInvalidTransition:
		return "invalid_transition"
	case booking.ErrNetwork:
		return "network"
	}
	return "other"
}

// ObserveRemote records one call to the booking authority.
func (m *Metrics) ObserveRemote(op string, status int, elapsed time.Duration, err error) {
	m.remoteCalls.WithLabelValues(op, strconv.Itoa(status), ErrorKind(err)).Inc()
	m.remoteDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// CatalogLookup records a catalog cache hit or miss.
func (m *Metrics) CatalogLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.catalogLookups.WithLabelValues(kind, result).Inc()
}

// SlotsResolved records the size of one resolved slot set. scope is
// "specialist" for a pinned query and "any" for a union.
func (m *Metrics) SlotsResolved(scope string, n int) {
	m.slotsResolved.WithLabelValues(scope).Observe(float64(n))
}

// StaleDropped records a superseded fetch result.
func (m *Metrics) StaleDropped(component string) {
	m.staleDropped.WithLabelValues(component).Inc()
}

// Submission records a wizard submission outcome.
func (m *Metrics) Submission(mode string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = ErrorKind(err)
	}
	m.submissions.WithLabelValues(mode, outcome).Inc()
}

// Transition records a status change attempt.
func (m *Metrics) Transition(role booking.Role, to booking.AppointmentStatus, override bool, err error) {
	outcome := "ok"
	if err != nil {
		outcome = ErrorKind(err)
	}
	m.transitions.WithLabelValues(string(role), string(to), outcome).Inc()
	if override && err == nil {
		m.overrides.Inc()
	}
}

// FrameDropped records a WebSocket frame lost to a slow client.
func (m *Metrics) FrameDropped(kind string) {
	m.framesDropped.WithLabelValues(kind).Inc()
}

// InstanceOpened and InstanceClosed track live component instances.
func (m *Metrics) InstanceOpened(kind string) { m.instances.WithLabelValues(kind).Inc() }

func (m *Metrics) InstanceClosed(kind string) { m.instances.WithLabelValues(kind).Dec() }
