package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wellness/booking/internal/domain/booking"
)

func newTestMetrics() *Metrics {
	return New(Config{ServiceName: "test", Registry: prometheus.NewRegistry()})
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{errors.New("boom"), "other"},
		{&booking.ValidationError{}, "validation"},
		{&booking.SlotUnavailableError{}, "slot_unavailable"},
		{&booking.InvalidTransitionError{}, "invalid_transition"},
		{&booking.NetworkError{Op: "x"}, "network"},
	}
	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestMiddlewareCountsByRoute(t *testing.T) {
	m := newTestMetrics()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/appointments/:id", func(c echo.Context) error {
		if c.Param("id") == "missing" {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		return c.String(http.StatusOK, "ok")
	})

	for _, id := range []string{"a", "b", "missing"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/"+id, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
	}

	ok := testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/api/v1/appointments/:id", "200"))
	if ok != 2 {
		t.Errorf("expected 2 ok requests, got %v", ok)
	}
	notFound := testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/api/v1/appointments/:id", "404"))
	if notFound != 1 {
		t.Errorf("expected 1 not found request, got %v", notFound)
	}
	if testutil.ToFloat64(m.httpInFlight) != 0 {
		t.Errorf("expected no in-flight requests")
	}
}

func TestDomainCounters(t *testing.T) {
	m := newTestMetrics()

	m.ObserveRemote("createAppointment", http.StatusConflict, 20*time.Millisecond, &booking.SlotUnavailableError{})
	if v := testutil.ToFloat64(m.remoteCalls.WithLabelValues("createAppointment", "409", "slot_unavailable")); v != 1 {
		t.Errorf("expected one classified remote call, got %v", v)
	}

	m.CatalogLookup("services", true)
	m.CatalogLookup("services", false)
	if v := testutil.ToFloat64(m.catalogLookups.WithLabelValues("services", "hit")); v != 1 {
		t.Errorf("expected one hit, got %v", v)
	}

	m.StaleDropped("calendar")
	m.Submission("guest", nil)
	m.Submission("guest", &booking.NetworkError{Op: "createAppointment"})
	if v := testutil.ToFloat64(m.submissions.WithLabelValues("guest", "network")); v != 1 {
		t.Errorf("expected one network submission failure, got %v", v)
	}

	m.Transition(booking.RoleAdmin, booking.StatusConfirmed, true, nil)
	m.Transition(booking.RoleAdmin, booking.StatusConfirmed, true, errors.New("audit down"))
	if v := testutil.ToFloat64(m.overrides); v != 1 {
		t.Errorf("expected only the successful override to count, got %v", v)
	}

	m.InstanceOpened("wizard")
	m.InstanceOpened("wizard")
	m.InstanceClosed("wizard")
	if v := testutil.ToFloat64(m.instances.WithLabelValues("wizard")); v != 1 {
		t.Errorf("expected one live wizard, got %v", v)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := newTestMetrics()
	m.SlotsResolved("any", 25)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `slots_resolved_count{scope="any",service="test"} 1`) {
		t.Errorf("expected slots histogram in output, got:\n%s", rec.Body.String())
	}
}
