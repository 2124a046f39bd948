package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/wellness/booking/internal/domain/booking"
)

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		session booking.Session
		roles   []booking.Role
		want    int
	}{
		{"matching role", booking.Session{UserID: "u1", Role: booking.RoleSpecialist}, []booking.Role{booking.RoleSpecialist}, http.StatusOK},
		{"admin passes", booking.Session{UserID: "a1", Role: booking.RoleAdmin}, []booking.Role{booking.RoleSpecialist}, http.StatusOK},
		{"wrong role", booking.Session{UserID: "u1", Role: booking.RoleClient}, []booking.Role{booking.RoleSpecialist}, http.StatusForbidden},
		{"guest", booking.GuestSession(), []booking.Role{booking.RoleClient}, http.StatusUnauthorized},
		{"admin without user", booking.Session{Role: booking.RoleAdmin}, []booking.Role{booking.RoleClient}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), SessionKey, tt.session))
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler := func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			}
			err := RequireRole(tt.roles...)(handler)(c)

			if tt.want == http.StatusOK {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected echo.HTTPError, got %T", err)
			}
			if httpErr.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, httpErr.Code)
			}
		})
	}
}

func TestRequireAuthenticated(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := RequireAuthenticated()(func(c echo.Context) error { return nil })(c)
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for guest, got %v", err)
	}
}
