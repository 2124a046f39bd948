package portal

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/wellness/booking/internal/domain/booking"
	"github.com/wellness/booking/internal/domain/calendar"
	"github.com/wellness/booking/internal/domain/wizard"
	"github.com/wellness/booking/internal/platform/auth"
	"github.com/wellness/booking/internal/platform/bookingapi"
	"github.com/wellness/booking/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the portal API. submit wraps the booking
// submission route, typically with a rate limiter.
func (h *Handler) RegisterRoutes(api *echo.Group, submit ...echo.MiddlewareFunc) {
	// Catalog and availability – everyone, guests included
	api.GET("/services", h.ListServices)
	api.GET("/services/:id/specialists", h.ListSpecialists)
	api.GET("/slots", h.GetSlots)

	// Calendar instances
	api.POST("/calendars", h.OpenCalendar)
	api.GET("/calendars/:id", h.GetCalendar)
	api.DELETE("/calendars/:id", h.CloseCalendar)
	api.POST("/calendars/:id/navigate", h.NavigateCalendar)
	api.PUT("/calendars/:id/view", h.SetCalendarView)
	api.PUT("/calendars/:id/filters", h.SetCalendarFilters)
	api.POST("/calendars/:id/refresh", h.RefreshCalendar)
	api.POST("/calendars/:id/select-slot", h.SelectCalendarSlot)
	api.POST("/calendars/:id/select-appointment", h.SelectCalendarAppointment)

	// Wizard instances
	api.POST("/wizards", h.OpenWizard)
	api.GET("/wizards/:id", h.GetWizard)
	api.DELETE("/wizards/:id", h.CloseWizard)
	api.POST("/wizards/:id/session", h.GetWizard)
	api.DELETE("/wizards/:id/session", h.SignOutWizard)
	api.PUT("/wizards/:id/selection", h.SelectWizard)
	api.POST("/wizards/:id/refresh", h.RefreshWizardSlots)
	api.PUT("/wizards/:id/start", h.SelectWizardStart)
	api.PUT("/wizards/:id/contact", h.SetWizardContact)
	api.PUT("/wizards/:id/notes", h.SetWizardNotes)
	api.PUT("/wizards/:id/admin-fields", h.SetWizardAdminFields, auth.RequireRole(booking.RoleAdmin))
	api.POST("/wizards/:id/advance", h.AdvanceWizard)
	api.POST("/wizards/:id/back", h.BackWizard)
	api.POST("/wizards/:id/submit", h.SubmitWizard, submit...)

	// Appointments – signed-in users, scoped by role
	signedIn := auth.RequireAuthenticated()
	api.GET("/appointments", h.ListAppointments, signedIn)
	api.GET("/appointments/:id", h.GetAppointment, signedIn)
	api.PUT("/appointments/:id/status", h.ChangeStatus, signedIn)

	// Override audit – admin only
	admin := auth.RequireRole(booking.RoleAdmin)
	api.GET("/overrides", h.ListOverrides, admin)
	api.GET("/appointments/:id/overrides", h.ListAppointmentOverrides, admin)
}

func caller(c echo.Context) Caller {
	ctx := c.Request().Context()
	return Caller{Session: auth.SessionFromContext(ctx), Token: auth.TokenFromContext(ctx)}
}

// requestCtx forwards the caller's bearer token to the booking authority.
func requestCtx(c echo.Context) context.Context {
	ctx := c.Request().Context()
	return bookingapi.WithToken(ctx, auth.TokenFromContext(ctx))
}

// httpError maps the booking error taxonomy onto HTTP status codes.
func httpError(err error) *echo.HTTPError {
	var ve *booking.ValidationError
	var remote *bookingapi.HTTPError
	switch {
	case errors.As(err, &ve):
		body := map[string]interface{}{"message": ve.Error(), "kind": booking.ErrValidation.Error()}
		if len(ve.Fields) > 0 {
			body["fields"] = ve.Fields
		}
		return echo.NewHTTPError(http.StatusUnprocessableEntity, body).SetInternal(err)
	case errors.Is(err, booking.ErrSlotUnavailable):
		return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
			"message": err.Error(), "kind": booking.ErrSlotUnavailable.Error(),
		}).SetInternal(err)
	case errors.Is(err, booking.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
			"message": err.Error(), "kind": booking.ErrInvalidTransition.Error(),
		}).SetInternal(err)
	case errors.Is(err, booking.ErrNetwork):
		return echo.NewHTTPError(http.StatusBadGateway, map[string]interface{}{
			"message": "booking service unavailable, please retry", "kind": booking.ErrNetwork.Error(),
		}).SetInternal(err)
	case errors.Is(err, errNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found").SetInternal(err)
	case errors.Is(err, bookingapi.ErrUnknownService):
		return echo.NewHTTPError(http.StatusNotFound, "unknown service").SetInternal(err)
	case errors.Is(err, calendar.ErrClosed), errors.Is(err, wizard.ErrClosed):
		return echo.NewHTTPError(http.StatusGone, "instance closed").SetInternal(err)
	case errors.Is(err, calendar.ErrStale), errors.Is(err, wizard.ErrStale):
		return echo.NewHTTPError(http.StatusConflict, "superseded by a newer request").SetInternal(err)
	case errors.As(err, &remote):
		switch remote.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return echo.NewHTTPError(remote.StatusCode, http.StatusText(remote.StatusCode)).SetInternal(err)
		}
		return echo.NewHTTPError(http.StatusBadGateway, "unexpected booking service response").SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
}

func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

// -- Catalog Handlers --

func (h *Handler) ListServices(c echo.Context) error {
	items, err := h.svc.Services(requestCtx(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListSpecialists(c echo.Context) error {
	items, err := h.svc.Specialists(requestCtx(c), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetSlots(c echo.Context) error {
	duration := 0
	if v := c.QueryParam("duration_minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid duration_minutes")
		}
		duration = n
	}
	resp, err := h.svc.Slots(requestCtx(c),
		c.QueryParam("service_id"), c.QueryParam("specialist_id"),
		c.QueryParam("date_from"), c.QueryParam("date_to"), duration)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// -- Calendar Handlers --

func (h *Handler) OpenCalendar(c echo.Context) error {
	var req CalendarRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	resp, err := h.svc.OpenCalendar(requestCtx(c), caller(c), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) GetCalendar(c echo.Context) error {
	resp, err := h.svc.Calendar(c.Param("id"), caller(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) CloseCalendar(c echo.Context) error {
	if err := h.svc.CloseCalendar(c.Param("id"), caller(c)); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) NavigateCalendar(c echo.Context) error {
	var req NavigateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	resp, err := h.svc.NavigateCalendar(requestCtx(c), c.Param("id"), caller(c), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) SetCalendarView(c echo.Context) error {
	var req ViewRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	resp, err := h.svc.SetCalendarView(requestCtx(c), c.Param("id"), caller(c), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) SetCalendarFilters(c echo.Context) error {
	var req FiltersRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	resp, err := h.svc.SetCalendarFilters(requestCtx(c), c.Param("id"), caller(c), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) RefreshCalendar(c echo.Context) error {
	resp, err := h.svc.RefreshCalendar(requestCtx(c), c.Param("id"), caller(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) SelectCalendarSlot(c echo.Context) error {
	var req SelectSlotRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Start.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "start is required")
	}
	sel, ok, err := h.svc.SelectCalendarSlot(c.Param("id"), caller(c), req.Start)
	if err != nil {
		return httpError(err)
	}
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, sel)
}

func (h *Handler) SelectCalendarAppointment(c echo.Context) error {
	var req SelectAppointmentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	v, err := h.svc.SelectCalendarAppointment(c.Param("id"), caller(c), req.AppointmentID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

// -- Wizard Handlers --

// wizardJSON answers 422 when a step action reported field problems.
func wizardJSON(c echo.Context, resp *WizardResponse) error {
	if len(resp.Errors) > 0 {
		return c.JSON(http.StatusUnprocessableEntity, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) OpenWizard(c echo.Context) error {
	var req WizardRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	resp, err := h.svc.OpenWizard(requestCtx(c), caller(c), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) GetWizard(c echo.Context) error {
	resp, err := h.svc.Wizard(c.Param("id"), caller(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) SignOutWizard(c echo.Context) error {
	resp, err := h.svc.SignOutWizard(c.Param("id"), caller(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) CloseWizard(c echo.Context) error {
	if err := h.svc.CloseWizard(c.Param("id"), caller(c)); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SelectWizard(c echo.Context) error {
	var req SelectionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	resp, err := h.svc.SelectWizard(requestCtx(c), c.Param("id"), caller(c), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) RefreshWizardSlots(c echo.Context) error {
	resp, err := h.svc.RefreshWizardSlots(requestCtx(c), c.Param("id"), caller(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) SelectWizardStart(c echo.Context) error {
	var req StartRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	resp, err := h.svc.SelectWizardStart(c.Param("id"), caller(c), req.StartAt)
	if err != nil {
		return httpError(err)
	}
	return wizardJSON(c, resp)
}

func (h *Handler) SetWizardContact(c echo.Context) error {
	var req booking.Contact
	if err := bind(c, &req); err != nil {
		return err
	}
	resp, err := h.svc.SetWizardContact(c.Param("id"), caller(c), req)
	if err != nil {
		return httpError(err)
	}
	return wizardJSON(c, resp)
}

func (h *Handler) SetWizardNotes(c echo.Context) error {
	var req NotesRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	resp, err := h.svc.SetWizardNotes(c.Param("id"), caller(c), req.Notes)
	if err != nil {
		return httpError(err)
	}
	return wizardJSON(c, resp)
}

func (h *Handler) SetWizardAdminFields(c echo.Context) error {
	var req AdminFieldsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	resp, err := h.svc.SetWizardAdminFields(c.Param("id"), caller(c), req)
	if err != nil {
		return httpError(err)
	}
	return wizardJSON(c, resp)
}

func (h *Handler) AdvanceWizard(c echo.Context) error {
	resp, err := h.svc.AdvanceWizard(c.Param("id"), caller(c))
	if err != nil {
		return httpError(err)
	}
	return wizardJSON(c, resp)
}

func (h *Handler) BackWizard(c echo.Context) error {
	resp, err := h.svc.BackWizard(c.Param("id"), caller(c))
	if err != nil {
		return httpError(err)
	}
	return wizardJSON(c, resp)
}

// SubmitWizard answers with the wizard state on both success and failure
// so the UI can show the step it landed on.
func (h *Handler) SubmitWizard(c echo.Context) error {
	resp, err := h.svc.SubmitWizard(requestCtx(c), c.Param("id"), caller(c))
	if err != nil {
		if resp == nil {
			return httpError(err)
		}
		he := httpError(err)
		body := map[string]interface{}{"message": err.Error(), "wizard": resp}
		if m, ok := he.Message.(map[string]interface{}); ok {
			body["kind"] = m["kind"]
		}
		return c.JSON(he.Code, body)
	}
	return c.JSON(http.StatusCreated, resp)
}

// -- Appointment Handlers --

func parseFilter(c echo.Context) (booking.AppointmentFilter, error) {
	f := booking.AppointmentFilter{
		SpecialistID: c.QueryParam("specialist_id"),
		UserID:       c.QueryParam("user_id"),
		Status:       booking.AppointmentStatus(c.QueryParam("status")),
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"start_from", &f.From}, {"start_to", &f.To}} {
		v := c.QueryParam(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid "+p.name+", expected RFC 3339")
		}
		*p.dst = t
	}
	return f, nil
}

func (h *Handler) ListAppointments(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(requestCtx(c), caller(c).Session, f, pg)
	if err != nil {
		return httpError(err)
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset)
	resp.Links = pg.Links(c.Request().URL.Path, c.QueryParams(), total)
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	v, err := h.svc.GetAppointment(requestCtx(c), caller(c).Session, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ChangeStatus(c echo.Context) error {
	var req StatusChangeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	v, err := h.svc.ChangeStatus(requestCtx(c), caller(c).Session, c.Param("id"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

// -- Override Audit Handlers --

func (h *Handler) ListOverrides(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Overrides(c.Request().Context(), c.QueryParam("appointment_id"), pg)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListAppointmentOverrides(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Overrides(c.Request().Context(), c.Param("id"), pg)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
