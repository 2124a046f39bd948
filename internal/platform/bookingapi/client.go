// Package bookingapi is the HTTP client for the remote booking authority.
// Every failure it returns is classified into the booking error taxonomy.
package bookingapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wellness/booking/internal/domain/booking"
)

const (
	dateLayout   = "2006-01-02"
	maxErrorBody = 4 << 10
)

type tokenKey struct{}

// WithToken attaches the caller's bearer token to ctx so it is forwarded to
// the authority.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}

// Observer is told about every finished call. It may be nil.
type Observer func(op string, status int, elapsed time.Duration, err error)

// Client talks to the booking authority over JSON/HTTP.
type Client struct {
	baseURL  string
	http     *http.Client
	logger   zerolog.Logger
	observer Observer
}

// NewClient creates a client for baseURL. A zero timeout means 10 seconds.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SetObserver installs a call observer, typically for metrics.
func (c *Client) SetObserver(o Observer) { c.observer = o }

// ResolveBusyIntervals returns the spans during which specialists are
// booked. Both a flat interval list and an object keyed by specialist ID
// are accepted.
func (c *Client) ResolveBusyIntervals(ctx context.Context, q booking.BusyQuery) ([]booking.Interval, error) {
	params := url.Values{}
	setIf(params, "service_id", q.ServiceID)
	setIf(params, "specialist_id", q.SpecialistID)
	if !q.Range.From.IsZero() {
		params.Set("date_from", q.Range.From.Format(dateLayout))
	}
	if !q.Range.To.IsZero() {
		params.Set("date_to", q.Range.To.Format(dateLayout))
	}

	var raw json.RawMessage
	if err := c.do(ctx, "resolveBusyIntervals", http.MethodGet, "/appointments/busy", params, nil, nil, &raw); err != nil {
		return nil, err
	}
	intervals, err := decodeIntervals(raw, q.SpecialistID)
	if err != nil {
		return nil, &booking.NetworkError{Op: "resolveBusyIntervals", Err: err}
	}
	return intervals, nil
}

// ListAppointments returns appointments matching f.
func (c *Client) ListAppointments(ctx context.Context, f booking.AppointmentFilter) ([]booking.Appointment, error) {
	params := url.Values{}
	setIf(params, "specialist_id", f.SpecialistID)
	setIf(params, "user_id", f.UserID)
	setIf(params, "status", string(f.Status))
	if !f.From.IsZero() {
		params.Set("start_from", f.From.UTC().Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		params.Set("start_to", f.To.UTC().Format(time.RFC3339))
	}

	var appts []booking.Appointment
	if err := c.do(ctx, "listAppointments", http.MethodGet, "/appointments", params, nil, nil, &appts); err != nil {
		return nil, err
	}
	if appts == nil {
		appts = []booking.Appointment{}
	}
	return appts, nil
}

// GetAppointment fetches a single appointment.
func (c *Client) GetAppointment(ctx context.Context, id string) (booking.Appointment, error) {
	var appt booking.Appointment
	err := c.do(ctx, "getAppointment", http.MethodGet, "/appointments/"+url.PathEscape(id), nil, nil, nil, &appt)
	return appt, err
}

// CreateAppointment submits a booking. A conflict with an existing booking
// returns *booking.SlotUnavailableError.
func (c *Client) CreateAppointment(ctx context.Context, d booking.Draft, idempotencyKey string) (booking.Appointment, error) {
	hdr := http.Header{}
	if idempotencyKey != "" {
		hdr.Set("Idempotency-Key", idempotencyKey)
	}
	var appt booking.Appointment
	err := c.do(ctx, "createAppointment", http.MethodPost, "/appointments", nil, hdr, d, &appt)
	return appt, err
}

type statusUpdate struct {
	Status     booking.AppointmentStatus `json:"status"`
	AdminNotes *string                   `json:"admin_notes,omitempty"`
}

// UpdateAppointmentStatus submits a status change. A refusal returns
// *booking.InvalidTransitionError.
func (c *Client) UpdateAppointmentStatus(ctx context.Context, id string, status booking.AppointmentStatus, adminNotes *string) (booking.Appointment, error) {
	var appt booking.Appointment
	body := statusUpdate{Status: status, AdminNotes: adminNotes}
	err := c.do(ctx, "updateAppointmentStatus", http.MethodPut, "/appointments/"+url.PathEscape(id)+"/status", nil, nil, body, &appt)
	return appt, err
}

// ListServices returns the service catalog.
func (c *Client) ListServices(ctx context.Context) ([]booking.Service, error) {
	var services []booking.Service
	err := c.do(ctx, "listServices", http.MethodGet, "/services", nil, nil, nil, &services)
	return services, err
}

// ListSpecialists returns specialists, optionally only those offering
// serviceID.
func (c *Client) ListSpecialists(ctx context.Context, serviceID string) ([]booking.Specialist, error) {
	params := url.Values{}
	setIf(params, "service_id", serviceID)
	var specialists []booking.Specialist
	err := c.do(ctx, "listSpecialists", http.MethodGet, "/specialists", params, nil, nil, &specialists)
	return specialists, err
}

func setIf(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

// apiError is the authority's error body.
type apiError struct {
	Message string              `json:"message"`
	Error   string              `json:"error"`
	Fields  map[string][]string `json:"errors"`
}

func (e apiError) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

func (c *Client) do(ctx context.Context, op, method, path string, params url.Values, hdr http.Header, in, out any) (err error) {
	start := time.Now()
	status := 0
	defer func() {
		if c.observer != nil {
			c.observer(op, status, time.Since(start), err)
		}
	}()

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := tokenFromContext(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Msg("booking api unreachable")
		return &booking.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	c.logger.Debug().
		Str("op", op).
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("latency", time.Since(start)).
		Msg("booking api call")

	if status >= 200 && status < 300 {
		if out == nil || status == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return &booking.NetworkError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	}

	var apiErr apiError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = json.Unmarshal(raw, &apiErr)
	return classify(op, status, apiErr)
}

// classify maps an HTTP failure onto the error taxonomy.
func classify(op string, status int, body apiError) error {
	msg := body.text()
	switch {
	case status >= 500:
		return &booking.NetworkError{Op: op, StatusCode: status}
	case status == http.StatusConflict && op == "createAppointment":
		return &booking.SlotUnavailableError{Message: msg}
	case (status == http.StatusConflict || status == http.StatusUnprocessableEntity) && op == "updateAppointmentStatus":
		return &booking.InvalidTransitionError{Cause: msg}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		fields := booking.FieldErrors{}
		for name, problems := range body.Fields {
			if len(problems) > 0 {
				fields[name] = problems[0]
			}
		}
		return &booking.ValidationError{Fields: fields, Message: msg}
	}
	// Auth failures, missing records and other client errors are not part
	// of the taxonomy; the caller cannot retry its way out of them.
	return &HTTPError{Op: op, StatusCode: status, Message: msg}
}

// HTTPError is a non-taxonomy failure such as 401, 403 or 404.
type HTTPError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the authority.
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == http.StatusNotFound
}
