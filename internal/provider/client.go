package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/marinapark/booking-backend/internal/clock"
	"github.com/marinapark/booking-backend/internal/domain"
	"github.com/marinapark/booking-backend/internal/telemetry"
)

// Request signing headers. The provider rejects requests whose
// signature does not match or whose timestamp is stale.
const (
	HeaderSignature     = "X-Marina-Signature"
	HeaderTimestamp     = "X-Marina-Timestamp"
	HeaderCorrelationID = "X-Marina-Correlation-Id"
)

// Check-in and check-out carry fixed marker times on the wire; days in
// between are plain midnights. The list includes the check-out day.
const (
	wireTimeFormat   = "2006-01-02 15:04:05"
	checkInTime      = "15:00:01"
	checkOutTime     = "12:00:02"
	middleDayTime    = "00:00:00"
	createBookingURL = "/wp-json/marina/v1/bookings"
)

// BookingRequest carries everything the provider needs to record a stay.
type BookingRequest struct {
	Kind           domain.BookingKind
	Range          domain.DateRange
	ResourceID     int
	Contact        domain.GuestContact
	Adults         int
	Children       int
	LicensePlate   string
	IdempotencyKey string
	CorrelationID  string
}

// BookingResult is the provider's acknowledgement of a created booking.
type BookingResult struct {
	BookingID     string
	CorrelationID string
}

// Client creates bookings at the external provider.
type Client interface {
	CreateBooking(ctx context.Context, req *BookingRequest) (*BookingResult, error)
}

// Config holds provider client settings
type Config struct {
	BaseURL    string
	HMACSecret string
	Timeout    time.Duration
}

type httpClient struct {
	cfg    Config
	client *http.Client
	clk    clock.Clock
}

// NewHTTPClient returns a Client that talks to the provider's REST API
// with HMAC-signed requests.
func NewHTTPClient(cfg Config, clk clock.Clock) Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if clk == nil {
		clk = clock.New()
	}
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		clk:    clk,
	}
}

type wireRequest struct {
	Dates          []string `json:"dates"`
	Name           string   `json:"name"`
	LastName       string   `json:"last_name"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone"`
	ResourceID     int      `json:"resource_id"`
	Adults         int      `json:"adults"`
	Children       int      `json:"children"`
	CheckIn        string   `json:"check_in"`
	CheckOut       string   `json:"check_out"`
	DateRange      string   `json:"date_range"`
	LicensePlate   string   `json:"license_plate,omitempty"`
	IdempotencyKey string   `json:"idempotency_key"`
	CorrelationID  string   `json:"correlation_id"`
}

func (c *httpClient) CreateBooking(ctx context.Context, req *BookingRequest) (*BookingResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "provider.CreateBooking")
	defer span.End()
	span.SetAttributes(
		attribute.Int("provider.resource_id", req.ResourceID),
		attribute.String("provider.correlation_id", req.CorrelationID),
	)

	body, err := json.Marshal(buildWireRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to encode provider request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+createBookingURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.sign(httpReq, body, req.CorrelationID)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		telemetry.SetSpanError(ctx, err)
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body", domain.ErrProviderUnavailable)
	}

	return parseBookingResponse(resp.StatusCode, respBody, req.CorrelationID)
}

// sign attaches the timestamped HMAC signature the provider verifies.
// The MAC covers "<unix seconds>.<raw body>" so a captured request
// cannot be replayed outside the provider's freshness window. Without
// a configured secret the request goes out unsigned.
func (c *httpClient) sign(req *http.Request, body []byte, correlationID string) {
	if correlationID != "" {
		req.Header.Set(HeaderCorrelationID, correlationID)
	}
	if c.cfg.HMACSecret == "" {
		return
	}

	ts := strconv.FormatInt(c.clk.Now().Unix(), 10)

	mac := hmac.New(sha256.New, []byte(c.cfg.HMACSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)

	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, "sha256="+hex.EncodeToString(mac.Sum(nil)))
}

func buildWireRequest(req *BookingRequest) *wireRequest {
	return &wireRequest{
		Dates:          buildDates(req.Range),
		Name:           req.Contact.FirstName,
		LastName:       req.Contact.LastName,
		Email:          req.Contact.Email,
		Phone:          req.Contact.Phone,
		ResourceID:     req.ResourceID,
		Adults:         req.Adults,
		Children:       req.Children,
		CheckIn:        req.Range.Start.Format(domain.DayFormat),
		CheckOut:       req.Range.End.Format(domain.DayFormat),
		DateRange:      req.Range.String(),
		LicensePlate:   req.LicensePlate,
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  req.CorrelationID,
	}
}

// buildDates renders the stay as the provider's calendar expects it:
// one entry per day including the check-out day, with marker times on
// the first and last entries.
func buildDates(r domain.DateRange) []string {
	days := r.Days()
	out := make([]string, len(days))
	for i, d := range days {
		var t string
		switch i {
		case 0:
			t = checkInTime
		case len(days) - 1:
			t = checkOutTime
		default:
			t = middleDayTime
		}
		out[i] = d.Format(domain.DayFormat) + " " + t
	}
	return out
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrProviderTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrProviderTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
}

// bookingIDKeys are the response fields the provider has been seen
// using for the booking id, in priority order. Plugin updates have
// renamed this field before.
var bookingIDKeys = []string{"booking_id", "id", "booking", "id_booking"}

func parseBookingResponse(status int, body []byte, correlationID string) (*BookingResult, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		if status >= 400 {
			return nil, fmt.Errorf("%w: status %d", domain.ErrProviderRejected, status)
		}
		return nil, fmt.Errorf("%w: invalid JSON", domain.ErrProviderBadResponse)
	}

	if status >= 400 || !successField(payload) {
		msg := messageField(payload)
		if msg == "" {
			msg = fmt.Sprintf("status %d", status)
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderRejected, msg)
	}

	id, ok := extractBookingID(payload)
	if !ok {
		return nil, fmt.Errorf("%w: success without booking id", domain.ErrProviderBadResponse)
	}

	return &BookingResult{BookingID: id, CorrelationID: correlationID}, nil
}

// successField treats a missing success flag on a 2xx response as
// success; older plugin versions omitted it.
func successField(payload map[string]json.RawMessage) bool {
	raw, ok := payload["success"]
	if !ok {
		return true
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	return v
}

func messageField(payload map[string]json.RawMessage) string {
	for _, key := range []string{"message", "error"} {
		if raw, ok := payload[key]; ok {
			var v string
			if err := json.Unmarshal(raw, &v); err == nil {
				return v
			}
		}
	}
	return ""
}

// extractBookingID accepts numbers and numeric strings under any of
// the known field names, and normalizes to the decimal string form.
func extractBookingID(payload map[string]json.RawMessage) (string, bool) {
	for _, key := range bookingIDKeys {
		raw, ok := payload[key]
		if !ok {
			continue
		}

		var num json.Number
		if err := json.Unmarshal(raw, &num); err == nil {
			if id, err := num.Int64(); err == nil && id > 0 {
				return strconv.FormatInt(id, 10), true
			}
			continue
		}

		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			s = strings.TrimSpace(s)
			if id, err := strconv.ParseInt(s, 10, 64); err == nil && id > 0 {
				return strconv.FormatInt(id, 10), true
			}
		}
	}
	return "", false
}
