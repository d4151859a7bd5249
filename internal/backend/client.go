package backend

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
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oshokin/escape-alarm/internal/domain/alarm"
	"github.com/oshokin/escape-alarm/internal/logger"
	"github.com/oshokin/escape-alarm/internal/version"
)

const (
	// alertsPath is the alert listing route, trailing slash included.
	alertsPath = "api/alerts/"
	// maxListingBytes caps how much of a listing response is read.
	maxListingBytes = 8 << 20
	// statusResolved is the status value meaning the alert was handled.
	statusResolved = "resolved"
)

var (
	// ErrUnexpectedStatus is returned for non-2xx listing responses.
	ErrUnexpectedStatus = errors.New("unexpected http status")
	// errBaseURLRequired is returned when the backend URL is empty.
	errBaseURLRequired = errors.New("backend URL must be provided")
)

// Alert is the resolution-relevant part of a backend alert.
type Alert struct {
	// ID identifies the alert.
	ID alarm.AlertID
	// Status is the textual status, when the backend provides one.
	Status string
	// Resolved is the backend's resolved flag.
	Resolved bool
}

// IsResolved reports whether the backend considers the alert handled.
func (a Alert) IsResolved() bool {
	return a.Resolved || strings.EqualFold(a.Status, statusResolved)
}

// Client queries the backend alert listing.
type Client struct {
	// listURL is the absolute alert listing URL.
	listURL string
	// httpClient performs requests.
	httpClient *http.Client
	// token is sent as a bearer token when set.
	token string
	// tokenExpiry is the exp claim of a JWT token, zero when unknown.
	tokenExpiry time.Time
	// expiredWarned makes the expiry warning fire once.
	expiredWarned atomic.Bool
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithToken sets the bearer token. JWT tokens have their expiry inspected.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
		c.tokenExpiry = tokenExpiry(c.token)
	}
}

// New creates a client for the backend rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errBaseURLRequired
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend URL: %w", err)
	}

	c := &Client{
		listURL:    base.JoinPath(alertsPath).String(),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// TokenExpiry returns the expiry of a JWT bearer token, zero when unknown.
func (c *Client) TokenExpiry() time.Time {
	return c.tokenExpiry
}

// ListAlerts fetches the current alert listing.
// Transport failures and non-2xx statuses are errors; a body that is not the
// canonical bare array is logged and yields an empty listing.
func (c *Client) ListAlerts(ctx context.Context) ([]Alert, error) {
	c.warnIfTokenExpired(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.listURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build listing request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch alert listing: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%s, %s: %w", c.listURL, resp.Status, ErrUnexpectedStatus)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingBytes))
	if err != nil {
		return nil, fmt.Errorf("read alert listing: %w", err)
	}

	return decodeListing(ctx, body), nil
}

// decodeListing parses the canonical bare array, tolerating anything else as empty.
func decodeListing(ctx context.Context, body []byte) []Alert {
	trimmed := bytes.TrimSpace(body)

	switch {
	case len(trimmed) == 0:
		logger.Warn(ctx, "Alert listing is empty, treating as no alerts")
		return nil
	case trimmed[0] == '{':
		logger.WarnKV(ctx, "Alert listing is a wrapped object instead of a bare array, "+
			"this is a backend schema bug; treating as no alerts")

		return nil
	case trimmed[0] != '[':
		logger.WarnKV(ctx, "Alert listing is not a JSON array, treating as no alerts",
			"prefix", string(trimmed[:min(len(trimmed), 32)]))

		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var items []map[string]any
	if err := decoder.Decode(&items); err != nil {
		logger.WarnKV(ctx, "Alert listing is malformed, treating as no alerts", "error", err)
		return nil
	}

	alerts := make([]Alert, 0, len(items))

	for _, item := range items {
		id, ok := alarm.NormalizeID(item["id"])
		if !ok {
			continue
		}

		a := Alert{ID: id}
		a.Resolved, _ = item["resolved"].(bool)
		a.Status, _ = item["status"].(string)

		alerts = append(alerts, a)
	}

	return alerts
}

// warnIfTokenExpired logs once when the JWT bearer token is past its expiry.
func (c *Client) warnIfTokenExpired(ctx context.Context) {
	if c.tokenExpiry.IsZero() || time.Now().Before(c.tokenExpiry) {
		return
	}

	if c.expiredWarned.CompareAndSwap(false, true) {
		logger.WarnKV(ctx, "Backend token has expired, alert listing may be rejected",
			"expired_at", c.tokenExpiry.Format(time.RFC3339))
	}
}

// tokenExpiry reads the exp claim of a JWT without verifying its signature;
// the backend verifies it, the engine only wants an early warning.
func tokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}

	var claims jwt.RegisteredClaims

	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}

	if claims.ExpiresAt == nil {
		return time.Time{}
	}

	return claims.ExpiresAt.Time
}
