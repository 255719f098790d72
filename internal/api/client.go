// Package api is the HTTP client for the marketplace backend.
package api

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

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/bazaar/internal/auth"
	"github.com/tOgg1/bazaar/internal/logging"
	"github.com/tOgg1/bazaar/internal/market"
	"github.com/tOgg1/bazaar/internal/metrics"
)

// DefaultTimeout bounds every request when no HTTP client is supplied.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Client talks to the marketplace REST API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	now      func() time.Time
	validate *validator.Validate
	logger   zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default transport.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.HTTPClient.Timeout = d
		}
	}
}

// WithClock overrides the clock used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a client for baseURL, e.g. "http://localhost:5000/api".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		now:        time.Now,
		validate:   validator.New(),
		logger:     logging.Component("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	op       string
	endpoint string
	method   string
	path     string
	token    string
	authed   bool
	body     any
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *Client) do(ctx context.Context, r request, out any) (err error) {
	if r.authed {
		token := strings.TrimSpace(r.token)
		if token == "" {
			return market.AuthError(r.op, "not signed in", 0)
		}
		if auth.TokenExpired(token, c.now()) {
			return market.AuthError(r.op, "session expired", 0)
		}
		r.token = token
	}

	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(market.KindOf(err))
			if outcome == "" {
				outcome = "error"
			}
		}
		metrics.APIRequestsTotal.WithLabelValues(r.endpoint, outcome).Inc()
		metrics.APIRequestDuration.WithLabelValues(r.endpoint).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", r.op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.BaseURL+r.path, body)
	if err != nil {
		return market.NetworkError(r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.authed {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return market.NetworkError(r.op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("op", r.op).
		Str("method", r.method).
		Str("path", logging.Redact(r.path)).
		Str("request_id", reqID).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request completed")

	if resp.StatusCode >= 400 {
		return statusError(r.op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return market.NetworkError(r.op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb errorBody
	_ = json.Unmarshal(raw, &eb)
	msg := strings.TrimSpace(eb.Message)
	if msg == "" {
		msg = strings.TrimSpace(eb.Error)
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return market.AuthError(op, msg, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		e := market.NotFoundError(op, "resource")
		e.Message = msg
		return e
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		e := market.ValidationError(op, msg, nil)
		e.Status = resp.StatusCode
		return e
	default:
		return &market.Error{Kind: market.KindNetwork, Op: op, Message: msg, Status: resp.StatusCode}
	}
}

// check validates v and converts the first failing field into a
// ValidationError.
func (c *Client) check(op string, v any) error {
	err := c.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return market.ValidationError(op, fieldMessage(verrs[0]), err)
	}
	return market.ValidationError(op, err.Error(), err)
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must be at least " + fe.Param()
	case "max":
		return field + " must be at most " + fe.Param()
	case "oneof":
		return field + " must be one of: " + fe.Param()
	default:
		return field + " is invalid"
	}
}

func pathID(id string) string {
	return url.PathEscape(strings.TrimSpace(id))
}
