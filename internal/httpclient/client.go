// Package httpclient wraps net/http with bounded retries, exponential backoff
// and JSON decoding for the brokerage API.
package httpclient

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
)

const (
	// DefaultMaxAttempts is used when Do is called with maxAttempts <= 0.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the wait after the first failed attempt.
	DefaultBaseDelay = time.Second
)

// Doer is the subset of *http.Client the retry loop needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Request describes one logical call. It is re-issued unchanged on every attempt.
// LogURL replaces URL in logs and error text when the URL carries a secret.
type Request struct {
	Method string
	URL    string
	LogURL string
	Header http.Header
	Body   []byte
}

func (r Request) loggedURL() string {
	if r.LogURL != "" {
		return r.LogURL
	}
	return r.URL
}

// redact rewrites err so its text never contains the secret URL.
func (r Request) redact(err error) string {
	if r.LogURL == "" {
		return err.Error()
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = r.LogURL
	}
	return strings.ReplaceAll(err.Error(), r.URL, r.LogURL)
}

// Client retries failed requests with exponential backoff.
type Client struct {
	doer      Doer
	sleep     Sleeper
	baseDelay time.Duration
	log       zerolog.Logger
	metrics   *Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithSleeper replaces the backoff sleeper. Tests use it to record delays.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// WithBaseDelay changes the first backoff delay.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

// WithLogger sets the logger used for per-attempt diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics records attempts and latencies.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New returns a Client issuing requests through doer (http.DefaultClient if nil).
func New(doer Doer, opts ...Option) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	c := &Client{
		doer:      doer,
		sleep:     SleepContext,
		baseDelay: DefaultBaseDelay,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do issues req up to maxAttempts times and decodes a successful JSON body into out.
// out may be nil to discard the body. After attempt i fails it waits baseDelay*2^i.
// The error of the final attempt is returned, normally a *RequestError.
func (c *Client) Do(ctx context.Context, req Request, maxAttempts int, out any) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = c.attempt(ctx, req, out)
		if err == nil {
			return nil
		}

		c.log.Warn().
			Err(err).
			Str("method", req.Method).
			Str("url", req.loggedURL()).
			Int("attempt", attempt+1).
			Int("max_attempts", maxAttempts).
			Msg("request attempt failed")

		// Last retry failed
		if attempt == maxAttempts-1 {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := c.baseDelay * time.Duration(1<<attempt)
		if serr := c.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return err
}

func (c *Client) attempt(ctx context.Context, req Request, out any) error {
	start := time.Now()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return &RequestError{Message: req.redact(err), Err: err}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.doer.Do(httpReq)
	if err != nil {
		c.metrics.observe(req.Method, outcomeTransport, time.Since(start))
		return &RequestError{Message: req.redact(err), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.observe(req.Method, outcomeTransport, time.Since(start))
		return &RequestError{StatusCode: resp.StatusCode, Message: req.redact(err), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.observe(req.Method, outcomeHTTP, time.Since(start))
		return &RequestError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, raw),
			Body:       string(raw),
		}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			c.metrics.observe(req.Method, outcomeDecode, time.Since(start))
			return &RequestError{
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("invalid JSON response: %v", err),
				Body:       string(raw),
				Err:        err,
			}
		}
	}

	c.metrics.observe(req.Method, outcomeOK, time.Since(start))
	c.log.Debug().
		Str("method", req.Method).
		Str("url", req.loggedURL()).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request ok")
	return nil
}

// errorMessage prefers a JSON "message" field, then the raw body, then the status code.
// A body that is valid JSON without a truthy message yields the status code message.
// Non-string messages are rendered as their JSON text.
func errorMessage(status int, raw []byte) string {
	fallback := fmt.Sprintf("HTTP error! status: %d", status)

	var payload any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil || dec.More() {
		if len(raw) > 0 {
			return string(raw)
		}
		return fallback
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		if payload == nil {
			// JSON null: there is nothing to read a message from.
			return string(raw)
		}
		return fallback
	}
	switch msg := obj["message"].(type) {
	case nil:
	case bool:
		if msg {
			return "true"
		}
	case string:
		if msg != "" {
			return msg
		}
	case json.Number:
		if f, err := msg.Float64(); err == nil && f != 0 {
			return msg.String()
		}
	default:
		// Objects and arrays are always truthy
		if text, err := json.Marshal(msg); err == nil {
			return string(text)
		}
	}
	return fallback
}
