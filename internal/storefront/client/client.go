// Package client talks to the storefront REST backend on behalf of the
// signed-in session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/storefront/session"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const maxResponseBytes = 4 << 20

type Client struct {
	baseURL  string
	http     *http.Client
	session  *session.Session
	breaker  *gobreaker.CircuitBreaker[*rawResponse]
	settings gobreaker.Settings
	log      *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithBreakerSettings replaces the default breaker policy. IsSuccessful is
// always overridden.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(c *Client) { c.settings = st }
}

func New(baseURL string, sess *session.Session, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   15 * time.Second,
		},
		session: sess,
		settings: gobreaker.Settings{
			Name:        "storefront-api",
			MaxRequests: 1,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = newBreaker(c.settings, c.log)
	return c
}

func newBreaker(st gobreaker.Settings, log *zap.Logger) *gobreaker.CircuitBreaker[*rawResponse] {
	// Only transport failures and 5xx trip the breaker.
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, context.Canceled)
	}
	if st.OnStateChange == nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		}
	}
	return gobreaker.NewCircuitBreaker[*rawResponse](st)
}

type rawResponse struct {
	status int
	header http.Header
	body   []byte
}

// serverFault marks a 5xx so the breaker counts it without losing the body.
type serverFault struct {
	resp *rawResponse
}

func (e *serverFault) Error() string {
	return fmt.Sprintf("server error %d", e.resp.status)
}

type request struct {
	method  string
	path    string
	body    any
	auth    bool
	headers map[string]string
}

func (c *Client) do(ctx context.Context, op string, r request) (*rawResponse, error) {
	var token string
	if r.auth {
		var ok bool
		if token, ok = c.session.Token(); !ok {
			return nil, ErrAuthRequired
		}
	}

	var payload []byte
	if r.body != nil {
		var err error
		if payload, err = json.Marshal(r.body); err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
	}

	raw, err := c.breaker.Execute(func() (*rawResponse, error) {
		req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		for k, v := range r.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, err
		}
		out := &rawResponse{status: resp.StatusCode, header: resp.Header, body: body}
		if resp.StatusCode >= http.StatusInternalServerError {
			return out, &serverFault{resp: out}
		}
		return out, nil
	})

	var sf *serverFault
	switch {
	case errors.As(err, &sf):
		raw = sf.resp
	case err != nil:
		c.log.Debug("request failed", zap.String("op", op), zap.Error(err))
		return nil, &NetworkError{Op: op, Err: err}
	}

	if raw.status == http.StatusUnauthorized && token != "" {
		// the backend no longer accepts this session
		if err := c.session.Logout(); err != nil {
			c.log.Warn("failed to drop rejected session", zap.String("op", op), zap.Error(err))
		}
	}
	if raw.status < 200 || raw.status > 299 {
		return nil, rejection(raw)
	}
	return raw, nil
}

func rejection(raw *rawResponse) error {
	var body api.ErrorBody
	_ = json.Unmarshal(raw.body, &body)
	if body.Message == "" {
		body.Message = http.StatusText(raw.status)
	}
	return &ServerRejection{Status: raw.status, Code: body.Code, Message: body.Message}
}

func decode[T any](op string, raw *rawResponse) (T, error) {
	var out T
	if err := json.Unmarshal(raw.body, &out); err != nil {
		return out, &NetworkError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return out, nil
}

func decodeData[T any](op string, raw *rawResponse) (T, error) {
	env, err := decode[api.Envelope[T]](op, raw)
	if err != nil {
		return env.Data, err
	}
	if !env.Success {
		return env.Data, &ServerRejection{Status: raw.status, Message: "request was not successful"}
	}
	return env.Data, nil
}
