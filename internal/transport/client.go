package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"servicemarket/internal/domain"
	"servicemarket/internal/logger"
	"servicemarket/internal/metrics"
)

// Credentials is the session boundary consumed by the client.
type Credentials interface {
	AccessToken() string
	RefreshToken() string
	Refresh(ctx context.Context) error
}

type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration

	// Requests per second; 0 disables the limiter.
	RateLimit float64
	RateBurst int

	// Consecutive failures before the breaker opens; 0 disables the breaker.
	BreakerFailures int
	BreakerTimeout  time.Duration
}

// Client performs authenticated calls against the backend API.
//
// On a 401 it refreshes the credential once and retries the request once.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	creds   Credentials
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*rawResponse]
	log     zerolog.Logger
}

type rawResponse struct {
	status int
	body   []byte
}

func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		timeout: timeout,
		log:     logger.WithComponent("transport"),
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	if opts.BreakerFailures > 0 {
		bt := opts.BreakerTimeout
		if bt <= 0 {
			bt = 30 * time.Second
		}
		c.breaker = newBreaker(opts.BreakerFailures, bt)
	}
	return c
}

// SetCredentials attaches the session. Requests made without credentials carry no bearer.
func (c *Client) SetCredentials(creds Credentials) {
	c.creds = creds
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends in as the JSON body and decodes the envelope's data into out (when non-nil).
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	return c.do(ctx, method, path, in, out, true)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, auth bool) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	resp, err := c.send(ctx, method, path, payload, auth)
	if err != nil {
		return err
	}

	if resp.status == http.StatusUnauthorized && auth && c.creds != nil && c.creds.RefreshToken() != "" {
		if rerr := c.creds.Refresh(ctx); rerr != nil {
			metrics.TransportRefreshes.WithLabelValues("failed").Inc()
			c.log.Warn().Err(rerr).Str("path", path).Msg("credential refresh failed")
			if errors.Is(rerr, domain.ErrUnauthorized) {
				return rerr
			}
			return fmt.Errorf("refresh credential: %w: %w", domain.ErrUnauthorized, rerr)
		}
		metrics.TransportRefreshes.WithLabelValues("ok").Inc()

		resp, err = c.send(ctx, method, path, payload, auth)
		if err != nil {
			return err
		}
	}

	return decodeEnvelope(resp, out)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, auth bool) (*rawResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", domain.ErrTransportFailure, err)
		}
	}

	start := time.Now()
	call := func() (*rawResponse, error) {
		r, err := c.roundTrip(ctx, method, path, payload, auth)
		if err != nil {
			return nil, err
		}
		if r.status >= http.StatusInternalServerError {
			return r, errServerStatus
		}
		return r, nil
	}

	var (
		resp *rawResponse
		err  error
	)
	if c.breaker != nil {
		resp, err = c.breaker.Execute(call)
	} else {
		resp, err = call()
	}
	metrics.TransportLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, errServerStatus):
		metrics.TransportRequests.WithLabelValues(method, "server_error").Inc()
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.TransportRequests.WithLabelValues(method, "rejected").Inc()
		return nil, fmt.Errorf("%w: %w", domain.ErrTransportFailure, err)
	case err != nil:
		metrics.TransportRequests.WithLabelValues(method, "network_error").Inc()
		c.log.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return nil, err
	}
	metrics.TransportRequests.WithLabelValues(method, "ok").Inc()
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, auth bool) (*rawResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.creds != nil {
		if token := c.creds.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", domain.ErrTransportFailure, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrTransportFailure, err)
	}
	return &rawResponse{status: resp.StatusCode, body: data}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func decodeEnvelope(resp *rawResponse, out any) error {
	var env envelope
	if len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, &env); err != nil {
			if resp.status >= 300 {
				return &APIError{Status: resp.status, Message: http.StatusText(resp.status)}
			}
			return fmt.Errorf("%w: malformed response: %w", domain.ErrTransportFailure, err)
		}
	}

	if resp.status >= 300 || !env.Success {
		apiErr := &APIError{Status: resp.status, Message: http.StatusText(resp.status)}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode data: %w", domain.ErrTransportFailure, err)
	}
	return nil
}
