package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shaneisley/gymbook/pkg/backoff"
	"github.com/shaneisley/gymbook/pkg/logging"
)

// ErrRetriesExhausted is returned once every attempt of a request has failed
var ErrRetriesExhausted = errors.New("maximum retry attempts reached")

// StatusError is a non-2xx HTTP reply
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected HTTP status %d", e.Code)
	}
	return fmt.Sprintf("unexpected HTTP status %d: %s", e.Code, e.Body)
}

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Sleeper blocks for the given duration
type Sleeper func(time.Duration)

// Executor posts form payloads with bounded retries and backoff between attempts
type Executor struct {
	MaxAttempts     int
	BackoffStrategy backoff.Strategy
	Client          Doer
	Headers         map[string]string
	Sleep           Sleeper
	Logger          *logging.Logger
}

// NewHTTPClient builds a client with a dial timeout and a response header timeout.
// The overall client timeout is their sum so a stalled body read also fails.
func NewHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   connectTimeout + readTimeout,
	}
}

// NewExecutor creates an Executor with the default timeouts and a blocking sleep
func NewExecutor(maxAttempts int, strategy backoff.Strategy, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{
		MaxAttempts:     maxAttempts,
		BackoffStrategy: strategy,
		Client:          NewHTTPClient(DefaultConnectTimeout, DefaultReadTimeout),
		Sleep:           time.Sleep,
		Logger:          logger,
	}
}

// NewDefaultExecutor uses 3 attempts and 300s/600s/... exponential backoff
func NewDefaultExecutor(logger *logging.Logger) *Executor {
	return NewExecutor(DefaultMaxAttempts, backoff.NewExponential(DefaultBaseDelay, DefaultMultiplier, 0), logger)
}

// Execute posts payload to endpoint and returns the parsed reply.
//
// Connection errors, timeouts, non-2xx replies and bodies that are not a JSON
// object all count as a failed attempt. After MaxAttempts failures the error
// wraps ErrRetriesExhausted and the last failure. Waits between attempts come
// from BackoffStrategy; nothing is waited after the final attempt. Once ctx is
// done, Execute returns its error instead of waiting.
func (e *Executor) Execute(ctx context.Context, endpoint string, payload url.Values) (*Response, error) {
	maxAttempts := e.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	logger := e.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := e.executeAttempt(ctx, endpoint, payload)
		if err == nil {
			resp.Attempts = attempt
			return resp, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			logger.Warn("request attempt failed",
				"endpoint", endpoint,
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"exception", err.Error())
			break
		}

		var delay time.Duration
		if e.BackoffStrategy != nil {
			delay = e.BackoffStrategy.Delay(attempt)
		}
		logger.Warn("request attempt failed",
			"endpoint", endpoint,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"exception", err.Error(),
			"next_delay", delay.String())

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ctxErr, err)
		}
		if delay > 0 {
			e.sleep(delay)
		}
	}

	logger.Error("maximum retry attempts reached, unable to complete the request",
		"endpoint", endpoint,
		"attempts", maxAttempts,
		"exception", lastErr.Error())
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, maxAttempts, lastErr)
}

func (e *Executor) sleep(d time.Duration) {
	if e.Sleep != nil {
		e.Sleep(d)
		return
	}
	time.Sleep(d)
}

// executeAttempt sends one request and parses its body
func (e *Executor) executeAttempt(ctx context.Context, endpoint string, payload url.Values) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range e.Headers {
		req.Header.Set(k, v)
	}

	client := e.Client
	if client == nil {
		client = NewHTTPClient(DefaultConnectTimeout, DefaultReadTimeout)
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the API server: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, MaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &StatusError{Code: res.StatusCode, Body: truncate(string(body), 200)}
	}

	return ParseResponse(body)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
