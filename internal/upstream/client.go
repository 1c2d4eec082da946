package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/nganya/nganya-web/internal/monitoring"
	"github.com/sony/gobreaker"
)

// Doer is the subset of http.Client the upstream client needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	BaseURL string
	Retries int
	Timeout time.Duration
	// OnAttempt is invoked before every GET attempt, retries included.
	// Purely observational, it never affects control flow.
	OnAttempt func(attempt int)
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient Doer
}

// Client talks to the remote events/bookings/payments API. Reads go
// through a bounded retry loop with linear backoff so a cold-starting
// backend gets time to wake up; writes are a single bounded attempt.
type Client struct {
	baseURL   string
	retries   int
	timeout   time.Duration
	onAttempt func(int)
	hc        Doer
	cb        *gobreaker.CircuitBreaker

	// test seams, linear seconds in production
	backoffUnit time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func New(cfg Config) *Client {
	if cfg.Retries < 1 {
		cfg.Retries = 3
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "upstream",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 6
		},
	})

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		retries:     cfg.Retries,
		timeout:     cfg.Timeout,
		onAttempt:   cfg.OnAttempt,
		hc:          hc,
		cb:          cb,
		backoffUnit: time.Second,
		sleep:       sleepCtx,
	}
}

// getJSON fetches url with up to c.retries attempts. Each attempt is
// bounded by the per-attempt timeout; 5xx and network failures retry
// after backoffUnit×attempt, 4xx returns immediately. Exhaustion wraps
// the last cause in an UnavailableError.
func (c *Client) getJSON(ctx context.Context, endpoint, url string, out any) error {
	var lastErr error

	for attempt := 1; attempt <= c.retries; attempt++ {
		if c.onAttempt != nil {
			c.onAttempt(attempt)
		}
		monitoring.UpstreamAttempt(endpoint)

		err := c.attemptGet(ctx, url, out)
		if err == nil {
			return nil
		}

		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return err
		}

		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt < c.retries {
			monitoring.UpstreamRetry()
			if err := c.sleep(ctx, time.Duration(attempt)*c.backoffUnit); err != nil {
				return err
			}
		}
	}

	return &UnavailableError{Cause: lastErr}
}

func (c *Client) attemptGet(ctx context.Context, url string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	res, err := c.cb.Execute(func() (any, error) {
		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, err
		}

		// 5xx counts against the breaker; everything else passes through.
		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode}
		}

		return resp, nil
	})
	if err != nil {
		return err
	}

	resp := res.(*http.Response)
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode}
	}

	return decodeJSON(resp.Body, out)
}

// postJSON is a single bounded attempt. Mutations are never retried
// here; the caller decides what a repeat submission means.
func (c *Client) postJSON(ctx context.Context, endpoint, url string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	monitoring.UpstreamAttempt(endpoint)

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	return decodeJSON(resp.Body, out)
}

// decodeJSON unmarshals into a fresh value and assigns it to out only on
// success. Retried attempts share one destination, so a decode that dies
// halfway must not leave fields behind for the next attempt to build on.
func decodeJSON(r io.Reader, out any) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("decode target must be a non-nil pointer")
	}

	fresh := reflect.New(rv.Elem().Type())
	if err := json.Unmarshal(b, fresh.Interface()); err != nil {
		return err
	}

	rv.Elem().Set(fresh.Elem())

	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
