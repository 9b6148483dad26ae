// Package networks implements the provider adapters. Each adapter
// translates one upstream API into the common station and raw-series
// contract; rate limits, pagination and availability quirks stay inside
// the adapter that owns them.
package networks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// backoff controls retry pacing for transient upstream failures.
type backoff struct {
	maxRetries      int
	initialInterval time.Duration
	maxInterval     time.Duration
}

var defaultBackoff = backoff{
	maxRetries:      3,
	initialInterval: 500 * time.Millisecond,
	maxInterval:     5 * time.Second,
}

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errUnexpected  = errors.New("unexpected status code")
	errCircuitOpen = errors.New("circuit breaker open")
)

// transport is the shared resilient HTTP layer. Every adapter owns one,
// with its own circuit breaker, so a broken upstream trips only its own
// network.
type transport struct {
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
	backoff backoff
}

func newTransport(name string, client *http.Client) *transport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
	return &transport{client: client, circuit: cb, backoff: defaultBackoff}
}

// get fetches a URL and returns the response body. Rate limits and 5xx
// responses retry with exponential backoff; repeated failures open the
// circuit and fail fast until the upstream recovers.
func (t *transport) get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		for key, values := range header {
			for _, v := range values {
				req.Header.Add(key, v)
			}
		}

		result, err := t.circuit.Execute(func() (interface{}, error) {
			resp, execErr := t.client.Do(req)
			if execErr != nil {
				return nil, execErr
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests {
				return nil, errRateLimited
			}
			if resp.StatusCode >= 500 {
				return nil, errServerError
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}
			return io.ReadAll(resp.Body)
		})
		if err == nil {
			return result.([]byte), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		// 4xx other than 429 will not improve on retry.
		if errors.Is(err, errUnexpected) {
			return nil, err
		}

		lastErr = err
		if attempt >= t.backoff.maxRetries {
			return nil, lastErr
		}

		delay := t.backoff.initialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if t.backoff.maxInterval > 0 && delay > t.backoff.maxInterval {
			delay = t.backoff.maxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		attempt++
	}
}
