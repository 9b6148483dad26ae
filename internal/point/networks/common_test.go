package networks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastTransport(client *http.Client) *transport {
	tr := newTransport("test", client)
	tr.backoff = backoff{maxRetries: 2, initialInterval: time.Millisecond, maxInterval: 5 * time.Millisecond}
	return tr
}

func TestTransportRetriesServerErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	tr := fastTransport(server.Client())
	body, err := tr.get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestTransportDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	tr := fastTransport(server.Client())
	_, err := tr.get(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errUnexpected))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestTransportExhaustsRetries(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	tr := fastTransport(server.Client())
	_, err := tr.get(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errRateLimited))
	// Initial attempt plus two retries.
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestTransportHonorsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	tr := fastTransport(server.Client())
	tr.backoff.initialInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := tr.get(ctx, server.URL, nil)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatalf("transport did not honor cancellation")
	}
}

func TestTransportSendsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pointloom-test", r.Header.Get("User-Agent"))
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	tr := fastTransport(server.Client())
	header := http.Header{}
	header.Set("User-Agent", "pointloom-test")
	_, err := tr.get(context.Background(), server.URL, header)
	require.NoError(t, err)
}
