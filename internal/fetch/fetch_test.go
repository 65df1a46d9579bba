package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishaqmohammed8765-png/flipscan/internal/budget"
	"github.com/ishaqmohammed8765-png/flipscan/internal/logger"
	"github.com/ishaqmohammed8765-png/flipscan/internal/respcache"
)

func newTestClient(t *testing.T, cap int) *Client {
	t.Helper()
	c := NewClient(budget.New(cap), respcache.New(time.Minute), 5*time.Second, logger.NewNop())
	c.sleep = func(time.Duration) {}
	return c
}

func TestGetServesSecondCallFromCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	c := newTestClient(t, 10)
	params := url.Values{"q": {"switch"}}

	first, err := c.Get(context.Background(), srv.URL, params, Options{})
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := c.Get(context.Background(), srv.URL, params, Options{})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, c.Budget().Used())
}

func TestGetRetriesTransientStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	c := newTestClient(t, 10)
	resp, err := c.Get(context.Background(), srv.URL, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Body)
	assert.Equal(t, int32(3), hits.Load())
	// Every network attempt consumed budget.
	assert.Equal(t, 3, c.Budget().Used())
}

func TestGetStopsOnBudgetExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, 0)
	_, err := c.Get(context.Background(), srv.URL, nil, Options{})
	assert.ErrorIs(t, err, budget.ErrRequestLimit)
}

func TestGetClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, 10)
	_, err := c.Get(context.Background(), srv.URL, nil, Options{})
	assert.ErrorIs(t, err, ErrHTTPStatus)
	assert.Equal(t, int32(1), hits.Load())
}

func TestPurgeCachedEvictsChallengePages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Pardon Our Interruption")) // challenge body
	}))
	defer srv.Close()

	c := newTestClient(t, 10)
	_, err := c.Get(context.Background(), srv.URL, nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, c.PurgeCached([]string{"pardon our interruption"}))

	// Next call goes back to the network.
	resp, err := c.Get(context.Background(), srv.URL, nil, Options{})
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
}
