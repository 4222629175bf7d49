package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"signal-risk-bot/internal/config"
)

// setupTestServer creates a new test server and a RestClient configured to use it.
func setupTestServer(handler http.Handler) (*RestClient, *httptest.Server) {
	server := httptest.NewServer(handler)

	rc := &RestClient{
		client:  resty.New().SetBaseURL(server.URL),
		apiKey:  "test_api_key",
		logger:  zap.NewNop(),
		limiter: rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
		backoff: time.Millisecond,
	}

	return rc, server
}

func TestGetQuotes(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/quotes", r.URL.Path)
			assert.Equal(t, "BTCUSD,EURUSD,XAUUSD", r.URL.Query().Get("symbols"))
			assert.Equal(t, "test_api_key", r.Header.Get(apiKeyHeader))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"EURUSD": {"price": 1.0851, "change": 0.0012, "changePercent": 0.11, "high": 1.0870, "low": 1.0830, "timestamp": 1741597200000},
				"BTCUSD": {"price": "64000.5", "change": -120, "changePercent": -0.19, "high": 64500, "low": 63000, "timestamp": 1741597200000},
				"XAUUSD": {"price": 0}
			}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		// Act
		ticks, err := rc.GetQuotes(context.Background(), []string{"EURUSD", "XAUUSD", "BTCUSD"})

		// Assert
		require.NoError(t, err)
		assert.Len(t, ticks, 2)
		assert.Equal(t, "1.0851", ticks["EURUSD"].Price.String())
		assert.Equal(t, "64000.5", ticks["BTCUSD"].Price.String())
		assert.Equal(t, time.UnixMilli(1741597200000), ticks["EURUSD"].Timestamp)
		assert.Equal(t, "EURUSD", ticks["EURUSD"].Symbol)
		_, ok := ticks["XAUUSD"]
		assert.False(t, ok)
	})

	t.Run("NoSymbols", func(t *testing.T) {
		var calls int32
		rc, server := setupTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
		}))
		defer server.Close()

		ticks, err := rc.GetQuotes(context.Background(), nil)

		assert.NoError(t, err)
		assert.Empty(t, ticks)
		assert.Zero(t, atomic.LoadInt32(&calls))
	})

	t.Run("RetriesServerErrors", func(t *testing.T) {
		// Arrange
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"EURUSD": {"price": 1.09}}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		// Act
		ticks, err := rc.GetQuotes(context.Background(), []string{"EURUSD"})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
		assert.Equal(t, "1.09", ticks["EURUSD"].Price.String())
	})

	t.Run("GivesUpAfterThreeAttempts", func(t *testing.T) {
		var calls int32
		rc, server := setupTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		ticks, err := rc.GetQuotes(context.Background(), []string{"EURUSD"})

		assert.Error(t, err)
		assert.Nil(t, ticks)
		assert.Contains(t, err.Error(), "failed to get quotes")
		assert.Contains(t, err.Error(), "after 3 attempts")
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("ClientErrorIsNotRetried", func(t *testing.T) {
		var calls int32
		rc, server := setupTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": "bad key"}`))
		}))
		defer server.Close()

		_, err := rc.GetQuotes(context.Background(), []string{"EURUSD"})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "401")
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("RateLimitedHonoursRetryAfter", func(t *testing.T) {
		var calls int32
		rc, server := setupTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"EURUSD": {"price": 1.09}}`))
		}))
		defer server.Close()

		ticks, err := rc.GetQuotes(context.Background(), []string{"EURUSD"})

		require.NoError(t, err)
		assert.Len(t, ticks, 1)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("CancelledContext", func(t *testing.T) {
		rc, server := setupTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := rc.GetQuotes(ctx, []string{"EURUSD"})

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewRestClient(t *testing.T) {
	rc := NewRestClient(config.MarketData{
		BaseURL:        "http://quotes.local/api/v1",
		ApiKey:         "k",
		RateLimit:      5,
		RateLimitBurst: 2,
		Timeout:        time.Second,
	}, zap.NewNop())

	assert.Equal(t, "http://quotes.local/api/v1", rc.client.BaseURL)
	assert.Equal(t, time.Second, rc.backoff)
	assert.Equal(t, 2, rc.limiter.Burst())
}
