package marketdata

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"signal-risk-bot/internal/config"
)

const apiKeyHeader = "X-API-KEY"

// QuoteSource fetches the latest prices for a set of symbols.
type QuoteSource interface {
	GetQuotes(ctx context.Context, symbols []string) (map[string]PriceTick, error)
}

// RestClient is a client for the market-data provider's REST API.
type RestClient struct {
	client  *resty.Client
	apiKey  string
	logger  *zap.Logger
	limiter *rate.Limiter
	// backoff is the first retry delay; it doubles on every attempt.
	backoff time.Duration
}

// ensure RestClient implements the interface
var _ QuoteSource = (*RestClient)(nil)

// NewRestClient creates a new market-data REST client.
func NewRestClient(cfg config.MarketData, logger *zap.Logger) *RestClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout)

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:  client,
		apiKey:  cfg.ApiKey,
		logger:  logger.Named("marketdata"),
		limiter: limiter,
		backoff: time.Second,
	}
}

// Quote is a single entry of the provider's quotes response.
type Quote struct {
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Timestamp     int64           `json:"timestamp"` // unix milliseconds
}

// PriceTick is the latest observed price of a symbol.
type PriceTick struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Timestamp     time.Time       `json:"timestamp"`
}

// GetQuotes fetches quotes for symbols. Symbols the provider omits or
// prices at zero are left out of the result.
func (c *RestClient) GetQuotes(ctx context.Context, symbols []string) (map[string]PriceTick, error) {
	if len(symbols) == 0 {
		return map[string]PriceTick{}, nil
	}

	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)

	var quotes map[string]*Quote
	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("symbols", strings.Join(sorted, ",")).
		SetHeader("Accept", "application/json").
		SetResult(&quotes)
	if c.apiKey != "" {
		req.SetHeader(apiKeyHeader, c.apiKey)
	}

	if _, err := c.doRequest(ctx, http.MethodGet, "/quotes", req); err != nil {
		return nil, fmt.Errorf("failed to get quotes: %w", err)
	}

	ticks := make(map[string]PriceTick, len(quotes))
	for symbol, q := range quotes {
		if q == nil || !q.Price.IsPositive() {
			c.logger.Debug("Skipping empty quote", zap.String("symbol", symbol))
			continue
		}
		ts := time.Now()
		if q.Timestamp > 0 {
			ts = time.UnixMilli(q.Timestamp)
		}
		ticks[symbol] = PriceTick{
			Symbol:        symbol,
			Price:         q.Price,
			High:          q.High,
			Low:           q.Low,
			Change:        q.Change,
			ChangePercent: q.ChangePercent,
			Timestamp:     ts,
		}
	}
	return ticks, nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var lastErr error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		var err error
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if err != nil {
			// Network or other client-side errors
			shouldRetry = true
			lastErr = err
		} else {
			statusCode := resp.StatusCode()
			lastErr = fmt.Errorf("status %s: %s", resp.Status(), resp.String())
			if statusCode == http.StatusTooManyRequests || statusCode == http.StatusTeapot {
				shouldRetry = true
				if seconds, perr := strconv.Atoi(resp.Header().Get("Retry-After")); perr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= http.StatusInternalServerError {
				shouldRetry = true
			}
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with %w", lastErr)
		}
		if i == maxRetries-1 {
			break
		}

		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.backoff
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(lastErr),
		)

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, lastErr)
}
