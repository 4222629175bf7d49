package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"signal-risk-bot/internal/models"
	"signal-risk-bot/internal/signals"
)

// Generator produces candidate signals. The analysis behind them lives
// outside this service.
type Generator interface {
	Generate(ctx context.Context, cfg models.BotConfig) ([]signals.NewSignal, error)
}

// NopGenerator never produces signals; runs only monitor.
type NopGenerator struct{}

// Generate returns no candidates.
func (NopGenerator) Generate(context.Context, models.BotConfig) ([]signals.NewSignal, error) {
	return nil, nil
}

// HTTPGenerator pulls candidate signals from an external generator service:
// GET {base}/signals?classes=forex,crypto&min_confluence=60 returning a JSON
// array of signals.
type HTTPGenerator struct {
	client *resty.Client
	logger *zap.Logger
}

// NewHTTPGenerator creates a generator client for baseURL.
func NewHTTPGenerator(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPGenerator {
	return &HTTPGenerator{
		client: resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
		logger: logger.Named("generator"),
	}
}

// Generate fetches the candidates for the enabled classes.
func (g *HTTPGenerator) Generate(ctx context.Context, cfg models.BotConfig) ([]signals.NewSignal, error) {
	var candidates []signals.NewSignal
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"classes":        strings.Join(cfg.EnabledClasses, ","),
			"min_confluence": strconv.Itoa(cfg.MinConfluence),
		}).
		SetHeader("Accept", "application/json").
		SetResult(&candidates).
		Get("/signals")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch generated signals: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("generator returned %s: %s", resp.Status(), resp.String())
	}

	g.logger.Debug("Fetched candidate signals", zap.Int("count", len(candidates)))
	return candidates, nil
}
