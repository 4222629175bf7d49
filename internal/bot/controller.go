// Package bot owns the bot configuration aggregate and the scheduling loop
// that generates signals and runs the monitor.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"signal-risk-bot/internal/config"
	"signal-risk-bot/internal/events"
	"signal-risk-bot/internal/metrics"
	"signal-risk-bot/internal/models"
	"signal-risk-bot/internal/monitor"
	"signal-risk-bot/internal/signals"
)

// ErrInvalidConfig is returned when a config update fails validation.
var ErrInvalidConfig = errors.New("invalid bot config")

// ConfigStore persists the bot configuration.
type ConfigStore interface {
	GetOrCreate(ctx context.Context, defaults models.BotConfig) (*models.BotConfig, error)
	Save(ctx context.Context, cfg *models.BotConfig) error
}

// Monitor runs one pass over the open signals.
type Monitor interface {
	RunCycle(ctx context.Context) (monitor.Report, error)
}

// SignalCreator ingests generated signals.
type SignalCreator interface {
	Create(ctx context.Context, in signals.NewSignal) (*models.Signal, error)
}

// BroadcastSetter mutes or unmutes alert kinds.
type BroadcastSetter interface {
	SetBroadcast(entries, outcomes bool)
}

// Publisher emits change events.
type Publisher interface {
	Publish(ev events.Event)
}

// Deps groups the collaborators of a Controller.
type Deps struct {
	Configs   ConfigStore
	Generator Generator
	Signals   SignalCreator
	Monitor   Monitor
	Broadcast BroadcastSetter
	Bus       Publisher
}

// ConfigPatch is a partial config update. Nil fields are left unchanged.
type ConfigPatch struct {
	EnabledClasses    *[]string `json:"enabled_classes"`
	MinConfluence     *int      `json:"min_confluence"`
	AutoRunInterval   *int      `json:"auto_run_interval"`
	BroadcastEntries  *bool     `json:"broadcast_entries"`
	BroadcastOutcomes *bool     `json:"broadcast_outcomes"`
}

// RunReport summarizes a generate-and-monitor run.
type RunReport struct {
	Generated int            `json:"generated"`
	Filtered  int            `json:"filtered"`
	Rejected  int            `json:"rejected"`
	Monitor   monitor.Report `json:"monitor"`
}

// Controller owns the BotConfig of one bot type and the scheduling loop.
type Controller struct {
	deps     Deps
	defaults models.BotConfig
	logger   *zap.Logger
	// unit converts AutoRunInterval to a duration.
	unit time.Duration
	now  func() time.Time

	mu       sync.Mutex
	cfg      models.BotConfig
	runCtx   context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}

	runMu sync.Mutex
}

// NewController creates a controller whose first config row is built from cfg.
func NewController(cfg config.Bot, deps Deps, logger *zap.Logger) *Controller {
	if deps.Generator == nil {
		deps.Generator = NopGenerator{}
	}
	return &Controller{
		deps: deps,
		defaults: models.BotConfig{
			BotType:           cfg.Type,
			EnabledClasses:    append([]string(nil), cfg.DefaultClasses...),
			MinConfluence:     cfg.MinConfluence,
			AutoRunInterval:   int(cfg.DefaultInterval / time.Minute),
			BroadcastEntries:  true,
			BroadcastOutcomes: true,
		},
		logger:   logger.Named("bot"),
		unit:     time.Minute,
		now:      time.Now,
		runCtx:   context.Background(),
		loopDone: closedChan(),
	}
}

// Init loads the persisted config and resumes scheduling if the bot was
// running before the restart. ctx bounds scheduled runs for the lifetime of
// the process.
func (c *Controller) Init(ctx context.Context) error {
	cfg, err := c.deps.Configs.GetOrCreate(ctx, c.defaults)
	if err != nil {
		return fmt.Errorf("could not load bot config: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = *cfg
	c.runCtx = ctx
	c.applyBroadcast()

	c.logger.Info("Bot config loaded",
		zap.String("bot_type", cfg.BotType),
		zap.Bool("running", cfg.Running),
		zap.Int("interval_minutes", cfg.AutoRunInterval),
	)
	if cfg.Running {
		c.startLoop()
	}
	return nil
}

// Config returns a copy of the active configuration.
func (c *Controller) Config() models.BotConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyConfig()
}

// Scheduled reports whether the scheduling loop is active.
func (c *Controller) Scheduled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Toggle starts or stops the bot.
func (c *Controller) Toggle(ctx context.Context, running bool) (models.BotConfig, error) {
	if running {
		return c.Start(ctx)
	}
	return c.Stop(ctx)
}

// Start marks the bot running and starts the scheduling loop.
func (c *Controller) Start(ctx context.Context) (models.BotConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.Running && c.cancel != nil {
		return c.copyConfig(), nil
	}

	next := c.copyConfig()
	now := c.now()
	next.Running = true
	next.StartedAt = &now
	if err := c.deps.Configs.Save(ctx, &next); err != nil {
		return c.copyConfig(), err
	}
	c.cfg = next
	c.startLoop()

	c.logger.Info("Bot started", zap.Duration("interval", c.interval()))
	c.publish()
	return c.copyConfig(), nil
}

// Stop marks the bot stopped and cancels the pending scheduled run. A run
// already in progress completes.
func (c *Controller) Stop(ctx context.Context) (models.BotConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.copyConfig()
	now := c.now()
	next.Running = false
	next.StoppedAt = &now
	if err := c.deps.Configs.Save(ctx, &next); err != nil {
		return c.copyConfig(), err
	}
	c.cfg = next
	c.stopLoop()

	c.logger.Info("Bot stopped")
	c.publish()
	return c.copyConfig(), nil
}

// Shutdown stops the scheduling loop without changing the persisted
// running flag, so the next Init resumes it.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	done := c.loopDone
	c.stopLoop()
	c.mu.Unlock()
	<-done
}

// UpdateConfig validates and applies patch. On failure the previous
// configuration stays active.
func (c *Controller) UpdateConfig(ctx context.Context, patch ConfigPatch) (models.BotConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.copyConfig()
	if patch.EnabledClasses != nil {
		next.EnabledClasses = append([]string{}, (*patch.EnabledClasses)...)
	}
	if patch.MinConfluence != nil {
		next.MinConfluence = *patch.MinConfluence
	}
	if patch.AutoRunInterval != nil {
		next.AutoRunInterval = *patch.AutoRunInterval
	}
	if patch.BroadcastEntries != nil {
		next.BroadcastEntries = *patch.BroadcastEntries
	}
	if patch.BroadcastOutcomes != nil {
		next.BroadcastOutcomes = *patch.BroadcastOutcomes
	}

	if err := ValidateConfig(next); err != nil {
		return c.copyConfig(), err
	}
	if err := c.deps.Configs.Save(ctx, &next); err != nil {
		return c.copyConfig(), err
	}
	c.cfg = next
	c.applyBroadcast()

	c.logger.Info("Bot config updated",
		zap.Strings("enabled_classes", next.EnabledClasses),
		zap.Int("min_confluence", next.MinConfluence),
		zap.Int("interval_minutes", next.AutoRunInterval),
	)
	c.publish()
	return c.copyConfig(), nil
}

// ValidateConfig rejects configurations the scheduler cannot run.
func ValidateConfig(cfg models.BotConfig) error {
	if cfg.AutoRunInterval <= 0 {
		return fmt.Errorf("%w: auto_run_interval must be positive", ErrInvalidConfig)
	}
	if cfg.MinConfluence < 0 || cfg.MinConfluence > 100 {
		return fmt.Errorf("%w: min_confluence must be within 0..100", ErrInvalidConfig)
	}
	for _, class := range cfg.EnabledClasses {
		if !models.InstrumentClass(class).Valid() {
			return fmt.Errorf("%w: unknown instrument class %q", ErrInvalidConfig, class)
		}
	}
	return nil
}

// RunNow generates signals and runs the monitor immediately.
func (c *Controller) RunNow(ctx context.Context) (RunReport, error) {
	return c.run(ctx, "manual")
}

// RunMonitor runs only the monitor pass.
func (c *Controller) RunMonitor(ctx context.Context) (monitor.Report, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	report, err := c.deps.Monitor.RunCycle(ctx)
	observeRun("monitor", err)
	return report, err
}

func (c *Controller) run(ctx context.Context, trigger string) (RunReport, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	cfg := c.Config()
	var report RunReport

	genErr := c.generate(ctx, cfg, &report)
	if genErr != nil {
		c.logger.Error("Signal generation failed", zap.String("trigger", trigger), zap.Error(genErr))
	}

	mon, err := c.deps.Monitor.RunCycle(ctx)
	report.Monitor = mon
	if err == nil && genErr != nil {
		err = genErr
	}
	observeRun(trigger, err)

	c.logger.Info("Bot run complete",
		zap.String("trigger", trigger),
		zap.Int("generated", report.Generated),
		zap.Int("filtered", report.Filtered),
		zap.Int("rejected", report.Rejected),
		zap.Int("updated", mon.Updated),
	)
	return report, err
}

func (c *Controller) generate(ctx context.Context, cfg models.BotConfig, report *RunReport) error {
	candidates, err := c.deps.Generator.Generate(ctx, cfg)
	if err != nil {
		return err
	}

	for _, cand := range candidates {
		class := cand.InstrumentClass
		if class == "" {
			class = models.ClassForex
		}
		if !cfg.ClassEnabled(class) || cand.Confluence < cfg.MinConfluence {
			report.Filtered++
			continue
		}
		if _, err := c.deps.Signals.Create(ctx, cand); err != nil {
			report.Rejected++
			c.logger.Warn("Generated signal rejected", zap.String("symbol", cand.Symbol), zap.Error(err))
			continue
		}
		report.Generated++
	}
	return nil
}

// loop waits one interval after each completed run, so runs never overlap.
func (c *Controller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		c.mu.Lock()
		interval := c.interval()
		runCtx := c.runCtx
		c.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := c.run(runCtx, "schedule"); err != nil {
			c.logger.Error("Scheduled run failed", zap.Error(err))
		}
	}
}

// startLoop must be called with mu held.
func (c *Controller) startLoop() {
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.runCtx)
	done := make(chan struct{})
	c.cancel = cancel
	c.loopDone = done
	metrics.SetBotRunning(true)
	go c.loop(ctx, done)
}

// stopLoop must be called with mu held.
func (c *Controller) stopLoop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	metrics.SetBotRunning(false)
}

func (c *Controller) interval() time.Duration {
	return time.Duration(c.cfg.AutoRunInterval) * c.unit
}

func (c *Controller) applyBroadcast() {
	if c.deps.Broadcast != nil {
		c.deps.Broadcast.SetBroadcast(c.cfg.BroadcastEntries, c.cfg.BroadcastOutcomes)
	}
}

func (c *Controller) publish() {
	if c.deps.Bus == nil {
		return
	}
	cfg := c.copyConfig()
	c.deps.Bus.Publish(events.Event{Kind: events.KindBotConfig, Bot: &cfg})
}

func (c *Controller) copyConfig() models.BotConfig {
	cfg := c.cfg
	cfg.EnabledClasses = append([]string(nil), c.cfg.EnabledClasses...)
	return cfg
}

func observeRun(trigger string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.BotRuns.WithLabelValues(trigger, result).Inc()
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
