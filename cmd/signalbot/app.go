package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"signal-risk-bot/internal/analytics"
	"signal-risk-bot/internal/api"
	"signal-risk-bot/internal/bot"
	"signal-risk-bot/internal/config"
	"signal-risk-bot/internal/database"
	"signal-risk-bot/internal/events"
	"signal-risk-bot/internal/logger"
	"signal-risk-bot/internal/marketdata"
	"signal-risk-bot/internal/monitor"
	"signal-risk-bot/internal/notify"
	"signal-risk-bot/internal/risk"
	"signal-risk-bot/internal/signals"
	"signal-risk-bot/internal/store"
)

const (
	alertQueueSize = 128
	busBuffer      = 64
	shutdownGrace  = 10 * time.Second
)

// components is the wired object graph shared by all commands.
type components struct {
	cfg        config.Config
	log        *zap.Logger
	signals    *store.SignalRepository
	feed       *marketdata.Feed
	bus        *events.Bus
	dispatcher *notify.Dispatcher
	monitor    *monitor.Monitor
	service    *signals.Service
	controller *bot.Controller
}

func setup(c *cli.Context) (*components, error) {
	// Load application configuration
	cfg, err := config.LoadConfig(c.GlobalString("config"))
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("could not initialize logger: %w", err)
	}
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Info("Database connection successful and schema migrated.", zap.String("driver", cfg.Database.Driver))

	signalRepo := store.NewSignalRepository(db, log)
	botRepo := store.NewBotConfigRepository(db, log)

	quotes := marketdata.NewRestClient(cfg.MarketData, log)
	feed := marketdata.NewFeed(quotes, signalRepo, cfg.MarketData.PollInterval, log)

	bus := events.NewBus(busBuffer, log)
	dispatcher := notify.NewDispatcher(notify.NewNotifier(cfg.Telegram, log), alertQueueSize, log)
	engine := risk.NewEngine(risk.PolicyFromConfig(cfg.Risk))

	mon := monitor.New(signalRepo, feed, engine, dispatcher, bus, cfg.Monitor.Workers, log)
	svc := signals.NewService(signalRepo, feed, engine, dispatcher, bus, log)

	var generator bot.Generator = bot.NopGenerator{}
	if cfg.Bot.GeneratorURL != "" {
		generator = bot.NewHTTPGenerator(cfg.Bot.GeneratorURL, cfg.MarketData.Timeout, log)
	}
	controller := bot.NewController(cfg.Bot, bot.Deps{
		Configs:   botRepo,
		Generator: generator,
		Signals:   svc,
		Monitor:   mon,
		Broadcast: dispatcher,
		Bus:       bus,
	}, log)

	return &components{
		cfg:        cfg,
		log:        log,
		signals:    signalRepo,
		feed:       feed,
		bus:        bus,
		dispatcher: dispatcher,
		monitor:    mon,
		service:    svc,
		controller: controller,
	}, nil
}

func serveAction(c *cli.Context) error {
	app, err := setup(c)
	if err != nil {
		return err
	}
	defer app.log.Sync()

	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app.dispatcher.Start(ctx)
	go app.feed.Run(ctx)

	if err := app.controller.Init(ctx); err != nil {
		return err
	}

	handler := api.NewHandler(app.service, app.controller, app.signals, app.feed, api.NewFeedHub(app.bus, app.log), app.log)
	server := api.NewServer(app.cfg.Server.Port, handler.Routes(), app.log)
	server.Start()

	<-ctx.Done()
	app.log.Info("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownGrace)
	defer stop()
	if err := server.Stop(shutdownCtx); err != nil {
		app.log.Error("API server shutdown failed", zap.Error(err))
	}
	app.controller.Shutdown()
	app.dispatcher.Wait()

	app.log.Info("Bot has been shut down.")
	return nil
}

func monitorAction(c *cli.Context) error {
	app, err := setup(c)
	if err != nil {
		return err
	}
	defer app.log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.feed.Refresh(ctx); err != nil {
		app.log.Warn("Price refresh failed, evaluating expiry only", zap.Error(err))
	}

	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	app.dispatcher.Start(dispatchCtx)

	report, err := app.monitor.RunCycle(ctx)
	stopDispatch()
	app.dispatcher.Wait()
	if err != nil {
		return err
	}
	return printJSON(report)
}

func statsAction(c *cli.Context) error {
	app, err := setup(c)
	if err != nil {
		return err
	}
	defer app.log.Sync()

	closed, err := app.signals.ListClosed(context.Background())
	if err != nil {
		return err
	}

	if c.Bool("by-symbol") {
		return printJSON(analytics.ComputeBySymbol(closed))
	}
	return printJSON(analytics.Compute(closed))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
