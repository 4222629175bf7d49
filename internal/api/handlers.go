package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"signal-risk-bot/internal/analytics"
	"signal-risk-bot/internal/bot"
	"signal-risk-bot/internal/marketdata"
	"signal-risk-bot/internal/models"
	"signal-risk-bot/internal/monitor"
	"signal-risk-bot/internal/signals"
	"signal-risk-bot/internal/store"
)

// SignalService is the signal lifecycle surface used by the handlers.
type SignalService interface {
	Create(ctx context.Context, in signals.NewSignal) (*models.Signal, error)
	Get(ctx context.Context, id string) (*models.Signal, error)
	List(ctx context.Context, filter store.SignalFilter) ([]models.Signal, error)
	UpdateOutcome(ctx context.Context, id string, outcome models.Outcome) (*models.Signal, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int64, error)
}

// BotController is the bot command surface used by the handlers.
type BotController interface {
	Config() models.BotConfig
	Toggle(ctx context.Context, running bool) (models.BotConfig, error)
	UpdateConfig(ctx context.Context, patch bot.ConfigPatch) (models.BotConfig, error)
	RunNow(ctx context.Context) (bot.RunReport, error)
	RunMonitor(ctx context.Context) (monitor.Report, error)
}

// ClosedSignals lists signals for analytics.
type ClosedSignals interface {
	ListClosed(ctx context.Context) ([]models.Signal, error)
}

// PriceSnapshot exposes the cached prices.
type PriceSnapshot interface {
	Snapshot() map[string]marketdata.PriceTick
	LastRefresh() time.Time
}

// pricesResponse is the body of GET /api/prices. RefreshedAt is null until
// the first successful fetch.
type pricesResponse struct {
	RefreshedAt *time.Time                      `json:"refreshed_at"`
	Prices      map[string]marketdata.PriceTick `json:"prices"`
}

// Handler holds dependencies for the API endpoints.
type Handler struct {
	signals SignalService
	bot     BotController
	closed  ClosedSignals
	prices  PriceSnapshot
	feed    *FeedHub
	logger  *zap.Logger
}

// NewHandler creates a new Handler.
func NewHandler(svc SignalService, ctrl BotController, closed ClosedSignals, prices PriceSnapshot, feed *FeedHub, logger *zap.Logger) *Handler {
	return &Handler{
		signals: svc,
		bot:     ctrl,
		closed:  closed,
		prices:  prices,
		feed:    feed,
		logger:  logger.Named("api"),
	}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/bot/run", h.runBot)
		r.Post("/bot/toggle", h.toggleBot)
		r.Get("/bot/config", h.getBotConfig)
		r.Patch("/bot/config", h.updateBotConfig)
		r.Post("/monitor/run", h.runMonitor)

		r.Route("/signals", func(r chi.Router) {
			r.Get("/", h.listSignals)
			r.Post("/", h.createSignal)
			r.Delete("/", h.deleteAllSignals)
			r.Get("/{id}", h.getSignal)
			r.Delete("/{id}", h.deleteSignal)
			r.Post("/{id}/outcome", h.updateOutcome)
		})

		r.Get("/analytics", h.analytics)
		r.Get("/prices", h.listPrices)
		if h.feed != nil {
			r.Get("/feed", h.feed.ServeHTTP)
		}
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK\n"))
}

func (h *Handler) runBot(w http.ResponseWriter, r *http.Request) {
	report, err := h.bot.RunNow(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) runMonitor(w http.ResponseWriter, r *http.Request) {
	report, err := h.bot.RunMonitor(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) toggleBot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Running *bool `json:"running"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Running == nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "running is required"})
		return
	}

	cfg, err := h.bot.Toggle(r.Context(), *req.Running)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) getBotConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.bot.Config())
}

func (h *Handler) updateBotConfig(w http.ResponseWriter, r *http.Request) {
	var patch bot.ConfigPatch
	if err := decodeJSON(r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}

	cfg, err := h.bot.UpdateConfig(r.Context(), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) listSignals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SignalFilter{
		TradeState: models.TradeState(q.Get("trade_state")),
		Outcome:    models.Outcome(q.Get("outcome")),
		Symbol:     strings.ToUpper(q.Get("symbol")),
	}

	list, err := h.signals.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Signal{}
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) createSignal(w http.ResponseWriter, r *http.Request) {
	var in signals.NewSignal
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	sig, err := h.signals.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sig)
}

func (h *Handler) getSignal(w http.ResponseWriter, r *http.Request) {
	sig, err := h.signals.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sig)
}

func (h *Handler) updateOutcome(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome models.Outcome `json:"outcome"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	sig, err := h.signals.UpdateOutcome(r.Context(), chi.URLParam(r, "id"), req.Outcome)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sig)
}

func (h *Handler) deleteSignal(w http.ResponseWriter, r *http.Request) {
	if err := h.signals.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteAllSignals(w http.ResponseWriter, r *http.Request) {
	n, err := h.signals.DeleteAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// analytics returns closed-trade statistics, optionally grouped by symbol.
func (h *Handler) analytics(w http.ResponseWriter, r *http.Request) {
	closed, err := h.closed.ListClosed(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("by") == "symbol" {
		h.writeJSON(w, http.StatusOK, analytics.ComputeBySymbol(closed))
		return
	}
	h.writeJSON(w, http.StatusOK, analytics.Compute(closed))
}

func (h *Handler) listPrices(w http.ResponseWriter, r *http.Request) {
	resp := pricesResponse{Prices: h.prices.Snapshot()}
	if at := h.prices.LastRefresh(); !at.IsZero() {
		resp.RefreshedAt = &at
	}
	h.writeJSON(w, http.StatusOK, resp)
}
