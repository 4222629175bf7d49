package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"signal-risk-bot/internal/models"
)

// SignalFilter narrows List. Zero fields are ignored.
type SignalFilter struct {
	TradeState models.TradeState
	Outcome    models.Outcome
	Symbol     string
	Limit      int
}

// SignalRepository reads and writes signals.
type SignalRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSignalRepository creates a new repository instance.
func NewSignalRepository(db *gorm.DB, logger *zap.Logger) *SignalRepository {
	return &SignalRepository{db: db, logger: logger.Named("signals_repo")}
}

// WithDB returns a copy of the repository bound to db, e.g. a transaction.
func (r *SignalRepository) WithDB(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db, logger: r.logger}
}

// Create inserts a new signal.
func (r *SignalRepository) Create(ctx context.Context, s *models.Signal) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("create signal: %w", err)
	}
	return nil
}

// FindByID fetches a single signal by id.
func (r *SignalRepository) FindByID(ctx context.Context, id string) (*models.Signal, error) {
	var s models.Signal
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("signal %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("find signal %s: %w", id, err)
	}
	return &s, nil
}

// List returns signals matching filter, newest first.
func (r *SignalRepository) List(ctx context.Context, filter SignalFilter) ([]models.Signal, error) {
	q := r.db.WithContext(ctx).Model(&models.Signal{})
	if filter.TradeState != "" {
		q = q.Where("trade_state = ?", filter.TradeState)
	}
	if filter.Outcome != "" {
		q = q.Where("outcome = ?", filter.Outcome)
	}
	if filter.Symbol != "" {
		q = q.Where("symbol = ?", filter.Symbol)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var signals []models.Signal
	if err := q.Order("created_at DESC").Find(&signals).Error; err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	return signals, nil
}

// ListOpen returns every signal the risk engine may still mutate.
func (r *SignalRepository) ListOpen(ctx context.Context) ([]models.Signal, error) {
	var signals []models.Signal
	err := r.db.WithContext(ctx).
		Where("signal_status IN ?", models.OpenStatuses).
		Order("created_at ASC").
		Find(&signals).Error
	if err != nil {
		return nil, fmt.Errorf("list open signals: %w", err)
	}
	return signals, nil
}

// ListClosed returns every signal whose trade state is closed.
func (r *SignalRepository) ListClosed(ctx context.Context) ([]models.Signal, error) {
	return r.List(ctx, SignalFilter{TradeState: models.TradeStateClosed})
}

// OpenSymbols returns the distinct symbols of open signals.
func (r *SignalRepository) OpenSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := r.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("signal_status IN ?", models.OpenStatuses).
		Distinct().
		Order("symbol").
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, fmt.Errorf("list open symbols: %w", err)
	}
	return symbols, nil
}

// ApplyUpdate writes the lifecycle fields of s in a single conditional
// update keyed by id and version. The row must still be open. On success
// s.Version is incremented; when no row matches ErrConflict is returned.
func (r *SignalRepository) ApplyUpdate(ctx context.Context, s *models.Signal) error {
	now := time.Now()
	updates := map[string]interface{}{
		"entry_triggered":         s.EntryTriggered,
		"entry_triggered_at":      s.EntryTriggeredAt,
		"breakeven_triggered":     s.BreakevenTriggered,
		"trailing_stop":           s.TrailingStop,
		"tp1_closed":              s.TP1Closed,
		"tp2_closed":              s.TP2Closed,
		"tp1_pnl":                 s.TP1PnL,
		"tp2_pnl":                 s.TP2PnL,
		"runner_pnl":              s.RunnerPnL,
		"final_r_multiple":        s.FinalRMultiple,
		"exit_price":              s.ExitPrice,
		"current_price":           s.CurrentPrice,
		"highest_price":           s.HighestPrice,
		"lowest_price":            s.LowestPrice,
		"max_adverse_excursion":   s.MaxAdverseExcursion,
		"max_favorable_excursion": s.MaxFavorableExcursion,
		"trade_state":             s.TradeState,
		"signal_status":           s.SignalStatus,
		"outcome":                 s.Outcome,
		"closed_at":               s.ClosedAt,
		"updated_at":              now,
		"version":                 gorm.Expr("version + 1"),
	}

	res := r.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("id = ? AND version = ? AND signal_status IN ?", s.ID, s.Version, models.OpenStatuses).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update signal %s: %w", s.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		r.logger.Debug("Conditional update matched no row", zap.String("signal_id", s.ID), zap.Int64("version", s.Version))
		return fmt.Errorf("update signal %s: %w", s.ID, ErrConflict)
	}

	s.Version++
	s.UpdatedAt = now
	return nil
}

// Delete removes a signal permanently.
func (r *SignalRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Signal{})
	if res.Error != nil {
		return fmt.Errorf("delete signal %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("signal %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteAll removes every signal and returns how many were deleted.
func (r *SignalRepository) DeleteAll(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Signal{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete all signals: %w", res.Error)
	}
	return res.RowsAffected, nil
}
