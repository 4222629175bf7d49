package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"signal-risk-bot/internal/models"
)

// BotConfigRepository reads and writes the per-bot-type configuration row.
type BotConfigRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewBotConfigRepository creates a new repository instance.
func NewBotConfigRepository(db *gorm.DB, logger *zap.Logger) *BotConfigRepository {
	return &BotConfigRepository{db: db, logger: logger.Named("bot_config_repo")}
}

// WithDB returns a copy of the repository bound to db.
func (r *BotConfigRepository) WithDB(db *gorm.DB) *BotConfigRepository {
	return &BotConfigRepository{db: db, logger: r.logger}
}

// Get fetches the configuration of botType.
func (r *BotConfigRepository) Get(ctx context.Context, botType string) (*models.BotConfig, error) {
	var cfg models.BotConfig
	err := r.db.WithContext(ctx).Where("bot_type = ?", botType).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("bot config %s: %w", botType, ErrNotFound)
		}
		return nil, fmt.Errorf("find bot config %s: %w", botType, err)
	}
	return &cfg, nil
}

// GetOrCreate returns the stored configuration of defaults.BotType,
// inserting defaults when none exists yet.
func (r *BotConfigRepository) GetOrCreate(ctx context.Context, defaults models.BotConfig) (*models.BotConfig, error) {
	cfg, err := r.Get(ctx, defaults.BotType)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	r.logger.Info("No bot config found, creating default", zap.String("bot_type", defaults.BotType))
	created := defaults
	if err := r.db.WithContext(ctx).Create(&created).Error; err != nil {
		return nil, fmt.Errorf("create bot config %s: %w", defaults.BotType, err)
	}
	return &created, nil
}

// Save writes every column of cfg.
func (r *BotConfigRepository) Save(ctx context.Context, cfg *models.BotConfig) error {
	if err := r.db.WithContext(ctx).Save(cfg).Error; err != nil {
		return fmt.Errorf("save bot config %s: %w", cfg.BotType, err)
	}
	return nil
}
