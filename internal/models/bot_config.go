package models

import "time"

// BotConfig is the persisted operator configuration of one bot type.
// There is exactly one row per bot type; rows are only ever updated.
type BotConfig struct {
	BotType           string     `gorm:"primaryKey;type:varchar(32)" json:"bot_type"`
	Running           bool       `gorm:"not null;default:false" json:"running"`
	EnabledClasses    []string   `gorm:"serializer:json;type:text" json:"enabled_classes"`
	MinConfluence     int        `gorm:"not null;default:0" json:"min_confluence"`
	AutoRunInterval   int        `gorm:"not null;default:15" json:"auto_run_interval"` // minutes
	BroadcastEntries  bool       `gorm:"not null" json:"broadcast_entries"`
	BroadcastOutcomes bool       `gorm:"not null" json:"broadcast_outcomes"`
	StartedAt         *time.Time `json:"started_at"`
	StoppedAt         *time.Time `json:"stopped_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Interval returns the auto-run interval as a duration.
func (c *BotConfig) Interval() time.Duration {
	return time.Duration(c.AutoRunInterval) * time.Minute
}

// ClassEnabled reports whether the instrument class is enabled.
func (c *BotConfig) ClassEnabled(class InstrumentClass) bool {
	for _, ec := range c.EnabledClasses {
		if ec == string(class) {
			return true
		}
	}
	return false
}
