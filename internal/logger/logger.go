package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"signal-risk-bot/internal/config"
)

// NewLogger creates a new zap.Logger instance based on the provided configuration.
// The "json" format selects the production encoder, anything else the console one.
func NewLogger(cfg config.Logger) (*zap.Logger, error) {
	logLevel, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}

	zc.Level = zap.NewAtomicLevelAt(logLevel)
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.InitialFields = map[string]interface{}{"app": "signalbot"}

	return zc.Build()
}
