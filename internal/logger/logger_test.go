package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"signal-risk-bot/internal/config"
)

func TestNewLogger(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		log, err := NewLogger(config.Logger{Level: "debug", Format: "json"})
		assert.NoError(t, err)
		assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("Console", func(t *testing.T) {
		log, err := NewLogger(config.Logger{Level: "warn", Format: "console"})
		assert.NoError(t, err)
		assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	})

	t.Run("BadLevel", func(t *testing.T) {
		_, err := NewLogger(config.Logger{Level: "loud"})
		assert.Error(t, err)
	})
}
