package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"signal-risk-bot/internal/models"
)

func TestHTTPGenerator_Generate(t *testing.T) {
	cfg := models.BotConfig{EnabledClasses: []string{"forex", "crypto"}, MinConfluence: 60}

	t.Run("Success", func(t *testing.T) {
		// Arrange
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/signals", r.URL.Path)
			assert.Equal(t, "forex,crypto", r.URL.Query().Get("classes"))
			assert.Equal(t, "60", r.URL.Query().Get("min_confluence"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"symbol":"EURUSD","instrument_class":"forex","direction":"long",
				"entry_price":"1.0850","stop_loss":"1.0820","take_profit_1":"1.0900","confluence":72}]`))
		}))
		defer server.Close()
		gen := NewHTTPGenerator(server.URL, time.Second, zap.NewNop())

		// Act
		candidates, err := gen.Generate(context.Background(), cfg)

		// Assert
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, "EURUSD", candidates[0].Symbol)
		assert.Equal(t, models.DirectionLong, candidates[0].Direction)
		assert.Equal(t, "1.085", candidates[0].EntryPrice.String())
		assert.False(t, candidates[0].TakeProfit2.Valid)
		assert.Equal(t, 72, candidates[0].Confluence)
	})

	t.Run("ServerError", func(t *testing.T) {
		// Arrange
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		defer server.Close()
		gen := NewHTTPGenerator(server.URL, time.Second, zap.NewNop())

		// Act
		candidates, err := gen.Generate(context.Background(), cfg)

		// Assert
		require.ErrorContains(t, err, "502")
		assert.Nil(t, candidates)
	})
}

func TestNopGenerator(t *testing.T) {
	candidates, err := NopGenerator{}.Generate(context.Background(), models.BotConfig{})
	assert.NoError(t, err)
	assert.Empty(t, candidates)
}
