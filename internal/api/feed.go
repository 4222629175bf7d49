package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"signal-risk-bot/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Subscriber hands out change-event subscriptions.
type Subscriber interface {
	Subscribe() (<-chan events.Event, func())
}

// FeedHub streams change events to websocket clients.
type FeedHub struct {
	bus      Subscriber
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewFeedHub creates a hub over bus.
func NewFeedHub(bus Subscriber, logger *zap.Logger) *FeedHub {
	return &FeedHub{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.Named("feed"),
	}
}

// ServeHTTP upgrades the connection and streams events until either side
// goes away.
func (f *FeedHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub, cancel := f.bus.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(r.Context())
	defer stop()
	go f.readPump(conn, stop)

	f.logger.Debug("Feed client connected", zap.String("remote", r.RemoteAddr))
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				f.logger.Debug("Feed client write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and cancels the stream once the
// connection is closed.
func (f *FeedHub) readPump(conn *websocket.Conn, stop context.CancelFunc) {
	defer stop()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
