// Package events fans signal and bot state changes out to subscribers
// such as the websocket feed.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"signal-risk-bot/internal/models"
)

// Kind names what changed.
type Kind string

const (
	KindSignalCreated  Kind = "signal.created"
	KindSignalUpdated  Kind = "signal.updated"
	KindSignalDeleted  Kind = "signal.deleted"
	KindSignalsCleared Kind = "signals.cleared"
	KindBotConfig      Kind = "bot.config"
)

// Event is a single change notification.
type Event struct {
	Kind     Kind   `json:"kind"`
	SignalID string `json:"signal_id,omitempty"`
	// Transitions lists the lifecycle events applied in this change.
	Transitions []string          `json:"transitions,omitempty"`
	Signal      *models.Signal    `json:"signal,omitempty"`
	Bot         *models.BotConfig `json:"bot,omitempty"`
	At          time.Time         `json:"at"`
}

// Bus is an in-process publish/subscribe hub. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	buffer int
	logger *zap.Logger
}

// NewBus creates a bus whose subscriptions buffer up to buffer events.
func NewBus(buffer int, logger *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[int]chan Event),
		buffer: buffer,
		logger: logger.Named("events"),
	}
}

// Publish delivers ev to every subscriber.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("Subscriber too slow, dropping event", zap.Int("subscriber", id), zap.String("kind", string(ev.Kind)))
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func
// unregisters it and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
