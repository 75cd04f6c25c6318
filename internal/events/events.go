// Package events is an in-process pub/sub bus for settings changes.
package events

import (
	"sync"
	"time"

	"aris/internal/model"

	"github.com/rs/zerolog"
)

// Type names a kind of event.
type Type string

// FlagChanged is published after a user flag takes a new value.
const FlagChanged Type = "flag_changed"

// Event is a lightweight domain event.
type Event struct {
	Type      Type
	UserID    int64
	Flag      model.Flag
	Value     bool
	CreatedAt time.Time
}

// Handler reacts to an event.
type Handler func(Event)

// Bus delivers events to the handlers subscribed to their type.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type][]Handler
	logger      zerolog.Logger
}

func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[Type][]Handler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], h)
}

// Publish runs the subscribers synchronously. A panicking handler is logged
// and does not stop the others.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[e.Type]...)
	b.mu.RUnlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	for _, h := range handlers {
		b.call(h, e)
	}
}

func (b *Bus) call(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Str("type", string(e.Type)).Int64("user_id", e.UserID).Msg("event handler panicked")
		}
	}()
	h(e)
}
