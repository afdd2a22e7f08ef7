// Package events is the in-process pub/sub spine of the frontend. The HTTP
// layer publishes what happened (a booking confirmed, a code requested) and
// side effects like the audit trail and staff notifications subscribe,
// keeping the request path free of them.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event types published by the frontend.
const (
	TypeBookingCreated = "booking.created"
	TypeOTPRequested   = "otp.requested"
	TypeLoginFailed    = "login.failed"
)

// Event carries one occurrence. Payload is event-type specific.
type Event struct {
	Type      string
	Payload   any
	CreatedAt time.Time
}

// Handler reacts to an event. Errors are logged, never propagated to the
// publisher.
type Handler func(event Event) error

// Bus is an in-process publisher. Handlers run synchronously in publish
// order; a failing handler does not stop the rest.
type Bus struct {
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[string][]Handler
}

// NewBus constructs an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		logger:      logger.With().Str("component", "events").Logger(),
		subscribers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish delivers the event to every subscriber of its type.
func (b *Bus) Publish(eventType string, payload any) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[eventType]...)
	b.mu.RUnlock()

	event := Event{Type: eventType, Payload: payload, CreatedAt: time.Now()}
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Error().Err(err).Str("event_type", eventType).Msg("event handler failed")
		}
	}
}
