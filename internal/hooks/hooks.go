// Package hooks dispatches relay lifecycle events to registered handlers.
package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/wadesk/internal/logging"
)

// Event names for the hook system.
const (
	EventMessageReceived = "message_received"
	EventMessageSent     = "message_sent"
	EventAutoReplySent   = "auto_reply_sent"
	EventConfigUpdated   = "config_updated"
	EventSessionStatus   = "session_status"
	EventGatewayStart    = "gateway_start"
	EventGatewayStop     = "gateway_stop"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventMessageReceived,
	EventMessageSent,
	EventAutoReplySent,
	EventConfigUpdated,
	EventSessionStatus,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload is what a handler receives. Timestamp is unix milliseconds.
type Payload struct {
	Event     string         `json:"event"`
	Timestamp int64          `json:"timestamp,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Handler handles one hook event. A returned error is logged and does not
// stop the remaining handlers.
type Handler func(ctx context.Context, p Payload) error

type namedHandler struct {
	name    string
	handler Handler
}

// Manager holds hook registrations per event.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	inflight sync.WaitGroup
	log      *logging.Logger
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers handler for event under name.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Count returns the number of handlers registered for event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// prepare snapshots the handlers for event and builds its payload.
func (m *Manager) prepare(event string, data map[string]any) ([]namedHandler, Payload) {
	m.mu.RLock()
	handlers := append([]namedHandler(nil), m.handlers[event]...)
	m.mu.RUnlock()
	return handlers, Payload{Event: event, Timestamp: time.Now().UnixMilli(), Data: data}
}

// Emit runs the handlers for event in registration order and returns when
// all of them are done.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	handlers, payload := m.prepare(event, data)
	for _, h := range handlers {
		m.run(ctx, h, payload)
	}
}

// EmitAsync starts every handler for event in its own goroutine and
// returns immediately. Wait blocks until they finish.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	handlers, payload := m.prepare(event, data)
	for _, h := range handlers {
		m.inflight.Add(1)
		go func() {
			defer m.inflight.Done()
			m.run(ctx, h, payload)
		}()
	}
}

// Wait blocks until every handler started by EmitAsync has returned, or
// ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) run(ctx context.Context, h namedHandler, p Payload) {
	if err := call(ctx, h, p); err != nil {
		m.log.Warn().
			Err(err).
			Str("event", p.Event).
			Str("handler", h.name).
			Msg("hook handler error")
	}
}

// call runs one handler, turning a panic into an error.
func call(ctx context.Context, h namedHandler, p Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook %s panicked: %v", h.name, r)
		}
	}()
	return h.handler(ctx, p)
}
