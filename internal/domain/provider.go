package domain

import (
	"context"
	"errors"
)

var (
	ErrNotReady            = errors.New("provider session not ready")
	ErrUnknownConversation = errors.New("unknown conversation")
)

// EventKind names a provider session lifecycle event.
type EventKind string

const (
	EventQR            EventKind = "qr"
	EventAuthenticated EventKind = "authenticated"
	EventReady         EventKind = "ready"
	EventMessage       EventKind = "message"
	EventDisconnected  EventKind = "disconnected"
	EventAuthFailure   EventKind = "auth_failure"
)

// ProviderEvent is one lifecycle event emitted by the provider session.
// Which fields are set depends on Kind.
type ProviderEvent struct {
	Kind    EventKind
	QR      string
	Reason  string
	Chats   []ChatInfo
	Message *ProviderMessage
}

// Provider is the messaging session the relay drives. Every operation may
// fail; events arrive through the handler registered with OnEvent, with
// EventReady always preceding message events of the same session.
type Provider interface {
	// Start opens the session. It returns once the connection attempt has
	// been made; progress is reported through events.
	Start(ctx context.Context) error

	// Stop closes the session.
	Stop(ctx context.Context) error

	// OnEvent registers the lifecycle event handler.
	OnEvent(handler func(evt ProviderEvent))

	// Send delivers text or media to a conversation.
	Send(ctx context.Context, conversationID string, content OutboundContent) (SentConfirmation, error)

	// GetConversation returns provider-side information about one conversation.
	GetConversation(ctx context.Context, conversationID string) (ChatInfo, error)

	// FetchMessages returns up to limit recent messages, newest first.
	FetchMessages(ctx context.Context, conversationID string, limit int) ([]ProviderMessage, error)

	// MarkSeen acknowledges the conversation's messages as read.
	MarkSeen(ctx context.Context, conversationID string) error
}
