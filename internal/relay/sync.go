package relay

import (
	"context"

	"github.com/soyeahso/wadesk/internal/autoreply"
	"github.com/soyeahso/wadesk/internal/domain"
	"github.com/soyeahso/wadesk/internal/hooks"
	"github.com/soyeahso/wadesk/internal/logging"
)

// Broadcaster delivers an event to every connected dashboard.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Observer is a single dashboard connection.
type Observer interface {
	Emit(event string, payload any) error
}

// AutoReplyNotice is the payload of EventAutoReply.
type AutoReplyNotice struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

// Sync fans state changes out to dashboards and hook handlers. It is the
// registry notifier, the ingest sink and the auto-reply sent callback.
type Sync struct {
	out   Broadcaster
	hooks *hooks.Manager
	log   *logging.Logger
}

// NewSync creates a Sync. hm may be nil.
func NewSync(out Broadcaster, hm *hooks.Manager, log *logging.Logger) *Sync {
	return &Sync{out: out, hooks: hm, log: log.Sub("sync")}
}

// Broadcast sends event to all dashboards.
func (s *Sync) Broadcast(event string, payload any) {
	s.out.Broadcast(event, payload)
}

// ChatDelta implements registry.Notifier.
func (s *Sync) ChatDelta(delta domain.ChatDelta) {
	s.out.Broadcast(EventChatUpdated, delta)
}

// ChatList implements registry.Notifier.
func (s *Sync) ChatList(entries []domain.ChatEntry) {
	if entries == nil {
		entries = []domain.ChatEntry{}
	}
	s.out.Broadcast(EventChatList, entries)
}

// Message implements ingest.MessageSink.
func (s *Sync) Message(msg domain.CanonicalMessage) {
	s.out.Broadcast(EventMessage, msg)

	event := hooks.EventMessageReceived
	if msg.FromMe {
		event = hooks.EventMessageSent
	}
	s.emitHook(event, map[string]any{
		"chatId":    msg.ConversationID,
		"sender":    msg.Sender,
		"message":   msg.Body,
		"isMedia":   msg.IsMedia,
		"messageId": msg.MessageID,
	})
}

// AutoReplySent is the scheduler's sent callback.
func (s *Sync) AutoReplySent(in autoreply.Intent, conf domain.SentConfirmation) {
	s.out.Broadcast(EventAutoReply, AutoReplyNotice{ChatID: in.ConversationID, Message: in.Text})
	s.emitHook(hooks.EventAutoReplySent, map[string]any{
		"chatId":    in.ConversationID,
		"message":   in.Text,
		"kind":      string(in.Kind),
		"trigger":   in.Trigger,
		"messageId": conf.MessageID,
	})
}

func (s *Sync) emitHook(event string, data map[string]any) {
	if s.hooks == nil {
		return
	}
	s.hooks.EmitAsync(context.Background(), event, data)
}
