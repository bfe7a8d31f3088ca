// Package provider selects the messaging session the relay drives.
package provider

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/soyeahso/wadesk/internal/config"
	"github.com/soyeahso/wadesk/internal/domain"
	"github.com/soyeahso/wadesk/internal/logging"
	"github.com/soyeahso/wadesk/internal/provider/whatsapp"
	"github.com/soyeahso/wadesk/internal/store"
)

// New builds the provider named by cfg.Kind.
func New(cfg config.ProviderConfig, session config.SessionConfig, journal *store.Journal, qrOut io.Writer, log *logging.Logger) (domain.Provider, error) {
	switch cfg.Kind {
	case "", "whatsapp":
		return whatsapp.New(whatsapp.Options{
			SessionDB:     cfg.SessionDB,
			PrintQR:       cfg.ShouldPrintQR(),
			QROut:         qrOut,
			SendRate:      cfg.SendRatePerSecond,
			SendBurst:     cfg.SendBurst,
			HistorySync:   cfg.HistorySync,
			ChatListLimit: session.ChatListLimit,
		}, journal, log), nil
	case "none":
		return NewOffline(journal, session.ChatListLimit, log), nil
	default:
		return nil, fmt.Errorf("provider: unknown kind %q", cfg.Kind)
	}
}

// Offline serves the journal without a messaging session. Start reports
// ready with the journaled chats; sends fail with domain.ErrNotReady.
type Offline struct {
	journal *store.Journal
	limit   int
	log     *logging.Logger

	mu      sync.Mutex
	handler func(domain.ProviderEvent)
}

// NewOffline creates an offline provider over journal.
func NewOffline(journal *store.Journal, chatListLimit int, log *logging.Logger) *Offline {
	if chatListLimit <= 0 {
		chatListLimit = 30
	}
	return &Offline{journal: journal, limit: chatListLimit, log: log.Sub("offline")}
}

func (o *Offline) OnEvent(handler func(evt domain.ProviderEvent)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handler = handler
}

func (o *Offline) emit(evt domain.ProviderEvent) {
	o.mu.Lock()
	h := o.handler
	o.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

func (o *Offline) Start(ctx context.Context) error {
	recs, err := o.journal.RecentChats(ctx, o.limit)
	if err != nil {
		return err
	}
	chats := make([]domain.ChatInfo, 0, len(recs))
	for _, c := range recs {
		chats = append(chats, c.Info())
	}
	o.log.Info().Int("chats", len(chats)).Msg("offline session ready")
	o.emit(domain.ProviderEvent{Kind: domain.EventReady, Chats: chats})
	return nil
}

func (o *Offline) Stop(context.Context) error { return nil }

func (o *Offline) Send(context.Context, string, domain.OutboundContent) (domain.SentConfirmation, error) {
	return domain.SentConfirmation{}, domain.ErrNotReady
}

func (o *Offline) GetConversation(ctx context.Context, conversationID string) (domain.ChatInfo, error) {
	rec, err := o.journal.Chat(ctx, conversationID)
	if err != nil {
		return domain.ChatInfo{}, fmt.Errorf("%w: %s", domain.ErrUnknownConversation, conversationID)
	}
	return rec.Info(), nil
}

// FetchMessages returns journaled messages. Media cannot be downloaded
// offline, so media messages come back without a source.
func (o *Offline) FetchMessages(ctx context.Context, conversationID string, limit int) ([]domain.ProviderMessage, error) {
	recs, err := o.journal.RecentMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProviderMessage, 0, len(recs))
	for _, r := range recs {
		body := r.Body
		if r.Media != nil && body == "" {
			body = domain.MediaPreview
		}
		out = append(out, domain.ProviderMessage{
			ID:             r.ID,
			ConversationID: r.ChatID,
			FromMe:         r.FromMe,
			Body:           body,
			Timestamp:      r.Timestamp,
		})
	}
	return out, nil
}

func (o *Offline) MarkSeen(ctx context.Context, conversationID string) error {
	return o.journal.ResetUnread(ctx, conversationID)
}
