package whatsapp

import (
	"context"
	"fmt"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/soyeahso/wadesk/internal/domain"
	"github.com/soyeahso/wadesk/internal/store"
)

// handleEvent maps whatsmeow events onto provider lifecycle events.
func (p *Provider) handleEvent(raw any) {
	switch evt := raw.(type) {
	case *events.PairSuccess:
		p.log.Info().Str("jid", evt.ID.String()).Msg("device paired")
		p.authenticate()
	case *events.Connected:
		p.authenticate()
		p.onConnected()
	case *events.Message:
		p.onMessage(evt)
	case *events.HistorySync:
		if p.opts.HistorySync {
			p.onHistorySync(evt)
		}
	case *events.Disconnected:
		p.disconnected("connection lost")
	case *events.StreamReplaced:
		p.disconnected("session opened elsewhere")
	case *events.LoggedOut:
		p.authFailure(fmt.Sprintf("logged out: %v", evt.Reason))
	case *events.ConnectFailure:
		p.authFailure(fmt.Sprintf("connect failure: %v %s", evt.Reason, evt.Message))
	case *events.TemporaryBan:
		p.authFailure("temporary ban")
	case *events.ClientOutdated:
		p.authFailure("client outdated")
	}
}

// authenticate reports authenticated once per session.
func (p *Provider) authenticate() {
	p.mu.Lock()
	already := p.authed
	p.authed = true
	p.mu.Unlock()
	if !already {
		p.emit(domain.ProviderEvent{Kind: domain.EventAuthenticated})
	}
}

func (p *Provider) onConnected() {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	recs, err := p.journal.RecentChats(ctx, p.opts.ChatListLimit)
	if err != nil {
		p.log.Error().Err(err).Msg("loading journal chats")
	}
	chats := make([]domain.ChatInfo, 0, len(recs))
	for _, c := range recs {
		chats = append(chats, c.Info())
	}

	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()

	p.log.Info().Int("chats", len(chats)).Msg("session ready")
	p.emit(domain.ProviderEvent{Kind: domain.EventReady, Chats: chats})
}

func (p *Provider) disconnected(reason string) {
	p.mu.Lock()
	p.ready = false
	p.mu.Unlock()
	p.log.Warn().Str("reason", reason).Msg("session disconnected")
	p.emit(domain.ProviderEvent{Kind: domain.EventDisconnected, Reason: reason})
}

func (p *Provider) authFailure(reason string) {
	p.mu.Lock()
	p.ready, p.authed = false, false
	p.mu.Unlock()
	p.log.Warn().Str("reason", reason).Msg("session auth failure")
	p.emit(domain.ProviderEvent{Kind: domain.EventAuthFailure, Reason: reason})
}

func (p *Provider) isReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// onMessage journals a live message and forwards inbound ones. Messages
// that arrive before ready are journaled only; the ready chat list
// reflects them.
func (p *Provider) onMessage(evt *events.Message) {
	if evt.Info.Chat == types.StatusBroadcastJID {
		return
	}
	rec, ok := recordFromEvent(evt)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	added, err := p.journal.RecordMessage(ctx, rec)
	if err != nil {
		p.log.Error().Err(err).Str("chatId", rec.ChatID).Str("messageId", rec.ID).Msg("journal message failed")
	} else if !added {
		return
	}

	if rec.FromMe || !p.isReady() {
		return
	}

	chatName := ""
	if chat, err := p.journal.Chat(ctx, rec.ChatID); err == nil {
		chatName = chat.Name
	}
	var src domain.MediaSource
	if rec.Media != nil {
		src = p.mediaSource(*rec.Media)
	}
	msg := providerMessage(rec, chatName, evt.Info.PushName, src)
	p.emit(domain.ProviderEvent{Kind: domain.EventMessage, Message: &msg})
}

// onHistorySync imports a history batch into the journal.
func (p *Provider) onHistorySync(evt *events.HistorySync) {
	client := p.current()
	if client == nil || evt.Data == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	imported := 0
	for _, conv := range evt.Data.GetConversations() {
		chatJID, err := types.ParseJID(conv.GetID())
		if err != nil || chatJID == types.StatusBroadcastJID {
			continue
		}
		name := conv.GetDisplayName()

		var recs []store.MessageRecord
		for _, hm := range conv.GetMessages() {
			msg, err := client.ParseWebMessage(chatJID, hm.GetMessage())
			if err != nil {
				continue
			}
			rec, ok := recordFromEvent(msg)
			if !ok {
				continue
			}
			rec.ChatName = name
			recs = append(recs, rec)
		}

		if err := p.journal.SetChatName(ctx, ChatID(chatJID), name); err != nil {
			p.log.Warn().Err(err).Str("chatId", ChatID(chatJID)).Msg("naming chat failed")
		}
		n, err := p.journal.ImportMessages(ctx, recs)
		if err != nil {
			p.log.Warn().Err(err).Str("chatId", ChatID(chatJID)).Msg("history import failed")
		}
		imported += n
	}
	p.log.Debug().Int("messages", imported).Str("type", evt.Data.GetSyncType().String()).Msg("history sync imported")
}
