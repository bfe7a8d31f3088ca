// Package whatsapp drives a WhatsApp multi-device session through whatsmeow
// and journals everything it sees.
package whatsapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver for the device store

	"github.com/soyeahso/wadesk/internal/domain"
	"github.com/soyeahso/wadesk/internal/logging"
	"github.com/soyeahso/wadesk/internal/store"
)

// eventTimeout bounds journal writes made from whatsmeow event handlers.
const eventTimeout = 10 * time.Second

// Options configures a Provider.
type Options struct {
	SessionDB     string    // whatsmeow device store path
	PrintQR       bool      // echo login QR codes to QROut
	QROut         io.Writer // defaults to os.Stdout
	SendRate      float64   // sends per second
	SendBurst     int
	HistorySync   bool // import history sync batches into the journal
	ChatListLimit int  // chats reported on ready
}

// Provider is a domain.Provider backed by whatsmeow.
type Provider struct {
	opts    Options
	journal *store.Journal
	log     *logging.Logger
	limiter *rate.Limiter

	mu        sync.Mutex
	handler   func(domain.ProviderEvent)
	container *sqlstore.Container
	client    *whatsmeow.Client
	cancelQR  context.CancelFunc
	authed    bool
	ready     bool
}

// New creates a provider. No connection is made until Start.
func New(opts Options, journal *store.Journal, log *logging.Logger) *Provider {
	if opts.QROut == nil {
		opts.QROut = os.Stdout
	}
	if opts.SendRate <= 0 {
		opts.SendRate = 2
	}
	if opts.SendBurst <= 0 {
		opts.SendBurst = 5
	}
	if opts.ChatListLimit <= 0 {
		opts.ChatListLimit = 30
	}
	return &Provider{
		opts:    opts,
		journal: journal,
		log:     log.Sub("whatsapp"),
		limiter: rate.NewLimiter(rate.Limit(opts.SendRate), opts.SendBurst),
	}
}

// OnEvent registers the lifecycle event handler.
func (p *Provider) OnEvent(handler func(evt domain.ProviderEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

func (p *Provider) emit(evt domain.ProviderEvent) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

// openContainer opens the device store once per provider.
func (p *Provider) openContainer(ctx context.Context) (*sqlstore.Container, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.container != nil {
		return p.container, nil
	}

	if err := os.MkdirAll(filepath.Dir(p.opts.SessionDB), 0o700); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	dsn := "file:" + p.opts.SessionDB + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	container, err := sqlstore.New(ctx, "sqlite", dsn, newWALogger(p.log.Sub("whatsmeow-db")))
	if err != nil {
		return nil, fmt.Errorf("opening device store: %w", err)
	}
	p.container = container
	return container, nil
}

// Start opens the device store and connects. Unpaired devices get a QR
// channel whose codes are reported as qr events.
func (p *Provider) Start(ctx context.Context) error {
	p.mu.Lock()
	running := p.client != nil
	p.mu.Unlock()
	if running {
		return nil
	}

	container, err := p.openContainer(ctx)
	if err != nil {
		return err
	}
	device, err := container.GetFirstDevice(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		device = container.NewDevice()
	} else if err != nil {
		return fmt.Errorf("loading device: %w", err)
	}

	client := whatsmeow.NewClient(device, newWALogger(p.log.Sub("whatsmeow")))
	// Reconnects are scheduled by the relay.
	client.EnableAutoReconnect = false
	client.AddEventHandler(p.handleEvent)

	var cancelQR context.CancelFunc
	if client.Store.ID == nil {
		qrCtx, cancel := context.WithCancel(context.Background())
		qrChan, err := client.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			return fmt.Errorf("opening qr channel: %w", err)
		}
		cancelQR = cancel
		go p.watchQR(qrChan)
	}

	p.mu.Lock()
	p.client = client
	p.cancelQR = cancelQR
	p.authed = false
	p.ready = false
	p.mu.Unlock()

	if err := client.Connect(); err != nil {
		p.mu.Lock()
		p.client = nil
		p.cancelQR = nil
		p.mu.Unlock()
		if cancelQR != nil {
			cancelQR()
		}
		client.RemoveEventHandlers()
		return fmt.Errorf("connecting: %w", err)
	}

	p.log.Info().Bool("paired", client.Store.ID != nil).Msg("session started")
	return nil
}

// Stop disconnects the session. The device store stays open for the next
// Start.
func (p *Provider) Stop(ctx context.Context) error {
	p.mu.Lock()
	client, cancel := p.client, p.cancelQR
	p.client, p.cancelQR = nil, nil
	p.authed, p.ready = false, false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client == nil {
		return nil
	}
	client.RemoveEventHandlers()
	client.Disconnect()
	p.log.Info().Msg("session stopped")
	return nil
}

func (p *Provider) watchQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			if p.opts.PrintQR {
				qrterminal.GenerateHalfBlock(item.Code, qrterminal.L, p.opts.QROut)
			}
			p.emit(domain.ProviderEvent{Kind: domain.EventQR, QR: item.Code})
		case "success":
			p.log.Info().Msg("qr pairing succeeded")
		case "timeout":
			p.emit(domain.ProviderEvent{Kind: domain.EventAuthFailure, Reason: "qr code timed out"})
		default:
			reason := item.Event
			if item.Error != nil {
				reason = item.Error.Error()
			}
			p.emit(domain.ProviderEvent{Kind: domain.EventAuthFailure, Reason: reason})
		}
	}
}

func (p *Provider) current() *whatsmeow.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client
}

// session returns the logged-in client or domain.ErrNotReady.
func (p *Provider) session() (*whatsmeow.Client, error) {
	client := p.current()
	if client == nil || !client.IsLoggedIn() {
		return nil, domain.ErrNotReady
	}
	return client, nil
}

// Send delivers text or media. Media is uploaded first and sent as an image
// or document message captioned with content.Caption.
func (p *Provider) Send(ctx context.Context, conversationID string, content domain.OutboundContent) (domain.SentConfirmation, error) {
	client, err := p.session()
	if err != nil {
		return domain.SentConfirmation{}, err
	}
	jid, err := ParseChatID(conversationID)
	if err != nil {
		return domain.SentConfirmation{}, err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.SentConfirmation{}, fmt.Errorf("waiting for send slot: %w", err)
	}

	var msg *waE2E.Message
	if content.Media != nil {
		if len(content.Media.Data) == 0 {
			return domain.SentConfirmation{}, fmt.Errorf("empty media payload")
		}
		up, err := client.Upload(ctx, content.Media.Data, uploadType(content.Media.MimeType))
		if err != nil {
			return domain.SentConfirmation{}, fmt.Errorf("uploading media: %w", err)
		}
		msg = mediaMessage(up, *content.Media, content.Caption)
	} else {
		if strings.TrimSpace(content.Text) == "" {
			return domain.SentConfirmation{}, fmt.Errorf("empty message")
		}
		msg = &waE2E.Message{Conversation: proto.String(content.Text)}
	}

	resp, err := client.SendMessage(ctx, jid, msg)
	if err != nil {
		return domain.SentConfirmation{}, fmt.Errorf("sending to %s: %w", jid, err)
	}

	self := ""
	if client.Store.ID != nil {
		self = ChatID(*client.Store.ID)
	}
	if _, err := p.journal.RecordMessage(ctx, outboundRecord(jid, self, resp, msg)); err != nil {
		p.log.Warn().Err(err).Str("chatId", ChatID(jid)).Msg("journal outbound failed")
	}

	return domain.SentConfirmation{MessageID: string(resp.ID), Timestamp: resp.Timestamp}, nil
}

// GetConversation returns the journaled chat, named from the contact store
// when the journal has no name.
func (p *Provider) GetConversation(ctx context.Context, conversationID string) (domain.ChatInfo, error) {
	jid, err := ParseChatID(conversationID)
	if err != nil {
		return domain.ChatInfo{}, err
	}
	id := ChatID(jid)

	info := domain.ChatInfo{ID: id}
	rec, err := p.journal.Chat(ctx, id)
	switch {
	case err == nil:
		info = rec.Info()
	case !errors.Is(err, store.ErrNotFound):
		return domain.ChatInfo{}, err
	}

	if info.Name == "" {
		info.Name = p.contactName(ctx, jid)
	}
	if info.Name == "" && errors.Is(err, store.ErrNotFound) {
		return domain.ChatInfo{}, fmt.Errorf("%w: %s", domain.ErrUnknownConversation, id)
	}
	return info, nil
}

func (p *Provider) contactName(ctx context.Context, jid types.JID) string {
	client := p.current()
	if client == nil || client.Store == nil || client.Store.Contacts == nil {
		return ""
	}
	contact, err := client.Store.Contacts.GetContact(ctx, jid)
	if err != nil || !contact.Found {
		return ""
	}
	for _, name := range []string{contact.FullName, contact.FirstName, contact.BusinessName, contact.PushName} {
		if name != "" {
			return name
		}
	}
	return ""
}

// FetchMessages serves history from the journal, newest first. Media is
// downloaded on demand by the returned messages.
func (p *Provider) FetchMessages(ctx context.Context, conversationID string, limit int) ([]domain.ProviderMessage, error) {
	jid, err := ParseChatID(conversationID)
	if err != nil {
		return nil, err
	}
	id := ChatID(jid)

	recs, err := p.journal.RecentMessages(ctx, id, limit)
	if err != nil {
		return nil, err
	}

	chatName := ""
	if chat, err := p.journal.Chat(ctx, id); err == nil {
		chatName = chat.Name
	}

	out := make([]domain.ProviderMessage, 0, len(recs))
	for _, rec := range recs {
		var src domain.MediaSource
		if rec.Media != nil {
			src = p.mediaSource(*rec.Media)
		}
		out = append(out, providerMessage(rec, chatName, "", src))
	}
	return out, nil
}

// MarkSeen sends read receipts for unseen inbound messages and resets the
// journal's unread count.
func (p *Provider) MarkSeen(ctx context.Context, conversationID string) error {
	client, err := p.session()
	if err != nil {
		return err
	}
	jid, err := ParseChatID(conversationID)
	if err != nil {
		return err
	}
	id := ChatID(jid)

	unseen, err := p.journal.UnseenMessages(ctx, id)
	if err != nil {
		return err
	}

	// Receipts are per sender in groups.
	bySender := make(map[string][]types.MessageID)
	var order []string
	for _, m := range unseen {
		if _, ok := bySender[m.Sender]; !ok {
			order = append(order, m.Sender)
		}
		bySender[m.Sender] = append(bySender[m.Sender], types.MessageID(m.ID))
	}
	for _, sender := range order {
		senderJID := types.EmptyJID
		if jid.Server == types.GroupServer {
			if s, err := types.ParseJID(sender); err == nil {
				senderJID = s
			}
		}
		if err := client.MarkRead(ctx, bySender[sender], time.Now(), jid, senderJID); err != nil {
			return fmt.Errorf("sending read receipts: %w", err)
		}
	}

	return p.journal.ResetUnread(ctx, id)
}

// mediaSource downloads a journaled media reference.
func (p *Provider) mediaSource(ref store.MediaRef) domain.MediaSource {
	return domain.MediaSourceFunc(func(ctx context.Context) (domain.MediaPayload, error) {
		client, err := p.session()
		if err != nil {
			return domain.MediaPayload{}, err
		}
		data, err := client.Download(ctx, descriptor{ref: ref})
		if err != nil {
			return domain.MediaPayload{}, err
		}
		return domain.MediaPayload{Data: data, MimeType: ref.MimeType, Filename: ref.Filename}, nil
	})
}
