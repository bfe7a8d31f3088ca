package whatsapp

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/soyeahso/wadesk/internal/domain"
	"github.com/soyeahso/wadesk/internal/logging"
	"github.com/soyeahso/wadesk/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	events []domain.ProviderEvent
}

func (l *eventLog) record(evt domain.ProviderEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
}

func (l *eventLog) kinds() []domain.EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.EventKind, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Kind)
	}
	return out
}

func (l *eventLog) last() domain.ProviderEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

func testProvider(t *testing.T) (*Provider, *store.Journal, *eventLog) {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	journal := store.NewJournal(db)
	p := New(Options{SessionDB: t.TempDir() + "/session.db", ChatListLimit: 2}, journal, log)
	events := &eventLog{}
	p.OnEvent(events.record)
	return p, journal, events
}

func TestHandleEvent_Lifecycle(t *testing.T) {
	p, _, log := testProvider(t)

	p.handleEvent(&events.PairSuccess{ID: types.NewJID("5599", types.DefaultUserServer)})
	p.handleEvent(&events.Connected{})
	p.handleEvent(&events.Disconnected{})
	p.handleEvent(&events.LoggedOut{})

	assert.Equal(t, []domain.EventKind{
		domain.EventAuthenticated,
		domain.EventReady,
		domain.EventDisconnected,
		domain.EventAuthFailure,
	}, log.kinds())
}

func TestHandleEvent_RestoredSessionAuthenticatesOnConnect(t *testing.T) {
	p, _, log := testProvider(t)

	p.handleEvent(&events.Connected{})
	p.handleEvent(&events.Connected{})

	assert.Equal(t, []domain.EventKind{
		domain.EventAuthenticated,
		domain.EventReady,
		domain.EventReady,
	}, log.kinds())
}

func TestHandleEvent_ReadyCarriesJournalChats(t *testing.T) {
	p, journal, log := testProvider(t)
	ctx := context.Background()

	for i, id := range []string{"a@s.whatsapp.net", "b@s.whatsapp.net", "c@s.whatsapp.net"} {
		require.NoError(t, journal.UpsertChat(ctx, store.ChatRecord{ID: id, Name: id[:1], LastMessage: "oi", Timestamp: int64(100 + i)}))
	}

	p.handleEvent(&events.Connected{})

	ready := log.last()
	require.Equal(t, domain.EventReady, ready.Kind)
	require.Len(t, ready.Chats, 2)
	assert.Equal(t, "c@s.whatsapp.net", ready.Chats[0].ID)
	assert.Equal(t, "b@s.whatsapp.net", ready.Chats[1].ID)
}

func TestOnMessage_JournalsBeforeReady(t *testing.T) {
	p, journal, log := testProvider(t)

	p.handleEvent(inbound("preço"))
	assert.Empty(t, log.kinds(), "nothing forwarded before ready")

	chat, err := journal.Chat(context.Background(), "5511999990000@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "Maria", chat.Name)
	assert.Equal(t, 1, chat.Unread)
	assert.Equal(t, "preço", chat.LastMessage)
}

func TestOnMessage_ForwardsInboundAfterReady(t *testing.T) {
	p, _, log := testProvider(t)
	p.handleEvent(&events.Connected{})

	p.handleEvent(inbound("horário"))

	evt := log.last()
	require.Equal(t, domain.EventMessage, evt.Kind)
	require.NotNil(t, evt.Message)
	assert.Equal(t, "3EB0A1", evt.Message.ID)
	assert.Equal(t, "5511999990000@s.whatsapp.net", evt.Message.ConversationID)
	assert.Equal(t, "Maria", evt.Message.ConversationName)
	assert.Equal(t, "Maria", evt.Message.SenderLabel())
	assert.Equal(t, "horário", evt.Message.Body)
	assert.False(t, evt.Message.HasMedia())

	// Redelivery of the same message is dropped.
	n := len(log.kinds())
	p.handleEvent(inbound("horário"))
	assert.Len(t, log.kinds(), n)
}

func TestOnMessage_MediaAndSelf(t *testing.T) {
	p, journal, log := testProvider(t)
	p.handleEvent(&events.Connected{})

	img := inbound("")
	img.Info.ID = "IMG1"
	img.Message = &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
		Caption:  proto.String("foto"),
		Mimetype: proto.String("image/jpeg"),
	}}
	p.handleEvent(img)

	evt := log.last()
	require.Equal(t, domain.EventMessage, evt.Kind)
	assert.True(t, evt.Message.HasMedia())
	assert.Equal(t, "foto", evt.Message.Body)

	// Without a session the media source reports not ready.
	_, err := evt.Message.Media.Fetch(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotReady)

	self := inbound("já estou a caminho")
	self.Info.ID = "SELF1"
	self.Info.IsFromMe = true
	n := len(log.kinds())
	p.handleEvent(self)
	assert.Len(t, log.kinds(), n, "self-authored messages are journaled only")

	msgs, err := journal.RecentMessages(context.Background(), "5511999990000@s.whatsapp.net", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestOnMessage_IgnoresStatusBroadcast(t *testing.T) {
	p, journal, log := testProvider(t)
	p.handleEvent(&events.Connected{})
	n := len(log.kinds())

	evt := inbound("status")
	evt.Info.Chat = types.StatusBroadcastJID
	p.handleEvent(evt)

	assert.Len(t, log.kinds(), n)
	_, err := journal.Chat(context.Background(), types.StatusBroadcastJID.String())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFetchMessages_FromJournal(t *testing.T) {
	p, journal, _ := testProvider(t)
	ctx := context.Background()

	chat := "5511999990000@s.whatsapp.net"
	_, err := journal.ImportMessages(ctx, []store.MessageRecord{
		{ID: "1", ChatID: chat, ChatName: "Maria", Sender: chat, Body: "primeira", Timestamp: time.Unix(100, 0)},
		{ID: "2", ChatID: chat, Sender: chat, Body: "segunda", Timestamp: time.Unix(200, 0),
			Media: &store.MediaRef{Type: "image", MimeType: "image/jpeg"}},
	})
	require.NoError(t, err)

	msgs, err := p.FetchMessages(ctx, "5511999990000@c.us", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "2", msgs[0].ID, "newest first")
	assert.True(t, msgs[0].HasMedia())
	assert.Equal(t, "1", msgs[1].ID)
	assert.Equal(t, "Maria", msgs[1].ConversationName)
	assert.False(t, msgs[1].HasMedia())

	_, err = p.FetchMessages(ctx, "", 10)
	assert.Error(t, err)
}

func TestGetConversation(t *testing.T) {
	p, journal, _ := testProvider(t)
	ctx := context.Background()
	require.NoError(t, journal.UpsertChat(ctx, store.ChatRecord{ID: "5511@s.whatsapp.net", Name: "Maria", Unread: 2}))

	info, err := p.GetConversation(ctx, "5511@c.us")
	require.NoError(t, err)
	assert.Equal(t, "Maria", info.Name)
	assert.Equal(t, 2, info.UnreadCount)

	_, err = p.GetConversation(ctx, "5522@s.whatsapp.net")
	assert.ErrorIs(t, err, domain.ErrUnknownConversation)
}

func TestNotReadyOperations(t *testing.T) {
	p, _, _ := testProvider(t)
	ctx := context.Background()

	_, err := p.Send(ctx, "5511@s.whatsapp.net", domain.OutboundContent{Text: "oi"})
	assert.ErrorIs(t, err, domain.ErrNotReady)

	assert.ErrorIs(t, p.MarkSeen(ctx, "5511@s.whatsapp.net"), domain.ErrNotReady)
	assert.NoError(t, p.Stop(ctx), "stopping an idle provider is a no-op")
}
