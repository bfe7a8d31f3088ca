package whatsapp

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/soyeahso/wadesk/internal/domain"
	"github.com/soyeahso/wadesk/internal/media"
	"github.com/soyeahso/wadesk/internal/store"
)

// legacyUserServer is the user server dashboards built for whatsapp-web
// still send.
const legacyUserServer = "c.us"

// ParseChatID turns a dashboard chat id into a JID. It accepts full JIDs,
// legacy "@c.us" ids and bare phone numbers.
func ParseChatID(id string) (types.JID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return types.EmptyJID, fmt.Errorf("empty chat id")
	}

	if !strings.Contains(id, "@") {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, id)
		if digits == "" {
			return types.EmptyJID, fmt.Errorf("invalid chat id %q", id)
		}
		return types.NewJID(digits, types.DefaultUserServer), nil
	}

	if user, ok := strings.CutSuffix(id, "@"+legacyUserServer); ok {
		id = user + "@" + types.DefaultUserServer
	}
	jid, err := types.ParseJID(id)
	if err != nil {
		return types.EmptyJID, fmt.Errorf("parsing chat id %q: %w", id, err)
	}
	if jid.User == "" {
		return types.EmptyJID, fmt.Errorf("invalid chat id %q", id)
	}
	return jid, nil
}

// ChatID is the journal and dashboard form of a JID.
func ChatID(jid types.JID) string {
	return jid.ToNonAD().String()
}

// messageText returns the text body of a message, or the caption of a media
// message.
func messageText(m *waE2E.Message) string {
	if m == nil {
		return ""
	}
	switch {
	case m.GetConversation() != "":
		return m.GetConversation()
	case m.GetExtendedTextMessage() != nil:
		return m.GetExtendedTextMessage().GetText()
	case m.GetImageMessage() != nil:
		return m.GetImageMessage().GetCaption()
	case m.GetVideoMessage() != nil:
		return m.GetVideoMessage().GetCaption()
	case m.GetDocumentMessage() != nil:
		return m.GetDocumentMessage().GetCaption()
	}
	return ""
}

// mediaRef extracts the download descriptor of a media message.
func mediaRef(m *waE2E.Message) *store.MediaRef {
	if m == nil {
		return nil
	}
	if im := m.GetImageMessage(); im != nil {
		return &store.MediaRef{
			Type: "image", MimeType: im.GetMimetype(),
			URL: im.GetURL(), DirectPath: im.GetDirectPath(), MediaKey: im.GetMediaKey(),
			FileSHA256: im.GetFileSHA256(), FileEncSHA256: im.GetFileEncSHA256(), FileLength: im.GetFileLength(),
		}
	}
	if vm := m.GetVideoMessage(); vm != nil {
		return &store.MediaRef{
			Type: "video", MimeType: vm.GetMimetype(),
			URL: vm.GetURL(), DirectPath: vm.GetDirectPath(), MediaKey: vm.GetMediaKey(),
			FileSHA256: vm.GetFileSHA256(), FileEncSHA256: vm.GetFileEncSHA256(), FileLength: vm.GetFileLength(),
		}
	}
	if am := m.GetAudioMessage(); am != nil {
		return &store.MediaRef{
			Type: "audio", MimeType: am.GetMimetype(),
			URL: am.GetURL(), DirectPath: am.GetDirectPath(), MediaKey: am.GetMediaKey(),
			FileSHA256: am.GetFileSHA256(), FileEncSHA256: am.GetFileEncSHA256(), FileLength: am.GetFileLength(),
		}
	}
	if dm := m.GetDocumentMessage(); dm != nil {
		return &store.MediaRef{
			Type: "document", MimeType: dm.GetMimetype(), Filename: dm.GetFileName(),
			URL: dm.GetURL(), DirectPath: dm.GetDirectPath(), MediaKey: dm.GetMediaKey(),
			FileSHA256: dm.GetFileSHA256(), FileEncSHA256: dm.GetFileEncSHA256(), FileLength: dm.GetFileLength(),
		}
	}
	if sm := m.GetStickerMessage(); sm != nil {
		return &store.MediaRef{
			Type: "sticker", MimeType: sm.GetMimetype(),
			URL: sm.GetURL(), DirectPath: sm.GetDirectPath(), MediaKey: sm.GetMediaKey(),
			FileSHA256: sm.GetFileSHA256(), FileEncSHA256: sm.GetFileEncSHA256(), FileLength: sm.GetFileLength(),
		}
	}
	return nil
}

// recordFromEvent converts a message event into a journal record. It
// returns false for events without text or media (reactions, protocol
// messages and the like).
func recordFromEvent(evt *events.Message) (store.MessageRecord, bool) {
	if evt == nil || evt.Message == nil {
		return store.MessageRecord{}, false
	}
	rec := store.MessageRecord{
		ID:        string(evt.Info.ID),
		ChatID:    ChatID(evt.Info.Chat),
		Sender:    ChatID(evt.Info.Sender),
		FromMe:    evt.Info.IsFromMe,
		Body:      messageText(evt.Message),
		Timestamp: evt.Info.Timestamp,
		Media:     mediaRef(evt.Message),
	}
	if !evt.Info.IsFromMe && !evt.Info.IsGroup {
		rec.ChatName = evt.Info.PushName
	}
	if rec.Body == "" && rec.Media == nil {
		return store.MessageRecord{}, false
	}
	return rec, true
}

// providerMessage converts a journal record into the relay's message form.
func providerMessage(rec store.MessageRecord, chatName, senderName string, src domain.MediaSource) domain.ProviderMessage {
	msg := domain.ProviderMessage{
		ID:               rec.ID,
		ConversationID:   rec.ChatID,
		ConversationName: chatName,
		SenderName:       senderName,
		FromMe:           rec.FromMe,
		Body:             rec.Body,
		Timestamp:        rec.Timestamp,
	}
	if rec.Media != nil {
		msg.Media = src
	}
	return msg
}

// descriptor makes a journaled media reference downloadable.
type descriptor struct {
	ref store.MediaRef
}

func (d descriptor) GetURL() string           { return d.ref.URL }
func (d descriptor) GetDirectPath() string    { return d.ref.DirectPath }
func (d descriptor) GetMediaKey() []byte      { return d.ref.MediaKey }
func (d descriptor) GetFileLength() uint64    { return d.ref.FileLength }
func (d descriptor) GetFileSHA256() []byte    { return d.ref.FileSHA256 }
func (d descriptor) GetFileEncSHA256() []byte { return d.ref.FileEncSHA256 }

func (d descriptor) GetMediaType() whatsmeow.MediaType {
	switch d.ref.Type {
	case "video":
		return whatsmeow.MediaVideo
	case "audio":
		return whatsmeow.MediaAudio
	case "document":
		return whatsmeow.MediaDocument
	default:
		return whatsmeow.MediaImage
	}
}

// uploadType picks the media kind an outbound payload is uploaded as.
// Images go out as image messages, everything else as documents.
func uploadType(mimeType string) whatsmeow.MediaType {
	if media.IsImage(mimeType) {
		return whatsmeow.MediaImage
	}
	return whatsmeow.MediaDocument
}

// mediaMessage builds the message for an uploaded payload.
func mediaMessage(up whatsmeow.UploadResponse, p domain.MediaPayload, caption string) *waE2E.Message {
	mimeType := p.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if uploadType(mimeType) == whatsmeow.MediaImage {
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(mimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	}

	name := p.Filename
	if name == "" {
		name = "arquivo" + media.Extension(mimeType, "")
	}
	return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		Title:         proto.String(name),
		FileName:      proto.String(name),
		Caption:       proto.String(caption),
		Mimetype:      proto.String(mimeType),
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
	}}
}

// outboundRecord is the journal entry for a message this session sent.
func outboundRecord(chat types.JID, self string, resp whatsmeow.SendResponse, msg *waE2E.Message) store.MessageRecord {
	return store.MessageRecord{
		ID:        string(resp.ID),
		ChatID:    ChatID(chat),
		Sender:    self,
		FromMe:    true,
		Body:      messageText(msg),
		Timestamp: resp.Timestamp,
		Media:     mediaRef(msg),
	}
}
