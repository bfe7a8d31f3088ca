package domain

import (
	"context"
	"time"
)

// Direction tells whether a message was received or sent by the local account.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Fixed labels used in previews and message bodies.
const (
	MediaPreview     = "[Mídia]"
	MediaUnavailable = "[Mídia não disponível]"
	FilePreview      = "[Arquivo]"
	SelfSenderLabel  = "Você"
)

// CanonicalMessage is the normalized form of one sent or received message.
// For media messages Body holds the media URL, or MediaUnavailable when the
// payload could not be materialized.
type CanonicalMessage struct {
	ConversationID string    `json:"chatId"`
	Direction      Direction `json:"direction"`
	Sender         string    `json:"sender"`
	Body           string    `json:"message"`
	Caption        string    `json:"caption,omitempty"`
	IsMedia        bool      `json:"isMedia"`
	FromMe         bool      `json:"fromMe"`
	FilePath       string    `json:"filePath"`
	Timestamp      time.Time `json:"timestamp"`
	MessageID      string    `json:"messageId,omitempty"`
}

// Inbound reports whether the message was received and not self-authored.
func (m CanonicalMessage) Inbound() bool {
	return m.Direction == DirectionInbound && !m.FromMe
}

// MatchText is the text keyword rules are evaluated against.
func (m CanonicalMessage) MatchText() string {
	if m.IsMedia {
		return m.Caption
	}
	return m.Body
}

// MediaPayload is raw media content with its MIME type.
type MediaPayload struct {
	Data     []byte
	MimeType string
	Filename string
}

// MediaAsset is a materialized media file in the upload directory.
type MediaAsset struct {
	Name     string `json:"name"`
	Path     string `json:"-"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// MediaSource lazily fetches the media attached to a provider message.
type MediaSource interface {
	Fetch(ctx context.Context) (MediaPayload, error)
}

// MediaSourceFunc adapts a function to MediaSource.
type MediaSourceFunc func(ctx context.Context) (MediaPayload, error)

func (f MediaSourceFunc) Fetch(ctx context.Context) (MediaPayload, error) { return f(ctx) }

// ProviderMessage is one message as delivered by the provider session,
// either live or from a history fetch.
type ProviderMessage struct {
	ID               string
	ConversationID   string
	ConversationName string
	SenderName       string
	FromMe           bool
	Body             string
	Timestamp        time.Time
	Media            MediaSource
}

// HasMedia reports whether the message carries a media attachment.
func (m ProviderMessage) HasMedia() bool { return m.Media != nil }

// SenderLabel is the label dashboards show next to the message.
func (m ProviderMessage) SenderLabel() string {
	switch {
	case m.FromMe:
		return SelfSenderLabel
	case m.SenderName != "":
		return m.SenderName
	case m.ConversationName != "":
		return m.ConversationName
	default:
		return UserPart(m.ConversationID)
	}
}

// OutboundContent is what the relay asks the provider to send.
type OutboundContent struct {
	Text    string
	Media   *MediaPayload
	Caption string
}

// SentConfirmation is the provider's acknowledgement of a send.
type SentConfirmation struct {
	MessageID string
	Timestamp time.Time
}
