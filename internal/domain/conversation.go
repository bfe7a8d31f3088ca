package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ConversationSummary is the chat-list view of one conversation.
type ConversationSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	LastMessage string `json:"lastMessage"`
	Unread      int    `json:"unread"`
	Timestamp   int64  `json:"timestamp"` // unix seconds, provider supplied
}

// UnreadOp says how a patch changes the unread counter.
type UnreadOp int

const (
	UnreadKeep UnreadOp = iota
	UnreadIncrement
	UnreadReset
)

// SummaryPatch is a partial update to a ConversationSummary. Nil fields are
// left untouched. Name is only applied when the entry has no name yet.
type SummaryPatch struct {
	Name        *string
	LastMessage *string
	Timestamp   *int64
	Unread      UnreadOp
}

// ChatDelta is the fan-out payload for a single summary change. Only the
// fields that changed are populated.
type ChatDelta struct {
	ChatID      string  `json:"chatId"`
	LastMessage *string `json:"lastMessage,omitempty"`
	Unread      *int    `json:"unread,omitempty"`
	Timestamp   *int64  `json:"timestamp,omitempty"`
}

// ChatEntry pairs a conversation id with its summary. It encodes as a
// two-element JSON array, the shape dashboards expect in chat-list-update.
type ChatEntry struct {
	ID      string
	Summary ConversationSummary
}

func (e ChatEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.ID, e.Summary})
}

func (e *ChatEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("chat entry: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.ID); err != nil {
		return fmt.Errorf("chat entry id: %w", err)
	}
	return json.Unmarshal(pair[1], &e.Summary)
}

// ChatInfo is a conversation as reported by the provider.
type ChatInfo struct {
	ID          string
	Name        string
	LastMessage string
	UnreadCount int
	Timestamp   int64
}

// NoMessagePreview is shown for chats that have no last message yet.
const NoMessagePreview = "Nenhuma mensagem"

// Summary converts provider chat info into a registry summary, applying the
// display fallbacks used by the chat list.
func (c ChatInfo) Summary() ConversationSummary {
	name := c.Name
	if name == "" {
		name = UserPart(c.ID)
	}
	last := c.LastMessage
	if last == "" {
		last = NoMessagePreview
	}
	unread := c.UnreadCount
	if unread < 0 {
		unread = 0
	}
	return ConversationSummary{
		ID:          c.ID,
		Name:        name,
		LastMessage: last,
		Unread:      unread,
		Timestamp:   c.Timestamp,
	}
}

// UserPart returns the portion of an address before the server suffix,
// e.g. "5511999990000" for "5511999990000@s.whatsapp.net".
func UserPart(id string) string {
	if i := strings.IndexByte(id, '@'); i >= 0 {
		return id[:i]
	}
	return id
}
