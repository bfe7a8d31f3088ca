package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/wadesk/internal/domain"
)

// ErrNotFound is returned when a chat is not in the journal.
var ErrNotFound = errors.New("store: not found")

// ChatRecord is one journaled conversation.
type ChatRecord struct {
	ID          string
	Name        string
	LastMessage string
	Unread      int
	Timestamp   int64
}

// Info converts the record into provider chat info.
func (c ChatRecord) Info() domain.ChatInfo {
	return domain.ChatInfo{
		ID:          c.ID,
		Name:        c.Name,
		LastMessage: c.LastMessage,
		UnreadCount: c.Unread,
		Timestamp:   c.Timestamp,
	}
}

// MediaRef describes downloadable media attached to a message.
type MediaRef struct {
	Type          string // image, video, audio, document, sticker
	MimeType      string
	Filename      string
	URL           string
	DirectPath    string
	MediaKey      []byte
	FileSHA256    []byte
	FileEncSHA256 []byte
	FileLength    uint64
}

// MessageRecord is one journaled message.
type MessageRecord struct {
	ID        string
	ChatID    string
	ChatName  string // applied to the chat only if it has no name yet
	Sender    string
	FromMe    bool
	Body      string // text, or the caption of a media message
	Timestamp time.Time
	Media     *MediaRef
}

// Preview is the chat-list text for the message.
func (m MessageRecord) Preview() string {
	if m.Media != nil {
		return domain.MediaPreview
	}
	return m.Body
}

// Journal records chats and messages seen by the provider session so that
// chat lists and history can be served locally.
type Journal struct {
	db *DB
}

// NewJournal creates a journal on db.
func NewJournal(db *DB) *Journal {
	return &Journal{db: db}
}

// UpsertChat inserts or updates a chat. An empty name keeps the stored one,
// and the preview only moves forward in time.
func (j *Journal) UpsertChat(ctx context.Context, c ChatRecord) error {
	_, err := j.db.sql.ExecContext(ctx, `
		INSERT INTO chats (id, name, last_message, unread, timestamp)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE chats.name END,
			unread = excluded.unread,
			last_message = CASE
				WHEN excluded.last_message <> '' AND excluded.timestamp >= chats.timestamp THEN excluded.last_message
				ELSE chats.last_message END,
			timestamp = MAX(chats.timestamp, excluded.timestamp),
			updated_at = datetime('now')`,
		c.ID, c.Name, c.LastMessage, max(c.Unread, 0), c.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("upserting chat %s: %w", c.ID, err)
	}
	return nil
}

// SetChatName names a chat, creating it if needed.
func (j *Journal) SetChatName(ctx context.Context, id, name string) error {
	if name == "" {
		return nil
	}
	_, err := j.db.sql.ExecContext(ctx, `
		INSERT INTO chats (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = datetime('now')`,
		id, name,
	)
	if err != nil {
		return fmt.Errorf("naming chat %s: %w", id, err)
	}
	return nil
}

// RecordMessage journals a live message. Inbound messages bump the chat's
// unread count and outbound ones reset it. It reports false for a message
// that was already journaled.
func (j *Journal) RecordMessage(ctx context.Context, m MessageRecord) (bool, error) {
	return j.record(ctx, m, true)
}

// ImportMessages journals history-sync messages without touching unread
// counts. It returns how many were new.
func (j *Journal) ImportMessages(ctx context.Context, msgs []MessageRecord) (int, error) {
	n := 0
	for _, m := range msgs {
		added, err := j.record(ctx, m, false)
		if err != nil {
			return n, err
		}
		if added {
			n++
		}
	}
	return n, nil
}

func (j *Journal) record(ctx context.Context, m MessageRecord, live bool) (bool, error) {
	tx, err := j.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin record message: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chats (id, name) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		m.ChatID, m.ChatName,
	); err != nil {
		return false, fmt.Errorf("creating chat %s: %w", m.ChatID, err)
	}

	media := m.Media
	if media == nil {
		media = &MediaRef{}
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (chat_id, id, sender, from_me, body, timestamp, seen,
			media_type, mimetype, filename, url, direct_path, media_key, file_sha256, file_enc_sha256, file_length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, id) DO NOTHING`,
		m.ChatID, m.ID, m.Sender, m.FromMe, m.Body, m.Timestamp.Unix(), m.FromMe || !live,
		media.Type, media.MimeType, media.Filename, media.URL, media.DirectPath,
		media.MediaKey, media.FileSHA256, media.FileEncSHA256, int64(media.FileLength),
	)
	if err != nil {
		return false, fmt.Errorf("inserting message %s: %w", m.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	ts := m.Timestamp.Unix()
	unread := `unread`
	args := []any{ts, m.Preview(), ts}
	if live {
		unread = `CASE WHEN ? THEN 0 ELSE unread + 1 END`
		args = append(args, m.FromMe)
	}
	args = append(args, m.ChatName, m.ChatID)

	if _, err := tx.ExecContext(ctx, `
		UPDATE chats SET
			last_message = CASE WHEN ? >= timestamp THEN ? ELSE last_message END,
			timestamp = MAX(timestamp, ?),
			unread = `+unread+`,
			name = CASE WHEN name = '' THEN ? ELSE name END,
			updated_at = datetime('now')
		WHERE id = ?`,
		args...,
	); err != nil {
		return false, fmt.Errorf("updating chat %s: %w", m.ChatID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit record message: %w", err)
	}
	return true, nil
}

// ResetUnread zeroes a chat's unread count and marks its messages seen.
func (j *Journal) ResetUnread(ctx context.Context, chatID string) error {
	tx, err := j.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset unread: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE chats SET unread = 0 WHERE id = ?`, chatID); err != nil {
		return fmt.Errorf("resetting unread for %s: %w", chatID, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE messages SET seen = 1 WHERE chat_id = ? AND seen = 0`, chatID); err != nil {
		return fmt.Errorf("marking messages seen for %s: %w", chatID, err)
	}
	return tx.Commit()
}

// Chat returns one chat.
func (j *Journal) Chat(ctx context.Context, id string) (ChatRecord, error) {
	var c ChatRecord
	err := j.db.sql.QueryRowContext(ctx,
		`SELECT id, name, last_message, unread, timestamp FROM chats WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.LastMessage, &c.Unread, &c.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return ChatRecord{}, ErrNotFound
	}
	if err != nil {
		return ChatRecord{}, fmt.Errorf("loading chat %s: %w", id, err)
	}
	return c, nil
}

// RecentChats returns up to limit chats, most recently active first.
func (j *Journal) RecentChats(ctx context.Context, limit int) ([]ChatRecord, error) {
	rows, err := j.db.sql.QueryContext(ctx,
		`SELECT id, name, last_message, unread, timestamp FROM chats
		 ORDER BY timestamp DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}
	defer rows.Close()

	var out []ChatRecord
	for rows.Next() {
		var c ChatRecord
		if err := rows.Scan(&c.ID, &c.Name, &c.LastMessage, &c.Unread, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning chat: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const messageColumns = `id, chat_id, sender, from_me, body, timestamp,
	media_type, mimetype, filename, url, direct_path, media_key, file_sha256, file_enc_sha256, file_length`

// RecentMessages returns up to limit messages of a chat, newest first.
func (j *Journal) RecentMessages(ctx context.Context, chatID string, limit int) ([]MessageRecord, error) {
	return j.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE chat_id = ?
		 ORDER BY timestamp DESC, rowid DESC LIMIT ?`, chatID, limit)
}

// UnseenMessages returns the inbound messages of a chat not yet marked seen,
// oldest first.
func (j *Journal) UnseenMessages(ctx context.Context, chatID string) ([]MessageRecord, error) {
	return j.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE chat_id = ? AND seen = 0 AND from_me = 0
		 ORDER BY timestamp, rowid`, chatID)
}

func (j *Journal) queryMessages(ctx context.Context, query string, args ...any) ([]MessageRecord, error) {
	rows, err := j.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var (
			m      MessageRecord
			ts     int64
			media  MediaRef
			length int64
		)
		if err := rows.Scan(
			&m.ID, &m.ChatID, &m.Sender, &m.FromMe, &m.Body, &ts,
			&media.Type, &media.MimeType, &media.Filename, &media.URL, &media.DirectPath,
			&media.MediaKey, &media.FileSHA256, &media.FileEncSHA256, &length,
		); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Timestamp = time.Unix(ts, 0)
		if media.Type != "" {
			media.FileLength = uint64(length)
			m.Media = &media
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
