package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/wadesk/internal/domain"
	"github.com/soyeahso/wadesk/internal/hooks"
	"github.com/soyeahso/wadesk/internal/media"
)

// SentReceipt is the payload of EventMessageSent.
type SentReceipt struct {
	ChatID    string    `json:"chatId"`
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageStatus is the payload of EventMessageStatus.
type MessageStatus struct {
	ChatID    string    `json:"chatId"`
	Status    string    `json:"status"`
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

// FileUpload is a file sent from a dashboard. Data is base64, optionally
// as a data URL.
type FileUpload struct {
	Name     string `json:"name"`
	MimeType string `json:"mimetype"`
	Data     string `json:"data"`
}

// FileReceipt is the payload of EventFileUploaded.
type FileReceipt struct {
	ChatID    string    `json:"chatId"`
	FileName  string    `json:"fileName"`
	FileURL   string    `json:"fileUrl"`
	Timestamp time.Time `json:"timestamp"`
}

// LoadError is the payload of EventLoadError.
type LoadError struct {
	ChatID string `json:"chatId"`
	Error  string `json:"error"`
}

// Transcription answers a transcribe-audio command.
type Transcription struct {
	Success bool   `json:"success"`
	Text    string `json:"text,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SendMessage sends text to chatID on behalf of obs.
func (r *Relay) SendMessage(ctx context.Context, obs Observer, chatID, text string) (SentReceipt, error) {
	if chatID == "" || text == "" || !r.ready() {
		return SentReceipt{}, ErrIgnored
	}

	conf, err := r.deps.Provider.Send(ctx, chatID, domain.OutboundContent{Text: text})
	if err != nil {
		r.log.Error().Err(err).Str("chatId", chatID).Msg("send failed")
		r.emit(obs, EventError, sendFailedPrefix+err.Error())
		return SentReceipt{}, fmt.Errorf("sending message: %w", err)
	}
	conf = confirmed(conf)

	r.deps.Ingest.RecordOutbound(domain.CanonicalMessage{
		ConversationID: chatID,
		Direction:      domain.DirectionOutbound,
		Sender:         domain.SelfSenderLabel,
		Body:           text,
		FromMe:         true,
		Timestamp:      conf.Timestamp,
		MessageID:      conf.MessageID,
	}, text)

	receipt := SentReceipt{ChatID: chatID, MessageID: conf.MessageID, Timestamp: conf.Timestamp}
	r.emit(obs, EventMessageSent, receipt)
	r.emit(obs, EventMessageStatus, MessageStatus{
		ChatID:    chatID,
		Status:    "sent",
		MessageID: conf.MessageID,
		Timestamp: time.Now().UTC(),
	})
	return receipt, nil
}

// SendFile stores file in the media cache and sends it to chatID with the
// file name as caption.
func (r *Relay) SendFile(ctx context.Context, obs Observer, chatID string, file *FileUpload) (FileReceipt, error) {
	if chatID == "" || file == nil || file.Data == "" || !r.ready() {
		return FileReceipt{}, ErrIgnored
	}

	fail := func(err error) (FileReceipt, error) {
		r.log.Error().Err(err).Str("chatId", chatID).Str("file", file.Name).Msg("file send failed")
		r.emit(obs, EventError, fileFailedPrefix+err.Error())
		return FileReceipt{}, fmt.Errorf("sending file: %w", err)
	}

	data, err := media.DecodeBase64(file.Data)
	if err != nil {
		return fail(err)
	}
	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	conf, err := r.deps.Provider.Send(ctx, chatID, domain.OutboundContent{
		Media:   &domain.MediaPayload{Data: data, MimeType: mimeType, Filename: file.Name},
		Caption: file.Name,
	})
	if err != nil {
		return fail(err)
	}
	conf = confirmed(conf)

	asset, err := r.deps.Media.Save(file.Name, data, mimeType)
	if err != nil {
		return fail(err)
	}

	r.deps.Ingest.RecordOutbound(domain.CanonicalMessage{
		ConversationID: chatID,
		Direction:      domain.DirectionOutbound,
		Sender:         domain.SelfSenderLabel,
		Body:           asset.URL,
		Caption:        file.Name,
		IsMedia:        true,
		FromMe:         true,
		FilePath:       asset.URL,
		Timestamp:      conf.Timestamp,
		MessageID:      conf.MessageID,
	}, domain.FilePreview)

	receipt := FileReceipt{ChatID: chatID, FileName: file.Name, FileURL: asset.URL, Timestamp: conf.Timestamp}
	r.emit(obs, EventFileUploaded, receipt)
	return receipt, nil
}

// MarkRead acknowledges chatID with the provider and clears its unread
// count. Unknown conversations are acknowledged but not added.
func (r *Relay) MarkRead(ctx context.Context, chatID string) error {
	if chatID == "" || !r.ready() {
		return ErrIgnored
	}
	if err := r.deps.Provider.MarkSeen(ctx, chatID); err != nil {
		r.log.Warn().Err(err).Str("chatId", chatID).Msg("mark read failed")
		return fmt.Errorf("marking read: %w", err)
	}
	r.deps.Chats.MarkRead(chatID)
	return nil
}

// UpdateConfig persists cfg and broadcasts the stored config. Nothing is
// broadcast when persisting fails. The broadcast happens before another
// update can be applied, so dashboards end on the stored value.
func (r *Relay) UpdateConfig(cfg domain.BotConfig) (domain.BotConfig, error) {
	stored, err := r.deps.Config.ReplaceFunc(cfg, func(applied domain.BotConfig) {
		r.deps.Sync.Broadcast(EventBotConfigSet, applied)
	})
	if err != nil {
		r.log.Error().Err(err).Msg("bot config update rejected")
		return domain.BotConfig{}, err
	}

	if !stored.Active() && r.opts.CancelPendingOnPause && r.deps.Scheduler != nil {
		if n := r.deps.Scheduler.CancelAll(); n > 0 {
			r.log.Info().Int("cancelled", n).Msg("bot paused, pending replies dropped")
		}
	}

	r.deps.Sync.emitHook(hooks.EventConfigUpdated, map[string]any{
		"status": string(stored.Status),
		"rules":  len(stored.AutoReplies),
	})
	return stored, nil
}

// LoadHistory sends up to limit recent messages of chatID to obs, oldest
// first, and returns how many were sent. A fetch failure sends one
// load-error. Media failures only affect their own message.
func (r *Relay) LoadHistory(ctx context.Context, obs Observer, chatID string, limit int) (int, error) {
	if chatID == "" || !r.ready() {
		return 0, ErrIgnored
	}
	if limit <= 0 {
		limit = r.opts.HistoryLimit
	}

	log := r.log.With("chatId", chatID)
	msgs, err := r.deps.Provider.FetchMessages(ctx, chatID, limit)
	if err != nil {
		log.Error().Err(err).Msg("history fetch failed")
		r.emit(obs, EventLoadError, LoadError{ChatID: chatID, Error: historyFailedText})
		return 0, fmt.Errorf("loading history: %w", err)
	}

	sent := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		msg, mediaErr := r.deps.Ingest.Canonicalize(ctx, msgs[i])
		if mediaErr != nil {
			log.Warn().Err(mediaErr).Str("messageId", msgs[i].ID).Msg("history media unavailable")
		}
		msg.ConversationID = chatID
		if err := obs.Emit(EventHistoric, msg); err != nil {
			log.Debug().Err(err).Msg("requester gone, history aborted")
			return sent, nil
		}
		sent++
	}
	log.Debug().Int("messages", sent).Msg("history sent")
	return sent, nil
}

// RequestTunnelURL sends the tunnel URL to obs, if one is known.
func (r *Relay) RequestTunnelURL(obs Observer) string {
	r.mu.Lock()
	url := r.tunnelURL
	r.mu.Unlock()

	if url != "" {
		r.emit(obs, EventTunnelURL, url)
	}
	return url
}

// SetTunnelURL records the public URL and broadcasts it.
func (r *Relay) SetTunnelURL(url string) {
	url = strings.TrimSpace(url)
	if url == "" {
		return
	}
	r.mu.Lock()
	r.tunnelURL = url
	r.mu.Unlock()

	r.log.Info().Str("url", url).Msg("tunnel url available")
	r.deps.Sync.Broadcast(EventTunnelURL, url)
}

// Transcribe converts base64 audio to text.
func (r *Relay) Transcribe(ctx context.Context, audioData string) Transcription {
	if r.deps.Transcriber == nil {
		return Transcription{Error: transcribeFailText}
	}

	var audio []byte
	if audioData != "" {
		data, err := media.DecodeBase64(audioData)
		if err != nil {
			r.log.Warn().Err(err).Msg("undecodable audio")
			return Transcription{Error: transcribeFailText}
		}
		audio = data
	}

	text, err := r.deps.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		r.log.Error().Err(err).Msg("transcription failed")
		return Transcription{Error: transcribeFailText}
	}
	return Transcription{Success: true, Text: text}
}

func confirmed(conf domain.SentConfirmation) domain.SentConfirmation {
	if conf.Timestamp.IsZero() {
		conf.Timestamp = time.Now()
	}
	conf.Timestamp = conf.Timestamp.UTC()
	return conf
}
