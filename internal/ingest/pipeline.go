// Package ingest turns provider messages into registry updates, fan-out
// messages and auto-reply intents.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/wadesk/internal/autoreply"
	"github.com/soyeahso/wadesk/internal/domain"
	"github.com/soyeahso/wadesk/internal/logging"
)

// ChatIndex is the registry view the pipeline writes to.
type ChatIndex interface {
	Upsert(id string, patch domain.SummaryPatch) domain.ConversationSummary
}

// Materializer stores media payloads.
type Materializer interface {
	Materialize(ctx context.Context, p domain.MediaPayload) (domain.MediaAsset, error)
}

// MessageSink receives every canonical message.
type MessageSink interface {
	Message(msg domain.CanonicalMessage)
}

// Seer marks a conversation read with the provider.
type Seer interface {
	MarkSeen(ctx context.Context, chatID string) error
}

// ConfigSource supplies the current bot config.
type ConfigSource interface {
	Get() domain.BotConfig
}

// Scheduler runs auto-reply intents.
type Scheduler interface {
	Schedule(in autoreply.Intent) string
}

// Deps are the collaborators of a Pipeline. Seer and Scheduler may be nil.
type Deps struct {
	Index        ChatIndex
	Materializer Materializer
	Sink         MessageSink
	Seer         Seer
	Config       ConfigSource
	Scheduler    Scheduler
	Policy       autoreply.Policy
}

// DefaultCallTimeout bounds each provider call made while ingesting: the
// media download and the read receipt.
const DefaultCallTimeout = 30 * time.Second

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCallTimeout sets the per-call provider timeout. Non-positive values
// keep the default.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.callTimeout = d
		}
	}
}

// Outcome reports what Handle did with one message.
type Outcome struct {
	Message     domain.CanonicalMessage
	Summary     domain.ConversationSummary
	FirstUnread bool
	Intents     []autoreply.Intent
	MediaErr    error
	SeenErr     error
	Err         error // recovered panic, if any
}

// Pipeline processes provider messages in order.
type Pipeline struct {
	deps        Deps
	callTimeout time.Duration
	log         *logging.Logger
}

// New creates a pipeline.
func New(deps Deps, log *logging.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{deps: deps, callTimeout: DefaultCallTimeout, log: log.Sub("ingest")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle ingests one provider message. It never returns an error; failures
// are logged and reported in the Outcome.
func (p *Pipeline) Handle(ctx context.Context, pm domain.ProviderMessage) (out Outcome) {
	log := p.log.With("chatId", pm.ConversationID)
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("ingest panic: %v", r)
			log.Error().Interface("panic", r).Msg("recovered panic while ingesting message")
		}
	}()

	msg, mediaErr := p.Canonicalize(ctx, pm)
	out.Message = msg
	out.MediaErr = mediaErr
	if mediaErr != nil {
		log.Warn().Err(mediaErr).Str("messageId", pm.ID).Msg("media unavailable")
	}

	preview := msg.Body
	if msg.IsMedia {
		preview = domain.MediaPreview
	}
	ts := pm.Timestamp.Unix()
	patch := domain.SummaryPatch{
		LastMessage: &preview,
		Timestamp:   &ts,
		Unread:      domain.UnreadReset,
	}
	if msg.Inbound() {
		patch.Unread = domain.UnreadIncrement
	}
	if pm.ConversationName != "" {
		name := pm.ConversationName
		patch.Name = &name
	}

	out.Summary = p.deps.Index.Upsert(pm.ConversationID, patch)
	out.FirstUnread = msg.Inbound() && out.Summary.Unread == 1

	if p.deps.Sink != nil {
		p.deps.Sink.Message(msg)
	}

	if !msg.Inbound() {
		return out
	}

	if p.deps.Seer != nil {
		seenCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
		err := p.deps.Seer.MarkSeen(seenCtx, pm.ConversationID)
		cancel()
		if err != nil {
			out.SeenErr = err
			log.Warn().Err(err).Msg("mark seen failed")
		}
	}

	out.Intents = p.deps.Policy.Decide(msg, p.deps.Config.Get(), out.FirstUnread)
	if p.deps.Scheduler != nil {
		for _, in := range out.Intents {
			p.deps.Scheduler.Schedule(in)
		}
	}

	log.Debug().Int("unread", out.Summary.Unread).Int("intents", len(out.Intents)).
		Bool("media", msg.IsMedia).Msg("message ingested")
	return out
}

// Canonicalize builds the canonical form of pm, materializing its media. A
// media failure yields the placeholder body and is returned alongside.
func (p *Pipeline) Canonicalize(ctx context.Context, pm domain.ProviderMessage) (domain.CanonicalMessage, error) {
	msg := domain.CanonicalMessage{
		ConversationID: pm.ConversationID,
		Direction:      domain.DirectionInbound,
		Sender:         pm.SenderLabel(),
		Body:           pm.Body,
		FromMe:         pm.FromMe,
		Timestamp:      pm.Timestamp,
	}
	if pm.FromMe {
		msg.Direction = domain.DirectionOutbound
	}
	if !pm.HasMedia() {
		return msg, nil
	}

	msg.IsMedia = true
	msg.Caption = pm.Body

	asset, err := p.materialize(ctx, pm.Media)
	if err != nil {
		msg.Body = domain.MediaUnavailable
		return msg, err
	}
	msg.Body = asset.URL
	msg.FilePath = asset.URL
	return msg, nil
}

func (p *Pipeline) materialize(ctx context.Context, src domain.MediaSource) (domain.MediaAsset, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	payload, err := src.Fetch(fetchCtx)
	if err != nil {
		return domain.MediaAsset{}, fmt.Errorf("downloading media: %w", err)
	}
	asset, err := p.deps.Materializer.Materialize(ctx, payload)
	if err != nil {
		return domain.MediaAsset{}, fmt.Errorf("storing media: %w", err)
	}
	return asset, nil
}

// RecordOutbound applies a message sent from a dashboard: the conversation
// preview moves to preview, unread resets, and msg is fanned out.
func (p *Pipeline) RecordOutbound(msg domain.CanonicalMessage, preview string) domain.ConversationSummary {
	ts := msg.Timestamp.Unix()
	if msg.Timestamp.IsZero() {
		ts = time.Now().Unix()
	}
	summary := p.deps.Index.Upsert(msg.ConversationID, domain.SummaryPatch{
		LastMessage: &preview,
		Timestamp:   &ts,
		Unread:      domain.UnreadReset,
	})
	if p.deps.Sink != nil {
		p.deps.Sink.Message(msg)
	}
	return summary
}
