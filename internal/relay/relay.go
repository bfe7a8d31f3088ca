// Package relay drives the provider session and answers dashboard commands.
package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/soyeahso/wadesk/internal/domain"
	"github.com/soyeahso/wadesk/internal/hooks"
	"github.com/soyeahso/wadesk/internal/ingest"
	"github.com/soyeahso/wadesk/internal/logging"
)

// ErrIgnored is returned for commands that are silently dropped: a missing
// conversation id or payload, or no authenticated session.
var ErrIgnored = errors.New("command ignored")

// Default timings and sizes.
const (
	DefaultReconnectDelay   = 5 * time.Second
	DefaultAuthFailureDelay = 10 * time.Second
	DefaultInitErrorDelay   = 10 * time.Second
	DefaultPanicDelay       = 5 * time.Second
	DefaultHistoryLimit     = 50
	DefaultQRSize           = 256

	eventBuffer = 256
)

// ChatIndex is the registry view the relay needs.
type ChatIndex interface {
	Snapshot() []domain.ChatEntry
	ClearAndReload(list []domain.ConversationSummary) []domain.ChatEntry
	MarkRead(id string) (domain.ConversationSummary, bool)
}

// ConfigStore holds the bot config. ReplaceFunc runs applied while the new
// value is still the current one.
type ConfigStore interface {
	Get() domain.BotConfig
	ReplaceFunc(cfg domain.BotConfig, applied func(domain.BotConfig)) (domain.BotConfig, error)
}

// Ingest processes provider messages.
type Ingest interface {
	Handle(ctx context.Context, pm domain.ProviderMessage) ingest.Outcome
	Canonicalize(ctx context.Context, pm domain.ProviderMessage) (domain.CanonicalMessage, error)
	RecordOutbound(msg domain.CanonicalMessage, preview string) domain.ConversationSummary
}

// MediaSaver stores files sent from dashboards.
type MediaSaver interface {
	Save(filename string, data []byte, mimeType string) (domain.MediaAsset, error)
}

// Canceler drops pending auto-replies.
type Canceler interface {
	CancelAll() int
}

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Options tune the relay. Zero values use the defaults.
type Options struct {
	ReconnectDelay       time.Duration
	AuthFailureDelay     time.Duration
	InitErrorDelay       time.Duration
	PanicDelay           time.Duration
	HistoryLimit         int
	QRSize               int
	CancelPendingOnPause bool
}

func (o *Options) defaults() {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.AuthFailureDelay <= 0 {
		o.AuthFailureDelay = DefaultAuthFailureDelay
	}
	if o.InitErrorDelay <= 0 {
		o.InitErrorDelay = DefaultInitErrorDelay
	}
	if o.PanicDelay <= 0 {
		o.PanicDelay = DefaultPanicDelay
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.QRSize <= 0 {
		o.QRSize = DefaultQRSize
	}
}

// Deps are the relay's collaborators. Scheduler and Transcriber may be nil.
type Deps struct {
	Provider    domain.Provider
	Chats       ChatIndex
	Config      ConfigStore
	Ingest      Ingest
	Media       MediaSaver
	Scheduler   Canceler
	Transcriber Transcriber
	Sync        *Sync
}

// State is a point-in-time view of the session.
type State struct {
	Status        string `json:"status"`
	Authenticated bool   `json:"authenticated"`
	Running       bool   `json:"running"`
	Chats         int    `json:"chats"`
	TunnelURL     string `json:"tunnelUrl,omitempty"`
}

// Relay owns the provider session. Lifecycle events are handled by a single
// dispatcher goroutine started by Run. Messages are ingested off the
// dispatcher, one lane per conversation, so a slow provider call only holds
// up its own chat. Dashboard commands run on the caller's goroutine.
type Relay struct {
	deps Deps
	opts Options
	log  *logging.Logger

	events chan domain.ProviderEvent
	done   chan struct{}
	lanes  *lanes

	mu            sync.Mutex
	ctx           context.Context
	status        string
	authenticated bool
	running       bool
	tunnelURL     string
	restart       *time.Timer
	closed        bool
}

// New creates a relay and subscribes it to provider events.
func New(deps Deps, opts Options, log *logging.Logger) *Relay {
	opts.defaults()
	r := &Relay{
		deps:   deps,
		opts:   opts,
		log:    log.Sub("relay"),
		events: make(chan domain.ProviderEvent, eventBuffer),
		done:   make(chan struct{}),
		lanes:  newLanes(),
		ctx:    context.Background(),
	}
	deps.Provider.OnEvent(r.OnProviderEvent)
	return r
}

// Run starts the provider session and dispatches its events until ctx is
// done. It then waits for in-flight ingests and stops the session.
func (r *Relay) Run(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
	defer close(r.done)

	r.EnsureSession()

	for {
		select {
		case <-ctx.Done():
			r.lanes.wait()
			r.shutdown()
			return ctx.Err()
		case ev := <-r.events:
			r.dispatch(ctx, ev)
		}
	}
}

// OnProviderEvent queues a provider event for the dispatcher.
func (r *Relay) OnProviderEvent(ev domain.ProviderEvent) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

func (r *Relay) dispatch(ctx context.Context, ev domain.ProviderEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Str("event", string(ev.Kind)).
				Msg("recovered panic in provider event handler")
			r.restartAfter(r.opts.PanicDelay, "panic")
		}
	}()

	switch ev.Kind {
	case domain.EventQR:
		r.onQR(ev.QR)
	case domain.EventAuthenticated:
		r.setStatus(StatusConnected, true, "")
	case domain.EventReady:
		r.onReady(ev.Chats)
	case domain.EventMessage:
		if ev.Message != nil {
			pm := *ev.Message
			r.lanes.submit(pm.ConversationID, func() { r.handleMessage(ctx, pm) })
		}
	case domain.EventDisconnected:
		r.setStatus(StatusDisconnected, false, ev.Reason)
		r.restartAfter(r.opts.ReconnectDelay, "disconnected")
	case domain.EventAuthFailure:
		r.setStatus(StatusAuthFailure, false, ev.Reason)
		r.restartAfter(r.opts.AuthFailureDelay, "auth failure")
	default:
		r.log.Debug().Str("event", string(ev.Kind)).Msg("ignoring unknown provider event")
	}
}

func (r *Relay) handleMessage(ctx context.Context, pm domain.ProviderMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Str("chatId", pm.ConversationID).
				Msg("recovered panic while ingesting message")
			r.restartAfter(r.opts.PanicDelay, "panic")
		}
	}()
	r.deps.Ingest.Handle(ctx, pm)
}

func (r *Relay) onQR(code string) {
	r.log.Info().Msg("qr challenge received")
	url, err := QRDataURL(code, r.opts.QRSize)
	if err != nil {
		r.log.Warn().Err(err).Msg("qr image generation failed")
		r.deps.Sync.Broadcast(EventQRFallback, code)
		return
	}
	r.deps.Sync.Broadcast(EventQRUpdate, url)
}

func (r *Relay) onReady(chats []domain.ChatInfo) {
	r.setStatus(StatusReady, true, "")

	list := make([]domain.ConversationSummary, 0, len(chats))
	for _, c := range chats {
		list = append(list, c.Summary())
	}
	loaded := r.deps.Chats.ClearAndReload(list)
	r.log.Info().Int("chats", len(chats)).Int("loaded", len(loaded)).Msg("session ready")
}

func (r *Relay) setStatus(status string, authenticated bool, reason string) {
	r.mu.Lock()
	r.status = status
	r.authenticated = authenticated
	r.mu.Unlock()

	ev := r.log.Info().Str("status", status)
	if reason != "" {
		ev = ev.Str("reason", reason)
	}
	ev.Msg("session status")

	r.deps.Sync.Broadcast(EventStatus, status)
	data := map[string]any{"status": status}
	if reason != "" {
		data["reason"] = reason
	}
	r.deps.Sync.emitHook(hooks.EventSessionStatus, data)
}

// EnsureSession starts the provider session unless one is running.
func (r *Relay) EnsureSession() {
	r.mu.Lock()
	if r.running || r.closed {
		r.mu.Unlock()
		return
	}
	r.running = true
	ctx := r.ctx
	r.mu.Unlock()

	go r.start(ctx)
}

func (r *Relay) start(ctx context.Context) {
	r.log.Info().Msg("starting provider session")
	if err := r.deps.Provider.Start(ctx); err != nil {
		r.log.Error().Err(err).Msg("provider session failed to start")
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		r.restartAfter(r.opts.InitErrorDelay, "init error")
	}
}

// restartAfter schedules a full session re-initialization. Only one restart
// is pending at a time.
func (r *Relay) restartAfter(d time.Duration, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.restart != nil || r.closed {
		return
	}

	r.log.Warn().Str("reason", reason).Dur("delay", d).Msg("session restart scheduled")
	r.restart = time.AfterFunc(d, r.reinitialize)
}

func (r *Relay) reinitialize() {
	r.mu.Lock()
	r.restart = nil
	ctx, closed := r.ctx, r.closed
	r.mu.Unlock()
	if closed {
		return
	}

	if err := r.deps.Provider.Stop(ctx); err != nil {
		r.log.Debug().Err(err).Msg("stopping previous session")
	}
	r.mu.Lock()
	r.running = false
	r.authenticated = false
	r.mu.Unlock()

	r.EnsureSession()
}

func (r *Relay) shutdown() {
	r.mu.Lock()
	r.closed = true
	if r.restart != nil {
		r.restart.Stop()
		r.restart = nil
	}
	running := r.running
	r.running = false
	r.authenticated = false
	r.mu.Unlock()

	if !running {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.deps.Provider.Stop(ctx); err != nil {
		r.log.Warn().Err(err).Msg("provider stop failed")
	}
}

// Replay sends the current state to a newly connected dashboard: the
// session status, the chat list, the tunnel URL and the bot config.
func (r *Relay) Replay(obs Observer) {
	r.mu.Lock()
	status, tunnelURL := r.status, r.tunnelURL
	r.mu.Unlock()

	if status != "" {
		r.emit(obs, EventStatus, status)
	}
	if snap := r.deps.Chats.Snapshot(); len(snap) > 0 {
		r.emit(obs, EventChatList, snap)
	}
	if tunnelURL != "" {
		r.emit(obs, EventTunnelURL, tunnelURL)
	}
	r.emit(obs, EventBotConfig, r.deps.Config.Get())
}

// Connected replays state to obs and starts the session if needed.
func (r *Relay) Connected(obs Observer) {
	r.Replay(obs)
	r.EnsureSession()
}

// State reports the current session state.
func (r *Relay) State() State {
	chats := len(r.deps.Chats.Snapshot())
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{
		Status:        r.status,
		Authenticated: r.authenticated,
		Running:       r.running,
		Chats:         chats,
		TunnelURL:     r.tunnelURL,
	}
}

func (r *Relay) ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.authenticated
}

func (r *Relay) emit(obs Observer, event string, payload any) {
	if err := obs.Emit(event, payload); err != nil {
		r.log.Debug().Err(err).Str("event", event).Msg("observer emit failed")
	}
}

// QRDataURL renders code as a PNG data URL.
func QRDataURL(code string, size int) (string, error) {
	if code == "" {
		return "", fmt.Errorf("empty qr code")
	}
	png, err := qrcode.Encode(code, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("encoding qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
