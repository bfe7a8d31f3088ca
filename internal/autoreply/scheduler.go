package autoreply

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/wadesk/internal/domain"
	"github.com/soyeahso/wadesk/internal/logging"
)

// Sender delivers a reply through the provider.
type Sender interface {
	Send(ctx context.Context, chatID string, content domain.OutboundContent) (domain.SentConfirmation, error)
}

// SentFunc is called after an intent was delivered.
type SentFunc func(in Intent, conf domain.SentConfirmation)

// Scheduler runs intents after their delay. Pending intents are tracked per
// conversation so they can be cancelled.
type Scheduler struct {
	sender Sender
	onSent SentFunc
	log    *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]map[string]*time.Timer // conversation -> handle -> timer
	closed  bool
	wg      sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSentFunc registers a callback for delivered intents.
func WithSentFunc(fn SentFunc) SchedulerOption {
	return func(s *Scheduler) { s.onSent = fn }
}

// NewScheduler creates a scheduler sending through sender.
func NewScheduler(sender Sender, log *logging.Logger, opts ...SchedulerOption) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		sender:  sender,
		log:     log.Sub("autoreply"),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule arms a timer for in and returns its handle. It returns "" once the
// scheduler is closed.
func (s *Scheduler) Schedule(in Intent) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ""
	}

	handle := uuid.New().String()
	byConv, ok := s.pending[in.ConversationID]
	if !ok {
		byConv = make(map[string]*time.Timer)
		s.pending[in.ConversationID] = byConv
	}

	s.wg.Add(1)
	byConv[handle] = time.AfterFunc(in.Delay, func() {
		defer s.wg.Done()
		if !s.take(in.ConversationID, handle) {
			return
		}
		s.deliver(in)
	})

	s.log.Debug().Str("chatId", in.ConversationID).Str("kind", string(in.Kind)).
		Dur("delay", in.Delay).Msg("auto-reply scheduled")
	return handle
}

// take removes a pending handle, reporting whether it was still pending.
func (s *Scheduler) take(conv, handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	byConv, ok := s.pending[conv]
	if !ok {
		return false
	}
	if _, ok := byConv[handle]; !ok {
		return false
	}
	delete(byConv, handle)
	if len(byConv) == 0 {
		delete(s.pending, conv)
	}
	return true
}

func (s *Scheduler) deliver(in Intent) {
	log := s.log.With("chatId", in.ConversationID)

	conf, err := s.sender.Send(s.ctx, in.ConversationID, domain.OutboundContent{Text: in.Text})
	if err != nil {
		log.Error().Err(err).Str("kind", string(in.Kind)).Msg("auto-reply send failed")
		return
	}

	log.Info().Str("kind", string(in.Kind)).Str("trigger", in.Trigger).Msg("auto-reply sent")
	if s.onSent != nil {
		s.onSent(in, conf)
	}
}

// CancelConversation stops every pending intent for conv and returns how
// many were stopped.
func (s *Scheduler) CancelConversation(conv string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(conv)
}

// CancelAll stops every pending intent.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for conv := range s.pending {
		n += s.cancelLocked(conv)
	}
	return n
}

func (s *Scheduler) cancelLocked(conv string) int {
	n := 0
	for handle, t := range s.pending[conv] {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.pending[conv], handle)
		n++
	}
	delete(s.pending, conv)
	return n
}

// Pending returns the number of armed intents.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, byConv := range s.pending {
		n += len(byConv)
	}
	return n
}

// Close stops all pending intents and waits for in-flight sends.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stopped := 0
	for conv := range s.pending {
		stopped += s.cancelLocked(conv)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	if stopped > 0 {
		s.log.Info().Int("stopped", stopped).Msg("pending auto-replies cancelled")
	}
}
