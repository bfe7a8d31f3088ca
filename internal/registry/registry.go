// Package registry keeps the in-memory chat list shown on dashboards.
package registry

import (
	"sync"

	"github.com/soyeahso/wadesk/internal/domain"
)

// DefaultCapacity bounds the chat list loaded on session ready.
const DefaultCapacity = 30

// Notifier receives registry changes. Methods are called with the registry
// lock held, in mutation order, and must not call back into the registry.
type Notifier interface {
	ChatDelta(delta domain.ChatDelta)
	ChatList(entries []domain.ChatEntry)
}

// Registry maps conversation ids to their summaries.
type Registry struct {
	mu       sync.Mutex
	order    []string
	entries  map[string]*domain.ConversationSummary
	capacity int
	notify   Notifier
}

// New creates an empty registry. A capacity <= 0 uses DefaultCapacity.
// n may be nil.
func New(capacity int, n Notifier) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		entries:  make(map[string]*domain.ConversationSummary),
		capacity: capacity,
		notify:   n,
	}
}

// Upsert merges patch into the entry for id, creating it if needed, and
// returns the merged summary. One delta is emitted when the unread count,
// preview or timestamp changed.
func (r *Registry) Upsert(id string, patch domain.SummaryPatch) domain.ConversationSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.entries[id]
	if !ok {
		s = &domain.ConversationSummary{ID: id, Name: domain.UserPart(id)}
		r.entries[id] = s
		r.order = append(r.order, id)
	}

	if patch.Name != nil && *patch.Name != "" && (s.Name == "" || s.Name == domain.UserPart(id)) {
		s.Name = *patch.Name
	}

	delta := domain.ChatDelta{ChatID: id}
	changed := false

	if patch.LastMessage != nil {
		if s.LastMessage != *patch.LastMessage {
			changed = true
		}
		s.LastMessage = *patch.LastMessage
		v := s.LastMessage
		delta.LastMessage = &v
	}
	if patch.Timestamp != nil {
		if s.Timestamp != *patch.Timestamp {
			changed = true
		}
		s.Timestamp = *patch.Timestamp
		v := s.Timestamp
		delta.Timestamp = &v
	}
	switch patch.Unread {
	case domain.UnreadIncrement:
		s.Unread++
		changed = true
	case domain.UnreadReset:
		if s.Unread != 0 {
			changed = true
		}
		s.Unread = 0
	}
	if patch.Unread != domain.UnreadKeep {
		v := s.Unread
		delta.Unread = &v
	}

	if changed && r.notify != nil {
		r.notify.ChatDelta(delta)
	}
	return *s
}

// MarkRead resets the unread count of an existing entry. It reports false,
// and emits nothing, when id is unknown. An entry already at zero emits
// nothing either.
func (r *Registry) MarkRead(id string) (domain.ConversationSummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.entries[id]
	if !ok {
		return domain.ConversationSummary{}, false
	}
	if s.Unread == 0 {
		return *s, true
	}
	s.Unread = 0
	if r.notify != nil {
		zero := 0
		r.notify.ChatDelta(domain.ChatDelta{ChatID: id, Unread: &zero})
	}
	return *s, true
}

// Get returns the summary for id.
func (r *Registry) Get(id string) (domain.ConversationSummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.entries[id]
	if !ok {
		return domain.ConversationSummary{}, false
	}
	return *s, true
}

// Snapshot returns all entries in first-seen order.
func (r *Registry) Snapshot() []domain.ChatEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// ClearAndReload replaces the whole registry with the first capacity
// summaries of list and emits a single chat-list notification.
func (r *Registry) ClearAndReload(list []domain.ConversationSummary) []domain.ChatEntry {
	if len(list) > r.capacity {
		list = list[:r.capacity]
	}

	order := make([]string, 0, len(list))
	entries := make(map[string]*domain.ConversationSummary, len(list))
	for _, s := range list {
		if _, dup := entries[s.ID]; dup {
			continue
		}
		c := s
		if c.Unread < 0 {
			c.Unread = 0
		}
		entries[s.ID] = &c
		order = append(order, s.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = order
	r.entries = entries
	snap := r.snapshotLocked()
	if r.notify != nil {
		r.notify.ChatList(snap)
	}
	return snap
}

// Len returns the number of tracked conversations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

func (r *Registry) snapshotLocked() []domain.ChatEntry {
	out := make([]domain.ChatEntry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, domain.ChatEntry{ID: id, Summary: *r.entries[id]})
	}
	return out
}
