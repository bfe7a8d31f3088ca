// Package autoreply decides which automatic replies an inbound message earns
// and schedules their delivery.
package autoreply

import (
	"strings"
	"time"

	"github.com/soyeahso/wadesk/internal/domain"
)

// Default delays before an intent is sent.
const (
	DefaultKeywordDelay  = 1500 * time.Millisecond
	DefaultGreetingDelay = 1000 * time.Millisecond
)

// IntentKind identifies why a reply is sent.
type IntentKind string

const (
	IntentKeyword  IntentKind = "keyword"
	IntentGreeting IntentKind = "greeting"
)

// Intent is one reply to send after Delay.
type Intent struct {
	Kind           IntentKind
	ConversationID string
	Delay          time.Duration
	Text           string
	Trigger        string // matched keyword, keyword intents only
}

// Policy holds the delays applied to produced intents.
type Policy struct {
	KeywordDelay  time.Duration
	GreetingDelay time.Duration
}

// DefaultPolicy returns the stock delays.
func DefaultPolicy() Policy {
	return Policy{KeywordDelay: DefaultKeywordDelay, GreetingDelay: DefaultGreetingDelay}
}

// Decide returns the intents for msg, keyword first. firstUnread is true
// when msg moved the conversation's unread count from 0 to 1. It has no side
// effects.
func (p Policy) Decide(msg domain.CanonicalMessage, cfg domain.BotConfig, firstUnread bool) []Intent {
	if !cfg.Active() || !msg.Inbound() {
		return nil
	}

	var intents []Intent
	if rule, ok := MatchRule(msg.MatchText(), cfg.AutoReplies); ok {
		intents = append(intents, Intent{
			Kind:           IntentKeyword,
			ConversationID: msg.ConversationID,
			Delay:          p.KeywordDelay,
			Text:           rule.Content,
			Trigger:        rule.Trigger,
		})
	}
	if firstUnread && cfg.Greeting != "" {
		intents = append(intents, Intent{
			Kind:           IntentGreeting,
			ConversationID: msg.ConversationID,
			Delay:          p.GreetingDelay,
			Text:           cfg.Greeting,
		})
	}
	return intents
}

// MatchRule returns the first rule whose trigger occurs in text, ignoring
// case. Blank triggers never match.
func MatchRule(text string, rules []domain.AutoReplyRule) (domain.AutoReplyRule, bool) {
	if text == "" {
		return domain.AutoReplyRule{}, false
	}
	lower := strings.ToLower(text)
	for _, r := range rules {
		trigger := strings.ToLower(strings.TrimSpace(r.Trigger))
		if trigger == "" {
			continue
		}
		if strings.Contains(lower, trigger) {
			return r, true
		}
	}
	return domain.AutoReplyRule{}, false
}
