package autoreply

import (
	"testing"

	"github.com/soyeahso/wadesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(body string) domain.CanonicalMessage {
	return domain.CanonicalMessage{
		ConversationID: "5511@s.whatsapp.net",
		Direction:      domain.DirectionInbound,
		Body:           body,
	}
}

func TestDecideKeywordExample(t *testing.T) {
	cfg := domain.BotConfig{
		Status: domain.BotActive,
		AutoReplies: []domain.AutoReplyRule{
			{Trigger: "horário", Content: "Atendemos 24 horas..."},
		},
	}

	intents := DefaultPolicy().Decide(msg("Qual o horário de atendimento?"), cfg, false)
	require.Len(t, intents, 1)
	assert.Equal(t, IntentKeyword, intents[0].Kind)
	assert.Equal(t, "Atendemos 24 horas...", intents[0].Text)
	assert.Equal(t, "horário", intents[0].Trigger)
	assert.Equal(t, DefaultKeywordDelay, intents[0].Delay)
	assert.Equal(t, "5511@s.whatsapp.net", intents[0].ConversationID)
}

func TestDecideNoMatch(t *testing.T) {
	intents := DefaultPolicy().Decide(msg("oi"), domain.DefaultBotConfig(), false)
	assert.Empty(t, intents)
}

func TestDecideCaseInsensitive(t *testing.T) {
	intents := DefaultPolicy().Decide(msg("QUAL O PREÇO?"), domain.DefaultBotConfig(), false)
	require.Len(t, intents, 1)
	assert.Equal(t, "preço", intents[0].Trigger)
}

func TestDecideFirstRuleWins(t *testing.T) {
	cfg := domain.BotConfig{
		Status: domain.BotActive,
		AutoReplies: []domain.AutoReplyRule{
			{Trigger: "preço", Content: "first"},
			{Trigger: "horário", Content: "second"},
		},
	}
	intents := DefaultPolicy().Decide(msg("horário e preço"), cfg, false)
	require.Len(t, intents, 1)
	assert.Equal(t, "first", intents[0].Text)
}

func TestDecidePausedProducesNothing(t *testing.T) {
	cfg := domain.DefaultBotConfig()
	cfg.Status = domain.BotPaused
	assert.Empty(t, DefaultPolicy().Decide(msg("preço"), cfg, true))
}

func TestDecideGreetingAndKeyword(t *testing.T) {
	p := Policy{KeywordDelay: 20, GreetingDelay: 10}
	intents := p.Decide(msg("emergência!"), domain.DefaultBotConfig(), true)
	require.Len(t, intents, 2)
	assert.Equal(t, IntentKeyword, intents[0].Kind)
	assert.Equal(t, IntentGreeting, intents[1].Kind)
	assert.Equal(t, domain.DefaultBotConfig().Greeting, intents[1].Text)
	assert.EqualValues(t, 10, intents[1].Delay)
}

func TestDecideGreetingOnlyOnFirstUnread(t *testing.T) {
	cfg := domain.DefaultBotConfig()
	p := DefaultPolicy()

	first := p.Decide(msg("oi"), cfg, true)
	require.Len(t, first, 1)
	assert.Equal(t, IntentGreeting, first[0].Kind)

	assert.Empty(t, p.Decide(msg("oi de novo"), cfg, false))
}

func TestDecideEmptyGreetingSkipped(t *testing.T) {
	cfg := domain.DefaultBotConfig()
	cfg.Greeting = ""
	assert.Empty(t, DefaultPolicy().Decide(msg("oi"), cfg, true))
}

func TestDecideIgnoresSelfAuthored(t *testing.T) {
	m := msg("preço")
	m.FromMe = true
	assert.Empty(t, DefaultPolicy().Decide(m, domain.DefaultBotConfig(), true))
}

func TestDecideMediaUsesCaption(t *testing.T) {
	m := msg("/uploads/x.jpg")
	m.IsMedia = true
	m.Caption = "qual o preço disso?"
	intents := DefaultPolicy().Decide(m, domain.DefaultBotConfig(), false)
	require.Len(t, intents, 1)
	assert.Equal(t, "preço", intents[0].Trigger)

	m.Caption = ""
	assert.Empty(t, DefaultPolicy().Decide(m, domain.DefaultBotConfig(), false))
}

func TestMatchRuleBlankTrigger(t *testing.T) {
	rules := []domain.AutoReplyRule{{Trigger: "  ", Content: "never"}, {Trigger: "ok", Content: "yes"}}
	r, ok := MatchRule("ok then", rules)
	require.True(t, ok)
	assert.Equal(t, "yes", r.Content)

	_, ok = MatchRule("anything", []domain.AutoReplyRule{{Trigger: ""}})
	assert.False(t, ok)
}
