package domain

// BotStatus enables or pauses automatic replies.
type BotStatus string

const (
	BotActive BotStatus = "active"
	BotPaused BotStatus = "paused"
)

// AutoReplyRule maps a trigger keyword to a canned reply.
type AutoReplyRule struct {
	Trigger string `json:"trigger"`
	Content string `json:"content"`
}

// BotConfig holds the auto-responder settings edited from the dashboard.
type BotConfig struct {
	Status      BotStatus       `json:"status"`
	Greeting    string          `json:"greeting"`
	Farewell    string          `json:"farewell"`
	AutoReplies []AutoReplyRule `json:"autoReplies"`
}

// Active reports whether the bot should send automatic replies.
func (c BotConfig) Active() bool { return c.Status == BotActive }

// Clone returns a deep copy so callers cannot mutate shared rule slices.
func (c BotConfig) Clone() BotConfig {
	out := c
	if c.AutoReplies != nil {
		out.AutoReplies = make([]AutoReplyRule, len(c.AutoReplies))
		copy(out.AutoReplies, c.AutoReplies)
	}
	return out
}

// DefaultBotConfig is used when no bot config has been saved yet.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		Status:   BotActive,
		Greeting: "Olá! Bem-vindo ao atendimento de guincho. Como posso ajudar?",
		Farewell: "Obrigado por entrar em contato. Tenha um bom dia!",
		AutoReplies: []AutoReplyRule{
			{
				Trigger: "preço",
				Content: "O valor do serviço de guincho varia conforme a distância. Para um orçamento preciso, por favor informe seu endereço.",
			},
			{
				Trigger: "horário",
				Content: "Atendemos 24 horas por dia, 7 dias por semana, incluindo feriados.",
			},
			{
				Trigger: "emergência",
				Content: "Para situações de emergência, por favor informe sua localização exata e o modelo do veículo para priorizarmos seu atendimento.",
			},
		},
	}
}
