package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}
	oneOf := func(path, value string, valid []string) {
		if value != "" && !slices.Contains(valid, value) {
			add(path, "must be one of %v, got %q", valid, value)
		}
	}

	// Server validation
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		add("server.port", "port must be 0-65535, got %d", cfg.Server.Port)
	}
	oneOf("server.bind", cfg.Server.Bind, []string{"auto", "lan", "loopback", "custom"})
	oneOf("server.mode", cfg.Server.Mode, []string{"development", "production"})
	if cfg.Server.MaxUploadBytes < 0 {
		add("server.maxUploadBytes", "must not be negative, got %d", cfg.Server.MaxUploadBytes)
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	oneOf("logging.level", cfg.Logging.Level, validLogLevels)
	oneOf("logging.consoleLevel", cfg.Logging.ConsoleLevel, validLogLevels)
	oneOf("logging.consoleStyle", cfg.Logging.ConsoleStyle, []string{"pretty", "compact", "json"})

	// Provider validation
	oneOf("provider.kind", cfg.Provider.Kind, []string{"whatsapp", "none"})
	if cfg.Provider.SendRatePerSecond < 0 {
		add("provider.sendRatePerSecond", "must not be negative, got %v", cfg.Provider.SendRatePerSecond)
	}
	if cfg.Provider.SendBurst < 0 {
		add("provider.sendBurst", "must not be negative, got %d", cfg.Provider.SendBurst)
	}

	// Media validation
	if cfg.Media.ImageMaxWidth < 0 {
		add("media.imageMaxWidth", "must not be negative, got %d", cfg.Media.ImageMaxWidth)
	}
	if cfg.Media.JPEGQuality < 0 || cfg.Media.JPEGQuality > 100 {
		add("media.jpegQuality", "must be 1-100, got %d", cfg.Media.JPEGQuality)
	}

	// Bot and session timing
	for path, v := range map[string]int{
		"bot.keywordDelayMs":         cfg.Bot.KeywordDelayMs,
		"bot.greetingDelayMs":        cfg.Bot.GreetingDelayMs,
		"session.reconnectDelayMs":   cfg.Session.ReconnectDelayMs,
		"session.authFailureDelayMs": cfg.Session.AuthFailureDelayMs,
		"session.initErrorDelayMs":   cfg.Session.InitErrorDelayMs,
		"session.historyLimit":       cfg.Session.HistoryLimit,
		"session.chatListLimit":      cfg.Session.ChatListLimit,
		"session.callTimeoutMs":      cfg.Session.CallTimeoutMs,
	} {
		if v < 0 {
			add(path, "must not be negative, got %d", v)
		}
	}

	// Tunnel validation
	oneOf("tunnel.kind", cfg.Tunnel.Kind, []string{"none", "static", "ngrok", "ngrok-agent"})
	if cfg.Tunnel.Kind == "static" && cfg.Tunnel.URL == "" {
		add("tunnel.url", "required when tunnel.kind is static")
	}
	if cfg.Tunnel.Kind == "ngrok-agent" && cfg.Tunnel.AgentAPI == "" {
		add("tunnel.agentApi", "required when tunnel.kind is ngrok-agent")
	}

	// Hooks validation
	for event, entries := range hookEntriesByEvent(cfg.Hooks) {
		for i, e := range entries {
			if e.Command == "" {
				add(fmt.Sprintf("hooks.%s[%d].command", event, i), "command is required")
			}
			if e.Timeout < 0 {
				add(fmt.Sprintf("hooks.%s[%d].timeout", event, i), "must not be negative, got %d", e.Timeout)
			}
		}
	}

	slices.SortStableFunc(issues, func(a, b ValidationIssue) int {
		switch {
		case a.Path < b.Path:
			return -1
		case a.Path > b.Path:
			return 1
		}
		return 0
	})
	return issues
}

// Entries returns the configured hooks keyed by their yaml event name.
func (h HooksConfig) Entries() map[string][]HookEntry {
	return hookEntriesByEvent(h)
}

func hookEntriesByEvent(h HooksConfig) map[string][]HookEntry {
	return map[string][]HookEntry{
		"messageReceived": h.MessageReceived,
		"messageSent":     h.MessageSent,
		"autoReplySent":   h.AutoReplySent,
		"configUpdated":   h.ConfigUpdated,
		"sessionStatus":   h.SessionStatus,
		"gatewayStart":    h.GatewayStart,
		"gatewayStop":     h.GatewayStop,
	}
}
