package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()

	cfg.Server.Port = -1
	issues := Validate(&cfg)
	require.NotEmpty(t, issues)
	assert.Equal(t, "server.port", issues[0].Path)

	cfg.Server.Port = 70000
	assert.NotEmpty(t, Validate(&cfg))
}

func TestValidate_ValidPort(t *testing.T) {
	for _, port := range []int{0, 3000, 65535} {
		cfg := Defaults()
		cfg.Server.Port = port
		assert.Empty(t, Validate(&cfg), "port %d should be valid", port)
	}
}

func TestValidate_Enums(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"bind", func(c *Config) { c.Server.Bind = "tailnet" }, "server.bind"},
		{"mode", func(c *Config) { c.Server.Mode = "staging" }, "server.mode"},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"console level", func(c *Config) { c.Logging.ConsoleLevel = "loud" }, "logging.consoleLevel"},
		{"console style", func(c *Config) { c.Logging.ConsoleStyle = "fancy" }, "logging.consoleStyle"},
		{"provider", func(c *Config) { c.Provider.Kind = "telegram" }, "provider.kind"},
		{"tunnel", func(c *Config) { c.Tunnel.Kind = "cloudflare" }, "tunnel.kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			issues := Validate(&cfg)
			require.Len(t, issues, 1)
			assert.Equal(t, tt.path, issues[0].Path)
			assert.Contains(t, issues[0].Message, "must be one of")
		})
	}
}

func TestValidate_ValidBinds(t *testing.T) {
	for _, bind := range []string{"auto", "lan", "loopback", "custom", ""} {
		cfg := Defaults()
		cfg.Server.Bind = bind
		assert.Empty(t, Validate(&cfg), "bind %q should be valid", bind)
	}
}

func TestValidate_NegativeValues(t *testing.T) {
	cfg := Defaults()
	cfg.Server.MaxUploadBytes = -1
	cfg.Provider.SendBurst = -2
	cfg.Bot.KeywordDelayMs = -5
	cfg.Session.ChatListLimit = -1

	issues := Validate(&cfg)
	paths := make([]string, 0, len(issues))
	for _, iss := range issues {
		paths = append(paths, iss.Path)
	}
	assert.Equal(t, []string{
		"bot.keywordDelayMs",
		"provider.sendBurst",
		"server.maxUploadBytes",
		"session.chatListLimit",
	}, paths)
}

func TestValidate_JPEGQuality(t *testing.T) {
	cfg := Defaults()
	cfg.Media.JPEGQuality = 101
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "media.jpegQuality", issues[0].Path)
}

func TestValidate_TunnelRequirements(t *testing.T) {
	cfg := Defaults()
	cfg.Tunnel.Kind = "static"
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "tunnel.url", issues[0].Path)

	cfg.Tunnel.URL = "https://desk.example.com"
	assert.Empty(t, Validate(&cfg))

	cfg = Defaults()
	cfg.Tunnel.Kind = "ngrok-agent"
	cfg.Tunnel.AgentAPI = ""
	issues = Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "tunnel.agentApi", issues[0].Path)
}

func TestValidate_Hooks(t *testing.T) {
	cfg := Defaults()
	cfg.Hooks.MessageSent = []HookEntry{{Command: "true"}, {Command: "", Timeout: -1}}

	issues := Validate(&cfg)
	require.Len(t, issues, 2)
	assert.Equal(t, "hooks.messageSent[1].command", issues[0].Path)
	assert.Equal(t, "hooks.messageSent[1].timeout", issues[1].Path)
}

func TestHooksConfigEntries(t *testing.T) {
	h := HooksConfig{AutoReplySent: []HookEntry{{Command: "notify"}}}
	entries := h.Entries()
	assert.Len(t, entries, 7)
	assert.Equal(t, []HookEntry{{Command: "notify"}}, entries["autoReplySent"])
	assert.Empty(t, entries["gatewayStart"])
}

func TestValidationIssueString(t *testing.T) {
	iss := ValidationIssue{Path: "server.port", Message: "bad port"}
	assert.Equal(t, "server.port: bad port", iss.String())
}
