package config

// Config is the root configuration for wadesk.
type Config struct {
	Server   ServerConfig   `yaml:"server,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Provider ProviderConfig `yaml:"provider,omitempty"`
	Media    MediaConfig    `yaml:"media,omitempty"`
	Bot      BotConfig      `yaml:"bot,omitempty"`
	Session  SessionConfig  `yaml:"session,omitempty"`
	Tunnel   TunnelConfig   `yaml:"tunnel,omitempty"`
	Hooks    HooksConfig    `yaml:"hooks,omitempty"`
}

// ServerConfig controls the dashboard HTTP/WebSocket server.
type ServerConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string   `yaml:"customBindHost,omitempty"`
	Mode           string   `yaml:"mode,omitempty"` // "development" | "production"
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
	StaticDir      string   `yaml:"staticDir,omitempty"`
	MaxUploadBytes int64    `yaml:"maxUploadBytes,omitempty"`
}

// Production reports whether the server runs in production mode.
func (s ServerConfig) Production() bool { return s.Mode == "production" }

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleLevel string `yaml:"consoleLevel,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}

// ProviderConfig selects and tunes the messaging provider session.
type ProviderConfig struct {
	Kind              string  `yaml:"kind,omitempty"` // "whatsapp" | "none"
	SessionDB         string  `yaml:"sessionDb,omitempty"`
	JournalDB         string  `yaml:"journalDb,omitempty"`
	PrintQR           *bool   `yaml:"printQr,omitempty"` // render the login QR in the terminal; defaults to true
	SendRatePerSecond float64 `yaml:"sendRatePerSecond,omitempty"`
	SendBurst         int     `yaml:"sendBurst,omitempty"`
	HistorySync       bool    `yaml:"historySync,omitempty"`
}

// ShouldPrintQR reports whether the QR challenge is echoed to the terminal.
func (p ProviderConfig) ShouldPrintQR() bool {
	return p.PrintQR == nil || *p.PrintQR
}

// MediaConfig controls where and how media is materialized.
type MediaConfig struct {
	UploadDir     string `yaml:"uploadDir,omitempty"`
	URLPrefix     string `yaml:"urlPrefix,omitempty"`
	ImageMaxWidth int    `yaml:"imageMaxWidth,omitempty"`
	JPEGQuality   int    `yaml:"jpegQuality,omitempty"`
}

// BotConfig tunes the auto-responder. The bot's rules themselves live in
// the JSON file named by ConfigFile and are edited from the dashboard.
type BotConfig struct {
	ConfigFile           string `yaml:"configFile,omitempty"`
	KeywordDelayMs       int    `yaml:"keywordDelayMs,omitempty"`
	GreetingDelayMs      int    `yaml:"greetingDelayMs,omitempty"`
	CancelPendingOnPause bool   `yaml:"cancelPendingOnPause,omitempty"`
}

// SessionConfig controls provider session recovery and list sizes.
type SessionConfig struct {
	ReconnectDelayMs   int `yaml:"reconnectDelayMs,omitempty"`
	AuthFailureDelayMs int `yaml:"authFailureDelayMs,omitempty"`
	InitErrorDelayMs   int `yaml:"initErrorDelayMs,omitempty"`
	HistoryLimit       int `yaml:"historyLimit,omitempty"`
	ChatListLimit      int `yaml:"chatListLimit,omitempty"`
	CallTimeoutMs      int `yaml:"callTimeoutMs,omitempty"` // media downloads and read receipts while ingesting
}

// TunnelConfig configures the optional public URL provider.
type TunnelConfig struct {
	Kind           string `yaml:"kind,omitempty"` // "none" | "static" | "ngrok" | "ngrok-agent"
	URL            string `yaml:"url,omitempty"`
	Authtoken      string `yaml:"authtoken,omitempty"` // ngrok; falls back to NGROK_AUTHTOKEN
	Domain         string `yaml:"domain,omitempty"`    // ngrok reserved domain
	AgentAPI       string `yaml:"agentApi,omitempty"`
	PollIntervalMs int    `yaml:"pollIntervalMs,omitempty"`
	Attempts       int    `yaml:"attempts,omitempty"`
}

// HooksConfig defines shell hooks run on relay events.
type HooksConfig struct {
	MessageReceived []HookEntry `yaml:"messageReceived,omitempty"`
	MessageSent     []HookEntry `yaml:"messageSent,omitempty"`
	AutoReplySent   []HookEntry `yaml:"autoReplySent,omitempty"`
	ConfigUpdated   []HookEntry `yaml:"configUpdated,omitempty"`
	SessionStatus   []HookEntry `yaml:"sessionStatus,omitempty"`
	GatewayStart    []HookEntry `yaml:"gatewayStart,omitempty"`
	GatewayStop     []HookEntry `yaml:"gatewayStop,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}
