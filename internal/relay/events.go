package relay

// Event names sent to dashboards.
const (
	EventStatus        = "whatsapp-status"
	EventQRUpdate      = "qr-update"
	EventQRFallback    = "qr-fallback"
	EventChatList      = "chat-list-update"
	EventChatUpdated   = "chat-updated"
	EventMessage       = "specific-message"
	EventHistoric      = "historic-message"
	EventLoadError     = "load-error"
	EventBotConfig     = "bot-config"
	EventBotConfigSet  = "bot-config-updated"
	EventAutoReply     = "auto-reply"
	EventTunnelURL     = "tunnel-url"
	EventMessageSent   = "message-sent"
	EventMessageStatus = "message-status"
	EventFileUploaded  = "file-uploaded"
	EventError         = "error"
)

// Session status values carried by EventStatus.
const (
	StatusConnected    = "connected"
	StatusReady        = "ready"
	StatusDisconnected = "disconnected"
	StatusAuthFailure  = "auth_failure"
)

// User-facing error texts.
const (
	sendFailedPrefix   = "Falha no envio: "
	fileFailedPrefix   = "Falha no envio do arquivo: "
	historyFailedText  = "Falha ao carregar histórico"
	transcribeFailText = "Falha na transcrição"
)

// AllEvents lists every event a dashboard may receive.
var AllEvents = []string{
	EventStatus,
	EventQRUpdate,
	EventQRFallback,
	EventChatList,
	EventChatUpdated,
	EventMessage,
	EventHistoric,
	EventLoadError,
	EventBotConfig,
	EventBotConfigSet,
	EventAutoReply,
	EventTunnelURL,
	EventMessageSent,
	EventMessageStatus,
	EventFileUploaded,
	EventError,
}
