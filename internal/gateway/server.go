package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/wadesk/internal/config"
	"github.com/soyeahso/wadesk/internal/domain"
	"github.com/soyeahso/wadesk/internal/hooks"
	"github.com/soyeahso/wadesk/internal/logging"
	"github.com/soyeahso/wadesk/internal/relay"
	"github.com/soyeahso/wadesk/internal/version"
)

var ErrClientClosed = errors.New("client connection closed")

// DefaultMaxUploadBytes caps uploads when the config leaves it unset.
const DefaultMaxUploadBytes = 15 << 20

// minFrameBytes is the smallest accepted WebSocket read limit.
const minFrameBytes = 4 << 20

// Backend is the relay surface exposed to dashboards.
type Backend interface {
	Connected(obs relay.Observer)
	SendMessage(ctx context.Context, obs relay.Observer, chatID, text string) (relay.SentReceipt, error)
	SendFile(ctx context.Context, obs relay.Observer, chatID string, file *relay.FileUpload) (relay.FileReceipt, error)
	MarkRead(ctx context.Context, chatID string) error
	UpdateConfig(cfg domain.BotConfig) (domain.BotConfig, error)
	LoadHistory(ctx context.Context, obs relay.Observer, chatID string, limit int) (int, error)
	RequestTunnelURL(obs relay.Observer) string
	Transcribe(ctx context.Context, audioData string) relay.Transcription
	State() relay.State
}

// Uploads is the media cache served under the uploads prefix.
type Uploads interface {
	Save(filename string, data []byte, mimeType string) (domain.MediaAsset, error)
	Dir() string
	URLPrefix() string
}

// Server is the wadesk dashboard HTTP + WebSocket server.
type Server struct {
	cfg      config.ServerConfig
	log      *logging.Logger
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	version  string

	// Relay backend (optional; RPC methods answer "unavailable" without it)
	backend Backend

	// Media cache (optional; /upload and /uploads are not served without it)
	uploads Uploads

	// Hook manager (optional; nil if not configured)
	hooks *hooks.Manager

	mu         sync.RWMutex
	listenAddr string

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithClients shares a client registry, typically the relay's broadcaster.
func WithClients(reg *ClientRegistry) ServerOption {
	return func(s *Server) {
		s.clients = reg
	}
}

// WithBackend sets the relay that answers dashboard commands.
func WithBackend(b Backend) ServerOption {
	return func(s *Server) {
		s.backend = b
	}
}

// WithUploads sets the media cache for /upload and /uploads.
func WithUploads(u Uploads) ServerOption {
	return func(s *Server) {
		s.uploads = u
	}
}

// WithHooks sets the hook manager for lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// New creates a new gateway server.
func New(cfg config.ServerConfig, log *logging.Logger, opts ...ServerOption) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	s := &Server{
		cfg:      cfg,
		log:      log.Sub("gateway"),
		handlers: make(map[string]RequestHandler),
		version:  version.Version,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     newOriginPolicy(cfg).allows,
		},
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.clients == nil {
		s.clients = NewClientRegistry(log.Sub("clients"))
	}

	s.registerRPCHandlers()
	return s
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods returns the sorted list of registered RPC method names.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// Clients returns the connected dashboards.
func (s *Server) Clients() *ClientRegistry { return s.clients }

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.ServerConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan", "auto":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Handler returns the full HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, newOriginPolicy(s.cfg))
}

// Start begins listening for HTTP and WebSocket connections.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 120 * time.Second,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listenAddr = ln.Addr().String()
	s.mu.Unlock()
	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Bind).
		Str("mode", s.cfg.Mode).
		Int("methods", len(s.handlers)).
		Msg("gateway server ready")

	if s.hooks != nil {
		s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{
			"addr": ln.Addr().String(),
		})
	}

	// Shutdown when context is cancelled
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		if s.hooks != nil {
			s.hooks.Emit(context.Background(), hooks.EventGatewayStop, nil)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.clients.CloseAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound listen address, or empty string if not started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listenAddr
}

// maxFrameBytes is the WebSocket read limit: large enough for a base64
// encoded file of MaxUploadBytes.
func (s *Server) maxFrameBytes() int64 {
	n := s.cfg.MaxUploadBytes/3*4 + 64<<10
	if n < minFrameBytes {
		n = minFrameBytes
	}
	return n
}

// handleWebSocket upgrades HTTP to WebSocket and runs the connection loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(s.maxFrameBytes())

	client := s.clients.NewClient(conn, r.RemoteAddr)
	if err := s.sendHello(client); err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("hello failed")
		client.Close()
		return
	}

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	if s.backend != nil {
		s.backend.Connected(client)
	}

	s.readLoop(r.Context(), client)
}

func (s *Server) sendHello(client *Client) error {
	hello := Hello{
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Version: s.version,
			Commit:  version.Commit,
			ConnID:  client.ConnID,
		},
		Features: Features{
			Methods: s.Methods(),
			Events:  append([]string{EventHello}, relay.AllEvents...),
		},
		Policy: ServerPolicy{
			MaxPayload:     int(s.maxFrameBytes()),
			MaxUploadBytes: s.cfg.MaxUploadBytes,
		},
	}
	return client.Emit(EventHello, hello)
}

// readLoop processes incoming frames from a dashboard.
func (s *Server) readLoop(ctx context.Context, client *Client) {
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("client closed connection")
			} else {
				s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("read ended")
			}
			return
		}

		if !frame.IsRequest() {
			s.log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}

		s.dispatch(ctx, client, frame)
	}
}

// dispatch routes a request frame to the appropriate handler.
func (s *Server) dispatch(ctx context.Context, client *Client, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	if !ok {
		client.RespondError(frame.ID, ErrorShape{
			Code:    CodeMethodNotFound,
			Message: "unknown method: " + frame.Method,
		})
		return
	}

	rc := &RequestContext{
		Ctx:    ctx,
		Client: client,
		Frame:  frame,
		Server: s,
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("method", frame.Method).Msg("recovered panic in rpc handler")
			rc.RespondError(CodeInternal, "internal error")
		}
	}()
	handler(rc)
}
