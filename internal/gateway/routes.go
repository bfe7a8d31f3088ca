package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/soyeahso/wadesk/internal/botconfig"
	"github.com/soyeahso/wadesk/internal/domain"
	"github.com/soyeahso/wadesk/internal/relay"
)

// noFileMessage is the upload error shown by dashboards.
const noFileMessage = "Nenhum arquivo enviado"

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /tunnel-url", s.handleTunnelURL)

	if s.uploads != nil {
		prefix := strings.TrimRight(s.uploads.URLPrefix(), "/")
		mux.HandleFunc("POST /upload", s.handleUpload)
		mux.Handle("GET "+prefix+"/", http.StripPrefix(prefix, http.FileServer(http.Dir(s.uploads.Dir()))))
	}

	if s.cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.StaticDir)))
		return
	}
	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

func (s *Server) handleTunnelURL(w http.ResponseWriter, r *http.Request) {
	url := ""
	if s.backend != nil {
		url = s.backend.State().TunnelURL
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": nullable(url)})
}

type uploadResponse struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// handleUpload stores the multipart "file" field in the media cache.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "arquivo muito grande"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": noFileMessage})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": noFileMessage})
		return
	}
	defer file.Close()

	if header.Size > s.cfg.MaxUploadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "arquivo muito grande"})
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": noFileMessage})
		return
	}

	asset, err := s.uploads.Save(header.Filename, data, header.Header.Get("Content-Type"))
	if err != nil {
		s.log.Error().Err(err).Str("file", header.Filename).Msg("upload store failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "falha ao salvar arquivo"})
		return
	}

	s.log.Debug().Str("file", header.Filename).Str("url", asset.URL).Int64("size", asset.Size).Msg("file uploaded")
	writeJSON(w, http.StatusOK, uploadResponse{URL: asset.URL, Name: header.Filename})
}

// registerRPCHandlers sets up all JSON-RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("send-message", s.rpcSendMessage)
	s.Handle("send-file", s.rpcSendFile)
	s.Handle("mark-read", s.rpcMarkRead)
	s.Handle("update-bot-config", s.rpcUpdateBotConfig)
	s.Handle("load-chat-history", s.rpcLoadChatHistory)
	s.Handle("request-tunnel-url", s.rpcRequestTunnelURL)
	s.Handle("transcribe-audio", s.rpcTranscribeAudio)
}

// Built-in RPC handlers

func (s *Server) rpcHealth(rc *RequestContext) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Clients: s.clients.Count(),
	}
	if s.backend != nil {
		st := s.backend.State()
		resp.Session = &st
	}
	rc.Respond(resp)
}

// withBackend answers "unavailable" when no relay is attached.
func (s *Server) withBackend(rc *RequestContext) bool {
	if s.backend == nil {
		rc.RespondError(CodeUnavailable, "relay not configured")
		return false
	}
	return true
}

// params decodes the request params. Malformed params are ignored, not
// rejected.
func params(rc *RequestContext, target any) bool {
	if err := rc.Params(target); err != nil {
		rc.Server.log.Debug().Err(err).Str("method", rc.Frame.Method).Msg("malformed params ignored")
		rc.Respond(ignoredResponse)
		return false
	}
	return true
}

type sendMessageParams struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

func (s *Server) rpcSendMessage(rc *RequestContext) {
	if !s.withBackend(rc) {
		return
	}
	var p sendMessageParams
	if !params(rc, &p) {
		return
	}
	receipt, err := s.backend.SendMessage(rc.Ctx, rc.Client, p.ChatID, p.Message)
	rc.Result(receipt, err, CodeSendFailed)
}

type sendFileParams struct {
	ChatID string            `json:"chatId"`
	File   *relay.FileUpload `json:"file"`
}

func (s *Server) rpcSendFile(rc *RequestContext) {
	if !s.withBackend(rc) {
		return
	}
	var p sendFileParams
	if !params(rc, &p) {
		return
	}
	receipt, err := s.backend.SendFile(rc.Ctx, rc.Client, p.ChatID, p.File)
	rc.Result(receipt, err, CodeSendFailed)
}

// markReadParams accepts either a bare chat id or {"chatId": ...}.
type markReadParams struct {
	ChatID string `json:"chatId"`
}

func (p *markReadParams) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		p.ChatID = id
		return nil
	}
	type plain markReadParams
	return json.Unmarshal(data, (*plain)(p))
}

func (s *Server) rpcMarkRead(rc *RequestContext) {
	if !s.withBackend(rc) {
		return
	}
	var p markReadParams
	if !params(rc, &p) {
		return
	}
	err := s.backend.MarkRead(rc.Ctx, p.ChatID)
	rc.Result(map[string]string{"chatId": p.ChatID}, err, CodeMarkReadFailed)
}

func (s *Server) rpcUpdateBotConfig(rc *RequestContext) {
	if !s.withBackend(rc) {
		return
	}
	if len(rc.Frame.Params) == 0 {
		rc.Respond(ignoredResponse)
		return
	}
	var cfg domain.BotConfig
	if !params(rc, &cfg) {
		return
	}
	stored, err := s.backend.UpdateConfig(cfg)
	if errors.Is(err, botconfig.ErrInvalidStatus) {
		rc.Respond(ignoredResponse)
		return
	}
	rc.Result(stored, err, "persist_failed")
}

type loadHistoryParams struct {
	ChatID string `json:"chatId"`
	Limit  int    `json:"limit"`
}

func (s *Server) rpcLoadChatHistory(rc *RequestContext) {
	if !s.withBackend(rc) {
		return
	}
	var p loadHistoryParams
	if !params(rc, &p) {
		return
	}
	n, err := s.backend.LoadHistory(rc.Ctx, rc.Client, p.ChatID, p.Limit)
	rc.Result(map[string]any{"chatId": p.ChatID, "count": n}, err, CodeHistoryFailed)
}

func (s *Server) rpcRequestTunnelURL(rc *RequestContext) {
	if !s.withBackend(rc) {
		return
	}
	url := s.backend.RequestTunnelURL(rc.Client)
	rc.Respond(map[string]any{"url": nullable(url)})
}

type transcribeParams struct {
	AudioData string `json:"audioData"`
}

func (s *Server) rpcTranscribeAudio(rc *RequestContext) {
	if !s.withBackend(rc) {
		return
	}
	var p transcribeParams
	if !params(rc, &p) {
		return
	}
	rc.Respond(s.backend.Transcribe(rc.Ctx, p.AudioData))
}

// nullable maps an empty string to JSON null.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
