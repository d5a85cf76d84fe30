package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/haasonsaas/chatagent/internal/agent"
	"github.com/haasonsaas/chatagent/internal/mcp"
	"github.com/haasonsaas/chatagent/pkg/models"
)

const maxChatBodyBytes = 4 << 20

// chatRequest carries either a full client-side history or a single message
// to append to the stored one. The single message may carry decisions on the
// calls awaiting confirmation, with or without text.
type chatRequest struct {
	Messages  []models.Message      `json:"messages,omitempty"`
	Message   string                `json:"message,omitempty"`
	Decisions []models.ToolDecision `json:"decisions,omitempty"`
}

type chatResponse struct {
	Messages []models.Message `json:"messages"`
	Pending  bool             `json:"pending,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type callbackResponse struct {
	ServerID string `json:"serverId"`
	State    string `json:"state"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCheckKey(w http.ResponseWriter, _ *http.Request) {
	ok := s.opts.LLMKeyConfigured != nil && s.opts.LLMKeyConfigured()
	writeJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.checkCredentials(w, r) {
		return
	}
	session := &models.Session{ID: r.PathValue("session")}

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var (
		history []models.Message
		err     error
	)
	switch {
	case req.Messages != nil:
		history, err = s.runtime.Turn(r.Context(), session, req.Messages)
	case strings.TrimSpace(req.Message) != "" || len(req.Decisions) > 0:
		history, err = s.runtime.Send(r.Context(), session, userMessage(session.ID, req.Message, req.Decisions))
	default:
		writeError(w, http.StatusBadRequest, "messages, message or decisions is required")
		return
	}
	if errors.Is(err, agent.ErrMissingCredential) {
		writeCredentialError(w, err)
		return
	}
	resp := chatResponse{Messages: history, Pending: agent.HasPending(history)}
	if resp.Messages == nil {
		resp.Messages = []models.Message{}
	}
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func userMessage(sessionID, content string, decisions []models.ToolDecision) models.Message {
	msg := agent.NewUserMessage(sessionID, content)
	msg.Decisions = decisions
	return msg
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	history, err := s.runtime.History(r.Context(), r.PathValue("session"))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "load history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if history == nil {
		history = []models.Message{}
	}
	writeJSON(w, http.StatusOK, chatResponse{Messages: history})
}

func (s *Server) handleDeleteMessages(w http.ResponseWriter, r *http.Request) {
	if err := s.runtime.ClearHistory(r.Context(), r.PathValue("session")); err != nil {
		s.logger.ErrorContext(r.Context(), "clear history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear messages")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	servers := s.mcp.ForSession(r.PathValue("session")).Servers()
	if servers == nil {
		servers = []mcp.ServerInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": servers})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	manager := s.mcp.ForSession(r.PathValue("session"))
	if !manager.IsCallbackRequest(r) {
		writeError(w, http.StatusBadRequest, "missing oauth state")
		return
	}

	serverID, err := manager.HandleCallbackRequest(r.Context(), r)
	switch {
	case errors.Is(err, mcp.ErrAlreadyAuthorized):
		writeJSON(w, http.StatusOK, callbackResponse{ServerID: serverID, State: "already_authorized"})
	case errors.Is(err, mcp.ErrInvalidState), errors.Is(err, mcp.ErrUnknownServer):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.WarnContext(r.Context(), "oauth callback failed", "server_id", serverID, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, callbackResponse{ServerID: serverID, State: string(mcp.StateReady)})
	}
}

// handleMCPProxy forwards .../mcp/{server}/{rest...} to the registered server
// URL with the session's credential in the Authorization header.
func (s *Server) handleMCPProxy(w http.ResponseWriter, r *http.Request) {
	manager := s.mcp.ForSession(r.PathValue("session"))
	serverID := r.PathValue("server")
	info, ok := manager.Server(serverID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown mcp server "+serverID)
		return
	}
	target, err := url.Parse(info.URL)
	if err != nil {
		writeError(w, http.StatusBadGateway, "invalid mcp server url")
		return
	}
	if err := manager.AuthorizeRequest(r.Context(), r); err != nil {
		s.logger.WarnContext(r.Context(), "authorize mcp request", "server_id", serverID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to authorize mcp request")
		return
	}

	rest := r.PathValue("rest")
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = target.Scheme
			pr.Out.URL.Host = target.Host
			pr.Out.URL.Path = joinPath(target.Path, rest)
			pr.Out.URL.RawPath = ""
			pr.Out.Host = target.Host
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.WarnContext(r.Context(), "mcp proxy error", "server_id", serverID, "error", err)
			writeError(w, http.StatusBadGateway, "mcp server unavailable")
		},
	}
	proxy.ServeHTTP(w, r)
}

// checkCredentials writes the credential failure and returns false when a
// turn cannot run.
func (s *Server) checkCredentials(w http.ResponseWriter, r *http.Request) bool {
	if s.opts.CheckCredentials == nil {
		return true
	}
	if err := s.opts.CheckCredentials(); err != nil {
		s.logger.ErrorContext(r.Context(), "credential check failed", "error", err)
		writeCredentialError(w, err)
		return false
	}
	return true
}

// writeCredentialError sends the bare message, e.g. "OPENAI_API_KEY is not set".
func writeCredentialError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(credentialMessage(err))) //nolint:errcheck
}

func credentialMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	return msg
}

func joinPath(base, rest string) string {
	if rest == "" {
		if base == "" {
			return "/"
		}
		return base
	}
	return strings.TrimRight(base, "/") + "/" + rest
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
