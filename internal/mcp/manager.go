// Package mcp registers remote MCP servers per chat session and authorizes
// requests to them with OAuth or a bearer token kept in session memory.
package mcp

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/haasonsaas/chatagent/internal/memory"
	"github.com/haasonsaas/chatagent/pkg/models"
)

var (
	// ErrAlreadyAuthorized reports a callback for a server whose handshake already
	// completed. Callers should treat it as success.
	ErrAlreadyAuthorized = errors.New("mcp server already authorized")
	ErrInvalidState      = errors.New("invalid oauth state")
	ErrUnknownServer     = errors.New("unknown mcp server")
	ErrNotReady          = errors.New("mcp server is not ready")
	ErrInvalidURL        = errors.New("invalid mcp server url")
)

// Config configures MCP connections.
type Config struct {
	ClientName    string
	ClientVersion string

	// PublicURL is the externally reachable base of the gateway, used to build
	// OAuth redirect URLs.
	PublicURL string

	// CallbackPath is appended to the session's chat path. Default: /callback.
	CallbackPath string

	// StateSecret signs OAuth state tokens. A random secret is generated when empty.
	StateSecret []byte
	StateTTL    time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

func (c Config) withDefaults() Config {
	if c.ClientName == "" {
		c.ClientName = "chatagent"
	}
	if c.ClientVersion == "" {
		c.ClientVersion = "1.0.0"
	}
	if c.PublicURL == "" {
		c.PublicURL = "http://localhost:8080"
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")
	if c.CallbackPath == "" {
		c.CallbackPath = "/callback"
	}
	if !strings.HasPrefix(c.CallbackPath, "/") {
		c.CallbackPath = "/" + c.CallbackPath
	}
	if len(c.StateSecret) == 0 {
		c.StateSecret = make([]byte, 32)
		_, _ = rand.Read(c.StateSecret)
	}
	if c.StateTTL <= 0 {
		c.StateTTL = 15 * time.Minute
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Hub owns the per-session managers. A manager is created when a session first
// touches MCP and kept for the life of the process, since its server list and
// pending handshakes are held nowhere else.
type Hub struct {
	cfg    Config
	memory *memory.Manager
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Manager
}

// NewHub creates a hub. Bearer tokens are kept in mem.
func NewHub(cfg Config, mem *memory.Manager) *Hub {
	cfg = cfg.withDefaults()
	return &Hub{
		cfg:      cfg,
		memory:   mem,
		logger:   cfg.Logger.With("component", "mcp"),
		sessions: make(map[string]*Manager),
	}
}

// ForSession returns the manager of sessionID, creating it on first use.
func (h *Hub) ForSession(sessionID string) *Manager {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.sessions[sessionID]; ok {
		return m
	}
	m := &Manager{
		hub:       h,
		sessionID: sessionID,
		logger:    h.logger.With("session_id", sessionID),
		servers:   make(map[string]*server),
	}
	h.sessions[sessionID] = m
	return m
}

// memory returns the session's memory store. It is fetched per use because the
// memory manager evicts idle stores.
func (m *Manager) memory() *memory.Store {
	return m.hub.memory.ForSession(m.sessionID)
}

// CallbackURL returns the OAuth redirect URL for a session.
func (h *Hub) CallbackURL(sessionID string) string {
	return h.cfg.PublicURL + "/agents/chat/" + url.PathEscape(sessionID) + h.cfg.CallbackPath
}

// Manager holds the MCP servers registered by one session.
type Manager struct {
	hub       *Hub
	sessionID string
	logger    *slog.Logger

	mu      sync.RWMutex
	servers map[string]*server
	order   []string

	// callbackMu serializes OAuth code exchanges.
	callbackMu sync.Mutex
}

type server struct {
	info     ServerInfo
	oauth    *oauth2.Config
	verifier string
	token    *oauth2.Token
	client   *Client
	ready    bool // initialize completed
}

// Connect registers a server for the OAuth flow and returns the URL the user
// must open. It never touches session memory.
func (m *Manager) Connect(ctx context.Context, rawURL string) (ConnectResult, error) {
	u, err := parseServerURL(rawURL)
	if err != nil {
		return ConnectResult{}, err
	}

	id := newServerID()
	oauthCfg := m.hub.oauthConfig(ctx, u, m.sessionID)
	verifier := oauth2.GenerateVerifier()
	state, err := m.hub.signState(m.sessionID, id)
	if err != nil {
		return ConnectResult{}, fmt.Errorf("sign state: %w", err)
	}
	authURL := oauthCfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	m.add(&server{
		info: ServerInfo{
			ID:      id,
			URL:     u.String(),
			State:   StateAuthenticating,
			AuthURL: authURL,
		},
		oauth:    oauthCfg,
		verifier: verifier,
	})
	m.logger.InfoContext(ctx, "mcp server registered", "server_id", id, "url", u.String())
	return ConnectResult{ServerID: id, AuthURL: authURL}, nil
}

// ConnectWithBearerToken registers a server authorized by a static token. The
// token is stored as the session memory entry mcp_token_<id> and the server is
// initialized right away; on failure the registration is rolled back.
func (m *Manager) ConnectWithBearerToken(ctx context.Context, rawURL, token string) (string, error) {
	u, err := parseServerURL(rawURL)
	if err != nil {
		return "", err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("bearer token is empty")
	}

	id := newServerID()
	key := models.MCPTokenKey(id)
	if _, err := m.memory().Store(ctx, key, token); err != nil {
		return "", fmt.Errorf("store bearer token: %w", err)
	}

	srv := &server{info: ServerInfo{ID: id, URL: u.String(), State: StateReady, Bearer: true}}
	m.add(srv)

	if err := m.initialize(ctx, srv); err != nil {
		m.remove(id)
		if _, ferr := m.memory().Forget(ctx, key); ferr != nil {
			m.logger.WarnContext(ctx, "failed to forget bearer token", "server_id", id, "error", ferr)
		}
		return "", fmt.Errorf("connect %s: %w", u.String(), err)
	}
	m.logger.InfoContext(ctx, "mcp server connected with bearer token", "server_id", id)
	return id, nil
}

// Servers lists registered servers in registration order.
func (m *Manager) Servers() []ServerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ServerInfo, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.servers[id].info)
	}
	return out
}

// Server returns one server's info.
func (m *Manager) Server(id string) (ServerInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	srv, ok := m.servers[id]
	if !ok {
		return ServerInfo{}, false
	}
	return srv.info, true
}

// Remove unregisters a server and forgets its bearer token.
func (m *Manager) Remove(ctx context.Context, id string) (bool, error) {
	if !m.remove(id) {
		return false, nil
	}
	if _, err := m.memory().Forget(ctx, models.MCPTokenKey(id)); err != nil {
		return true, fmt.Errorf("forget bearer token: %w", err)
	}
	return true, nil
}

// ListTools returns the tools of a ready server.
func (m *Manager) ListTools(ctx context.Context, id string) ([]Tool, error) {
	srv, err := m.readyServer(ctx, id)
	if err != nil {
		return nil, err
	}
	return srv.client.ListTools(ctx)
}

// CallTool invokes a tool on a ready server.
func (m *Manager) CallTool(ctx context.Context, id, name string, arguments json.RawMessage) (*ToolCallResult, error) {
	srv, err := m.readyServer(ctx, id)
	if err != nil {
		return nil, err
	}
	return srv.client.CallTool(ctx, name, arguments)
}

// AuthorizeRequest sets the Authorization header of a request addressed to
// .../mcp/{serverId}/... Session memory is read on every call so a rotated
// token applies immediately. Requests without a server id are left alone.
func (m *Manager) AuthorizeRequest(ctx context.Context, req *http.Request) error {
	id := ServerIDFromPath(req.URL.Path)
	if id == "" {
		return nil
	}
	return m.authorize(ctx, req, id)
}

// RoundTripper returns a transport that authorizes requests the way
// AuthorizeRequest does before passing them to base.
func (m *Manager) RoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		clone := req.Clone(req.Context())
		if err := m.AuthorizeRequest(req.Context(), clone); err != nil {
			return nil, err
		}
		return base.RoundTrip(clone)
	})
}

// IsCallbackRequest reports whether r is an OAuth redirect for this gateway.
func (m *Manager) IsCallbackRequest(r *http.Request) bool {
	return IsCallbackRequest(r, m.hub.cfg.CallbackPath)
}

// IsCallbackRequest reports whether r is a GET to a path ending in callbackPath
// that carries a state parameter.
func IsCallbackRequest(r *http.Request, callbackPath string) bool {
	if r == nil || r.URL == nil || r.Method != http.MethodGet {
		return false
	}
	if !strings.HasSuffix(strings.TrimRight(r.URL.Path, "/"), strings.TrimRight(callbackPath, "/")) {
		return false
	}
	return r.URL.Query().Get("state") != ""
}

// HandleCallbackRequest completes an OAuth handshake. A repeated callback for
// an authorized server returns its id with ErrAlreadyAuthorized.
func (m *Manager) HandleCallbackRequest(ctx context.Context, r *http.Request) (string, error) {
	q := r.URL.Query()
	claims, err := m.hub.parseState(q.Get("state"))
	if err != nil {
		return "", err
	}
	if claims.SessionID != m.sessionID {
		return "", fmt.Errorf("%w: session mismatch", ErrInvalidState)
	}

	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()

	m.mu.RLock()
	srv, ok := m.servers[claims.ServerID]
	authorized := ok && srv.token != nil
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownServer, claims.ServerID)
	}
	if authorized {
		return srv.info.ID, ErrAlreadyAuthorized
	}

	if oauthErr := q.Get("error"); oauthErr != "" {
		m.setFailed(srv, oauthErr)
		return srv.info.ID, fmt.Errorf("authorization failed: %s %s", oauthErr, q.Get("error_description"))
	}
	code := q.Get("code")
	if code == "" {
		return srv.info.ID, errors.New("authorization code missing")
	}

	tok, err := srv.oauth.Exchange(m.hub.oauthContext(ctx), code, oauth2.VerifierOption(srv.verifier))
	if err != nil {
		m.setFailed(srv, err.Error())
		return srv.info.ID, fmt.Errorf("exchange code: %w", err)
	}

	m.mu.Lock()
	srv.token = tok
	srv.info.State = StateReady
	srv.info.AuthURL = ""
	srv.info.LastError = ""
	m.mu.Unlock()
	m.logger.InfoContext(ctx, "mcp server authorized", "server_id", srv.info.ID)
	return srv.info.ID, nil
}

func (m *Manager) add(srv *server) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers[srv.info.ID] = srv
	m.order = append(m.order, srv.info.ID)
}

func (m *Manager) remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.servers[id]; !ok {
		return false
	}
	delete(m.servers, id)
	for i, sid := range m.order {
		if sid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

func (m *Manager) setFailed(srv *server, reason string) {
	m.mu.Lock()
	srv.info.State = StateFailed
	srv.info.LastError = reason
	m.mu.Unlock()
}

func (m *Manager) readyServer(ctx context.Context, id string) (*server, error) {
	m.mu.RLock()
	srv, ok := m.servers[id]
	var state ServerState
	if ok {
		state = srv.info.State
	}
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, id)
	}
	if state != StateReady {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotReady, id, state)
	}
	if err := m.initialize(ctx, srv); err != nil {
		return nil, err
	}
	return srv, nil
}

// initialize runs the MCP handshake once per server.
func (m *Manager) initialize(ctx context.Context, srv *server) error {
	m.mu.Lock()
	if srv.client == nil {
		httpClient := *m.hub.cfg.HTTPClient
		httpClient.Transport = &serverTransport{manager: m, serverID: srv.info.ID, base: m.hub.cfg.HTTPClient.Transport}
		srv.client = NewClient(srv.info.URL, &httpClient, m.logger)
	}
	ready := srv.ready
	client := srv.client
	m.mu.Unlock()
	if ready {
		return nil
	}

	name, err := client.Initialize(ctx, m.hub.cfg.ClientName, m.hub.cfg.ClientVersion)
	if err != nil {
		return err
	}
	m.mu.Lock()
	srv.ready = true
	srv.info.Name = name
	m.mu.Unlock()
	return nil
}

// authorize applies the memory bearer token, falling back to the server's OAuth
// token, refreshed when expired.
func (m *Manager) authorize(ctx context.Context, req *http.Request, id string) error {
	entry, ok, err := m.memory().Retrieve(ctx, models.MCPTokenKey(id))
	if err != nil {
		return fmt.Errorf("read bearer token: %w", err)
	}
	if ok && entry.Value != "" {
		req.Header.Set("Authorization", "Bearer "+entry.Value)
		return nil
	}

	m.mu.RLock()
	srv, found := m.servers[id]
	var tok *oauth2.Token
	var cfg *oauth2.Config
	if found {
		tok, cfg = srv.token, srv.oauth
	}
	m.mu.RUnlock()
	if tok == nil || cfg == nil {
		return nil
	}

	fresh, err := cfg.TokenSource(m.hub.oauthContext(ctx), tok).Token()
	if err != nil {
		return fmt.Errorf("refresh oauth token: %w", err)
	}
	if fresh.AccessToken != tok.AccessToken {
		m.mu.Lock()
		srv.token = fresh
		m.mu.Unlock()
	}
	fresh.SetAuthHeader(req)
	return nil
}

type serverTransport struct {
	manager  *Manager
	serverID string
	base     http.RoundTripper
}

func (t *serverTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if err := t.manager.authorize(req.Context(), clone, t.serverID); err != nil {
		return nil, err
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

// ServerIDFromPath returns the path segment after "mcp", or "".
func ServerIDFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if p == "mcp" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

func parseServerURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u, nil
}

func newServerID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
