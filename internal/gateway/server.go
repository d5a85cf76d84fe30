// Package gateway is the HTTP front door of the chat agent: chat turns, stored
// history, the websocket stream, OAuth callbacks for MCP servers and the
// authenticated MCP reverse proxy.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/haasonsaas/chatagent/internal/agent"
	"github.com/haasonsaas/chatagent/internal/mcp"
	"github.com/haasonsaas/chatagent/internal/observability"
)

// Options configures a Server.
type Options struct {
	// Addr is the listen address, host:port.
	Addr string

	// CallbackPath is the suffix of OAuth callback routes. Default: /callback.
	CallbackPath string

	// CheckCredentials runs before every chat turn. Its error text, after the
	// last ": ", is returned to the client as a 500 body.
	CheckCredentials func() error

	// LLMKeyConfigured backs /check-open-ai-key.
	LLMKeyConfigured func() bool

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Server serves the gateway routes.
type Server struct {
	runtime *agent.Runtime
	mcp     *mcp.Hub
	opts    Options
	logger  *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a gateway over a runtime and the MCP hub.
func NewServer(runtime *agent.Runtime, hub *mcp.Hub, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CallbackPath == "" {
		opts.CallbackPath = "/callback"
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	return &Server{
		runtime: runtime,
		mcp:     hub,
		opts:    opts,
		logger:  opts.Logger.With("component", "gateway"),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, "GET /healthz", "healthz", http.HandlerFunc(s.handleHealthz))
	mux.Handle("GET /metrics", s.opts.Metrics.Handler())
	s.handle(mux, "GET /check-open-ai-key", "check_key", http.HandlerFunc(s.handleCheckKey))

	s.handle(mux, "POST /agents/chat/{session}", "chat", http.HandlerFunc(s.handleChat))
	s.handle(mux, "GET /agents/chat/{session}/messages", "messages", http.HandlerFunc(s.handleGetMessages))
	s.handle(mux, "DELETE /agents/chat/{session}/messages", "messages", http.HandlerFunc(s.handleDeleteMessages))
	s.handle(mux, "GET /agents/chat/{session}/servers", "servers", http.HandlerFunc(s.handleServers))
	s.handle(mux, "GET /agents/chat/{session}/ws", "ws", http.HandlerFunc(s.handleWebSocket))
	s.handle(mux, "GET /agents/chat/{session}"+s.opts.CallbackPath, "callback", http.HandlerFunc(s.handleCallback))

	proxy := http.HandlerFunc(s.handleMCPProxy)
	s.handle(mux, "/agents/chat/{session}/mcp/{server}", "mcp_proxy", proxy)
	s.handle(mux, "/agents/chat/{session}/mcp/{server}/{rest...}", "mcp_proxy", proxy)

	return mux
}

// handle registers h under pattern with request metrics and tracing. The
// route label stays low-cardinality.
func (s *Server) handle(mux *http.ServeMux, pattern, route string, h http.Handler) {
	mux.Handle(pattern, s.instrument(route, h))
}

// Start listens on Addr and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.httpServer = server
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	s.logger.Info("starting http server", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.opts.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.httpServer
	s.httpServer = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
		return err
	}
	return nil
}
