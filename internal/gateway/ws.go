package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haasonsaas/chatagent/internal/agent"
	"github.com/haasonsaas/chatagent/pkg/models"
)

const (
	wsMaxPayloadBytes = 4 << 20
	wsPongWait        = 60 * time.Second
	wsPingInterval    = 25 * time.Second
	wsWriteWait       = 10 * time.Second
	wsQueuedTurns     = 4
)

// Client frame types.
const (
	wsTypeChat    = "chat"
	wsTypeMessage = "message"
	wsTypeClear   = "clear"
)

// Server frame types.
const (
	wsTypeText     = "text"
	wsTypeToolCall = "tool_call"
	wsTypeDone     = "done"
	wsTypeError    = "error"
	wsTypeCleared  = "cleared"
)

// wsClientFrame is a request from the browser. "chat" carries the full
// history, "message" appends one user message with text, decisions or both,
// "clear" drops the history.
type wsClientFrame struct {
	Type      string                `json:"type"`
	Messages  []models.Message      `json:"messages,omitempty"`
	Content   string                `json:"content,omitempty"`
	Decisions []models.ToolDecision `json:"decisions,omitempty"`
}

type wsServerFrame struct {
	Type     string           `json:"type"`
	Text     string           `json:"text,omitempty"`
	ToolCall *models.ToolCall `json:"toolCall,omitempty"`
	Messages []models.Message `json:"messages,omitempty"`
	Pending  bool             `json:"pending,omitempty"`
	Error    string           `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

type wsConn struct {
	server  *Server
	conn    *websocket.Conn
	session *models.Session
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	send   chan wsServerFrame
	turns  chan wsClientFrame
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkCredentials(w, r) {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.DebugContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	sessionID := r.PathValue("session")
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &wsConn{
		server:  s,
		conn:    conn,
		session: &models.Session{ID: sessionID},
		logger:  s.logger.With("session_id", sessionID),
		ctx:     ctx,
		cancel:  cancel,
		send:    make(chan wsServerFrame, 64),
		turns:   make(chan wsClientFrame, wsQueuedTurns),
	}
	c.run()
}

func (c *wsConn) run() {
	defer c.close()
	go c.writeLoop()
	go c.turnLoop()
	c.readLoop()
}

func (c *wsConn) readLoop() {
	c.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame wsClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.sendError(fmt.Errorf("invalid frame: %w", err))
			continue
		}
		switch frame.Type {
		case wsTypeChat, wsTypeMessage, wsTypeClear:
		default:
			c.sendError(fmt.Errorf("unsupported frame type %q", frame.Type))
			continue
		}

		select {
		case c.turns <- frame:
		default:
			c.sendError(errors.New("too many queued turns"))
		}
	}
}

// turnLoop runs queued frames one at a time so reads keep serving pongs.
func (c *wsConn) turnLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case frame := <-c.turns:
			c.handleFrame(frame)
		}
	}
}

func (c *wsConn) handleFrame(frame wsClientFrame) {
	runtime := c.server.runtime
	var (
		chunks <-chan *agent.ResponseChunk
		err    error
	)
	switch frame.Type {
	case wsTypeClear:
		if err := runtime.ClearHistory(c.ctx, c.session.ID); err != nil {
			c.sendError(err)
			return
		}
		c.enqueue(wsServerFrame{Type: wsTypeCleared})
		return
	case wsTypeChat:
		chunks, err = runtime.Stream(c.ctx, c.session, frame.Messages)
	case wsTypeMessage:
		if strings.TrimSpace(frame.Content) == "" && len(frame.Decisions) == 0 {
			c.sendError(errors.New("content or decisions is required"))
			return
		}
		chunks, err = runtime.StreamSend(c.ctx, c.session, userMessage(c.session.ID, frame.Content, frame.Decisions))
	}
	if err != nil {
		c.sendError(err)
		return
	}

	var turnErr error
	for chunk := range chunks {
		switch {
		case chunk.Error != nil:
			turnErr = chunk.Error
		case chunk.Text != "":
			c.enqueue(wsServerFrame{Type: wsTypeText, Text: chunk.Text})
		case chunk.ToolCall != nil:
			c.enqueue(wsServerFrame{Type: wsTypeToolCall, ToolCall: chunk.ToolCall})
		}
	}
	if turnErr != nil {
		if errors.Is(turnErr, agent.ErrMissingCredential) {
			turnErr = errors.New(credentialMessage(turnErr))
		}
		c.sendError(turnErr)
	}

	history, err := runtime.History(c.ctx, c.session.ID)
	if err != nil {
		c.sendError(err)
		return
	}
	c.enqueue(wsServerFrame{Type: wsTypeDone, Messages: history, Pending: agent.HasPending(history)})
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
			if err := c.conn.WriteJSON(frame); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				c.close()
				return
			}
		}
	}
}

// close unblocks the read loop after a write failure.
func (c *wsConn) close() {
	c.cancel()
	_ = c.conn.Close()
}

func (c *wsConn) enqueue(frame wsServerFrame) {
	select {
	case c.send <- frame:
	case <-c.ctx.Done():
	}
}

func (c *wsConn) sendError(err error) {
	c.enqueue(wsServerFrame{Type: wsTypeError, Error: err.Error()})
}
