package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const (
	// wsSendQueue bounds the per-client outbound queue. A client that
	// cannot keep up gets disconnected instead of stalling the worker.
	wsSendQueue = 256

	wsWriteTimeout = 10 * time.Second
)

// screenRow carries the text of one redrawn row.
type screenRow struct {
	Row  int    `json:"row"`
	Text string `json:"text"`
}

// wsEvent is the server-to-client message envelope.
type wsEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`

	// Type "screen".
	Rows          []screenRow `json:"rows,omitempty"`
	CursorRow     int         `json:"cursorRow,omitempty"`
	CursorCol     int         `json:"cursorCol,omitempty"`
	CursorVisible bool        `json:"cursorVisible"`

	// Type "title" / "workdir" / "error".
	Title      string `json:"title,omitempty"`
	WorkingDir string `json:"workingDir,omitempty"`
	Message    string `json:"message,omitempty"`

	// Type "exit".
	ExitCode *int `json:"exitCode,omitempty"`
}

// wsCommand is the client-to-server message envelope.
type wsCommand struct {
	Type string `json:"type"`

	// Type "input": raw bytes to forward to the PTY.
	Data string `json:"data,omitempty"`

	// Type "resize".
	Cols int `json:"cols,omitempty"`
	Rows int `json:"rows,omitempty"`
}

type wsClient struct {
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
	closeOnce chan struct{}
}

func (c *wsClient) close() {
	select {
	case <-c.closeOnce:
	default:
		close(c.closeOnce)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session query parameter")
		return
	}
	session, ok := s.manager.GetSession(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	client := &wsClient{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, wsSendQueue),
		closeOnce: make(chan struct{}),
	}

	if !s.registerClient(client) {
		conn.Close(websocket.StatusGoingAway, "server closing")
		return
	}
	defer s.unregisterClient(client)

	go s.wsWriteLoop(client)

	// Repaint the full screen for the new client so it does not have to
	// wait for the next damage event.
	if worker := s.worker(sessionID); worker != nil {
		worker.run(func() {
			buffer := session.Buffer()
			if buffer == nil {
				return
			}
			rows := make([]screenRow, 0, buffer.GetRows())
			for row := 0; row < buffer.GetRows(); row++ {
				rows = append(rows, screenRow{Row: row, Text: buffer.GetRowText(row)})
			}
			curRow, curCol, curVisible := session.CursorPos()
			s.sendEvent(client, wsEvent{
				Type:          "screen",
				SessionID:     sessionID,
				Rows:          rows,
				CursorRow:     curRow,
				CursorCol:     curCol,
				CursorVisible: curVisible,
			})
		})
	}

	s.wsReadLoop(r.Context(), client, session)
}

func (s *Server) registerClient(c *wsClient) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	set := s.wsBySession[c.sessionID]
	if set == nil {
		set = make(map[*wsClient]struct{})
		s.wsBySession[c.sessionID] = set
	}
	set[c] = struct{}{}
	return true
}

func (s *Server) unregisterClient(c *wsClient) {
	s.mu.Lock()
	if set := s.wsBySession[c.sessionID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(s.wsBySession, c.sessionID)
		}
	}
	s.mu.Unlock()
	c.close()
}

func (s *Server) wsWriteLoop(c *wsClient) {
	defer c.conn.Close(websocket.StatusNormalClosure, "")
	for {
		select {
		case <-c.closeOnce:
			return
		case payload := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				c.close()
				return
			}
		}
	}
}

func (s *Server) wsReadLoop(ctx context.Context, c *wsClient, session sessionHandle) {
	for {
		kind, payload, err := c.conn.Read(ctx)
		if err != nil {
			c.close()
			return
		}
		if kind != websocket.MessageText {
			continue
		}

		var cmd wsCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			s.logger.Debug("ignoring malformed websocket command", "session", c.sessionID, "error", err)
			continue
		}

		switch cmd.Type {
		case "input":
			data := []byte(cmd.Data)
			if len(data) == 0 || len(data) > maxInputBytes {
				continue
			}
			if !s.inputLimiter.allow(c.sessionID, len(data)) {
				c.conn.Close(websocket.StatusPolicyViolation, "input rate exceeded")
				c.close()
				return
			}
			if w := s.worker(c.sessionID); w != nil {
				w.run(func() {
					if _, err := session.Write(data); err != nil {
						s.logger.Debug("websocket input dropped", "session", c.sessionID, "error", err)
					}
				})
			}
		case "resize":
			if !validateDims(cmd.Cols, cmd.Rows) {
				continue
			}
			if w := s.worker(c.sessionID); w != nil {
				w.run(func() {
					if err := session.Resize(cmd.Cols, cmd.Rows); err != nil {
						s.logger.Warn("websocket resize failed", "session", c.sessionID, "error", err)
					}
				})
			}
		default:
			s.logger.Debug("ignoring unknown websocket command", "session", c.sessionID, "type", cmd.Type)
		}
	}
}

// sessionHandle is the slice of Session the websocket loops need.
type sessionHandle interface {
	Write(data []byte) (int, error)
	Resize(cols, rows int) error
}

// sendEvent queues an event on one client, disconnecting it if its
// queue is full.
func (s *Server) sendEvent(c *wsClient, event wsEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.conn.Close(websocket.StatusPolicyViolation, "client too slow")
		c.close()
	}
}

// broadcast fans an event out to every client attached to the session.
func (s *Server) broadcast(sessionID string, event wsEvent) {
	s.mu.Lock()
	clients := make([]*wsClient, 0, len(s.wsBySession[sessionID]))
	for c := range s.wsBySession[sessionID] {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		s.sendEvent(c, event)
	}
}

func (s *Server) broadcastScreen(sessionID string, rows []screenRow, curRow, curCol int, curVisible bool) {
	s.broadcast(sessionID, wsEvent{
		Type:          "screen",
		SessionID:     sessionID,
		Rows:          rows,
		CursorRow:     curRow,
		CursorCol:     curCol,
		CursorVisible: curVisible,
	})
}
