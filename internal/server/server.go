package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/termweave/termweave/terminal"
)

// Config carries the HTTP server's settings.
type Config struct {
	// StaticDir, when set, is served at the root for the web UI.
	StaticDir string

	// RecordsPath, when set, is where session records are persisted on
	// shutdown and restored from on startup.
	RecordsPath string

	Manager terminal.ManagerConfig
}

// Server exposes the session manager over HTTP and streams terminal
// output to websocket clients. It registers itself as the manager's
// event handler and fans session events out to attached clients.
type Server struct {
	config  Config
	logger  terminal.Logger
	manager *terminal.Manager

	mu          sync.Mutex
	workers     map[string]*sessionWorker
	wsBySession map[string]map[*wsClient]struct{}
	closed      bool

	inputLimiter *byteRateLimiter
}

func New(config Config) (*Server, error) {
	logger := config.Manager.Logger
	if logger == nil {
		logger = terminal.NopLogger{}
	}

	s := &Server{
		config:       config,
		logger:       logger,
		workers:      make(map[string]*sessionWorker),
		wsBySession:  make(map[string]map[*wsClient]struct{}),
		inputLimiter: newByteRateLimiter(inputBytesPerSecond, inputBurstBytes),
	}

	manager := terminal.NewManager(config.Manager)
	manager.SetEventHandler(s)
	s.manager = manager

	if config.RecordsPath != "" {
		restored, err := manager.RestoreSessions(config.RecordsPath)
		if err != nil {
			logger.Warn("failed to restore session records", "path", config.RecordsPath, "error", err)
		}
		for _, session := range restored {
			s.attachWorker(session)
		}
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionByID)
	mux.HandleFunc("/ws", s.handleWS)
	if s.config.StaticDir != "" {
		mux.Handle("/", newStaticHandler(s.config.StaticDir))
	}
	return mux
}

// Close persists session records, stops all sessions and disconnects
// every websocket client.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	workers := make([]*sessionWorker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.workers = make(map[string]*sessionWorker)
	clients := make([]*wsClient, 0)
	for _, set := range s.wsBySession {
		for c := range set {
			clients = append(clients, c)
		}
	}
	s.wsBySession = make(map[string]map[*wsClient]struct{})
	s.mu.Unlock()

	if s.config.RecordsPath != "" {
		if err := s.manager.SaveSessions(s.config.RecordsPath); err != nil {
			s.logger.Warn("failed to save session records", "error", err)
		}
	}

	for _, w := range workers {
		w.stop()
	}
	for _, c := range clients {
		c.close()
	}
	return s.manager.CloseAll()
}

func (s *Server) attachWorker(session *terminal.Session) {
	w := newSessionWorker(s, session)
	s.mu.Lock()
	s.workers[session.ID] = w
	s.mu.Unlock()
}

func (s *Server) worker(sessionID string) *sessionWorker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workers[sessionID]
}

func (s *Server) detachWorker(sessionID string) {
	s.mu.Lock()
	w := s.workers[sessionID]
	delete(s.workers, sessionID)
	s.mu.Unlock()
	if w != nil {
		w.stop()
	}
}

// OnSessionData implements terminal.SessionEventHandler. Called from the
// PTY reader goroutine, so it only pokes the worker.
func (s *Server) OnSessionData(sessionID string) {
	if w := s.worker(sessionID); w != nil {
		w.wake()
	}
}

func (s *Server) OnSessionTitleChanged(sessionID, title string) {
	s.broadcast(sessionID, wsEvent{Type: "title", SessionID: sessionID, Title: title})
}

func (s *Server) OnSessionWorkingDirChanged(sessionID, dir string) {
	s.broadcast(sessionID, wsEvent{Type: "workdir", SessionID: sessionID, WorkingDir: dir})
}

func (s *Server) OnSessionBell(sessionID string) {
	s.broadcast(sessionID, wsEvent{Type: "bell", SessionID: sessionID})
}

func (s *Server) OnSessionExit(sessionID string, exitCode int) {
	s.broadcast(sessionID, wsEvent{Type: "exit", SessionID: sessionID, ExitCode: &exitCode})
}

func (s *Server) OnSessionError(sessionID string, err error) {
	s.logger.Warn("session error", "session", sessionID, "error", err)
	s.broadcast(sessionID, wsEvent{Type: "error", SessionID: sessionID, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func readJSON(r *http.Request, maxBytes int64, v any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	// Trailing garbage after the JSON value is a malformed request.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func parseIntQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
