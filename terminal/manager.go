package terminal

import (
	"fmt"
	"os"
	"sync"
)

// ManagerConfig carries defaults applied to every session the manager
// creates.
type ManagerConfig struct {
	Logger          Logger
	ShellResolver   ShellResolver
	EnvProvider     EnvProvider
	ScrollbackLines int
	RingSize        int

	// ShellIntegration, when set, is applied to every session so shells
	// report their working directory. Nil disables it.
	ShellIntegration *ShellIntegration

	// NewEngine overrides the VT engine per session; nil selects vt10x.
	NewEngine func(rows, cols int) Engine
}

func (cfg ManagerConfig) applyDefaults() ManagerConfig {
	if cfg.Logger == nil {
		cfg.Logger = NopLogger{}
	}
	if cfg.ShellResolver == nil {
		cfg.ShellResolver = &DefaultShellResolver{}
	}
	if cfg.EnvProvider == nil {
		cfg.EnvProvider = DefaultEnvProvider{}
	}
	if cfg.ScrollbackLines <= 0 {
		cfg.ScrollbackLines = defaultScrollbackLines
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = defaultRingSize
	}
	return cfg
}

// Manager owns a collection of sessions and fans session events out to a
// single handler.
type Manager struct {
	mu           sync.RWMutex
	config       ManagerConfig
	sessions     map[string]*Session
	sessionOrder []string
	handler      SessionEventHandler
}

// NewManager creates a manager with the provided configuration.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		config:   cfg.applyDefaults(),
		sessions: make(map[string]*Session),
	}
}

// SetEventHandler installs the handler for sessions created afterwards
// and retrofits it onto existing sessions.
func (m *Manager) SetEventHandler(handler SessionEventHandler) {
	m.mu.Lock()
	m.handler = handler
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.SetEventHandler(handler)
	}
}

// CreateSession builds a session from the record, registers it, and
// starts it. Registration happens before the PTY starts so an
// immediately-exiting process still finds its session in the registry.
func (m *Manager) CreateSession(rec SessionRecord) (*Session, error) {
	if rec.WorkingDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			rec.WorkingDir = home
		} else {
			rec.WorkingDir = "/"
		}
	}

	cfg := rec.Config(m.config.ShellResolver, m.config.Logger)
	cfg.EnvProvider = m.config.EnvProvider
	if cfg.ScrollbackLines == defaultScrollbackLines {
		cfg.ScrollbackLines = m.config.ScrollbackLines
	}
	cfg.RingSize = m.config.RingSize
	cfg.ShellIntegration = m.config.ShellIntegration
	if m.config.NewEngine != nil {
		cols, rows := clampTerminalSize(cfg.Cols, cfg.Rows)
		cfg.Engine = m.config.NewEngine(rows, cols)
	}

	session := NewSession(cfg)

	m.mu.Lock()
	handler := m.handler
	m.sessions[session.ID] = session
	m.sessionOrder = append(m.sessionOrder, session.ID)
	m.mu.Unlock()

	session.SetEventHandler(handler)

	if err := session.Start(); err != nil {
		m.detachSession(session.ID)
		m.config.Logger.Error("Session creation failed", "sessionID", session.ID, "error", err)
		return nil, err
	}

	m.config.Logger.Info("Created session", "sessionID", session.ID, "shell", cfg.Shell)
	return session, nil
}

// GetSession looks a session up by ID.
func (m *Manager) GetSession(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[sessionID]
	return session, ok
}

// ListSessions returns all sessions in creation order.
func (m *Manager) ListSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, id := range m.sessionOrder {
		if session, ok := m.sessions[id]; ok {
			sessions = append(sessions, session)
		}
	}
	return sessions
}

// CloseSession stops a session and removes it from the registry.
func (m *Manager) CloseSession(sessionID string) error {
	m.mu.RLock()
	session, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	err := session.Stop()
	m.detachSession(sessionID)
	return err
}

// CloseAll stops every session. The first error is returned after all
// sessions have been attempted.
func (m *Manager) CloseAll() error {
	sessions := m.ListSessions()

	var firstErr error
	for _, session := range sessions {
		if err := session.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.detachSession(session.ID)
	}
	return firstErr
}

// SaveSessions writes the records of all live sessions to path.
func (m *Manager) SaveSessions(path string) error {
	sessions := m.ListSessions()
	records := make([]SessionRecord, 0, len(sessions))
	for _, session := range sessions {
		records = append(records, session.Record())
	}
	return SaveRecords(path, records)
}

// RestoreSessions creates a session per record in the collection file.
// Individual start failures are logged and skipped so one broken record
// does not block the rest.
func (m *Manager) RestoreSessions(path string) ([]*Session, error) {
	records, err := LoadRecords(path)
	if err != nil {
		return nil, err
	}

	var restored []*Session
	for _, rec := range records {
		session, err := m.CreateSession(rec)
		if err != nil {
			m.config.Logger.Warn("Skipping unrestorable session", "shell", rec.Shell, "error", err)
			continue
		}
		restored = append(restored, session)
	}
	return restored, nil
}

func (m *Manager) detachSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, sessionID)
	for i, id := range m.sessionOrder {
		if id == sessionID {
			m.sessionOrder = append(m.sessionOrder[:i], m.sessionOrder[i+1:]...)
			break
		}
	}
}
