package terminal

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrSessionNotFound is returned by Manager lookups for unknown IDs.
var ErrSessionNotFound = errors.New("session not found")

// SessionState tracks the orchestrator lifecycle.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionRunning
	SessionExited
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionRunning:
		return "running"
	case SessionExited:
		return "exited"
	default:
		return "unknown"
	}
}

// SessionEventHandler receives session notifications. Handlers are
// invoked without any session lock held; implementations may call back
// into the session.
type SessionEventHandler interface {
	// OnSessionData signals that PTY output is waiting in the ring
	// buffer. Called from the reader goroutine; keep it cheap and call
	// ProcessOutput from the owning goroutine.
	OnSessionData(sessionID string)
	OnSessionTitleChanged(sessionID string, title string)
	OnSessionWorkingDirChanged(sessionID string, dir string)
	OnSessionBell(sessionID string)
	OnSessionExit(sessionID string, exitCode int)
	OnSessionError(sessionID string, err error)
}

// Session wires a PtySession, a RingBuffer, a VT engine and a
// TerminalBuffer together. The PTY reader goroutine produces into the
// ring; the owning goroutine consumes it via ProcessOutput, which is the
// only path by which PTY bytes become screen mutations.
type Session struct {
	ID string

	mu       sync.RWMutex
	cfg      SessionConfig
	state    SessionState
	title    string
	exitCode int
	logger   Logger

	pty    *PtySession
	ring   *RingBuffer
	engine Engine
	buffer *TerminalBuffer

	cursorRow     int
	cursorCol     int
	cursorVisible bool

	workdir workdirTracker
	handler SessionEventHandler

	drainBuf []byte
}

// NewSession creates an idle session from the config.
func NewSession(cfg SessionConfig) *Session {
	cfg = cfg.applyDefaults()
	return &Session{
		ID:     generateSessionID(),
		cfg:    cfg,
		title:  cfg.Title,
		logger: cfg.Logger,
	}
}

// SetEventHandler installs the notification sink. Call before Start.
func (s *Session) SetEventHandler(handler SessionEventHandler) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Title returns the current session title.
func (s *Session) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.title
}

// WorkingDir returns the most recently reported working directory, or
// the configured one when the shell never announced a change.
func (s *Session) WorkingDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if dir := s.workdir.Current(); dir != "" {
		return dir
	}
	return s.cfg.WorkingDir
}

// ExitCode returns the child's exit code once the session has exited.
func (s *Session) ExitCode() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exitCode
}

// Buffer exposes the screen buffer for the renderer. Only the owning
// goroutine may touch it.
func (s *Session) Buffer() *TerminalBuffer {
	return s.buffer
}

// CursorPos returns the mirrored cursor position and visibility.
func (s *Session) CursorPos() (row, col int, visible bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursorRow, s.cursorCol, s.cursorVisible
}

// Start builds the pipeline and launches the PTY. A failure in any step
// tears down everything created so far and leaves the session Idle.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.state != SessionIdle {
		s.mu.Unlock()
		return fmt.Errorf("cannot start session in state %s", s.state)
	}

	cols, rows := clampTerminalSize(s.cfg.Cols, s.cfg.Rows)
	s.buffer = NewTerminalBuffer(rows, cols, s.cfg.ScrollbackLines)
	s.ring = NewRingBuffer(s.cfg.RingSize)
	s.drainBuf = make([]byte, readChunkSize)
	s.cursorVisible = true

	engine := s.cfg.Engine
	if engine == nil {
		engine = NewVT10XEngine(rows, cols)
	}
	s.engine = engine
	engine.SetCallbacks(EngineCallbacks{
		Damage:         s.onDamage,
		MoveCursor:     s.onMoveCursor,
		SetProp:        s.onProp,
		Bell:           s.onBell,
		ScrollbackPush: s.onScrollbackPush,
	})

	env, envErr := s.cfg.EnvProvider.BuildEnv(s.cfg.Shell, s.cfg.WorkingDir)
	if envErr != nil {
		s.logger.Warn("env provider failed", "error", envErr)
		env = nil
	}

	args := s.cfg.Args
	if s.cfg.ShellIntegration != nil {
		if err := s.cfg.ShellIntegration.EnsureFiles(); err != nil {
			s.logger.Warn("shell integration unavailable", "error", err)
		} else {
			args, env = s.cfg.ShellIntegration.Apply(s.cfg.Shell, args, env)
		}
	}

	pty := NewPtySession(PtySessionConfig{
		Shell:      s.cfg.Shell,
		Args:       args,
		WorkingDir: s.cfg.WorkingDir,
		Env:        env,
		Cols:       cols,
		Rows:       rows,
		OnOutput:   s.onPTYOutput,
		OnError:    s.onPTYError,
		OnExit:     s.onPTYExit,
		Logger:     s.logger,
	})

	if err := pty.Start(); err != nil {
		s.engine = nil
		s.buffer = nil
		s.ring = nil
		_ = engine.Close()
		s.mu.Unlock()
		return fmt.Errorf("session start failed: %w", err)
	}

	s.pty = pty
	s.state = SessionRunning
	s.mu.Unlock()

	s.logger.Info("Session started", "sessionID", s.ID,
		"shell", s.cfg.Shell, "cols", cols, "rows", rows)
	return nil
}

// onPTYOutput runs on the PTY reader goroutine: it is the single
// producer into the ring. A full ring causes a short sleep and retry so
// nothing is dropped while the consumer catches up.
func (s *Session) onPTYOutput(data []byte) {
	s.mu.RLock()
	pty := s.pty
	s.mu.RUnlock()

	written := 0
	for written < len(data) {
		if pty == nil || pty.stopRequested() {
			return
		}
		n := s.ring.Write(data[written:])
		if n == 0 {
			time.Sleep(ringRetryBackoff)
			continue
		}
		written += n
	}

	if handler := s.eventHandler(); handler != nil {
		handler.OnSessionData(s.ID)
	}
}

func (s *Session) onPTYError(err error) {
	if handler := s.eventHandler(); handler != nil {
		handler.OnSessionError(s.ID, err)
	}
}

func (s *Session) onPTYExit(exitCode int) {
	s.mu.Lock()
	s.exitCode = exitCode
	if s.state == SessionRunning {
		s.state = SessionExited
	}
	s.mu.Unlock()

	s.logger.Info("Session process exited", "sessionID", s.ID, "exitCode", exitCode)
	if handler := s.eventHandler(); handler != nil {
		handler.OnSessionExit(s.ID, exitCode)
	}
}

func (s *Session) eventHandler() SessionEventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handler
}

// ProcessOutput drains all currently buffered PTY bytes into the VT
// engine and flushes its damage into the screen buffer. Must be called
// from the owning goroutine, often enough that the ring does not
// saturate. Returns the number of bytes processed.
func (s *Session) ProcessOutput() int {
	if s.ring == nil || s.engine == nil {
		return 0
	}

	total := 0
	for {
		n := s.ring.Read(s.drainBuf)
		if n == 0 {
			break
		}
		chunk := s.drainBuf[:n]
		if _, err := s.engine.Write(chunk); err != nil {
			s.logger.Warn("engine rejected input", "sessionID", s.ID, "error", err)
		}
		s.scanWorkdir(chunk)
		total += n
	}

	s.engine.FlushDamage()
	return total
}

func (s *Session) scanWorkdir(chunk []byte) {
	s.mu.Lock()
	dir := s.workdir.Scan(chunk)
	s.mu.Unlock()

	if dir == "" {
		return
	}
	s.logger.Debug("Working directory changed", "sessionID", s.ID, "dir", dir)
	if handler := s.eventHandler(); handler != nil {
		handler.OnSessionWorkingDirChanged(s.ID, dir)
	}
}

// onDamage mirrors a damaged engine region into the screen buffer.
func (s *Session) onDamage(r Rect) {
	for row := r.StartRow; row < r.EndRow; row++ {
		for col := r.StartCol; col < r.EndCol; col++ {
			ec := s.engine.Cell(row, col)

			var cell Cell
			cell.Width = uint8(ec.Width)
			if len(ec.Runes) > 0 {
				cell.Rune = ec.Runes[0]
				for i := 0; i < MaxCombining && i+1 < len(ec.Runes); i++ {
					cell.Combining[i] = ec.Runes[i+1]
				}
			} else if ec.Width > 0 {
				cell.Rune = ' '
			}
			cell.FG = ec.FG
			cell.BG = ec.BG
			cell.Attrs = ec.Attrs

			s.buffer.SetCell(row, col, cell)
		}
	}
}

func (s *Session) onMoveCursor(row, col int, visible bool) {
	s.mu.Lock()
	s.cursorRow = row
	s.cursorCol = col
	s.cursorVisible = visible
	s.mu.Unlock()
}

// onProp updates the title only for non-empty values that differ from
// the current one.
func (s *Session) onProp(prop TermProp, value string) {
	if prop != PropTitle || value == "" {
		return
	}

	s.mu.Lock()
	if value == s.title {
		s.mu.Unlock()
		return
	}
	s.title = value
	s.mu.Unlock()

	if handler := s.eventHandler(); handler != nil {
		handler.OnSessionTitleChanged(s.ID, value)
	}
}

func (s *Session) onBell() {
	if handler := s.eventHandler(); handler != nil {
		handler.OnSessionBell(s.ID)
	}
}

func (s *Session) onScrollbackPush(cells []EngineCell) {
	row := make([]Cell, 0, len(cells))
	for _, ec := range cells {
		cell := Cell{Width: uint8(ec.Width), FG: ec.FG, BG: ec.BG, Attrs: ec.Attrs}
		if len(ec.Runes) > 0 {
			cell.Rune = ec.Runes[0]
			for i := 0; i < MaxCombining && i+1 < len(ec.Runes); i++ {
				cell.Combining[i] = ec.Runes[i+1]
			}
		} else if ec.Width > 0 {
			cell.Rune = ' '
		}
		row = append(row, cell)
	}
	s.buffer.PushScrollback(row)
}

// Write sends input bytes to the child process.
func (s *Session) Write(data []byte) (int, error) {
	s.mu.RLock()
	pty := s.pty
	running := s.state == SessionRunning
	s.mu.RUnlock()

	if !running || pty == nil {
		return -1, ErrNotRunning
	}
	return pty.Write(data)
}

// Resize applies new dimensions to the PTY, the engine and the screen
// buffer as one operation. When the PTY resize fails nothing else is
// touched, so no partial dimension state can arise.
func (s *Session) Resize(cols, rows int) error {
	s.mu.RLock()
	pty := s.pty
	running := s.state == SessionRunning
	s.mu.RUnlock()

	if !running || pty == nil {
		return ErrNotRunning
	}

	cols, rows = clampTerminalSize(cols, rows)
	if err := pty.Resize(cols, rows); err != nil {
		return err
	}

	s.engine.Resize(rows, cols)
	s.buffer.Resize(rows, cols)
	s.logger.Info("Session resized", "sessionID", s.ID, "cols", cols, "rows", rows)
	return nil
}

// Stop shuts the session down. Any remaining buffered output is
// processed first so the final screen state survives into the buffer.
// Idempotent; a session that never started is a no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state == SessionIdle {
		s.mu.Unlock()
		return nil
	}
	pty := s.pty
	alreadyStopped := s.pty == nil
	s.mu.Unlock()

	if alreadyStopped {
		return nil
	}

	err := pty.Stop()

	s.ProcessOutput()

	s.mu.Lock()
	if s.engine != nil {
		_ = s.engine.Close()
	}
	s.pty = nil
	if s.state == SessionRunning {
		s.state = SessionIdle
	}
	s.mu.Unlock()

	s.logger.Info("Session stopped", "sessionID", s.ID)
	return err
}
