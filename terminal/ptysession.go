package terminal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// ErrNotRunning is returned by operations that need a live PTY.
var ErrNotRunning = errors.New("pty session not running")

// PtyState tracks the lifecycle of a PtySession.
type PtyState int

const (
	PtyNotStarted PtyState = iota
	PtyRunning
	PtyStopped
)

func (s PtyState) String() string {
	switch s {
	case PtyNotStarted:
		return "not-started"
	case PtyRunning:
		return "running"
	case PtyStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// PtySessionConfig describes the child process and callbacks.
type PtySessionConfig struct {
	Shell      string
	Args       []string
	WorkingDir string
	Env        []string
	Cols       int
	Rows       int

	// OnOutput receives raw PTY output from the reader goroutine. The
	// slice is only valid for the duration of the call.
	OnOutput func(data []byte)
	// OnError receives unexpected read errors. Optional.
	OnError func(err error)
	// OnExit fires once after the child process has been reaped, with
	// its exit code. Optional.
	OnExit func(exitCode int)

	Logger Logger
}

func (c *PtySessionConfig) applyDefaults() {
	if c.Cols == 0 {
		c.Cols = defaultTerminalCols
	}
	if c.Rows == 0 {
		c.Rows = defaultTerminalRows
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
}

// PtySession owns a pseudo-terminal, the child process attached to it,
// and the reader goroutine draining its output.
//
// Start, Write, Resize and Stop belong to the owning goroutine; the
// reader goroutine is internal and never exposed. Stop order matters:
// the PTY handle is closed first so the reader's pending blocking read
// returns promptly, then the reader is joined, and only then is the
// child force-terminated and reaped.
type PtySession struct {
	mu     sync.Mutex
	cfg    PtySessionConfig
	state  PtyState
	ptmx   *os.File
	cmd    *exec.Cmd
	cols   int
	rows   int
	logger Logger

	stopFlag   chan struct{}
	readerDone chan struct{}
	procDone   chan struct{}
	exitCode   int

	lastError string
}

// NewPtySession creates a session in the NotStarted state.
func NewPtySession(cfg PtySessionConfig) *PtySession {
	cfg.applyDefaults()
	return &PtySession{
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// State returns the current lifecycle state.
func (p *PtySession) State() PtyState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Size returns the cached dimensions.
func (p *PtySession) Size() (cols, rows int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cols, p.rows
}

// LastError returns the most recently recorded error message.
func (p *PtySession) LastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastError
}

func (p *PtySession) recordError(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	p.lastError = err.Error()
	return err
}

// Start spawns the child on a fresh pseudo-terminal and launches the
// reader goroutine. On failure nothing is retained and the session stays
// in NotStarted.
func (p *PtySession) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != PtyNotStarted {
		return p.recordError("cannot start session in state %s", p.state)
	}
	if p.cfg.Shell == "" {
		return p.recordError("no shell configured")
	}
	if err := validateTerminalSize(p.cfg.Cols, p.cfg.Rows); err != nil {
		return p.recordError("invalid terminal size: %w", err)
	}

	cmd := exec.Command(p.cfg.Shell, p.cfg.Args...)
	cmd.Dir = p.cfg.WorkingDir
	if len(p.cfg.Env) > 0 {
		cmd.Env = p.cfg.Env
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(p.cfg.Cols),
		Rows: uint16(p.cfg.Rows),
	})
	if err != nil {
		return p.recordError("failed to start pty: %w", err)
	}

	p.ptmx = ptmx
	p.cmd = cmd
	p.cols = p.cfg.Cols
	p.rows = p.cfg.Rows
	p.state = PtyRunning
	p.stopFlag = make(chan struct{})
	p.readerDone = make(chan struct{})
	p.procDone = make(chan struct{})

	go p.readLoop(ptmx, cmd)

	p.logger.Info("Started PTY session",
		"shell", p.cfg.Shell, "pid", cmd.Process.Pid,
		"cols", p.cols, "rows", p.rows)
	return nil
}

// Write sends bytes to the child's input. The caller is responsible for
// serializing concurrent writes; the session takes no write lock.
func (p *PtySession) Write(data []byte) (int, error) {
	p.mu.Lock()
	ptmx := p.ptmx
	running := p.state == PtyRunning
	p.mu.Unlock()

	if !running || ptmx == nil {
		return -1, ErrNotRunning
	}
	n, err := ptmx.Write(data)
	if err != nil {
		p.mu.Lock()
		p.lastError = err.Error()
		p.mu.Unlock()
		return -1, err
	}
	return n, nil
}

// Resize changes the pseudo-terminal dimensions. The cached size is
// updated only when the resize succeeds.
func (p *PtySession) Resize(cols, rows int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != PtyRunning || p.ptmx == nil {
		return ErrNotRunning
	}
	if err := validateTerminalSize(cols, rows); err != nil {
		return p.recordError("invalid terminal size: %w", err)
	}

	if err := pty.Setsize(p.ptmx, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	}); err != nil {
		return p.recordError("pty resize failed: %w", err)
	}

	p.cols = cols
	p.rows = rows
	return nil
}

const (
	readerJoinTimeout = 2 * time.Second
	processTermGrace  = 2 * time.Second
)

// Stop shuts the session down. Idempotent; calling it on a session whose
// Start failed is a no-op.
func (p *PtySession) Stop() error {
	p.mu.Lock()
	if p.state != PtyRunning {
		p.mu.Unlock()
		return nil
	}
	p.state = PtyStopped
	ptmx := p.ptmx
	cmd := p.cmd
	readerDone := p.readerDone
	procDone := p.procDone
	close(p.stopFlag)
	p.mu.Unlock()

	// Closing the PTY first unblocks the reader's pending read.
	if ptmx != nil {
		_ = ptmx.Close()
	}

	select {
	case <-readerDone:
	case <-time.After(readerJoinTimeout):
		p.logger.Error("reader goroutine stuck during stop")
		p.mu.Lock()
		p.lastError = ErrStopTimeout.Error()
		p.mu.Unlock()
		return ErrStopTimeout
	}

	// The child usually exits once its terminal goes away; escalate if
	// it does not.
	if cmd != nil && cmd.Process != nil {
		select {
		case <-procDone:
		default:
			_ = cmd.Process.Signal(syscall.SIGTERM)
			select {
			case <-procDone:
			case <-time.After(processTermGrace):
				p.logger.Warn("force killing child process", "pid", cmd.Process.Pid)
				_ = cmd.Process.Kill()
				<-procDone
			}
		}
	}

	p.mu.Lock()
	p.ptmx = nil
	p.cmd = nil
	p.mu.Unlock()

	p.logger.Info("Stopped PTY session")
	return nil
}

// ExitCode returns the child's exit code after it has been reaped.
func (p *PtySession) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *PtySession) readLoop(ptmx *os.File, cmd *exec.Cmd) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 && p.cfg.OnOutput != nil {
			p.cfg.OnOutput(buf[:n])
		}
		if err != nil {
			if !isExpectedReadEnd(err) && !p.stopRequested() {
				p.logger.Warn("pty read failed", "error", err)
				p.mu.Lock()
				p.lastError = err.Error()
				p.mu.Unlock()
				if p.cfg.OnError != nil {
					p.cfg.OnError(err)
				}
			}
			break
		}
		if n == 0 {
			break
		}
	}
	close(p.readerDone)

	// Reaping is decoupled from EOF: the reader seeing end of stream
	// does not guarantee the process is gone yet.
	err := cmd.Wait()
	code := 0
	if err != nil {
		code = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	} else if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}

	p.mu.Lock()
	p.exitCode = code
	if p.state == PtyRunning {
		p.state = PtyStopped
	}
	if p.ptmx == ptmx && ptmx != nil {
		_ = ptmx.Close()
		p.ptmx = nil
	}
	p.mu.Unlock()
	close(p.procDone)

	if p.cfg.OnExit != nil {
		p.cfg.OnExit(code)
	}
}

func (p *PtySession) stopRequested() bool {
	select {
	case <-p.stopFlag:
		return true
	default:
		return false
	}
}
