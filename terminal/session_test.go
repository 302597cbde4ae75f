package terminal

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeEngine is a minimal deterministic Engine for orchestrator tests:
// printable bytes advance a cursor over a plain rune grid, and
// FlushDamage reports one full-width rect per touched row.
type fakeEngine struct {
	rows, cols int
	grid       [][]rune
	curRow     int
	curCol     int
	cb         EngineCallbacks
	touched    map[int]bool
	closed     bool
}

func newFakeEngine(rows, cols int) *fakeEngine {
	e := &fakeEngine{rows: rows, cols: cols, touched: make(map[int]bool)}
	e.grid = make([][]rune, rows)
	for i := range e.grid {
		e.grid[i] = make([]rune, cols)
	}
	return e
}

func (e *fakeEngine) SetCallbacks(cb EngineCallbacks) { e.cb = cb }

func (e *fakeEngine) Write(p []byte) (int, error) {
	for _, b := range p {
		switch b {
		case '\n':
			e.curRow++
			e.curCol = 0
		case '\r':
			e.curCol = 0
		default:
			if e.curRow < e.rows && e.curCol < e.cols {
				e.grid[e.curRow][e.curCol] = rune(b)
				e.touched[e.curRow] = true
				e.curCol++
			}
		}
	}
	return len(p), nil
}

func (e *fakeEngine) Cell(row, col int) EngineCell {
	ch := ' '
	if row >= 0 && row < e.rows && col >= 0 && col < e.cols && e.grid[row][col] != 0 {
		ch = e.grid[row][col]
	}
	return EngineCell{Runes: []rune{ch}, Width: 1}
}

func (e *fakeEngine) CursorPos() (int, int) { return e.curRow, e.curCol }

func (e *fakeEngine) Resize(rows, cols int) {
	e.rows, e.cols = rows, cols
	e.grid = make([][]rune, rows)
	for i := range e.grid {
		e.grid[i] = make([]rune, cols)
	}
}

func (e *fakeEngine) Reset() {}

func (e *fakeEngine) FlushDamage() {
	for row := range e.touched {
		if e.cb.Damage != nil {
			e.cb.Damage(Rect{StartRow: row, EndRow: row + 1, StartCol: 0, EndCol: e.cols})
		}
	}
	e.touched = make(map[int]bool)
	if e.cb.MoveCursor != nil {
		e.cb.MoveCursor(e.curRow, e.curCol, true)
	}
}

func (e *fakeEngine) Close() error {
	e.closed = true
	return nil
}

// recordingHandler captures session events for assertions.
type recordingHandler struct {
	mu       sync.Mutex
	data     int
	titles   []string
	workdirs []string
	exits    []int
	errors   []error
}

func (h *recordingHandler) OnSessionData(string) {
	h.mu.Lock()
	h.data++
	h.mu.Unlock()
}

func (h *recordingHandler) OnSessionTitleChanged(_ string, title string) {
	h.mu.Lock()
	h.titles = append(h.titles, title)
	h.mu.Unlock()
}

func (h *recordingHandler) OnSessionWorkingDirChanged(_ string, dir string) {
	h.mu.Lock()
	h.workdirs = append(h.workdirs, dir)
	h.mu.Unlock()
}

func (h *recordingHandler) OnSessionBell(string) {}

func (h *recordingHandler) OnSessionExit(_ string, code int) {
	h.mu.Lock()
	h.exits = append(h.exits, code)
	h.mu.Unlock()
}

func (h *recordingHandler) OnSessionError(_ string, err error) {
	h.mu.Lock()
	h.errors = append(h.errors, err)
	h.mu.Unlock()
}

func (h *recordingHandler) dataCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.data
}

func (h *recordingHandler) exitCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.exits)
}

func TestSessionMirrorsEngineDamage(t *testing.T) {
	engine := newFakeEngine(25, 80)
	handler := &recordingHandler{}
	session := NewSession(SessionConfig{
		Shell:  "/bin/sh",
		Engine: engine,
		Rows:   25,
		Cols:   80,
	})
	session.SetEventHandler(handler)

	if err := session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer session.Stop()

	if session.State() != SessionRunning {
		t.Fatalf("expected running, got %s", session.State())
	}

	if !waitFor(t, 5*time.Second, func() bool { return handler.dataCount() > 0 }) {
		t.Fatalf("no data notification from shell startup")
	}
	session.ProcessOutput()

	// The fake engine treats all bytes as printable text; the shell
	// produced something, so row content must have been mirrored.
	if !session.Buffer().HasDirty() && session.Buffer().GetAllText() == "" {
		t.Fatalf("no engine damage mirrored into the buffer")
	}
}

func TestSessionEndToEndEcho(t *testing.T) {
	session := NewSession(SessionConfig{
		Shell: "/bin/sh",
		Rows:  25,
		Cols:  80,
	})

	if err := session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer session.Stop()

	if _, err := session.Write([]byte("echo hi\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	ok := waitFor(t, 10*time.Second, func() bool {
		session.ProcessOutput()
		return strings.Contains(session.Buffer().GetAllText(), "hi")
	})
	if !ok {
		t.Fatalf("echoed output never reached the screen buffer:\n%s",
			session.Buffer().GetAllText())
	}
}

func TestSessionExitNotification(t *testing.T) {
	handler := &recordingHandler{}
	session := NewSession(SessionConfig{
		Shell: "/bin/sh",
		Args:  []string{"-c", "exit 3"},
		Rows:  25,
		Cols:  80,
	})
	session.SetEventHandler(handler)

	if err := session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if !waitFor(t, 5*time.Second, func() bool { return handler.exitCount() > 0 }) {
		t.Fatalf("exit notification never fired")
	}
	if session.State() != SessionExited {
		t.Fatalf("expected exited state, got %s", session.State())
	}
	if session.ExitCode() != 3 {
		t.Fatalf("expected exit code 3, got %d", session.ExitCode())
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("stop after exit: %v", err)
	}
}

func TestSessionStartFailureLeavesIdle(t *testing.T) {
	session := NewSession(SessionConfig{
		Shell: "/nonexistent/shell",
		Rows:  25,
		Cols:  80,
	})

	if err := session.Start(); err == nil {
		t.Fatalf("expected start to fail")
	}
	if session.State() != SessionIdle {
		t.Fatalf("failed start must leave session idle, got %s", session.State())
	}

	// A failed session can be retried with a fixed config.
	session.cfg.Shell = "/bin/sh"
	if err := session.Start(); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	session.Stop()
}

func TestSessionResizePropagates(t *testing.T) {
	engine := newFakeEngine(25, 80)
	session := NewSession(SessionConfig{
		Shell:  "/bin/sh",
		Engine: engine,
		Rows:   25,
		Cols:   80,
	})

	if err := session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer session.Stop()

	if err := session.Resize(120, 40); err != nil {
		t.Fatalf("resize: %v", err)
	}
	if engine.rows != 40 || engine.cols != 120 {
		t.Fatalf("engine not resized: %dx%d", engine.rows, engine.cols)
	}
	if session.Buffer().GetRows() != 40 || session.Buffer().GetCols() != 120 {
		t.Fatalf("buffer not resized: %dx%d",
			session.Buffer().GetRows(), session.Buffer().GetCols())
	}
}

func TestSessionStopIdempotent(t *testing.T) {
	engine := newFakeEngine(25, 80)
	session := NewSession(SessionConfig{
		Shell:  "/bin/sh",
		Engine: engine,
		Rows:   25,
		Cols:   80,
	})

	// Stop before start is a no-op.
	if err := session.Stop(); err != nil {
		t.Fatalf("stop before start: %v", err)
	}

	if err := session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if !engine.closed {
		t.Fatalf("engine not closed on stop")
	}
	if session.State() != SessionIdle {
		t.Fatalf("expected idle after stop, got %s", session.State())
	}
}

func TestSessionWorkingDirTracking(t *testing.T) {
	engine := newFakeEngine(25, 80)
	handler := &recordingHandler{}
	// A sleeping child produces no output, so the test is the only
	// producer into the ring.
	session := NewSession(SessionConfig{
		Shell:  "/bin/sh",
		Args:   []string{"-c", "sleep 5"},
		Engine: engine,
		Rows:   25,
		Cols:   80,
	})
	session.SetEventHandler(handler)

	if err := session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer session.Stop()

	// Inject an OSC 7 report as if the shell printed it.
	session.ring.Write([]byte("\x1b]7;file://host/tmp\x1b\\"))
	session.ProcessOutput()

	if got := session.WorkingDir(); got != "/tmp" {
		t.Fatalf("working dir not tracked: %q", got)
	}
	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.workdirs) != 1 || handler.workdirs[0] != "/tmp" {
		t.Fatalf("workdir notification missing: %v", handler.workdirs)
	}
}
