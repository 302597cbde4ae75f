package server

import (
	"time"

	"github.com/termweave/termweave/terminal"
)

// sessionWorker is the owning goroutine of one session. Every operation
// that touches the session's screen buffer or engine (draining output,
// resizing, writing input) is funneled through the worker, which keeps
// the single-consumer contract of the session's ring buffer intact.
type sessionWorker struct {
	session *terminal.Session
	srv     *Server

	notify chan struct{}
	ops    chan func()
	quit   chan struct{}
	done   chan struct{}
}

func newSessionWorker(srv *Server, session *terminal.Session) *sessionWorker {
	w := &sessionWorker{
		session: session,
		srv:     srv,
		notify:  make(chan struct{}, 1),
		ops:     make(chan func(), 16),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

// wake signals that PTY output is waiting. Never blocks; a pending wake
// already covers any amount of buffered data.
func (w *sessionWorker) wake() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// run executes fn on the worker goroutine and waits for it.
func (w *sessionWorker) run(fn func()) {
	doneCh := make(chan struct{})
	op := func() {
		fn()
		close(doneCh)
	}
	select {
	case w.ops <- op:
		// The worker may quit with the op still queued.
		select {
		case <-doneCh:
		case <-w.done:
		}
	case <-w.quit:
	}
}

func (w *sessionWorker) stop() {
	close(w.quit)
	<-w.done
}

func (w *sessionWorker) loop() {
	defer close(w.done)

	// The ticker is a safety net for data that arrives between a drain
	// and the next wake.
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.quit:
			return
		case fn := <-w.ops:
			fn()
			w.publish()
		case <-w.notify:
			w.drain()
		case <-ticker.C:
			w.drain()
		}
	}
}

func (w *sessionWorker) drain() {
	if w.session.ProcessOutput() > 0 || w.session.Buffer().HasDirty() {
		w.publish()
	}
}

// publish sends the dirty rows to all attached clients, then clears the
// dirty flags: the renderers on the far side of the websocket poll
// nothing themselves, so the worker acts as their proxy.
func (w *sessionWorker) publish() {
	buffer := w.session.Buffer()
	if buffer == nil {
		return
	}

	dirty := buffer.GetDirtyRows()
	if len(dirty) == 0 {
		return
	}

	rows := make([]screenRow, 0, len(dirty))
	for _, row := range dirty {
		rows = append(rows, screenRow{Row: row, Text: buffer.GetRowText(row)})
	}
	buffer.ClearDirty()

	curRow, curCol, curVisible := w.session.CursorPos()
	w.srv.broadcastScreen(w.session.ID, rows, curRow, curCol, curVisible)
}
