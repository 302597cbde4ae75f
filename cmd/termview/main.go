package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gdamore/tcell/v2"

	"github.com/termweave/termweave/terminal"
)

// termview runs a single shell session and renders its screen buffer in
// the calling terminal. It doubles as a smoke test for the whole
// pipeline: PTY -> ring buffer -> VT engine -> screen buffer -> cells.
func main() {
	var shell string
	var scrollback int
	flag.StringVar(&shell, "shell", "", "shell to run (default: login shell)")
	flag.IntVar(&scrollback, "scrollback", 0, "scrollback lines (0 = default)")
	flag.Parse()

	if err := run(shell, scrollback); err != nil {
		fmt.Fprintln(os.Stderr, "termview:", err)
		os.Exit(1)
	}
}

type viewerEvents struct {
	data chan struct{}
	exit chan int
}

func (v *viewerEvents) OnSessionData(string) {
	select {
	case v.data <- struct{}{}:
	default:
	}
}

func (v *viewerEvents) OnSessionExit(_ string, code int) {
	select {
	case v.exit <- code:
	default:
	}
}

func (v *viewerEvents) OnSessionTitleChanged(string, string)      {}
func (v *viewerEvents) OnSessionWorkingDirChanged(string, string) {}
func (v *viewerEvents) OnSessionBell(string)                      {}
func (v *viewerEvents) OnSessionError(string, error)              {}

func run(shell string, scrollback int) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("open screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	defer screen.Fini()

	cols, rows := screen.Size()
	events := &viewerEvents{
		data: make(chan struct{}, 1),
		exit: make(chan int, 1),
	}

	session := terminal.NewSession(terminal.SessionConfig{
		Shell:           shell,
		Cols:            cols,
		Rows:            rows,
		ScrollbackLines: scrollback,
	})
	session.SetEventHandler(events)
	if err := session.Start(); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.Stop()

	tcellEvents := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			tcellEvents <- ev
		}
	}()

	draw(screen, session, true)

	for {
		select {
		case <-events.data:
			session.ProcessOutput()
			draw(screen, session, false)

		case <-events.exit:
			return nil

		case ev := <-tcellEvents:
			switch ev := ev.(type) {
			case *tcell.EventResize:
				cols, rows := clampSize(ev.Size())
				if err := session.Resize(cols, rows); err != nil {
					return fmt.Errorf("resize: %w", err)
				}
				screen.Sync()
				draw(screen, session, true)
			case *tcell.EventKey:
				if data := keyBytes(ev); len(data) > 0 {
					if _, err := session.Write(data); err != nil {
						return nil
					}
				}
			}
		}
	}
}

// clampSize keeps window dimensions inside the range sessions accept.
func clampSize(cols, rows int) (int, int) {
	if cols < 20 {
		cols = 20
	}
	if cols > 500 {
		cols = 500
	}
	if rows < 5 {
		rows = 5
	}
	if rows > 200 {
		rows = 200
	}
	return cols, rows
}

// draw paints dirty rows (or everything) from the session's screen
// buffer onto the tcell screen.
func draw(screen tcell.Screen, session *terminal.Session, full bool) {
	buffer := session.Buffer()
	if buffer == nil {
		return
	}

	var rows []int
	if full {
		for row := 0; row < buffer.GetRows(); row++ {
			rows = append(rows, row)
		}
	} else {
		rows = buffer.GetDirtyRows()
	}

	for _, row := range rows {
		for col := 0; col < buffer.GetCols(); col++ {
			cell := buffer.GetCell(row, col)
			if cell.Width == 0 {
				continue
			}
			mainc := cell.Rune
			if mainc == 0 {
				mainc = ' '
			}
			var combc []rune
			for _, r := range cell.Combining {
				if r != 0 {
					combc = append(combc, r)
				}
			}
			screen.SetContent(col, row, mainc, combc, cellStyle(cell))
		}
	}
	buffer.ClearDirty()

	curRow, curCol, visible := session.CursorPos()
	if visible {
		screen.ShowCursor(curCol, curRow)
	} else {
		screen.HideCursor()
	}
	screen.Show()
}

func cellStyle(cell terminal.Cell) tcell.Style {
	style := tcell.StyleDefault.
		Foreground(tcellColor(cell.FG)).
		Background(tcellColor(cell.BG))

	attrs := cell.Attrs
	if attrs&terminal.AttrBold != 0 {
		style = style.Bold(true)
	}
	if attrs&terminal.AttrItalic != 0 {
		style = style.Italic(true)
	}
	if attrs&terminal.AttrBlink != 0 {
		style = style.Blink(true)
	}
	if attrs&terminal.AttrReverse != 0 {
		style = style.Reverse(true)
	}
	if attrs&terminal.AttrStrikethrough != 0 {
		style = style.StrikeThrough(true)
	}
	if attrs.Underline() != terminal.UnderlineNone {
		style = style.Underline(true)
	}
	return style
}

func tcellColor(c terminal.CellColor) tcell.Color {
	switch c.Mode {
	case terminal.ColorIndexed:
		return tcell.PaletteColor(int(c.Index))
	case terminal.ColorRGB:
		return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
	default:
		return tcell.ColorDefault
	}
}

// keyBytes translates a tcell key event into the byte sequence a
// terminal would send for it.
func keyBytes(ev *tcell.EventKey) []byte {
	switch ev.Key() {
	case tcell.KeyRune:
		return []byte(string(ev.Rune()))
	case tcell.KeyEnter:
		return []byte{'\r'}
	case tcell.KeyTab:
		return []byte{'\t'}
	case tcell.KeyBacktab:
		return []byte("\x1b[Z")
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return []byte{0x7f}
	case tcell.KeyEscape:
		return []byte{0x1b}
	case tcell.KeyUp:
		return []byte("\x1b[A")
	case tcell.KeyDown:
		return []byte("\x1b[B")
	case tcell.KeyRight:
		return []byte("\x1b[C")
	case tcell.KeyLeft:
		return []byte("\x1b[D")
	case tcell.KeyHome:
		return []byte("\x1b[H")
	case tcell.KeyEnd:
		return []byte("\x1b[F")
	case tcell.KeyPgUp:
		return []byte("\x1b[5~")
	case tcell.KeyPgDn:
		return []byte("\x1b[6~")
	case tcell.KeyInsert:
		return []byte("\x1b[2~")
	case tcell.KeyDelete:
		return []byte("\x1b[3~")
	}

	// Control characters map directly onto their byte values.
	if ev.Key() >= tcell.KeyCtrlA && ev.Key() <= tcell.KeyCtrlZ {
		return []byte{byte(ev.Key())}
	}
	switch ev.Key() {
	case tcell.KeyCtrlSpace:
		return []byte{0}
	case tcell.KeyCtrlBackslash:
		return []byte{0x1c}
	case tcell.KeyCtrlRightSq:
		return []byte{0x1d}
	case tcell.KeyCtrlCarat:
		return []byte{0x1e}
	case tcell.KeyCtrlUnderscore:
		return []byte{0x1f}
	}
	return nil
}
