package terminal

import (
	"sync"

	"github.com/hinshun/vt10x"
	"github.com/mattn/go-runewidth"
)

// VT10XEngine adapts the vt10x emulator to the Engine interface.
//
// vt10x exposes no change notifications of its own, so the adapter keeps
// a shadow copy of the screen and synthesizes callbacks in FlushDamage by
// diffing: per-row damage rectangles, cursor movement, title changes, and
// scrollback pushes detected from whole-rows shifting out through the
// top of the screen.
type VT10XEngine struct {
	mu   sync.Mutex
	vt   vt10x.Terminal
	rows int
	cols int
	cb   EngineCallbacks

	shadow       [][]vt10x.Glyph
	shadowCursor vt10x.Cursor
	shadowVis    bool
	shadowTitle  string
}

// NewVT10XEngine creates an engine with the given screen size.
func NewVT10XEngine(rows, cols int) *VT10XEngine {
	e := &VT10XEngine{
		vt:   vt10x.New(vt10x.WithSize(cols, rows)),
		rows: rows,
		cols: cols,
	}
	e.shadow = e.snapshot()
	e.shadowVis = true
	return e
}

// SetCallbacks installs the notification sinks.
func (e *VT10XEngine) SetCallbacks(cb EngineCallbacks) {
	e.mu.Lock()
	e.cb = cb
	e.mu.Unlock()
}

// Write feeds raw bytes into the emulator. Callbacks are deferred until
// FlushDamage.
func (e *VT10XEngine) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vt.Write(p)
}

// Cell returns the engine cell at (row, col). A cell following a
// double-width glyph is reported as a width-0 continuation cell.
func (e *VT10XEngine) Cell(row, col int) EngineCell {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cellLocked(row, col)
}

func (e *VT10XEngine) cellLocked(row, col int) EngineCell {
	if row < 0 || row >= e.rows || col < 0 || col >= e.cols {
		return EngineCell{Runes: []rune{' '}, Width: 1}
	}

	if col > 0 {
		prev := e.vt.Cell(col-1, row)
		if runewidth.RuneWidth(prev.Char) == 2 {
			return EngineCell{Width: 0}
		}
	}

	g := e.vt.Cell(col, row)
	ch := g.Char
	if ch == 0 {
		ch = ' '
	}
	width := runewidth.RuneWidth(ch)
	if width < 1 {
		width = 1
	}

	return EngineCell{
		Runes: []rune{ch},
		Width: width,
		FG:    colorFromVT(g.FG, true),
		BG:    colorFromVT(g.BG, false),
	}
}

func colorFromVT(c vt10x.Color, foreground bool) CellColor {
	if foreground && c == vt10x.DefaultFG {
		return DefaultColor()
	}
	if !foreground && c == vt10x.DefaultBG {
		return DefaultColor()
	}
	if c < 256 {
		return IndexedColor(uint8(c))
	}
	return RGBColor(uint8(c>>16), uint8(c>>8), uint8(c))
}

// CursorPos returns the current cursor position.
func (e *VT10XEngine) CursorPos() (row, col int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.vt.Cursor()
	return c.Y, c.X
}

// Resize changes the emulator dimensions and reports them back through
// the Resized callback.
func (e *VT10XEngine) Resize(rows, cols int) {
	e.mu.Lock()
	e.vt.Resize(cols, rows)
	e.rows = rows
	e.cols = cols
	e.shadow = e.snapshot()
	cb := e.cb.Resized
	e.mu.Unlock()

	if cb != nil {
		cb(rows, cols)
	}
}

// Reset restores the emulator to its initial state.
func (e *VT10XEngine) Reset() {
	e.mu.Lock()
	e.vt = vt10x.New(vt10x.WithSize(e.cols, e.rows))
	e.shadow = e.snapshot()
	e.shadowTitle = ""
	e.mu.Unlock()
}

// Close releases the emulator.
func (e *VT10XEngine) Close() error {
	return nil
}

func (e *VT10XEngine) snapshot() [][]vt10x.Glyph {
	grid := make([][]vt10x.Glyph, e.rows)
	for y := 0; y < e.rows; y++ {
		row := make([]vt10x.Glyph, e.cols)
		for x := 0; x < e.cols; x++ {
			row[x] = e.vt.Cell(x, y)
		}
		grid[y] = row
	}
	return grid
}

// FlushDamage diffs the emulator state against the shadow copy and fires
// the synthesized callbacks.
func (e *VT10XEngine) FlushDamage() {
	e.mu.Lock()

	current := e.snapshot()

	var pushes [][]vt10x.Glyph
	if k := detectScrollUp(e.shadow, current); k > 0 {
		pushes = e.shadow[:k]
	}

	var damage []Rect
	for y := 0; y < e.rows && y < len(e.shadow); y++ {
		first, last := -1, -1
		for x := 0; x < e.cols && x < len(e.shadow[y]); x++ {
			if current[y][x] != e.shadow[y][x] {
				if first < 0 {
					first = x
				}
				last = x
			}
		}
		if first >= 0 {
			damage = append(damage, Rect{
				StartRow: y, EndRow: y + 1,
				StartCol: first, EndCol: last + 1,
			})
		}
	}

	cursor := e.vt.Cursor()
	visible := e.vt.CursorVisible()
	cursorMoved := cursor.X != e.shadowCursor.X || cursor.Y != e.shadowCursor.Y || visible != e.shadowVis

	title := e.vt.Title()
	titleChanged := title != "" && title != e.shadowTitle

	e.shadow = current
	e.shadowCursor = cursor
	e.shadowVis = visible
	if titleChanged {
		e.shadowTitle = title
	}

	cb := e.cb
	cols := e.cols
	e.mu.Unlock()

	if cb.ScrollbackPush != nil {
		for _, row := range pushes {
			cells := make([]EngineCell, 0, cols)
			for x := 0; x < len(row); x++ {
				g := row[x]
				ch := g.Char
				if ch == 0 {
					ch = ' '
				}
				cells = append(cells, EngineCell{
					Runes: []rune{ch},
					Width: 1,
					FG:    colorFromVT(g.FG, true),
					BG:    colorFromVT(g.BG, false),
				})
			}
			cb.ScrollbackPush(cells)
		}
	}
	if cb.Damage != nil {
		for _, r := range damage {
			cb.Damage(r)
		}
	}
	if cursorMoved && cb.MoveCursor != nil {
		cb.MoveCursor(cursor.Y, cursor.X, visible)
	}
	if titleChanged && cb.SetProp != nil {
		cb.SetProp(PropTitle, title)
	}
}

// detectScrollUp returns the smallest k > 0 such that the current screen
// equals the previous screen shifted up by k rows, or 0 when no full
// shift is detected. Only non-trivial shifts of non-blank content count.
func detectScrollUp(prev, cur [][]vt10x.Glyph) int {
	rows := len(prev)
	if rows == 0 || len(cur) != rows {
		return 0
	}

	for k := 1; k < rows; k++ {
		match := true
		for y := 0; y < rows-k && match; y++ {
			if len(prev[y+k]) != len(cur[y]) {
				match = false
				break
			}
			for x := range cur[y] {
				if prev[y+k][x] != cur[y][x] {
					match = false
					break
				}
			}
		}
		if !match {
			continue
		}
		if !rowsHaveContent(prev[:k]) {
			return 0
		}
		if screensEqual(prev, cur) {
			return 0
		}
		return k
	}
	return 0
}

func rowsHaveContent(rows [][]vt10x.Glyph) bool {
	for _, row := range rows {
		for _, g := range row {
			if g.Char != 0 && g.Char != ' ' {
				return true
			}
		}
	}
	return false
}

func screensEqual(a, b [][]vt10x.Glyph) bool {
	if len(a) != len(b) {
		return false
	}
	for y := range a {
		if len(a[y]) != len(b[y]) {
			return false
		}
		for x := range a[y] {
			if a[y][x] != b[y][x] {
				return false
			}
		}
	}
	return true
}
