package terminal

import "strings"

// TerminalBuffer is the addressable screen grid with scrollback history
// and per-row dirty tracking. It is a pure data structure: no locking, no
// PTY knowledge. All methods must be called from the owning goroutine.
//
// Scrollback is kept most-recent-first: index 0 is the line that left the
// visible grid last.
type TerminalBuffer struct {
	rows          int
	cols          int
	maxScrollback int

	grid       [][]Cell
	scrollback [][]Cell
	dirty      []bool
}

// NewTerminalBuffer creates a grid of rows x cols blank cells.
func NewTerminalBuffer(rows, cols, maxScrollback int) *TerminalBuffer {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	if maxScrollback < 0 {
		maxScrollback = 0
	}

	grid := make([][]Cell, rows)
	for i := range grid {
		grid[i] = blankRow(cols)
	}

	return &TerminalBuffer{
		rows:          rows,
		cols:          cols,
		maxScrollback: maxScrollback,
		grid:          grid,
		dirty:         make([]bool, rows),
	}
}

// GetRows returns the visible row count.
func (b *TerminalBuffer) GetRows() int { return b.rows }

// GetCols returns the visible column count.
func (b *TerminalBuffer) GetCols() int { return b.cols }

// GetCell returns the cell at (row, col); out-of-range positions return a
// blank cell.
func (b *TerminalBuffer) GetCell(row, col int) Cell {
	if row < 0 || row >= b.rows || col < 0 || col >= b.cols {
		return BlankCell()
	}
	return b.grid[row][col]
}

// SetCell replaces the cell at (row, col) and marks the row dirty.
// Out-of-range positions are ignored.
func (b *TerminalBuffer) SetCell(row, col int, cell Cell) {
	if row < 0 || row >= b.rows || col < 0 || col >= b.cols {
		return
	}
	b.grid[row][col] = cell
	b.dirty[row] = true
}

// Resize changes the grid dimensions. Extra rows are appended blank at
// the bottom; when the row count shrinks, the excess rows leave through
// the top into scrollback. Every row is dirty afterwards.
func (b *TerminalBuffer) Resize(rows, cols int) {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}

	if rows < b.rows {
		// Top-down so the bottom-most evicted row ends up most recent.
		for i := 0; i < b.rows-rows; i++ {
			b.pushScrollback(b.grid[i])
		}
		b.grid = b.grid[b.rows-rows:]
	} else if rows > b.rows {
		for i := b.rows; i < rows; i++ {
			b.grid = append(b.grid, blankRow(cols))
		}
	}
	b.rows = rows

	if cols != b.cols {
		for i := range b.grid {
			b.grid[i] = resizeRow(b.grid[i], cols)
		}
		b.cols = cols
	}

	b.dirty = make([]bool, rows)
	for i := range b.dirty {
		b.dirty[i] = true
	}
}

func resizeRow(row []Cell, cols int) []Cell {
	if len(row) == cols {
		return row
	}
	if len(row) > cols {
		return row[:cols]
	}
	for len(row) < cols {
		row = append(row, BlankCell())
	}
	return row
}

// Scroll shifts rows within the region [top, bottom). Positive lines
// scroll up: content moves toward top, and when top is 0 each departing
// line is pushed onto scrollback. Negative lines scroll down, restoring
// scrollback lines into row 0 when the region starts at the top. A
// negative bottom means "to the end of the screen". Regions shorter
// than two rows have nowhere to shift content and are no-ops.
func (b *TerminalBuffer) Scroll(lines, top, bottom int) {
	if bottom < 0 {
		bottom = b.rows
	}
	if top < 0 {
		top = 0
	}
	if bottom > b.rows {
		bottom = b.rows
	}
	if lines == 0 || bottom-top <= 1 {
		return
	}

	if lines > 0 {
		for n := 0; n < lines; n++ {
			if top == 0 {
				departing := make([]Cell, b.cols)
				copy(departing, b.grid[top])
				b.pushScrollback(departing)
			}
			for y := top; y < bottom-1; y++ {
				b.grid[y] = b.grid[y+1]
			}
			b.grid[bottom-1] = blankRow(b.cols)
		}
	} else {
		for n := 0; n < -lines; n++ {
			for y := bottom - 1; y > top; y-- {
				b.grid[y] = b.grid[y-1]
			}
			if top == 0 && len(b.scrollback) > 0 {
				restored := resizeRow(b.scrollback[0], b.cols)
				b.scrollback = b.scrollback[1:]
				b.grid[top] = restored
			} else {
				b.grid[top] = blankRow(b.cols)
			}
		}
	}

	for y := top; y < bottom; y++ {
		b.dirty[y] = true
	}
}

func (b *TerminalBuffer) pushScrollback(row []Cell) {
	if b.maxScrollback == 0 {
		return
	}
	b.scrollback = append([][]Cell{row}, b.scrollback...)
	if len(b.scrollback) > b.maxScrollback {
		b.scrollback = b.scrollback[:b.maxScrollback]
	}
}

// PushScrollback records a row that left the visible grid through the
// top, e.g. as reported by the VT engine. The row becomes the most
// recent scrollback line.
func (b *TerminalBuffer) PushScrollback(row []Cell) {
	stored := make([]Cell, b.cols)
	for i := range stored {
		if i < len(row) {
			stored[i] = row[i]
		} else {
			stored[i] = BlankCell()
		}
	}
	b.pushScrollback(stored)
}

// GetScrollbackSize returns the number of retained scrollback lines.
func (b *TerminalBuffer) GetScrollbackSize() int {
	return len(b.scrollback)
}

// GetScrollbackRow returns scrollback line index (0 = most recent), or
// nil when out of range.
func (b *TerminalBuffer) GetScrollbackRow(index int) []Cell {
	if index < 0 || index >= len(b.scrollback) {
		return nil
	}
	return b.scrollback[index]
}

// GetScrollbackText returns scrollback line index as text with trailing
// blanks trimmed, or "" when out of range.
func (b *TerminalBuffer) GetScrollbackText(index int) string {
	return rowText(b.GetScrollbackRow(index))
}

// MarkDirty flags a single row as changed.
func (b *TerminalBuffer) MarkDirty(row int) {
	if row >= 0 && row < b.rows {
		b.dirty[row] = true
	}
}

// HasDirty reports whether any row changed since the last ClearDirty.
func (b *TerminalBuffer) HasDirty() bool {
	for _, d := range b.dirty {
		if d {
			return true
		}
	}
	return false
}

// GetDirtyRows returns the indices of all dirty rows in order.
func (b *TerminalBuffer) GetDirtyRows() []int {
	var rows []int
	for i, d := range b.dirty {
		if d {
			rows = append(rows, i)
		}
	}
	return rows
}

// ClearDirty resets all dirty flags. Renderers call this after drawing.
func (b *TerminalBuffer) ClearDirty() {
	for i := range b.dirty {
		b.dirty[i] = false
	}
}

// GetRowText extracts a row as UTF-8 text. Continuation cells are
// skipped, combining codepoints follow their primary codepoint, and
// trailing spaces are trimmed.
func (b *TerminalBuffer) GetRowText(row int) string {
	if row < 0 || row >= b.rows {
		return ""
	}
	return rowText(b.grid[row])
}

func rowText(row []Cell) string {
	var sb strings.Builder
	for _, cell := range row {
		if cell.Width == 0 {
			continue
		}
		if cell.Rune == 0 {
			sb.WriteByte(' ')
			continue
		}
		sb.WriteRune(cell.Rune)
		for _, c := range cell.Combining {
			if c != 0 {
				sb.WriteRune(c)
			}
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

// GetRegionText extracts rows [startRow, endRow] joined by newlines.
// Extraction is row-granular: the column arguments clamp nothing yet and
// a row is always returned whole. Column-accurate slicing of wide and
// multi-byte cells is a known limitation.
func (b *TerminalBuffer) GetRegionText(startRow, startCol, endRow, endCol int) string {
	if startRow < 0 {
		startRow = 0
	}
	if endRow >= b.rows {
		endRow = b.rows - 1
	}
	if startRow > endRow {
		return ""
	}

	parts := make([]string, 0, endRow-startRow+1)
	for row := startRow; row <= endRow; row++ {
		parts = append(parts, b.GetRowText(row))
	}
	return strings.Join(parts, "\n")
}

// GetAllText extracts the whole visible grid joined by newlines.
func (b *TerminalBuffer) GetAllText() string {
	return b.GetRegionText(0, 0, b.rows-1, b.cols-1)
}
