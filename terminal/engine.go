package terminal

// TermProp identifies a terminal property reported by the VT engine.
type TermProp int

const (
	PropTitle TermProp = iota
	PropIconName
	PropCursorVisible
	PropCursorBlink
	PropAltScreen
)

// Rect is a damaged screen region: rows [StartRow, EndRow) and columns
// [StartCol, EndCol).
type Rect struct {
	StartRow int
	EndRow   int
	StartCol int
	EndCol   int
}

// EngineCell is one screen cell as reported by the VT engine. Runes[0] is
// the primary codepoint; any further entries are combining codepoints.
type EngineCell struct {
	Runes []rune
	Width int
	FG    CellColor
	BG    CellColor
	Attrs CellAttrs
}

// EngineCallbacks receives change notifications from the engine. All
// fields are optional. Callbacks fire synchronously from FlushDamage (or
// from Write, engine's choice) on the caller's goroutine.
type EngineCallbacks struct {
	Damage         func(r Rect)
	MoveCursor     func(row, col int, visible bool)
	SetProp        func(prop TermProp, value string)
	Bell           func()
	Resized        func(rows, cols int)
	ScrollbackPush func(cells []EngineCell)
}

// Engine is the VT-sequence parser consumed by Session. Implementations
// own the escape-sequence semantics; Session only feeds bytes in and
// mirrors the reported state out.
type Engine interface {
	// Write feeds raw PTY bytes into the parser.
	Write(p []byte) (int, error)
	// Cell returns the current cell at (row, col).
	Cell(row, col int) EngineCell
	// CursorPos returns the current cursor position.
	CursorPos() (row, col int)
	// Resize changes the engine's screen dimensions.
	Resize(rows, cols int)
	// Reset restores the initial state.
	Reset()
	// FlushDamage delivers all pending callbacks synchronously.
	FlushDamage()
	// SetCallbacks installs the notification sinks. Must be called
	// before the first Write.
	SetCallbacks(cb EngineCallbacks)
	// Close releases engine resources.
	Close() error
}
