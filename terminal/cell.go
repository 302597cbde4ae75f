package terminal

// ColorMode tags how a CellColor value is to be interpreted.
type ColorMode uint8

const (
	ColorDefault ColorMode = iota
	ColorIndexed
	ColorRGB
)

// CellColor is a foreground or background color. The zero value is the
// terminal's default color.
type CellColor struct {
	Mode  ColorMode
	Index uint8
	R     uint8
	G     uint8
	B     uint8
}

// DefaultColor returns the terminal default color tag.
func DefaultColor() CellColor {
	return CellColor{}
}

// IndexedColor returns a palette color (0-255).
func IndexedColor(index uint8) CellColor {
	return CellColor{Mode: ColorIndexed, Index: index}
}

// RGBColor returns a 24-bit truecolor value.
func RGBColor(r, g, b uint8) CellColor {
	return CellColor{Mode: ColorRGB, R: r, G: g, B: b}
}

// CellAttrs packs the text attribute bits of a cell. Underline occupies
// two bits so single and double underline are distinguishable.
type CellAttrs uint16

const (
	AttrBold CellAttrs = 1 << iota
	AttrItalic
	AttrBlink
	AttrReverse
	AttrStrikethrough
	AttrConceal
)

const (
	underlineShift          = 6
	underlineMask CellAttrs = 3 << underlineShift

	UnderlineNone   uint8 = 0
	UnderlineSingle uint8 = 1
	UnderlineDouble uint8 = 2
)

// Underline extracts the two-bit underline style.
func (a CellAttrs) Underline() uint8 {
	return uint8((a & underlineMask) >> underlineShift)
}

// WithUnderline returns the attributes with the underline style replaced.
func (a CellAttrs) WithUnderline(style uint8) CellAttrs {
	return (a &^ underlineMask) | (CellAttrs(style&3) << underlineShift)
}

// MaxCombining is the number of combining codepoints a cell can carry in
// addition to its primary codepoint.
const MaxCombining = 3

// Cell is one position of the screen grid.
//
// A double-width glyph occupies a Width-2 cell followed by a Width-0
// continuation cell that holds no content of its own; readers must skip
// continuation cells when extracting text.
type Cell struct {
	Rune      rune
	Combining [MaxCombining]rune
	FG        CellColor
	BG        CellColor
	Attrs     CellAttrs
	Width     uint8
}

// BlankCell returns an empty single-width cell with default colors.
func BlankCell() Cell {
	return Cell{Rune: ' ', Width: 1}
}

func blankRow(cols int) []Cell {
	row := make([]Cell, cols)
	for i := range row {
		row[i] = BlankCell()
	}
	return row
}
