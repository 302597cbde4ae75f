package terminal

import (
	"strings"
	"testing"
)

func engineRowText(e Engine, row, cols int) string {
	var sb strings.Builder
	for col := 0; col < cols; col++ {
		cell := e.Cell(row, col)
		if cell.Width == 0 {
			continue
		}
		for _, r := range cell.Runes {
			sb.WriteRune(r)
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

func engineCellsText(cells []EngineCell) string {
	var sb strings.Builder
	for _, cell := range cells {
		if cell.Width == 0 {
			continue
		}
		for _, r := range cell.Runes {
			sb.WriteRune(r)
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

func TestVT10XEngineDamageOnWrite(t *testing.T) {
	engine := NewVT10XEngine(5, 20)
	defer engine.Close()

	var damage []Rect
	var cursorRow, cursorCol int
	engine.SetCallbacks(EngineCallbacks{
		Damage:     func(r Rect) { damage = append(damage, r) },
		MoveCursor: func(row, col int, visible bool) { cursorRow, cursorCol = row, col },
	})

	if _, err := engine.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	engine.FlushDamage()

	if len(damage) != 1 {
		t.Fatalf("expected one damaged row, got %v", damage)
	}
	r := damage[0]
	if r.StartRow != 0 || r.EndRow != 1 {
		t.Fatalf("damage on wrong row: %+v", r)
	}
	if r.StartCol != 0 || r.EndCol < 5 {
		t.Fatalf("damage missing written columns: %+v", r)
	}
	if cursorRow != 0 || cursorCol != 5 {
		t.Fatalf("cursor callback got (%d,%d), want (0,5)", cursorRow, cursorCol)
	}

	if got := engineRowText(engine, 0, 20); got != "hello" {
		t.Fatalf("unexpected row text %q", got)
	}

	// Second flush with no intervening writes reports nothing.
	damage = nil
	engine.FlushDamage()
	if len(damage) != 0 {
		t.Fatalf("expected no damage on idle flush, got %v", damage)
	}
}

func TestVT10XEngineScrollbackPush(t *testing.T) {
	engine := NewVT10XEngine(4, 20)
	defer engine.Close()

	var pushed []string
	engine.SetCallbacks(EngineCallbacks{
		ScrollbackPush: func(cells []EngineCell) {
			pushed = append(pushed, engineCellsText(cells))
		},
	})

	engine.Write([]byte("line1\r\nline2\r\nline3\r\nline4"))
	engine.FlushDamage()
	if len(pushed) != 0 {
		t.Fatalf("no scroll expected while filling the screen, got %v", pushed)
	}

	engine.Write([]byte("\r\nline5"))
	engine.FlushDamage()

	if len(pushed) != 1 || pushed[0] != "line1" {
		t.Fatalf("expected line1 pushed to scrollback, got %v", pushed)
	}
	if got := engineRowText(engine, 3, 20); got != "line5" {
		t.Fatalf("unexpected bottom row %q", got)
	}
}

func TestVT10XEngineResize(t *testing.T) {
	engine := NewVT10XEngine(5, 20)
	defer engine.Close()

	var gotRows, gotCols int
	engine.SetCallbacks(EngineCallbacks{
		Resized: func(rows, cols int) { gotRows, gotCols = rows, cols },
	})

	engine.Resize(10, 40)
	if gotRows != 10 || gotCols != 40 {
		t.Fatalf("resize callback got %dx%d", gotRows, gotCols)
	}

	engine.Write([]byte("after-resize"))
	engine.FlushDamage()
	if got := engineRowText(engine, 0, 40); got != "after-resize" {
		t.Fatalf("engine unusable after resize: %q", got)
	}
}

func TestVT10XEngineColorMapping(t *testing.T) {
	engine := NewVT10XEngine(5, 20)
	defer engine.Close()

	// Red foreground via SGR 31, then reset.
	engine.Write([]byte("\x1b[31mr\x1b[0md"))
	engine.FlushDamage()

	red := engine.Cell(0, 0)
	if red.FG.Mode != ColorIndexed || red.FG.Index != 1 {
		t.Fatalf("expected indexed red foreground, got %+v", red.FG)
	}

	plain := engine.Cell(0, 1)
	if plain.FG.Mode != ColorDefault {
		t.Fatalf("expected default foreground after reset, got %+v", plain.FG)
	}
	if plain.BG.Mode != ColorDefault {
		t.Fatalf("expected default background, got %+v", plain.BG)
	}
}

func TestVT10XEngineReset(t *testing.T) {
	engine := NewVT10XEngine(5, 20)
	defer engine.Close()

	engine.Write([]byte("content"))
	engine.FlushDamage()
	engine.Reset()

	if got := engineRowText(engine, 0, 20); got != "" {
		t.Fatalf("expected blank screen after reset, got %q", got)
	}
	row, col := engine.CursorPos()
	if row != 0 || col != 0 {
		t.Fatalf("expected cursor at origin after reset, got (%d,%d)", row, col)
	}
}
