package terminal

import "testing"

func TestValidateTerminalSize(t *testing.T) {
	if err := validateTerminalSize(80, 25); err != nil {
		t.Fatalf("valid size rejected: %v", err)
	}
	if err := validateTerminalSize(10, 25); err == nil {
		t.Fatalf("undersized cols accepted")
	}
	if err := validateTerminalSize(80, 1000); err == nil {
		t.Fatalf("oversized rows accepted")
	}
}

func TestClampTerminalSize(t *testing.T) {
	cols, rows := clampTerminalSize(5, 1)
	if cols != minTerminalCols || rows != minTerminalRows {
		t.Fatalf("undersize not clamped: %dx%d", cols, rows)
	}

	cols, rows = clampTerminalSize(10000, 10000)
	if cols != maxTerminalCols || rows != maxTerminalRows {
		t.Fatalf("oversize not clamped: %dx%d", cols, rows)
	}

	cols, rows = clampTerminalSize(120, 40)
	if cols != 120 || rows != 40 {
		t.Fatalf("valid size altered: %dx%d", cols, rows)
	}
}
