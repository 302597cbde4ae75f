package terminal

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestRecordDefaults(t *testing.T) {
	rec := SessionRecord{}.applyDefaults(&DefaultShellResolver{}, NopLogger{})

	if rec.Shell == "" {
		t.Fatalf("expected default shell to be resolved")
	}
	if rec.Rows != 25 || rec.Cols != 80 {
		t.Fatalf("expected 80x25 defaults, got %dx%d", rec.Cols, rec.Rows)
	}
	if rec.ScrollbackLines != 10000 {
		t.Fatalf("expected 10000 scrollback lines, got %d", rec.ScrollbackLines)
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.yaml")

	records := []SessionRecord{
		{
			Shell:           "/bin/zsh",
			Args:            []string{"-l"},
			WorkingDir:      "/home/user/project",
			Title:           "project",
			ProfileName:     "dev",
			Rows:            40,
			Cols:            120,
			ScrollbackLines: 5000,
			TabIndex:        2,
		},
		{Shell: "/bin/sh"},
	}

	if err := SaveRecords(path, records); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadRecords(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(records, loaded) {
		t.Fatalf("round trip mismatch:\nsaved:  %+v\nloaded: %+v", records, loaded)
	}
}

func TestLoadRecordsMissingFile(t *testing.T) {
	records, err := LoadRecords(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestRecordToConfigAndBack(t *testing.T) {
	rec := SessionRecord{
		Shell:      "/bin/sh",
		Args:       []string{"-c", "sleep 5"},
		WorkingDir: "/tmp",
		Title:      "scratch",
		Rows:       30,
		Cols:       100,
	}

	session := NewSession(rec.Config(&DefaultShellResolver{}, NopLogger{}))
	got := session.Record()

	if got.Shell != rec.Shell || got.WorkingDir != rec.WorkingDir ||
		got.Title != rec.Title || got.Rows != rec.Rows || got.Cols != rec.Cols {
		t.Fatalf("record did not survive the round trip: %+v", got)
	}
	if !reflect.DeepEqual(got.Args, rec.Args) {
		t.Fatalf("args mismatch: %v", got.Args)
	}
	if got.ScrollbackLines != 10000 {
		t.Fatalf("missing scrollback default, got %d", got.ScrollbackLines)
	}
}
