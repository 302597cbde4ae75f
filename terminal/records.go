package terminal

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SessionRecord is the persisted form of a session configuration.
// Missing fields are filled with defaults on load: the platform default
// shell, 80x25, and 10000 scrollback lines.
type SessionRecord struct {
	Shell           string   `yaml:"shell,omitempty"`
	Args            []string `yaml:"args,omitempty"`
	WorkingDir      string   `yaml:"workingDir,omitempty"`
	Title           string   `yaml:"title,omitempty"`
	ProfileName     string   `yaml:"profileName,omitempty"`
	Rows            int      `yaml:"rows,omitempty"`
	Cols            int      `yaml:"cols,omitempty"`
	ScrollbackLines int      `yaml:"scrollbackLines,omitempty"`
	TabIndex        int      `yaml:"tabIndex,omitempty"`
}

// applyDefaults substitutes default values for any missing field.
func (r SessionRecord) applyDefaults(resolver ShellResolver, logger Logger) SessionRecord {
	if r.Shell == "" {
		if resolver == nil {
			resolver = &DefaultShellResolver{}
		}
		if logger == nil {
			logger = NopLogger{}
		}
		r.Shell = resolver.ResolveShell(logger)
	}
	if r.Rows == 0 {
		r.Rows = defaultTerminalRows
	}
	if r.Cols == 0 {
		r.Cols = defaultTerminalCols
	}
	if r.ScrollbackLines == 0 {
		r.ScrollbackLines = defaultScrollbackLines
	}
	return r
}

// Config converts a record into a SessionConfig, substituting defaults
// for missing fields.
func (r SessionRecord) Config(resolver ShellResolver, logger Logger) SessionConfig {
	r = r.applyDefaults(resolver, logger)
	return SessionConfig{
		Shell:           r.Shell,
		Args:            r.Args,
		WorkingDir:      r.WorkingDir,
		Title:           r.Title,
		ProfileName:     r.ProfileName,
		Rows:            r.Rows,
		Cols:            r.Cols,
		ScrollbackLines: r.ScrollbackLines,
		TabIndex:        r.TabIndex,
		ShellResolver:   resolver,
		Logger:          logger,
	}
}

// Record captures the session's current configuration, including a title
// or working directory picked up at runtime.
func (s *Session) Record() SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := SessionRecord{
		Shell:           s.cfg.Shell,
		Args:            s.cfg.Args,
		WorkingDir:      s.cfg.WorkingDir,
		Title:           s.title,
		ProfileName:     s.cfg.ProfileName,
		Rows:            s.cfg.Rows,
		Cols:            s.cfg.Cols,
		ScrollbackLines: s.cfg.ScrollbackLines,
		TabIndex:        s.cfg.TabIndex,
	}
	if dir := s.workdir.Current(); dir != "" {
		rec.WorkingDir = dir
	}
	return rec
}

// SaveRecords writes a session collection file. The parent directory is
// created when missing.
func SaveRecords(path string, records []SessionRecord) error {
	data, err := yaml.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode session records: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create records directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session records: %w", err)
	}
	return nil
}

// LoadRecords reads a session collection file. A missing file yields an
// empty list, not an error.
func LoadRecords(path string) ([]SessionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session records: %w", err)
	}

	var records []SessionRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse session records: %w", err)
	}
	return records, nil
}
