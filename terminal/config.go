package terminal

// SessionConfig describes one terminal session. Zero values are filled in
// by applyDefaults: platform default shell, 80x25, 10000 scrollback lines.
type SessionConfig struct {
	Shell           string
	Args            []string
	WorkingDir      string
	Title           string
	ProfileName     string
	Rows            int
	Cols            int
	ScrollbackLines int
	TabIndex        int

	// RingSize is the PTY output buffer capacity in bytes.
	RingSize int

	// Engine overrides the VT engine; nil selects the vt10x emulator.
	Engine Engine

	// ShellIntegration, when set, launches the shell with rc files that
	// report the working directory over OSC 7. Nil disables it.
	ShellIntegration *ShellIntegration

	Logger        Logger
	ShellResolver ShellResolver
	EnvProvider   EnvProvider
}

func (c SessionConfig) applyDefaults() SessionConfig {
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.ShellResolver == nil {
		c.ShellResolver = &DefaultShellResolver{}
	}
	if c.EnvProvider == nil {
		c.EnvProvider = DefaultEnvProvider{}
	}
	if c.Shell == "" {
		c.Shell = c.ShellResolver.ResolveShell(c.Logger)
	}
	if c.Rows == 0 {
		c.Rows = defaultTerminalRows
	}
	if c.Cols == 0 {
		c.Cols = defaultTerminalCols
	}
	if c.ScrollbackLines == 0 {
		c.ScrollbackLines = defaultScrollbackLines
	}
	if c.RingSize <= 0 {
		c.RingSize = defaultRingSize
	}
	return c
}

const defaultRingSize = 65536
