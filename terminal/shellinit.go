package terminal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	originalZdotdirEnvKey   = "TERMWEAVE_ORIGINAL_ZDOTDIR"
	defaultShellInitFolder  = "shell-init"
	shellIntegrationMarkKey = "TERMWEAVE_SHELL_INTEGRATION"
)

type shellType string

const (
	shellTypeBash  shellType = "bash"
	shellTypeZsh   shellType = "zsh"
	shellTypePosix shellType = "posix"
)

func detectShellType(shellPath string) shellType {
	name := filepath.Base(shellPath)
	switch {
	case strings.Contains(name, "zsh"):
		return shellTypeZsh
	case strings.Contains(name, "bash"):
		return shellTypeBash
	default:
		return shellTypePosix
	}
}

func defaultShellInitBaseDir() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "termweave", defaultShellInitFolder)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".termweave", defaultShellInitFolder)
	}
	return filepath.Join(os.TempDir(), "termweave-"+defaultShellInitFolder)
}

type shellInitPaths struct {
	baseDir string
}

func newShellInitPaths(baseDir string) shellInitPaths {
	if baseDir == "" {
		baseDir = defaultShellInitBaseDir()
	}
	return shellInitPaths{baseDir: baseDir}
}

func (p shellInitPaths) BaseDir() string { return p.baseDir }
func (p shellInitPaths) ZshDir() string  { return filepath.Join(p.baseDir, "zsh") }
func (p shellInitPaths) ZshRC() string   { return filepath.Join(p.ZshDir(), ".zshrc") }
func (p shellInitPaths) BashRC() string  { return filepath.Join(p.baseDir, "bashrc") }
func (p shellInitPaths) PosixRC() string { return filepath.Join(p.baseDir, "shrc") }

// ShellIntegration generates rc files that make interactive shells
// report their working directory with an OSC 7 sequence after every
// command, which is what the session's directory tracker listens for.
//
// The generated rc files source the user's original configuration first
// so the integration stays invisible to the user's shell setup.
type ShellIntegration struct {
	BaseDir string
}

// EnsureFiles writes (or rewrites) the integration rc files.
func (w ShellIntegration) EnsureFiles() error {
	paths := newShellInitPaths(w.BaseDir)

	if err := os.MkdirAll(paths.BaseDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create shell init directory: %w", err)
	}
	if err := os.MkdirAll(paths.ZshDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create zsh init directory: %w", err)
	}

	if err := writeInitFile(paths.BashRC(), bashInitScript()); err != nil {
		return err
	}
	if err := writeInitFile(paths.ZshRC(), zshInitScript()); err != nil {
		return err
	}
	if err := writeInitFile(paths.PosixRC(), posixInitScript()); err != nil {
		return err
	}

	return nil
}

// Apply returns the shell arguments and extra environment needed to
// launch shellPath with the integration rc files in effect. Args the
// caller already has are preserved.
func (w ShellIntegration) Apply(shellPath string, args []string, env []string) ([]string, []string) {
	paths := newShellInitPaths(w.BaseDir)
	env = append(env, shellIntegrationMarkKey+"=1")

	switch detectShellType(shellPath) {
	case shellTypeBash:
		return append([]string{"--rcfile", paths.BashRC()}, args...), env
	case shellTypeZsh:
		if orig := os.Getenv("ZDOTDIR"); orig != "" {
			env = append(env, originalZdotdirEnvKey+"="+orig)
		}
		return args, append(env, "ZDOTDIR="+paths.ZshDir())
	default:
		return args, append(env, "ENV="+paths.PosixRC())
	}
}

func writeInitFile(path string, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// oscCwdHook is the shell function that emits OSC 7 with the current
// directory, percent-free since paths rarely need escaping and the
// tracker decodes what does.
const oscCwdHook = `__termweave_report_cwd() {
    printf '\033]7;file://%s%s\033\\' "$(hostname)" "$PWD"
}
`

func bashInitScript() string {
	return `# termweave shell integration - auto-generated, do not edit.

# Source user's original bash configuration.
if [ -f "$HOME/.bashrc" ]; then
    source "$HOME/.bashrc"
elif [ -f "$HOME/.bash_profile" ]; then
    source "$HOME/.bash_profile"
elif [ -f "$HOME/.profile" ]; then
    source "$HOME/.profile"
fi

# Report the working directory after every command.
` + oscCwdHook + `
case "$PROMPT_COMMAND" in
    *__termweave_report_cwd*) ;;
    *) PROMPT_COMMAND="__termweave_report_cwd${PROMPT_COMMAND:+;$PROMPT_COMMAND}" ;;
esac
`
}

func zshInitScript() string {
	homeDir, _ := os.UserHomeDir()
	if homeDir == "" {
		homeDir = "$HOME"
	}

	return fmt.Sprintf(`# termweave shell integration - auto-generated, do not edit.

# Restore original ZDOTDIR for nested shells.
if [ -n "$%s" ]; then
    export ZDOTDIR="$%s"
else
    unset ZDOTDIR
fi

# Source user's original zsh configuration.
if [ -f "%s/.zshrc" ]; then
    source "%s/.zshrc"
elif [ -f "%s/.zprofile" ]; then
    source "%s/.zprofile"
fi

# Report the working directory after every command.
%s
autoload -Uz add-zsh-hook
add-zsh-hook precmd __termweave_report_cwd
`, originalZdotdirEnvKey, originalZdotdirEnvKey, homeDir, homeDir, homeDir, homeDir, oscCwdHook)
}

func posixInitScript() string {
	return `# termweave shell integration - auto-generated, do not edit.

# Source user's original profile.
if [ -f "$HOME/.profile" ]; then
    . "$HOME/.profile"
fi

# POSIX sh has no prompt hook; report once at startup.
printf '\033]7;file://%s%s\033\\' "$(hostname)" "$PWD"
`
}
