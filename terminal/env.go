package terminal

import (
	"os"
	"strings"
)

// EnvProvider builds the environment for a new PTY child process.
type EnvProvider interface {
	BuildEnv(shellPath string, workingDir string) ([]string, error)
}

// DefaultEnvProvider returns the current process environment with TERM
// and COLORTERM forced to values the emulation layer understands.
type DefaultEnvProvider struct{}

func (DefaultEnvProvider) BuildEnv(string, string) ([]string, error) {
	return mergeEnv(os.Environ(), []string{
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
	}), nil
}

// StaticEnvProvider supplies an explicit environment, mainly for tests.
type StaticEnvProvider struct {
	Env []string
}

func (p StaticEnvProvider) BuildEnv(string, string) ([]string, error) {
	if len(p.Env) == 0 {
		return os.Environ(), nil
	}
	return append([]string{}, p.Env...), nil
}

// mergeEnv overlays overrides onto base, replacing same-named variables.
func mergeEnv(base, overrides []string) []string {
	merged := make([]string, 0, len(base)+len(overrides))
	seen := make(map[string]bool, len(overrides))
	for _, kv := range overrides {
		if i := strings.IndexByte(kv, '='); i > 0 {
			seen[kv[:i]] = true
		}
	}
	for _, kv := range base {
		if i := strings.IndexByte(kv, '='); i > 0 && seen[kv[:i]] {
			continue
		}
		merged = append(merged, kv)
	}
	return append(merged, overrides...)
}
