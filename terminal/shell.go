package terminal

import (
	"bufio"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"
)

// ShellResolver returns the executable path for the user's login shell.
type ShellResolver interface {
	ResolveShell(logger Logger) string
}

// DefaultShellResolver looks up the login shell via $SHELL, then
// /etc/passwd, then a fallback list. The first successful lookup is
// cached; Refresh discards the cache so the next call probes again.
//
// Hosts construct one resolver and pass it where needed; there is no
// package-level cached state.
type DefaultShellResolver struct {
	mu     sync.Mutex
	cached string
}

func (r *DefaultShellResolver) ResolveShell(logger Logger) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != "" {
		return r.cached
	}
	r.cached = detectShell(logger)
	return r.cached
}

// Refresh invalidates the cached shell path.
func (r *DefaultShellResolver) Refresh() {
	r.mu.Lock()
	r.cached = ""
	r.mu.Unlock()
}

func detectShell(logger Logger) string {
	if shell := os.Getenv("SHELL"); shell != "" {
		if _, err := os.Stat(shell); err == nil {
			return shell
		}
		logger.Warn("SHELL points to missing file", "shell", shell)
	}

	if shell := shellFromPasswd(logger); shell != "" {
		return shell
	}

	for _, shell := range []string{"/bin/bash", "/bin/zsh", "/bin/sh"} {
		if _, err := os.Stat(shell); err == nil {
			logger.Info("Using fallback shell", "shell", filepath.Base(shell))
			return shell
		}
	}

	logger.Warn("No suitable shell found, using /bin/sh")
	return "/bin/sh"
}

func shellFromPasswd(logger Logger) string {
	currentUser, err := user.Current()
	if err != nil {
		logger.Warn("Failed to resolve current user", "error", err)
		return ""
	}

	passwdFile, err := os.Open("/etc/passwd")
	if err != nil {
		logger.Warn("Failed to open /etc/passwd", "error", err)
		return ""
	}
	defer passwdFile.Close()

	scanner := bufio.NewScanner(passwdFile)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, ":")
		if len(fields) < 7 {
			continue
		}
		if fields[0] != currentUser.Username {
			continue
		}
		shell := fields[6]
		if _, err := os.Stat(shell); err == nil {
			return shell
		}
		logger.Warn("Shell from /etc/passwd missing", "shell", filepath.Base(shell))
	}

	if err := scanner.Err(); err != nil {
		logger.Warn("Error reading /etc/passwd", "error", err)
	}

	return ""
}
