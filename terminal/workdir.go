package terminal

import (
	"net/url"
	"strings"
)

// workdirTracker watches raw PTY output for shell-integration escape
// sequences that announce the current working directory.
//
// Priority order matches common terminal integrations:
// VSCode (OSC 633) > iTerm2 (OSC 1337) > OSC 7.
type workdirTracker struct {
	current string
	pending string
}

// Scan inspects a chunk of output and returns the new working directory
// when it changed, or "" otherwise. Sequences split across chunks are
// handled by carrying a bounded tail over to the next call.
func (w *workdirTracker) Scan(chunk []byte) string {
	output := w.pending + string(chunk)

	// Keep at most one trailing partial escape sequence for the next
	// chunk; anything before the last ESC has been fully examined.
	if idx := strings.LastIndexByte(output, 0x1b); idx >= 0 && !hasSequenceTerminator(output[idx:]) {
		w.pending = output[idx:]
		if len(w.pending) > 4096 {
			w.pending = ""
		}
	} else {
		w.pending = ""
	}

	dir := parseWorkingDirectory(output)
	if dir == "" || dir == w.current {
		return ""
	}
	w.current = dir
	return dir
}

// Current returns the last reported working directory.
func (w *workdirTracker) Current() string {
	return w.current
}

func hasSequenceTerminator(seq string) bool {
	return strings.ContainsRune(seq, '\a') || strings.Contains(seq, "\x1b\\")
}

func parseWorkingDirectory(output string) string {
	if path := parseOSCValue(output, "\x1b]633;P;Cwd="); path != "" {
		return path
	}
	if path := parseOSCValue(output, "\x1b]1337;CurrentDir="); path != "" {
		return path
	}
	return parseOSC7(output)
}

// parseOSCValue extracts the payload of sequences like
// ESC ] 633 ; P ; Cwd=/path BEL (also accepting ST as terminator).
func parseOSCValue(output, prefix string) string {
	start := strings.Index(output, prefix)
	if start == -1 {
		return ""
	}

	rest := output[start+len(prefix):]
	if end := strings.IndexByte(rest, '\a'); end != -1 {
		return rest[:end]
	}
	if end := strings.Index(rest, "\x1b\\"); end != -1 {
		return rest[:end]
	}
	return ""
}

// parseOSC7 handles ESC ] 7 ; file://host/path ST.
func parseOSC7(output string) string {
	raw := parseOSCValue(output, "\x1b]7;file://")
	if raw == "" {
		return ""
	}

	slash := strings.IndexByte(raw, '/')
	if slash == -1 {
		return ""
	}

	path := raw[slash:]
	if decoded, err := url.QueryUnescape(path); err == nil {
		return decoded
	}
	return path
}
