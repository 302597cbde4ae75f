package server

import (
	"net"
	"net/http"
	"strings"
)

const (
	// maxJSONBodyBytes caps request bodies on the JSON endpoints.
	maxJSONBodyBytes = 1 << 20

	// maxInputBytes caps a single input payload forwarded to a PTY.
	maxInputBytes = 64 << 10

	// Input rate limiting per client, generous for interactive typing
	// and pasting but low enough to stop a runaway sender.
	inputBytesPerSecond = 256 << 10
	inputBurstBytes     = 1 << 20
)

// validateDims rejects terminal dimensions outside the range the
// session layer accepts, so bad requests fail with 400 instead of a
// resize error.
func validateDims(cols, rows int) bool {
	return cols >= 20 && cols <= 500 && rows >= 5 && rows <= 200
}

// clientKey identifies a client for rate limiting. Proxy headers are
// ignored on purpose; this server is expected to face clients directly.
func clientKey(r *http.Request) string {
	return remoteIP(r)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
