package server

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// staticHandler serves the web UI build directory. Requests that do not
// name a real file fall back to the UI entrypoint so client-side routes
// survive a page reload.
type staticHandler struct {
	dir   string
	index string
}

func newStaticHandler(dir string) *staticHandler {
	return &staticHandler{dir: dir, index: filepath.Join(dir, "index.html")}
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Cleaning a rooted path cannot escape the build directory.
	name := path.Clean("/" + r.URL.Path)
	if name == "/" {
		http.ServeFile(w, r, h.index)
		return
	}

	target := filepath.Join(h.dir, filepath.FromSlash(name))
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		http.ServeFile(w, r, target)
		return
	}

	// A missing path with an extension is a broken asset reference; the
	// rest are client-side routes.
	if path.Ext(name) != "" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, h.index)
}
