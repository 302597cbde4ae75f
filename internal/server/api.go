package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/termweave/termweave/terminal"
)

// sessionInfo is the JSON shape of one session in API responses.
type sessionInfo struct {
	ID         string `json:"id"`
	Title      string `json:"title,omitempty"`
	State      string `json:"state"`
	WorkingDir string `json:"workingDir,omitempty"`
	Cols       int    `json:"cols"`
	Rows       int    `json:"rows"`
	ExitCode   int    `json:"exitCode"`
}

type createSessionRequest struct {
	Shell           string   `json:"shell,omitempty"`
	Args            []string `json:"args,omitempty"`
	WorkingDir      string   `json:"workingDir,omitempty"`
	Title           string   `json:"title,omitempty"`
	ProfileName     string   `json:"profileName,omitempty"`
	Cols            int      `json:"cols,omitempty"`
	Rows            int      `json:"rows,omitempty"`
	ScrollbackLines int      `json:"scrollbackLines,omitempty"`
}

type resizeRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

type inputRequest struct {
	Data string `json:"data"`
}

func sessionInfoFor(session *terminal.Session) sessionInfo {
	info := sessionInfo{
		ID:         session.ID,
		Title:      session.Title(),
		State:      session.State().String(),
		WorkingDir: session.WorkingDir(),
		ExitCode:   session.ExitCode(),
	}
	if buffer := session.Buffer(); buffer != nil {
		info.Cols = buffer.GetCols()
		info.Rows = buffer.GetRows()
	}
	return info
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sessions := s.manager.ListSessions()
		infos := make([]sessionInfo, 0, len(sessions))
		for _, session := range sessions {
			infos = append(infos, sessionInfoFor(session))
		}
		writeJSON(w, http.StatusOK, infos)

	case http.MethodPost:
		var req createSessionRequest
		if err := readJSON(r, maxJSONBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if (req.Cols != 0 || req.Rows != 0) && !validateDims(req.Cols, req.Rows) {
			writeError(w, http.StatusBadRequest, "invalid terminal dimensions")
			return
		}

		session, err := s.manager.CreateSession(terminal.SessionRecord{
			Shell:           req.Shell,
			Args:            req.Args,
			WorkingDir:      req.WorkingDir,
			Title:           req.Title,
			ProfileName:     req.ProfileName,
			Cols:            req.Cols,
			Rows:            req.Rows,
			ScrollbackLines: req.ScrollbackLines,
		})
		if err != nil {
			s.logger.Warn("session create failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to start session")
			return
		}
		s.attachWorker(session)
		writeJSON(w, http.StatusCreated, sessionInfoFor(session))

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSessionByID routes /api/sessions/{id} and /api/sessions/{id}/{action}.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.SplitN(rest, "/", 2)
	sessionID := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	session, ok := s.manager.GetSession(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, sessionInfoFor(session))
		case http.MethodDelete:
			s.detachWorker(sessionID)
			if err := s.manager.CloseSession(sessionID); err != nil && !errors.Is(err, terminal.ErrSessionNotFound) {
				writeError(w, http.StatusInternalServerError, "failed to close session")
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}

	case "resize":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req resizeRequest
		if err := readJSON(r, maxJSONBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if !validateDims(req.Cols, req.Rows) {
			writeError(w, http.StatusBadRequest, "invalid terminal dimensions")
			return
		}
		var resizeErr error
		if worker := s.worker(sessionID); worker != nil {
			worker.run(func() { resizeErr = session.Resize(req.Cols, req.Rows) })
		} else {
			resizeErr = session.Resize(req.Cols, req.Rows)
		}
		if resizeErr != nil {
			writeError(w, http.StatusConflict, resizeErr.Error())
			return
		}
		writeJSON(w, http.StatusOK, sessionInfoFor(session))

	case "input":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req inputRequest
		if err := readJSON(r, maxJSONBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		data := []byte(req.Data)
		if len(data) == 0 || len(data) > maxInputBytes {
			writeError(w, http.StatusBadRequest, "input size out of range")
			return
		}
		if !s.inputLimiter.allow(clientKey(r), len(data)) {
			writeError(w, http.StatusTooManyRequests, "input rate exceeded")
			return
		}
		var writeErr error
		if worker := s.worker(sessionID); worker != nil {
			worker.run(func() { _, writeErr = session.Write(data) })
		} else {
			_, writeErr = session.Write(data)
		}
		if writeErr != nil {
			writeError(w, http.StatusConflict, writeErr.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "text":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var text string
		if worker := s.worker(sessionID); worker != nil {
			worker.run(func() { text = session.Buffer().GetAllText() })
		} else if buffer := session.Buffer(); buffer != nil {
			text = buffer.GetAllText()
		}
		writeJSON(w, http.StatusOK, map[string]string{"text": text})

	case "scrollback":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		limit := parseIntQuery(r, "lines", 100)
		var lines []string
		if worker := s.worker(sessionID); worker != nil {
			worker.run(func() { lines = scrollbackText(session.Buffer(), limit) })
		} else {
			lines = scrollbackText(session.Buffer(), limit)
		}
		writeJSON(w, http.StatusOK, map[string][]string{"lines": lines})

	default:
		writeError(w, http.StatusNotFound, "unknown action")
	}
}

// scrollbackText returns up to limit scrollback lines, oldest first.
func scrollbackText(buffer *terminal.TerminalBuffer, limit int) []string {
	if buffer == nil || limit <= 0 {
		return nil
	}
	n := buffer.GetScrollbackSize()
	if limit < n {
		n = limit
	}
	lines := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		lines = append(lines, buffer.GetScrollbackText(i))
	}
	return lines
}
