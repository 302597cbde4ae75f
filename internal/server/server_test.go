package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/termweave/termweave/terminal"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(Config{
		Manager: terminal.ManagerConfig{Logger: terminal.NopLogger{}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	return srv, ts
}

func createSession(t *testing.T, ts *httptest.Server, req createSessionRequest) sessionInfo {
	t.Helper()
	payload, _ := json.Marshal(req)
	resp, err := http.Post(ts.URL+"/api/sessions", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d, want 201", resp.StatusCode)
	}
	var info sessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode session info: %v", err)
	}
	return info
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestServer_SessionLifecycle(t *testing.T) {
	_, ts := newTestServer(t)

	info := createSession(t, ts, createSessionRequest{
		Shell: "/bin/sh",
		Args:  []string{"-c", "sleep 30"},
	})
	if info.ID == "" {
		t.Fatalf("created session has empty ID")
	}
	if info.State != "running" {
		t.Fatalf("state = %q, want running", info.State)
	}
	if info.Cols != 80 || info.Rows != 25 {
		t.Fatalf("dims = %dx%d, want 80x25", info.Cols, info.Rows)
	}

	resp, err := http.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	var infos []sessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		t.Fatalf("decode session list: %v", err)
	}
	resp.Body.Close()
	if len(infos) != 1 || infos[0].ID != info.ID {
		t.Fatalf("list = %+v, want one session %s", infos, info.ID)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/sessions/"+info.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete session: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/sessions/" + info.ID)
	if err != nil {
		t.Fatalf("get deleted session: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted session status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_InputReachesScreenText(t *testing.T) {
	_, ts := newTestServer(t)
	info := createSession(t, ts, createSessionRequest{Shell: "/bin/sh"})

	resp := postJSON(t, ts.URL+"/api/sessions/"+info.ID+"/input", inputRequest{Data: "echo term-marker\n"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("input status = %d, want 204", resp.StatusCode)
	}

	ok := waitFor(t, 5*time.Second, func() bool {
		resp, err := http.Get(ts.URL + "/api/sessions/" + info.ID + "/text")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false
		}
		return strings.Contains(body["text"], "term-marker")
	})
	if !ok {
		t.Fatalf("echoed text never appeared on the screen")
	}
}

func TestServer_ResizeValidation(t *testing.T) {
	_, ts := newTestServer(t)
	info := createSession(t, ts, createSessionRequest{
		Shell: "/bin/sh",
		Args:  []string{"-c", "sleep 30"},
	})

	resp := postJSON(t, ts.URL+"/api/sessions/"+info.ID+"/resize", resizeRequest{Cols: 10, Rows: 3})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("undersized resize status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/sessions/"+info.ID+"/resize", resizeRequest{Cols: 120, Rows: 40})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resize status = %d, want 200", resp.StatusCode)
	}
	var resized sessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&resized); err != nil {
		t.Fatalf("decode resize response: %v", err)
	}
	if resized.Cols != 120 || resized.Rows != 40 {
		t.Fatalf("dims after resize = %dx%d, want 120x40", resized.Cols, resized.Rows)
	}
}

func TestServer_WebsocketScreenStream(t *testing.T) {
	_, ts := newTestServer(t)
	info := createSession(t, ts, createSessionRequest{Shell: "/bin/sh"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?session=" + info.ID
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// First message is the full-screen repaint.
	var first wsEvent
	if err := readEvent(ctx, conn, &first); err != nil {
		t.Fatalf("read initial event: %v", err)
	}
	if first.Type != "screen" {
		t.Fatalf("initial event type = %q, want screen", first.Type)
	}
	if len(first.Rows) != info.Rows {
		t.Fatalf("initial repaint rows = %d, want %d", len(first.Rows), info.Rows)
	}

	cmd, _ := json.Marshal(wsCommand{Type: "input", Data: "echo ws-marker\n"})
	if err := conn.Write(ctx, websocket.MessageText, cmd); err != nil {
		t.Fatalf("write input command: %v", err)
	}

	for {
		var event wsEvent
		if err := readEvent(ctx, conn, &event); err != nil {
			t.Fatalf("echoed output never streamed: %v", err)
		}
		if event.Type != "screen" {
			continue
		}
		for _, row := range event.Rows {
			if strings.Contains(row.Text, "ws-marker") {
				return
			}
		}
	}
}

func readEvent(ctx context.Context, conn *websocket.Conn, event *wsEvent) error {
	kind, payload, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	if kind != websocket.MessageText {
		return fmt.Errorf("unexpected message kind %v", kind)
	}
	return json.Unmarshal(payload, event)
}

func TestServer_WebsocketUnknownSession(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/ws?session=session-missing")
	if err != nil {
		t.Fatalf("ws request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestScreenEventCarriesExplicitCursorVisibility(t *testing.T) {
	payload, err := json.Marshal(wsEvent{Type: "screen", SessionID: "s", CursorVisible: false})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(payload), `"cursorVisible":false`) {
		t.Fatalf("hidden cursor must be explicit in the payload, got %s", payload)
	}
}

func TestStaticHandlerFallback(t *testing.T) {
	dir := t.TempDir()
	mustWrite := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	mustWrite("index.html", "<html>ui</html>")
	mustWrite("app.js", "console.log(1)")

	handler := newStaticHandler(dir)
	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	if rec := get("/"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ui") {
		t.Fatalf("root: code=%d body=%q", rec.Code, rec.Body.String())
	}
	if rec := get("/app.js"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "console") {
		t.Fatalf("asset: code=%d body=%q", rec.Code, rec.Body.String())
	}
	// Extensionless unknown paths are client-side routes.
	if rec := get("/sessions/abc"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ui") {
		t.Fatalf("route fallback: code=%d body=%q", rec.Code, rec.Body.String())
	}
	if rec := get("/missing.png"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing asset: code=%d, want 404", rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST: code=%d, want 405", rec.Code)
	}
}

func TestByteRateLimiter(t *testing.T) {
	limiter := newByteRateLimiter(1000, 100)

	if !limiter.allow("a", 100) {
		t.Fatalf("burst-sized spend should pass")
	}
	if limiter.allow("a", 50) {
		t.Fatalf("spend over empty bucket should fail")
	}
	if !limiter.allow("b", 100) {
		t.Fatalf("separate keys should not share buckets")
	}

	time.Sleep(60 * time.Millisecond)
	if !limiter.allow("a", 40) {
		t.Fatalf("bucket should refill over time")
	}
}
