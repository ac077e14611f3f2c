package gateway_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeBackend answers like the Droni API: /api/* needs the current valid
// token, /public/* needs nothing and /reissue hands out nextToken.
type fakeBackend struct {
	server *httptest.Server

	mu             sync.Mutex
	validToken     string
	nextToken      string
	reissueStatus  int
	redirectionURL string
	reissueBodies  []string
	authHeaders    map[string][]string

	reissueCalls atomic.Int32
	unauthorized atomic.Int32

	// waitForUnauthorized makes /reissue hold its answer until that many
	// 401s have been served, so concurrent callers pile up behind it.
	waitForUnauthorized int32
	// gate, when set, blocks /reissue until closed.
	gate chan struct{}
}

func newFakeBackend(t *testing.T, validToken, nextToken string) *fakeBackend {
	t.Helper()

	b := &fakeBackend{
		validToken:    validToken,
		nextToken:     nextToken,
		reissueStatus: http.StatusOK,
		authHeaders:   make(map[string][]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /reissue", b.handleReissue)
	mux.HandleFunc("/public/", func(w http.ResponseWriter, r *http.Request) {
		b.recordAuth(r)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	mux.HandleFunc("/api/broken", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "boom", "status": 500})
	})
	mux.HandleFunc("/api/always-unauthorized", func(w http.ResponseWriter, r *http.Request) {
		b.unauthorized.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "nope", "status": 401})
	})
	mux.HandleFunc("/api/", b.handleProtected)

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) URL() string {
	return b.server.URL
}

func (b *fakeBackend) recordAuth(r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.authHeaders[r.URL.Path] = append(b.authHeaders[r.URL.Path], r.Header.Get("Authorization"))
}

func (b *fakeBackend) authFor(path string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.authHeaders[path]...)
}

func (b *fakeBackend) setReissueStatus(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reissueStatus = status
}

func (b *fakeBackend) handleProtected(w http.ResponseWriter, r *http.Request) {
	b.recordAuth(r)

	b.mu.Lock()
	valid := "Bearer " + b.validToken
	b.mu.Unlock()

	if r.Header.Get("Authorization") != valid {
		b.unauthorized.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "token expired", "status": 401})
		return
	}

	body, _ := io.ReadAll(r.Body)
	writeJSON(w, http.StatusOK, map[string]any{
		"method":    r.Method,
		"path":      r.URL.Path,
		"query":     r.URL.RawQuery,
		"body":      string(body),
		"requestId": r.Header.Get("X-Request-ID"),
		"custom":    r.Header.Get("X-Custom"),
	})
}

func (b *fakeBackend) handleReissue(w http.ResponseWriter, r *http.Request) {
	b.reissueCalls.Add(1)

	deadline := time.Now().Add(2 * time.Second)
	for b.unauthorized.Load() < b.waitForUnauthorized && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if b.gate != nil {
		<-b.gate
	}

	body, _ := io.ReadAll(r.Body)

	b.mu.Lock()
	b.reissueBodies = append(b.reissueBodies, string(body))
	b.redirectionURL = r.URL.Query().Get("redirectionUrl")
	status := b.reissueStatus
	next := b.nextToken
	if status == http.StatusOK {
		b.validToken = next
	}
	b.mu.Unlock()

	if status != http.StatusOK {
		writeJSON(w, status, map[string]any{"message": "refresh token expired", "status": status})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accessToken": next})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
