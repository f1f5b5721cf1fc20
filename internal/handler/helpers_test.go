package handler

import (
	"net/http"
	"sync"

	"github.com/hitoshi/homedash/internal/middleware"
	"github.com/hitoshi/homedash/internal/model"
)

// mockRecorder はLoginRecorderとNoteRecorderのモック。
type mockRecorder struct {
	mu           sync.Mutex
	logins       []string
	notesCreated int
}

func (m *mockRecorder) RecordLogin(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins = append(m.logins, outcome)
}

func (m *mockRecorder) RecordNoteCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notesCreated++
}

// withIdentity はリクエストコンテキストにIdentityを注入するヘルパー。
func withIdentity(r *http.Request, email string) *http.Request {
	return r.WithContext(middleware.ContextWithIdentity(r.Context(), &model.Identity{Email: email}))
}

// findCookie はレスポンスから指定名のCookieを探す。
func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
