package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/homedash/internal/auth"
	"github.com/hitoshi/homedash/internal/metrics"
	"github.com/hitoshi/homedash/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (string, error)
	completeLoginFn  func(providerToken string) (*auth.Login, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return "https://accounts.google.com/o/oauth2/v2/auth?state=" + state
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (string, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return "", errors.New("not implemented")
}

func (m *mockAuthService) CompleteLogin(providerToken string) (*auth.Login, error) {
	if m.completeLoginFn != nil {
		return m.completeLoginFn(providerToken)
	}
	return nil, auth.ErrInvalidToken
}

var testAuthConfig = AuthHandlerConfig{
	FrontURL:     "http://localhost:5173",
	CookieDomain: "",
	CookieSecure: false,
}

// --- テスト ---

func TestAuthHandler_Login_SetsStateAndRedirects(t *testing.T) {
	var gotState string
	svc := &mockAuthService{
		getLoginURLFn: func(state string) string {
			gotState = state
			return "https://accounts.google.com/o/oauth2/v2/auth?state=" + state
		},
	}
	h := NewAuthHandler(svc, testAuthConfig, &mockRecorder{})

	w := httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodGet, "/auth/login-google", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if loc := resp.Header.Get("Location"); !strings.HasPrefix(loc, "https://accounts.google.com/") {
		t.Errorf("Location = %q, want google authorization URL", loc)
	}

	c := findCookie(resp, "oauth_state")
	if c == nil {
		t.Fatal("oauth_state cookie should be set")
	}
	if c.Value == "" || c.Value != gotState {
		t.Errorf("oauth_state = %q, want state passed to provider %q", c.Value, gotState)
	}
	if !c.HttpOnly || c.SameSite != http.SameSiteLaxMode || c.MaxAge != 600 {
		t.Errorf("oauth_state attributes = %+v", c)
	}
}

func TestAuthHandler_Callback_Success_SetsProviderSessionAndRedirects(t *testing.T) {
	var gotCode string
	svc := &mockAuthService{
		handleCallbackFn: func(_ context.Context, code string) (string, error) {
			gotCode = code
			return "provider-token", nil
		},
	}
	rec := &mockRecorder{}
	h := NewAuthHandler(svc, testAuthConfig, rec)

	req := httptest.NewRequest(http.MethodGet, "/auth/google-callback?code=test-code&state=test-state", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "test-state"})
	w := httptest.NewRecorder()
	h.Callback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "/auth/google-complete" {
		t.Errorf("Location = %q, want /auth/google-complete", loc)
	}
	if gotCode != "test-code" {
		t.Errorf("code = %q, want test-code", gotCode)
	}

	ps := findCookie(resp, "provider_session")
	if ps == nil || ps.Value != "provider-token" {
		t.Fatalf("provider_session cookie = %+v, want provider-token", ps)
	}
	if !ps.HttpOnly || ps.MaxAge != 600 {
		t.Errorf("provider_session attributes = %+v", ps)
	}

	if st := findCookie(resp, "oauth_state"); st == nil || st.MaxAge >= 0 {
		t.Errorf("oauth_state should be expired, got %+v", st)
	}
	if len(rec.logins) != 0 {
		t.Errorf("no login outcome should be recorded on callback success, got %v", rec.logins)
	}
}

func TestAuthHandler_Callback_Failures_StillRedirectToComplete(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		cookie string
		svcErr error
	}{
		{"state mismatch", "?code=c&state=a", "b", nil},
		{"missing state cookie", "?code=c&state=a", "", nil},
		{"empty state", "?code=c&state=", "", nil},
		{"missing code", "?state=a", "a", nil},
		{"provider error", "?error=access_denied&state=a", "a", nil},
		{"exchange failure", "?code=c&state=a", "a", errors.New("invalid_grant")},
		{"unverified email", "?code=c&state=a", "a", auth.ErrEmailNotVerified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockAuthService{
				handleCallbackFn: func(_ context.Context, _ string) (string, error) {
					called = true
					if tt.svcErr != nil {
						return "", tt.svcErr
					}
					return "provider-token", nil
				},
			}
			rec := &mockRecorder{}
			h := NewAuthHandler(svc, testAuthConfig, rec)

			req := httptest.NewRequest(http.MethodGet, "/auth/google-callback"+tt.query, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "oauth_state", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			h.Callback(w, req)

			resp := w.Result()
			if resp.StatusCode != http.StatusFound {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusFound)
			}
			if loc := resp.Header.Get("Location"); loc != "/auth/google-complete" {
				t.Errorf("Location = %q, want /auth/google-complete", loc)
			}
			if ps := findCookie(resp, "provider_session"); ps != nil && ps.Value != "" {
				t.Errorf("provider_session should not be established, got %q", ps.Value)
			}
			if tt.svcErr == nil && called {
				t.Error("service should not be called when the request itself is invalid")
			}
			if len(rec.logins) != 1 || rec.logins[0] != metrics.LoginHandshakeFailed {
				t.Errorf("logins = %v, want [%s]", rec.logins, metrics.LoginHandshakeFailed)
			}
		})
	}
}

func TestAuthHandler_Complete_Success_SetsCookiesAndRedirectsToFront(t *testing.T) {
	issued := time.Now().UTC().Truncate(time.Second)
	svc := &mockAuthService{
		completeLoginFn: func(providerToken string) (*auth.Login, error) {
			if providerToken != "provider-token" {
				return nil, auth.ErrInvalidToken
			}
			return &auth.Login{
				Identity: model.Identity{Email: "a@x.com"},
				Credential: &auth.SessionCredential{
					Token:     "session-jwt",
					IssuedAt:  issued,
					ExpiresAt: issued.Add(auth.SessionLifetime),
				},
				CSRFToken: "csrf-token-hex",
			}, nil
		},
	}
	rec := &mockRecorder{}
	h := NewAuthHandler(svc, testAuthConfig, rec)

	req := httptest.NewRequest(http.MethodGet, "/auth/google-complete", nil)
	req.AddCookie(&http.Cookie{Name: "provider_session", Value: "provider-token"})
	w := httptest.NewRecorder()
	h.Complete(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "http://localhost:5173" {
		t.Errorf("Location = %q, want front URL", loc)
	}

	session := findCookie(resp, "auth_token")
	if session == nil || session.Value != "session-jwt" {
		t.Fatalf("auth_token cookie = %+v", session)
	}
	if !session.HttpOnly || session.SameSite != http.SameSiteLaxMode || session.Path != "/" {
		t.Errorf("auth_token attributes = %+v", session)
	}
	if session.MaxAge != 12*60*60 {
		t.Errorf("auth_token MaxAge = %d, want %d", session.MaxAge, 12*60*60)
	}

	xsrf := findCookie(resp, "XSRF-TOKEN")
	if xsrf == nil || xsrf.Value != "csrf-token-hex" {
		t.Fatalf("XSRF-TOKEN cookie = %+v", xsrf)
	}
	if xsrf.HttpOnly {
		t.Error("XSRF-TOKEN must be readable by scripts")
	}
	if xsrf.SameSite != http.SameSiteLaxMode || xsrf.MaxAge != 12*60*60 {
		t.Errorf("XSRF-TOKEN attributes = %+v", xsrf)
	}

	if ps := findCookie(resp, "provider_session"); ps == nil || ps.MaxAge >= 0 {
		t.Errorf("provider_session should be expired, got %+v", ps)
	}
	if len(rec.logins) != 1 || rec.logins[0] != metrics.LoginSuccess {
		t.Errorf("logins = %v, want [success]", rec.logins)
	}
}

func TestAuthHandler_Complete_InvalidProviderSession_Returns401WithoutRedirect(t *testing.T) {
	for name, cookie := range map[string]string{"missing": "", "invalid": "tampered"} {
		t.Run(name, func(t *testing.T) {
			rec := &mockRecorder{}
			h := NewAuthHandler(&mockAuthService{}, testAuthConfig, rec)

			req := httptest.NewRequest(http.MethodGet, "/auth/google-complete", nil)
			if cookie != "" {
				req.AddCookie(&http.Cookie{Name: "provider_session", Value: cookie})
			}
			w := httptest.NewRecorder()
			h.Complete(w, req)

			resp := w.Result()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
			}
			if loc := resp.Header.Get("Location"); loc != "" {
				t.Errorf("Location = %q, want none", loc)
			}
			if findCookie(resp, "auth_token") != nil {
				t.Error("auth_token should not be set")
			}
			if len(rec.logins) != 1 || rec.logins[0] != metrics.LoginRejected {
				t.Errorf("logins = %v, want [rejected]", rec.logins)
			}
		})
	}
}

func TestAuthHandler_Logout_ClearsCookies(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig, &mockRecorder{})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: "session-jwt"})
	w := httptest.NewRecorder()
	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	for _, name := range []string{"auth_token", "provider_session"} {
		c := findCookie(resp, name)
		if c == nil || c.Value != "" || c.MaxAge >= 0 {
			t.Errorf("%s should be cleared, got %+v", name, c)
		}
	}
}

func TestAuthHandler_Me_ReturnsEmail(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig, &mockRecorder{})

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/me", nil), "a@x.com")
	w := httptest.NewRecorder()
	h.Me(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body["email"] != "a@x.com" {
		t.Errorf("email = %q, want a@x.com", body["email"])
	}
}

func TestAuthHandler_Me_WithoutIdentity_Returns401(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig, &mockRecorder{})

	w := httptest.NewRecorder()
	h.Me(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
