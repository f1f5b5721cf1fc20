// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/homedash/internal/auth"
	"github.com/hitoshi/homedash/internal/metrics"
	"github.com/hitoshi/homedash/internal/middleware"
	"github.com/hitoshi/homedash/internal/model"
)

const (
	oauthStateCookie      = "oauth_state"
	providerSessionCookie = "provider_session"

	// CallbackPath はGoogleに登録するリダイレクトURIのパス。
	CallbackPath = "/auth/google-callback"
	// CompletePath はハンドシェイク後に必ず遷移するログイン完了パス。
	CompletePath = "/auth/google-complete"

	oauthStateMaxAge = 600
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (string, error)
	CompleteLogin(providerToken string) (*auth.Login, error)
}

// LoginRecorder はログイン結果の記録先。
type LoginRecorder interface {
	RecordLogin(outcome string)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontURL     string
	CookieDomain string
	CookieSecure bool
}

// AuthHandler はGoogleログインフローのHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	config   AuthHandlerConfig
	recorder LoginRecorder
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, recorder LoginRecorder) *AuthHandler {
	return &AuthHandler{
		service:  service,
		config:   config,
		recorder: recorder,
	}
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/login-google
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := auth.GenerateRandomToken()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はプロバイダーからのコールバックを処理する。
// 成否に関わらずログイン完了パスへリダイレクトし、ここではクレームを返さない。
// GET /auth/google-callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	h.expireCookie(w, oauthStateCookie, "/auth", "")

	token, err := h.handshake(r)
	if err != nil {
		slog.Warn("oauth handshake failed", slog.String("error", err.Error()))
		h.recorder.RecordLogin(metrics.LoginHandshakeFailed)
		h.expireCookie(w, providerSessionCookie, "/auth", "")
		http.Redirect(w, r, CompletePath, http.StatusFound)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     providerSessionCookie,
		Value:    token,
		Path:     "/auth",
		MaxAge:   int(auth.ProviderSessionLifetime / time.Second),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, CompletePath, http.StatusFound)
}

// handshake はstateを照合し、認可コードを一時セッショントークンに交換する。
func (h *AuthHandler) handshake(r *http.Request) (string, error) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		return "", errors.New("provider returned error: " + errCode)
	}

	state := q.Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		return "", errors.New("oauth state mismatch")
	}

	code := q.Get("code")
	if code == "" {
		return "", errors.New("missing authorization code")
	}

	return h.service.HandleCallback(r.Context(), code)
}

// Complete は一時セッションを再認証し、セッションCookieとCSRFトークンCookieを発行する。
// 一時セッションが無効な場合はリダイレクトせず401を返す。
// GET /auth/google-complete
func (h *AuthHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var providerToken string
	if c, err := r.Cookie(providerSessionCookie); err == nil {
		providerToken = c.Value
	}

	login, err := h.service.CompleteLogin(providerToken)
	if err != nil {
		slog.Warn("login completion rejected", slog.String("error", err.Error()))
		h.recorder.RecordLogin(metrics.LoginRejected)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	h.expireCookie(w, providerSessionCookie, "/auth", "")

	maxAge := int(auth.SessionLifetime / time.Second)
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    login.Credential.Token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		Expires:  login.Credential.ExpiresAt,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CSRFCookieName,
		Value:    login.CSRFToken,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		Expires:  login.Credential.ExpiresAt,
		HttpOnly: false, // フロントエンドから読み取り可能
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	h.recorder.RecordLogin(metrics.LoginSuccess)
	http.Redirect(w, r, h.config.FrontURL, http.StatusFound)
}

// Logout はセッションCookieと一時セッションを破棄する。
// サーバー側での失効は行わない。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.expireCookie(w, middleware.SessionCookieName, "/", h.config.CookieDomain)
	h.expireCookie(w, providerSessionCookie, "/auth", "")
	w.WriteHeader(http.StatusOK)
}

// Me は現在のログインユーザーのメールアドレスを返す。
// GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteProblem(w, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, meResponse{Email: identity.Email})
}

type meResponse struct {
	Email string `json:"email"`
}

func (h *AuthHandler) expireCookie(w http.ResponseWriter, name, path, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Domain:   domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
