// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/homedash/internal/model"
)

// SessionCookieName はセッションクレデンシャルを保持するCookieの名前。
const SessionCookieName = "auth_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var identityContextKey = contextKey("identity")

// TokenVerifier はセッションクレデンシャルの検証に必要なインターフェース。
type TokenVerifier interface {
	Verify(token string) (*model.Identity, error)
}

// NewSessionMiddleware はセッションクレデンシャルを検証し、Identityをコンテキストに注入するミドルウェアを返す。
// Authorizationヘッダーのbearerトークンを優先し、なければauth_token Cookieを使う。
// 検証に失敗した場合はハンドラーを実行せずに401を返す。
func NewSessionMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := credentialFromRequest(r)
			if token == "" {
				writeUnauthorized(w)
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				slog.Debug("session verification failed",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeUnauthorized(w)
				return
			}

			annotateEmail(r.Context(), identity.Email)
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// credentialFromRequest はbearerヘッダー、auth_token Cookieの順でトークンを取り出す。
// トークンが空のbearerヘッダーは無いものとして扱う。
func credentialFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if token = strings.TrimSpace(token); ok && strings.EqualFold(scheme, "Bearer") && token != "" {
			return token
		}
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// IdentityFromContext はリクエストコンテキストからIdentityを取得する。
// セッションミドルウェアを通過したリクエストでのみ値を持つ。
func IdentityFromContext(ctx context.Context) (*model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok || identity == nil || identity.Email == "" {
		return nil, false
	}
	return identity, true
}

// ContextWithIdentity はコンテキストにIdentityを注入する。
func ContextWithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
