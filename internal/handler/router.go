package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/homedash/internal/metrics"
	"github.com/hitoshi/homedash/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	HSTS              bool

	// メトリクス
	Metrics         metrics.MetricsCollector
	MetricsGatherer prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// メモ
	NoteService NoteServiceInterface

	// ヘルスチェックと静的ファイル
	HealthChecker HealthChecker
	StaticDir     string
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Recovery → Metrics → SecurityHeaders → CORS → CSRF → (Session: /api/* のみ)
//
// CSRF検証はセッションの有無に関わらず全ての状態変更リクエストに適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware())

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.Metrics)
	noteHandler := NewNoteHandler(deps.NoteService, deps.Metrics)

	// --- 認証不要のルート ---
	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login-google", authHandler.Login)
		r.Get("/google-callback", authHandler.Callback)
		r.Get("/google-complete", authHandler.Complete)
		r.Post("/logout", authHandler.Logout)
	})

	// --- 認証が必要なルート ---
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.TokenVerifier))

		r.Get("/me", authHandler.Me)
		r.Get("/notes", noteHandler.ListNotes)
		r.Post("/notes", noteHandler.CreateNote)
	})

	if deps.StaticDir != "" {
		r.NotFound(NewSPAHandler(deps.StaticDir).ServeHTTP)
	}

	return r
}
