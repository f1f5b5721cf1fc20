// Package app はコマンドの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/homedash/internal/auth"
	"github.com/hitoshi/homedash/internal/config"
	"github.com/hitoshi/homedash/internal/database"
	"github.com/hitoshi/homedash/internal/handler"
	"github.com/hitoshi/homedash/internal/logger"
	"github.com/hitoshi/homedash/internal/metrics"
	"github.com/hitoshi/homedash/internal/note"
	"github.com/hitoshi/homedash/internal/repository"
)

const shutdownTimeout = 30 * time.Second

// dbReadyTimeout は起動時にDBの応答を待つ最大時間。
var dbReadyTimeout = 60 * time.Second

// Init はアプリケーションの初期化を行う。
// .envファイルと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envがあれば読み込む
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	// 3. 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadDotEnv はカレントディレクトリの.envを読み込む。既存の環境変数は上書きしない。
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		if err := loadDotEnv(); err != nil {
			return err
		}
		port, err := config.LoadServerPort()
		if err != nil {
			return fmt.Errorf("failed to load server port: %w", err)
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.Server.Port),
		slog.String("base_url", cfg.Server.BaseURL),
		slog.String("database_provider", cfg.Database.Provider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.Database.Provider, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	readyCtx, cancel := context.WithTimeout(ctx, dbReadyTimeout)
	defer cancel()
	if err := database.WaitForReady(readyCtx, db); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. 起動時マイグレーション
	if cfg.Database.AutoMigrate {
		if err := runMigrate(cfg); err != nil {
			return err
		}
	}

	// 3. ルーターの構築
	router, err := buildHandler(cfg, db, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// buildHandler は設定とDB接続から全依存関係を組み立て、ルーターを返す。
func buildHandler(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (http.Handler, error) {
	// 1. リポジトリの初期化
	noteRepo, err := newNoteRepository(cfg.Database.Provider, db)
	if err != nil {
		return nil, err
	}

	// 2. メトリクスの初期化
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 3. ドメインサービスの初期化
	tokenCfg := auth.TokenConfig{
		Key:      []byte(cfg.JWT.Key),
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	}
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Server.BaseURL + handler.CallbackPath,
	})
	authService := auth.NewService(
		oauthProvider,
		auth.NewSessionIssuer(tokenCfg),
		auth.NewProviderSessions(tokenCfg),
	)
	noteService := note.NewService(noteRepo)

	// 4. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		TokenVerifier:     auth.NewSessionVerifier(tokenCfg),
		CORSAllowedOrigin: originOf(cfg.Server.FrontURL),
		HSTS:              cfg.CookieSecure,

		Metrics:         collector,
		MetricsGatherer: reg,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontURL:     cfg.Server.FrontURL,
			CookieDomain: cfg.Server.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},

		NoteService: noteService,

		HealthChecker: db,
	}

	if info, err := os.Stat(cfg.Server.StaticDir); err == nil && info.IsDir() {
		deps.StaticDir = cfg.Server.StaticDir
	} else {
		slog.Warn("static directory not found, SPA hosting disabled",
			slog.String("static_dir", cfg.Server.StaticDir),
		)
	}

	return handler.NewRouter(deps), nil
}

// newNoteRepository はプロバイダーに対応するNoteRepositoryを返す。
func newNoteRepository(provider string, db *sql.DB) (repository.NoteRepository, error) {
	switch provider {
	case config.ProviderPostgres:
		return repository.NewPostgresNoteRepo(db), nil
	case config.ProviderMySQL:
		return repository.NewMySQLNoteRepo(db), nil
	default:
		return nil, fmt.Errorf("unsupported database provider: %s", provider)
	}
}

// originOf はURLからスキームとホストのみを取り出したオリジンを返す。
func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.Database.URL)),
	)

	if err := database.RunMigrations(cfg.Database.Provider, cfg.Database.URL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// URLとして解釈できない場合はホスト以降を含めて伏せる。
func maskDatabaseURL(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Redacted()
	}
	if i := strings.Index(rawURL, "://"); i > 0 {
		return rawURL[:i+3] + "***"
	}
	return "***"
}
