// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
)

// 対応するデータベースプロバイダー
const (
	ProviderPostgres = "postgres"
	ProviderMySQL    = "mysql"
)

// MinJWTKeyLength はHS256署名鍵の最小バイト長（256bit）。
const MinJWTKeyLength = 32

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	JWT      JWTConfig      `toml:"jwt"`
	Google   GoogleConfig   `toml:"google"`
	Log      LogConfig      `toml:"log"`

	// CookieSecure はBaseURLがhttpsの場合にtrueとなる。
	CookieSecure bool `toml:"-"`
}

// ServerConfig はHTTPサーバーとCookie、CORSの設定。
type ServerConfig struct {
	Port         string `toml:"port" env:"SERVER_PORT"`
	BaseURL      string `toml:"base_url" env:"BASE_URL"`
	FrontURL     string `toml:"front_url" env:"FRONT_URL"`
	CookieDomain string `toml:"cookie_domain" env:"COOKIE_DOMAIN"`
	StaticDir    string `toml:"static_dir" env:"STATIC_DIR"`
}

// DatabaseConfig はメモを保存するデータベースの設定。
type DatabaseConfig struct {
	Provider    string `toml:"provider" env:"DATABASE_PROVIDER"`
	URL         string `toml:"url" env:"DATABASE_URL"`
	AutoMigrate bool   `toml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// JWTConfig はセッションクレデンシャルの署名設定。
type JWTConfig struct {
	Key      string `toml:"key" env:"JWT_KEY"`
	Issuer   string `toml:"issuer" env:"JWT_ISSUER"`
	Audience string `toml:"audience" env:"JWT_AUDIENCE"`
}

// GoogleConfig はGoogle OAuthクライアントの設定。
type GoogleConfig struct {
	ClientID     string `toml:"client_id" env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `toml:"client_secret" env:"GOOGLE_CLIENT_SECRET"`
}

// LogConfig はログ出力の設定。
type LogConfig struct {
	Level string `toml:"level" env:"LOG_LEVEL"`
}

// Default はデフォルト値を設定したConfigを返す。
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      "8080",
			BaseURL:   "http://localhost:8080",
			StaticDir: "wwwroot",
		},
		Database: DatabaseConfig{
			Provider:    ProviderPostgres,
			AutoMigrate: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load はデフォルト値、CONFIG_FILEで指定されたTOMLファイル、環境変数の順に設定を重ねて読み込む。
// 必須項目が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")
	cfg.CookieSecure = strings.HasPrefix(cfg.Server.BaseURL, "https://")

	return cfg, nil
}

// LoadServerPort はLoadと同じ優先順位でサーバーのポートのみを読み込む。
// 必須項目の検証は行わない。
func LoadServerPort() (string, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return "", err
		}
	}

	if err := env.Parse(&cfg.Server); err != nil {
		return "", fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg.Server.Port, nil
}

// loadFile はTOMLファイルの内容をcfgに上書きする。
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	var missing []string

	required := []struct {
		name  string
		value string
	}{
		{"JWT_KEY", c.JWT.Key},
		{"JWT_ISSUER", c.JWT.Issuer},
		{"JWT_AUDIENCE", c.JWT.Audience},
		{"GOOGLE_CLIENT_ID", c.Google.ClientID},
		{"GOOGLE_CLIENT_SECRET", c.Google.ClientSecret},
		{"FRONT_URL", c.Server.FrontURL},
		{"DATABASE_URL", c.Database.URL},
	}
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("required configuration is not set: %v", missing)
	}

	if len(c.JWT.Key) < MinJWTKeyLength {
		return fmt.Errorf("JWT_KEY must be at least %d bytes, got %d", MinJWTKeyLength, len(c.JWT.Key))
	}

	switch c.Database.Provider {
	case ProviderPostgres, ProviderMySQL:
	default:
		return errors.New("DATABASE_PROVIDER must be one of: postgres, mysql")
	}

	return nil
}
