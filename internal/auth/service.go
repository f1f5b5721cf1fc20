// Package auth はGoogle OAuthによるログインフローとセッションクレデンシャルを提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/hitoshi/homedash/internal/model"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// Login はログイン完了時に発行される値の組。
type Login struct {
	Identity   model.Identity
	Credential *SessionCredential
	CSRFToken  string
}

// Service はログインフローのビジネスロジックを提供する。
type Service struct {
	oauth            OAuthProvider
	issuer           *SessionIssuer
	providerSessions *ProviderSessions
}

// NewService はServiceを生成する。
func NewService(oauth OAuthProvider, issuer *SessionIssuer, providerSessions *ProviderSessions) *Service {
	return &Service{
		oauth:            oauth,
		issuer:           issuer,
		providerSessions: providerSessions,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback は認可コードを交換し、検証済みメールアドレスを封入した一時セッショントークンを返す。
// メールアドレスが未検証の場合はErrEmailNotVerifiedを返す。
func (s *Service) HandleCallback(ctx context.Context, code string) (string, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	if userInfo.Email == "" || !userInfo.EmailVerified {
		slog.Warn("provider returned unverified email",
			slog.String("provider", userInfo.Provider),
			slog.String("provider_user_id", userInfo.ProviderUserID),
		)
		return "", ErrEmailNotVerified
	}

	token, err := s.providerSessions.Seal(userInfo.Email)
	if err != nil {
		return "", fmt.Errorf("failed to establish provider session: %w", err)
	}
	return token, nil
}

// CompleteLogin は一時セッションを再認証し、セッションクレデンシャルとCSRFトークンを発行する。
func (s *Service) CompleteLogin(providerToken string) (*Login, error) {
	identity, err := s.providerSessions.Open(providerToken)
	if err != nil {
		return nil, fmt.Errorf("failed to open provider session: %w", err)
	}

	cred, err := s.issuer.Issue(identity.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session credential: %w", err)
	}

	csrfToken, err := GenerateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate csrf token: %w", err)
	}

	slog.Info("user logged in", slog.String("email", identity.Email))

	return &Login{
		Identity:   *identity,
		Credential: cred,
		CSRFToken:  csrfToken,
	}, nil
}

// GenerateRandomToken は32バイトの暗号論的乱数を16進文字列で返す。
// CSRFトークンとOAuthのstateに使う。
func GenerateRandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
