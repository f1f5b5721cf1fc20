package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/homedash/internal/model"
)

const (
	// SessionLifetime はセッションクレデンシャルの有効期間。
	SessionLifetime = 12 * time.Hour
	// ProviderSessionLifetime はOAuthハンドシェイク後の一時セッションの有効期間。
	ProviderSessionLifetime = 10 * time.Minute

	typeSession  = "session"
	typeProvider = "provider"
)

var (
	// ErrInvalidToken は署名、発行者、対象者、有効期限、種別のいずれかが不正なトークンを表す。
	ErrInvalidToken = errors.New("invalid token")
	// ErrEmailNotVerified はプロバイダーがメールアドレスを検証済みとしていないことを表す。
	ErrEmailNotVerified = errors.New("email not verified by provider")
)

// TokenConfig はHS256トークンの署名設定。
type TokenConfig struct {
	Key      []byte
	Issuer   string
	Audience string

	// Now はテスト用に差し替え可能な現在時刻関数。nilの場合はtime.Now。
	Now func() time.Time
}

// Claims はトークンのクレーム。subにメールアドレス、typにトークン種別を持つ。
type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"typ"`
}

// SessionCredential は発行済みのセッションクレデンシャル。
type SessionCredential struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// signer は種別ごとのトークン発行と検証を共通化する。
type signer struct {
	cfg TokenConfig
}

func newSigner(cfg TokenConfig) signer {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return signer{cfg: cfg}
}

func (s signer) sign(tokenType, subject string, lifetime time.Duration) (*SessionCredential, error) {
	if subject == "" {
		return nil, errors.New("subject is required")
	}

	// NumericDateは秒精度のため、発行時刻を秒に丸めて返却値と一致させる
	now := s.cfg.Now().UTC().Truncate(time.Second)
	expiresAt := now.Add(lifetime)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TokenType: tokenType,
	})

	signed, err := token.SignedString(s.cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}

	return &SessionCredential{Token: signed, IssuedAt: now, ExpiresAt: expiresAt}, nil
}

func (s signer) parse(tokenType, tokenString string) (*model.Identity, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
			}
			return s.cfg.Key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.cfg.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("%w: token type mismatch: %q", ErrInvalidToken, claims.TokenType)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}

	return &model.Identity{Email: claims.Subject}, nil
}

// SessionIssuer はセッションクレデンシャルを発行する。
type SessionIssuer struct {
	signer signer
}

// NewSessionIssuer はSessionIssuerを生成する。
func NewSessionIssuer(cfg TokenConfig) *SessionIssuer {
	return &SessionIssuer{signer: newSigner(cfg)}
}

// Issue は検証済みメールアドレスに対して有効期間12時間のクレデンシャルを発行する。
func (i *SessionIssuer) Issue(email string) (*SessionCredential, error) {
	return i.signer.sign(typeSession, email, SessionLifetime)
}

// SessionVerifier はセッションクレデンシャルを検証する。
// クロックスキューの猶予は設けない。
type SessionVerifier struct {
	signer signer
}

// NewSessionVerifier はSessionVerifierを生成する。
func NewSessionVerifier(cfg TokenConfig) *SessionVerifier {
	return &SessionVerifier{signer: newSigner(cfg)}
}

// Verify はトークンを検証し、持ち主のIdentityを返す。
// 不正なトークンの場合はErrInvalidTokenをラップしたエラーを返す。
func (v *SessionVerifier) Verify(token string) (*model.Identity, error) {
	return v.signer.parse(typeSession, token)
}

// ProviderSessions はOAuthハンドシェイク完了からログイン完了までの一時セッションを扱う。
// 同じ鍵で署名するが種別が異なるため、セッションクレデンシャルとしては通用しない。
type ProviderSessions struct {
	signer signer
}

// NewProviderSessions はProviderSessionsを生成する。
func NewProviderSessions(cfg TokenConfig) *ProviderSessions {
	return &ProviderSessions{signer: newSigner(cfg)}
}

// Seal は検証済みメールアドレスを一時セッショントークンに封入する。
func (p *ProviderSessions) Seal(email string) (string, error) {
	cred, err := p.signer.sign(typeProvider, email, ProviderSessionLifetime)
	if err != nil {
		return "", err
	}
	return cred.Token, nil
}

// Open は一時セッショントークンを検証し、封入されたIdentityを返す。
func (p *ProviderSessions) Open(token string) (*model.Identity, error) {
	return p.signer.parse(typeProvider, token)
}
