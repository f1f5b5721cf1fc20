package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-jwt-signing-key-0123456789abcdef")

// fixedClock は任意の時刻を返す差し替え用の時計。
type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

func newTestTokenConfig(clock *fixedClock) TokenConfig {
	return TokenConfig{
		Key:      testKey,
		Issuer:   "homedash",
		Audience: "homedash-web",
		Now:      clock.Now,
	}
}

func TestSessionIssuer_Issue_ClaimsAndLifetime(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
	issuer := NewSessionIssuer(newTestTokenConfig(clock))

	cred, err := issuer.Issue("a@x.com")
	require.NoError(t, err)
	assert.Equal(t, clock.t, cred.IssuedAt)
	assert.Equal(t, clock.t.Add(12*time.Hour), cred.ExpiresAt)

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(cred.Token, claims, func(*jwt.Token) (any, error) { return testKey, nil },
		jwt.WithTimeFunc(clock.Now))
	require.NoError(t, err)

	assert.Equal(t, "a@x.com", claims.Subject)
	assert.Equal(t, "homedash", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"homedash-web"}, claims.Audience)
	assert.Equal(t, "session", claims.TokenType)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, SessionLifetime, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestSessionIssuer_Issue_UniqueJTI(t *testing.T) {
	issuer := NewSessionIssuer(TokenConfig{Key: testKey, Issuer: "homedash", Audience: "homedash-web"})

	first, err := issuer.Issue("a@x.com")
	require.NoError(t, err)
	second, err := issuer.Issue("a@x.com")
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
}

func TestSessionIssuer_Issue_EmptyEmail(t *testing.T) {
	issuer := NewSessionIssuer(TokenConfig{Key: testKey, Issuer: "homedash", Audience: "homedash-web"})

	_, err := issuer.Issue("")
	require.Error(t, err)
}

func TestSessionVerifier_Verify_RoundTrip(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
	cfg := newTestTokenConfig(clock)

	cred, err := NewSessionIssuer(cfg).Issue("a@x.com")
	require.NoError(t, err)

	clock.t = clock.t.Add(11*time.Hour + 59*time.Minute)
	identity, err := NewSessionVerifier(cfg).Verify(cred.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", identity.Email)
}

func TestSessionVerifier_Verify_RejectsAfterLifetime(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
	cfg := newTestTokenConfig(clock)

	cred, err := NewSessionIssuer(cfg).Issue("a@x.com")
	require.NoError(t, err)

	verifier := NewSessionVerifier(cfg)
	for _, age := range []time.Duration{12 * time.Hour, 12*time.Hour + time.Second, 48 * time.Hour} {
		clock.t = cred.IssuedAt.Add(age)
		_, err := verifier.Verify(cred.Token)
		assert.ErrorIs(t, err, ErrInvalidToken, "age %s should be rejected", age)
	}
}

func TestSessionVerifier_Verify_Rejects(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
	cfg := newTestTokenConfig(clock)

	cred, err := NewSessionIssuer(cfg).Issue("a@x.com")
	require.NoError(t, err)

	providerToken, err := NewProviderSessions(cfg).Seal("a@x.com")
	require.NoError(t, err)

	otherKey := cfg
	otherKey.Key = []byte("another-signing-key-0123456789abcdef")
	foreign, err := NewSessionIssuer(otherKey).Issue("a@x.com")
	require.NoError(t, err)

	otherAudience := cfg
	otherAudience.Audience = "somebody-else"
	wrongAud, err := NewSessionIssuer(otherAudience).Issue("a@x.com")
	require.NoError(t, err)

	otherIssuer := cfg
	otherIssuer.Issuer = "somebody-else"
	wrongIss, err := NewSessionIssuer(otherIssuer).Issue("a@x.com")
	require.NoError(t, err)

	future := *clock
	future.t = clock.t.Add(time.Hour)
	futureCfg := cfg
	futureCfg.Now = future.Now
	notYetIssued, err := NewSessionIssuer(futureCfg).Issue("a@x.com")
	require.NoError(t, err)

	// 署名部の1文字を変更する
	sig := strings.LastIndex(cred.Token, ".") + 1
	flipped := []byte(cred.Token)
	if flipped[sig] == 'A' {
		flipped[sig] = 'B'
	} else {
		flipped[sig] = 'A'
	}

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "a@x.com",
			Issuer:    "homedash",
			Audience:  jwt.ClaimStrings{"homedash-web"},
			IssuedAt:  jwt.NewNumericDate(clock.t),
			ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
		},
		TokenType: "session",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  "a@x.com",
			Issuer:   "homedash",
			Audience: jwt.ClaimStrings{"homedash-web"},
			IssuedAt: jwt.NewNumericDate(clock.t),
		},
		TokenType: "session",
	}).SignedString(testKey)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "a@x.com",
			Issuer:    "homedash",
			Audience:  jwt.ClaimStrings{"homedash-web"},
			IssuedAt:  jwt.NewNumericDate(clock.t),
			ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
		},
		TokenType: "session",
	}).SignedString(testKey)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"flipped signature", string(flipped)},
		{"different key", foreign.Token},
		{"wrong audience", wrongAud.Token},
		{"wrong issuer", wrongIss.Token},
		{"issued in the future", notYetIssued.Token},
		{"provider session token", providerToken},
		{"alg none", noneToken},
		{"missing exp", noExp},
		{"hs512", hs512},
	}

	verifier := NewSessionVerifier(cfg)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := verifier.Verify(tt.token)
			assert.Nil(t, identity)
			assert.True(t, errors.Is(err, ErrInvalidToken), "err = %v", err)
		})
	}
}

func TestProviderSessions_SealOpen(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
	cfg := newTestTokenConfig(clock)
	sessions := NewProviderSessions(cfg)

	token, err := sessions.Seal("a@x.com")
	require.NoError(t, err)

	identity, err := sessions.Open(token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", identity.Email)

	// 一時セッションはセッションクレデンシャルとして通用しない
	_, err = NewSessionVerifier(cfg).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	clock.t = clock.t.Add(ProviderSessionLifetime)
	_, err = sessions.Open(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestProviderSessions_Open_RejectsSessionCredential(t *testing.T) {
	cfg := TokenConfig{Key: testKey, Issuer: "homedash", Audience: "homedash-web"}

	cred, err := NewSessionIssuer(cfg).Issue("a@x.com")
	require.NoError(t, err)

	_, err = NewProviderSessions(cfg).Open(cred.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
