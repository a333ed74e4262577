package authz

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// ErrTokenInvalid is returned for tokens that fail verification.
var ErrTokenInvalid = errors.New("authz: invalid token")

// TokenConfig configures the signed auth token.
type TokenConfig struct {
	Secret     string
	Issuer     string
	TTL        time.Duration
	CookieName string
	Secure     bool
}

// Claims are the verified contents of an auth token.
type Claims struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// TokenManager issues and verifies HMAC-signed auth tokens.
type TokenManager struct {
	secret []byte
	cfg    TokenConfig
	now    func() time.Time
}

// NewTokenManager validates cfg and returns a TokenManager.
func NewTokenManager(cfg TokenConfig) (*TokenManager, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("authz: token secret must be at least 16 bytes")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "academyhub"
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "academy_token"
	}
	return &TokenManager{secret: []byte(cfg.Secret), cfg: cfg, now: time.Now}, nil
}

// TTL returns the token lifetime.
func (m *TokenManager) TTL() time.Duration {
	return m.cfg.TTL
}

// Issue signs a token for userID. The session ID doubles as the token ID.
func (m *TokenManager) Issue(userID string) (string, Claims, error) {
	now := m.now()
	claims := Claims{UserID: userID, SessionID: uuid.NewString(), ExpiresAt: now.Add(m.cfg.TTL)}
	token, err := jwt.NewBuilder().
		JwtID(claims.SessionID).
		Issuer(m.cfg.Issuer).
		Subject(userID).
		IssuedAt(now).
		NotBefore(now).
		Expiration(claims.ExpiresAt).
		Build()
	if err != nil {
		return "", Claims{}, fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), m.secret))
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign token: %w", err)
	}
	return string(signed), claims, nil
}

// Verify checks the signature, issuer and lifetime of raw.
func (m *TokenManager) Verify(raw string) (Claims, error) {
	token, err := jwt.Parse(
		[]byte(raw),
		jwt.WithKey(jwa.HS256(), m.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithClock(jwt.ClockFunc(m.now)),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	subject, ok := token.Subject()
	if !ok || subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	jti, ok := token.JwtID()
	if !ok || jti == "" {
		return Claims{}, fmt.Errorf("%w: missing token id", ErrTokenInvalid)
	}
	exp, _ := token.Expiration()
	return Claims{UserID: subject, SessionID: jti, ExpiresAt: exp}, nil
}

// SetCookie writes the token cookie.
func (m *TokenManager) SetCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
	})
}

// ClearCookie expires the token cookie.
func (m *TokenManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest returns the raw token cookie value, or "".
func (m *TokenManager) FromRequest(r *http.Request) string {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
