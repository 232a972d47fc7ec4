package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrWrongTokenType = errors.New("wrong token type")
)

type Claims struct {
	UserID    string `json:"sub"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	JTI       string `json:"jti"`
	jwt.RegisteredClaims
}

// Manager signs and verifies the access/refresh token pair with a
// single HS256 secret.
type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	parser     *jwt.Parser
}

func NewManager(secret string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		parser:     jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}
}

func (m *Manager) issue(userID, email, role, typ, jti string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	claims := Claims{
		UserID:    userID,
		Email:     email,
		Role:      role,
		TokenType: typ,
		JTI:       jti,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)

	return signed, expiresAt, err
}

func (m *Manager) GenerateAccessToken(userID, email, role string) (string, error) {
	signed, _, err := m.issue(userID, email, role, tokenTypeAccess, uuid.NewString(), m.accessTTL)
	return signed, err
}

// GenerateRefreshToken returns the raw token plus its jti so callers can
// persist the session row keyed by jti.
func (m *Manager) GenerateRefreshToken(userID, email, role string) (raw string, jti string, expiresAt time.Time, err error) {
	jti = uuid.NewString()
	raw, expiresAt, err = m.issue(userID, email, role, tokenTypeRefresh, jti, m.refreshTTL)
	return
}

func (m *Manager) parse(tokenStr string) (*Claims, error) {
	token, err := m.parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)

	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (m *Manager) VerifyAccessToken(tokenStr string) (*Claims, error) {
	claims, err := m.parse(tokenStr)

	if err != nil {
		return nil, err
	}

	if claims.TokenType != tokenTypeAccess {
		return nil, ErrWrongTokenType
	}

	return claims, nil
}

func (m *Manager) VerifyRefreshToken(tokenStr string) (*Claims, error) {
	claims, err := m.parse(tokenStr)

	if err != nil {
		return nil, err
	}

	if claims.TokenType != tokenTypeRefresh || claims.JTI == "" {
		return nil, ErrWrongTokenType
	}

	return claims, nil
}

// HashRefreshToken derives a deterministic HMAC of the raw token so the
// DB never holds the token itself.
func (m *Manager) HashRefreshToken(raw string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}
