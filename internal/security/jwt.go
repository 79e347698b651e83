package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims carries the session id alongside the registered claims. The subject
// is the username; exp always mirrors the session's expires_at so a token can
// never outlive its session.
type Claims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	issuer   string
	audience string
	secret   []byte
}

func NewTokenManager(issuer, audience, secret string) *TokenManager {
	return &TokenManager{issuer: issuer, audience: audience, secret: []byte(secret)}
}

// Sign issues an HS256 token for the given session, expiring exactly at
// expiresAt rather than after a fixed TTL.
func (m *TokenManager) Sign(sessionID, username string, expiresAt time.Time) (string, error) {
	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   username,
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse validates signature, issuer, audience and expiry. Expiry is reported
// as ErrTokenExpired so callers can log it distinctly; every other failure
// collapses to ErrTokenInvalid.
func (m *TokenManager) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithAudience(m.audience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !tok.Valid || claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
