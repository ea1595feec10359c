// Package auth issues and verifies the service's bearer tokens and password
// hashes. Tokens are HS256 JWTs carrying the subject ID and a role claim;
// user and admin tokens share a secret but differ in role and lifetime.
package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken reports a missing, malformed, expired, or wrong-role token.
var ErrInvalidToken = errors.New("invalid token")

// Token roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Claims are the JWT claims carried by leafreader tokens.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies access tokens.
type TokenManager struct {
	secret   []byte
	userTTL  time.Duration
	adminTTL time.Duration
}

// NewTokenManager builds a manager with per-role token lifetimes.
func NewTokenManager(secret string, userTTL, adminTTL time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("token secret required")
	}
	if userTTL <= 0 {
		userTTL = 30 * 24 * time.Hour
	}
	if adminTTL <= 0 {
		adminTTL = 7 * 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), userTTL: userTTL, adminTTL: adminTTL}, nil
}

// IssueUser returns a signed token for a reader account.
func (m *TokenManager) IssueUser(userID string) (string, error) {
	return m.issue(userID, RoleUser, m.userTTL)
}

// IssueAdmin returns a signed token for the admin account.
func (m *TokenManager) IssueAdmin(adminID string) (string, error) {
	return m.issue(adminID, RoleAdmin, m.adminTTL)
}

func (m *TokenManager) issue(subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a token and returns its subject, requiring the given role.
func (m *TokenManager) Verify(tokenString, wantRole string) (string, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Role != wantRole || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
