// Package auth holds the bearer token the engines attach to remote calls.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
	ErrTokenExpired = errors.New("bearer token expired")
)

// TokenProvider yields the current token, or false when the user is signed out
// or the token has expired. Engines treat false as "skip silently".
type TokenProvider interface {
	CurrentToken() (string, bool)
}

// Claims are the fields the client reads from the backend-issued JWT.
type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Provider stores the token handed over by the login flow. The signature is
// verified by the server; the client only reads the subject and expiry.
type Provider struct {
	mu     sync.RWMutex
	token  string
	claims *Claims
	leeway time.Duration
	now    func() time.Time
}

// NewProvider creates a signed-out provider. Tokens expiring within leeway are treated as expired.
func NewProvider(leeway time.Duration) *Provider {
	return &Provider{leeway: leeway, now: time.Now}
}

// ParseClaims decodes a token without verifying its signature.
func ParseClaims(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" && claims.UserID == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return claims, nil
}

// SetToken replaces the current token after checking it is well formed and not expired.
func (p *Provider) SetToken(token string) (*Claims, error) {
	claims, err := ParseClaims(token)
	if err != nil {
		return nil, err
	}
	if p.expired(claims) {
		return nil, ErrTokenExpired
	}
	p.mu.Lock()
	p.token = strings.TrimSpace(token)
	p.claims = claims
	p.mu.Unlock()
	return claims, nil
}

// Clear signs the user out.
func (p *Provider) Clear() {
	p.mu.Lock()
	p.token = ""
	p.claims = nil
	p.mu.Unlock()
}

// CurrentToken implements TokenProvider.
func (p *Provider) CurrentToken() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token == "" || p.expired(p.claims) {
		return "", false
	}
	return p.token, true
}

// Subject returns the signed-in user's id.
func (p *Provider) Subject() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.claims == nil || p.expired(p.claims) {
		return "", false
	}
	if p.claims.Subject != "" {
		return p.claims.Subject, true
	}
	return p.claims.UserID, true
}

func (p *Provider) expired(claims *Claims) bool {
	if claims == nil || claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.Time.After(p.now().Add(p.leeway))
}
