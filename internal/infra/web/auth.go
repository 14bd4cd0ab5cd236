package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sanskarpan/Latexy/internal/domain/model"
)

const RoleAdmin = "admin"

var errMissingToken = errors.New("missing token")

// Claims is the bearer token body. Subject carries the user id.
type Claims struct {
	Plan string `json:"plan,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type AuthManager struct {
	secret []byte
	ttl    time.Duration
}

func NewAuthManager(secret string, ttl time.Duration) *AuthManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthManager{secret: []byte(secret), ttl: ttl}
}

func (a *AuthManager) Enabled() bool { return a != nil && len(a.secret) > 0 }

// Mint signs an HS256 token; used by tests and the admin tooling.
func (a *AuthManager) Mint(subject, plan, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		Plan: plan,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Subject:   subject,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseFromRequest reads "Authorization: Bearer <jwt>". Browsers cannot set
// headers on a websocket handshake, so a token query parameter is accepted too.
func (a *AuthManager) ParseFromRequest(r *http.Request) (*Claims, error) {
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
			return a.parse(strings.TrimSpace(hdr[7:]))
		}
		return nil, errors.New("malformed authorization header")
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return a.parse(tok)
	}
	return nil, errMissingToken
}

func (a *AuthManager) parse(tok string) (*Claims, error) {
	if !a.Enabled() {
		return nil, errors.New("authentication is not configured")
	}
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// principal is the caller identity attached to each request.
type principal struct {
	UserID string
	Plan   string
	Role   string
}

func (p principal) admin() bool { return p.Role == RoleAdmin }

type principalKey struct{}

var anonymous = principal{Plan: model.PlanFree}

func withPrincipal(ctx context.Context, p principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFrom(ctx context.Context) principal {
	if p, ok := ctx.Value(principalKey{}).(principal); ok {
		return p
	}
	return anonymous
}
