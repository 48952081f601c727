// Package auth verifies bearer ID tokens and maps them to principals.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"snipr-audio/internal/domain"
	"snipr-audio/internal/domain/ports/adapter"

	"github.com/golang-jwt/jwt/v5"
)

var _ adapter.CredentialVerifier = (*JWTVerifier)(nil)

// Claims mirrors the profile fields of an identity-provider ID token.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

func NewJWTVerifier(secret, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer, audience: audience, leeway: 30 * time.Second}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (adapter.Principal, error) {
	if token == "" {
		return adapter.Principal{}, fmt.Errorf("%w: missing token", domain.ErrAuth)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !tkn.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return adapter.Principal{}, fmt.Errorf("%w: token expired", domain.ErrAuth)
		}
		return adapter.Principal{}, fmt.Errorf("%w: invalid token", domain.ErrAuth)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return adapter.Principal{}, fmt.Errorf("%w: token has no subject", domain.ErrAuth)
	}
	return adapter.Principal{
		ID:      claims.Subject,
		Name:    claims.Name,
		Email:   claims.Email,
		Picture: claims.Picture,
	}, nil
}

// Mint signs a token for p. Used for dev-mode logins and tests.
func (v *JWTVerifier) Mint(p adapter.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:    p.Name,
		Email:   p.Email,
		Picture: p.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken extracts the token from "Authorization: Bearer <jwt>".
func BearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
		return strings.TrimSpace(hdr[7:])
	}
	return ""
}
