// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the token claims killboard issues and accepts.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func (g *Guard) verifyJWT(r *http.Request) (*Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		return nil, errors.New("missing bearer token")
	}

	claims, err := g.ValidateToken(raw)
	if err != nil {
		return nil, err
	}

	subject := claims.Subject
	if subject == "" {
		subject = claims.Name
	}
	if subject == "" {
		subject = "jwt"
	}
	return &Identity{Subject: subject, Mode: ModeJWT}, nil
}

// ValidateToken checks signature, algorithm, expiry, issued-at and,
// when configured, the audience claim.
func (g *Guard) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if g.audience != "" {
		opts = append(opts, jwt.WithAudience(g.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return g.syncToken, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.IssuedAt == nil {
		return nil, errors.New("token missing issued-at claim")
	}
	return claims, nil
}

// MintToken signs a token carrying subject, valid for ttl. Meant for
// operators issuing credentials to schedulers and dashboards; the
// server itself never mints tokens on behalf of callers.
func (g *Guard) MintToken(subject string, ttl time.Duration) (string, error) {
	if len(g.syncToken) == 0 {
		return "", errors.New("no signing secret configured")
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if g.audience != "" {
		claims.Audience = jwt.ClaimStrings{g.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.syncToken)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
