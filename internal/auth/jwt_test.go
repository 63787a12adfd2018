// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/amerel/killboard/internal/config"
)

func jwtGuard(t *testing.T, audience string) *Guard {
	t.Helper()
	guard, err := NewGuard(config.AuthConfig{
		Mode:        "jwt",
		SyncToken:   "signing-secret",
		JWTAudience: audience,
	}, nil)
	if err != nil {
		t.Fatalf("NewGuard failed: %v", err)
	}
	return guard
}

func TestMintAndValidateToken(t *testing.T) {
	guard := jwtGuard(t, "")

	token, err := guard.MintToken("scheduler", time.Hour)
	if err != nil {
		t.Fatalf("MintToken failed: %v", err)
	}

	claims, err := guard.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Subject != "scheduler" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "scheduler")
	}
}

func TestValidateTokenExpired(t *testing.T) {
	guard := jwtGuard(t, "")

	token, err := guard.MintToken("scheduler", -time.Minute)
	if err != nil {
		t.Fatalf("MintToken failed: %v", err)
	}

	if _, err := guard.ValidateToken(token); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestValidateTokenMissingExpiry(t *testing.T) {
	guard := jwtGuard(t, "")

	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  "scheduler",
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("signing-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := guard.ValidateToken(token); err == nil {
		t.Error("expected token without exp to be rejected")
	}
}

func TestValidateTokenMissingIssuedAt(t *testing.T) {
	guard := jwtGuard(t, "")

	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "scheduler",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("signing-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := guard.ValidateToken(token); err == nil {
		t.Error("expected token without iat to be rejected")
	}
}

func TestValidateTokenAudience(t *testing.T) {
	guard := jwtGuard(t, "killboard-api")

	tests := []struct {
		name     string
		audience string
		wantErr  bool
	}{
		{name: "matching audience", audience: "killboard-api"},
		{name: "wrong audience", audience: "other-service", wantErr: true},
		{name: "no audience", audience: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "scheduler",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				IssuedAt:  jwt.NewNumericDate(time.Now()),
			}}
			if tt.audience != "" {
				claims.Audience = jwt.ClaimStrings{tt.audience}
			}
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("signing-secret"))
			if err != nil {
				t.Fatalf("failed to sign token: %v", err)
			}

			_, err = guard.ValidateToken(token)
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateTokenRejectsOtherAlgorithms(t *testing.T) {
	guard := jwtGuard(t, "")

	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "scheduler",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString([]byte("signing-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := guard.ValidateToken(token); err == nil {
		t.Error("expected HS384 token to be rejected")
	}
}

func TestValidateTokenTamperedSignature(t *testing.T) {
	guard := jwtGuard(t, "")

	token, err := guard.MintToken("scheduler", time.Hour)
	if err != nil {
		t.Fatalf("MintToken failed: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %d parts", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "." + "AAAA" + parts[2][4:]

	if _, err := guard.ValidateToken(tampered); err == nil {
		t.Error("expected tampered token to be rejected")
	}
}

func TestVerifyJWTSubjectFallback(t *testing.T) {
	guard := jwtGuard(t, "")

	tests := []struct {
		name    string
		subject string
		claim   string
		want    string
	}{
		{name: "subject claim", subject: "ops", want: "ops"},
		{name: "name claim", claim: "Dashboard", want: "Dashboard"},
		{name: "no identity claims", want: "jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := &Claims{
				Name: tt.claim,
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   tt.subject,
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
					IssuedAt:  jwt.NewNumericDate(time.Now()),
				},
			}
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("signing-secret"))
			if err != nil {
				t.Fatalf("failed to sign token: %v", err)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/trigger", nil)
			req.Header.Set("Authorization", "Bearer "+token)

			id, err := guard.verify(req)
			if err != nil {
				t.Fatalf("verify failed: %v", err)
			}
			if id.Subject != tt.want {
				t.Errorf("Subject = %q, want %q", id.Subject, tt.want)
			}
			if id.Mode != ModeJWT {
				t.Errorf("Mode = %q, want %q", id.Mode, ModeJWT)
			}
		})
	}
}
