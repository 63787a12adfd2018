// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

// Package auth guards the mutating API endpoints. Four modes are
// supported: none (open, logged loudly at startup), token (shared
// secret, compared constant-time), basic (HTTP Basic against a bcrypt
// hash) and jwt (HS256 tokens signed with the shared secret).
//
// Read endpoints are public; only sync triggers and the audit listing
// go through the guard.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/amerel/killboard/internal/config"
	"github.com/amerel/killboard/internal/logging"
)

// Authorization modes. Mirrors the values the config layer accepts.
const (
	ModeNone  = "none"
	ModeToken = "token"
	ModeBasic = "basic"
	ModeJWT   = "jwt"
)

// Identity describes the authenticated caller.
type Identity struct {
	Subject string
	Mode    string
}

type identityKey struct{}

// IdentityFromContext returns the identity the guard attached to the
// request, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok
}

func withIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// AuditSink records denied requests. Implemented by *audit.Logger.
type AuditSink interface {
	LogAuthDenied(r *http.Request, reason string)
}

// Guard verifies request credentials for the configured mode.
type Guard struct {
	mode      string
	syncToken []byte
	basicUser []byte
	basicHash []byte
	audience  string
	auditor   AuditSink
}

// NewGuard builds a guard from validated config. auditor may be nil.
func NewGuard(cfg config.AuthConfig, auditor AuditSink) (*Guard, error) {
	g := &Guard{
		mode:      cfg.Mode,
		syncToken: []byte(cfg.SyncToken),
		basicUser: []byte(cfg.BasicUser),
		basicHash: []byte(cfg.BasicPasswordHash),
		audience:  cfg.JWTAudience,
		auditor:   auditor,
	}

	switch cfg.Mode {
	case ModeNone:
		logging.Warn().Msg("Auth mode is none: trigger endpoints accept unauthenticated requests")
	case ModeToken, ModeJWT:
		if len(g.syncToken) == 0 {
			return nil, fmt.Errorf("auth mode %q requires a sync token", cfg.Mode)
		}
	case ModeBasic:
		if len(g.basicUser) == 0 || len(g.basicHash) == 0 {
			return nil, fmt.Errorf("auth mode basic requires a user and password hash")
		}
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}

	logging.Info().Str("mode", cfg.Mode).Msg("Auth guard configured")
	return g, nil
}

// Mode returns the configured authorization mode.
func (g *Guard) Mode() string {
	return g.mode
}

// verify checks the request's credentials and returns the caller
// identity. The error is for the audit trail; clients only ever see a
// generic denial.
func (g *Guard) verify(r *http.Request) (*Identity, error) {
	switch g.mode {
	case ModeNone:
		return &Identity{Subject: "anonymous", Mode: ModeNone}, nil
	case ModeToken:
		return g.verifyToken(r)
	case ModeBasic:
		return g.verifyBasic(r)
	case ModeJWT:
		return g.verifyJWT(r)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", g.mode)
	}
}

// bearerToken pulls the credential from Authorization: Bearer or the
// X-Sync-Token fallback header.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.Header.Get("X-Sync-Token")
}

func (g *Guard) verifyToken(r *http.Request) (*Identity, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, errors.New("missing sync token")
	}
	if subtle.ConstantTimeCompare([]byte(token), g.syncToken) != 1 {
		return nil, errors.New("sync token mismatch")
	}
	return &Identity{Subject: "sync-token", Mode: ModeToken}, nil
}

func (g *Guard) verifyBasic(r *http.Request) (*Identity, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Basic ") {
		return nil, errors.New("missing basic credentials")
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		return nil, errors.New("malformed basic credentials")
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return nil, errors.New("malformed basic credentials")
	}

	// Evaluate both comparisons before combining so a bad username
	// costs the same as a bad password.
	userMatch := subtle.ConstantTimeCompare([]byte(parts[0]), g.basicUser) == 1
	passMatch := bcrypt.CompareHashAndPassword(g.basicHash, []byte(parts[1])) == nil
	if !userMatch || !passMatch {
		return nil, errors.New("invalid credentials")
	}

	return &Identity{Subject: parts[0], Mode: ModeBasic}, nil
}
