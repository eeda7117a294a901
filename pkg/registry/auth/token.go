// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package auth implements the registry's trust plane: opaque API
// tokens and OIDC trusted publishing.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/datawire/island/pkg/registry/store"
)

// TokenPrefix is the prefix of newly minted tokens.  LegacyTokenPrefix
// is still accepted on presentation.
const (
	TokenPrefix       = "isl_"
	LegacyTokenPrefix = "apw_"
)

// ScopeAll grants every scope.  ScopeUpload gates registration and
// yank.
const (
	ScopeAll    = "*"
	ScopeUpload = "upload"
)

var (
	// ErrNoCredentials reports a missing or empty Authorization header.
	ErrNoCredentials = errors.New("no credentials presented")
	// ErrInvalidToken reports a token that does not authenticate.
	ErrInvalidToken = errors.New("invalid token")
)

// Subject is an authenticated caller.
type Subject struct {
	ID string
	// Type is "user" for API tokens and "trusted_publisher" for OIDC.
	Type   string
	Scopes []string
	// Repository and Workflow carry OIDC provenance; empty for tokens.
	Repository string
	Workflow   string
	SHA        string
}

// HasScope reports whether the subject carries the named scope.
func (s *Subject) HasScope(scope string) bool {
	for _, have := range s.Scopes {
		if have == ScopeAll || have == scope {
			return true
		}
	}
	return false
}

// MintToken generates a fresh token for userID and stores its hash.
// The plaintext is returned exactly once and never persisted.
func MintToken(ctx context.Context, st store.Store, userID, name string, scopes []string, expiresAt *time.Time) (string, *store.APIToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	plaintext := TokenPrefix + base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(raw)
	token := &store.APIToken{
		TokenHash: HashToken(plaintext),
		UserID:    userID,
		Name:      name,
		Scopes:    scopes,
		ExpiresAt: expiresAt,
	}
	if err := st.CreateToken(ctx, token); err != nil {
		return "", nil, err
	}
	return plaintext, token, nil
}

// HashToken returns the SHA-256 hex digest of a plaintext token.
func HashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// ExtractToken parses an Authorization header value.  It accepts
// "Bearer <t>", "Token <t>", or a raw token carrying a known prefix.
// An empty result means no credentials.
func ExtractToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	for _, scheme := range []string{"Bearer ", "Token "} {
		if len(header) > len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
			return strings.TrimSpace(header[len(scheme):])
		}
	}
	if strings.HasPrefix(header, TokenPrefix) || strings.HasPrefix(header, LegacyTokenPrefix) {
		return header
	}
	return ""
}

// AuthenticateToken resolves a plaintext token to a Subject, enforcing
// revocation and expiry, and stamps last_used_at.
func AuthenticateToken(ctx context.Context, st store.Store, plaintext string) (*Subject, error) {
	token, err := st.GetTokenByHash(ctx, HashToken(plaintext))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if token.ExpiresAt != nil && time.Now().After(*token.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	_ = st.TouchToken(ctx, token.ID, time.Now().UTC())
	return &Subject{
		ID:     token.UserID,
		Type:   "user",
		Scopes: token.Scopes,
	}, nil
}
