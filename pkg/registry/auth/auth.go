// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"strings"

	"github.com/datawire/island/pkg/registry/store"
)

// Authenticator resolves Authorization headers to Subjects.  API
// tokens always work; OIDC trusted publishing requires a configured
// verifier.
type Authenticator struct {
	Store store.Store
	OIDC  *OIDCVerifier
}

// Authenticate parses the Authorization header and authenticates the
// presented credential.  ErrNoCredentials means the header was absent
// or empty; ErrInvalidToken means a credential was presented but does
// not authenticate.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (*Subject, error) {
	credential := ExtractToken(header)
	if credential == "" {
		return nil, ErrNoCredentials
	}
	if strings.HasPrefix(credential, TokenPrefix) || strings.HasPrefix(credential, LegacyTokenPrefix) {
		return AuthenticateToken(ctx, a.Store, credential)
	}
	// A JWT is three dot-separated base64 segments.
	if a.OIDC != nil && strings.Count(credential, ".") == 2 {
		claims, err := a.OIDC.Verify(ctx, credential)
		if err != nil {
			return nil, ErrInvalidToken
		}
		return TrustedPublisherSubject(claims), nil
	}
	return nil, ErrInvalidToken
}

// MayPublish reports whether the subject is allowed to publish to the
// named package given its current publishers.  An empty publisher list
// means the package does not exist yet, in which case any
// authenticated subject may claim the name.
func MayPublish(subject *Subject, publishers []*store.Publisher) bool {
	if len(publishers) == 0 {
		return true
	}
	for _, pub := range publishers {
		if subject.MatchesPublisher(pub) {
			return true
		}
	}
	return false
}

// IsOwner reports whether the subject is an owning publisher of the
// package.
func IsOwner(subject *Subject, publishers []*store.Publisher) bool {
	for _, pub := range publishers {
		if pub.IsOwner && subject.MatchesPublisher(pub) {
			return true
		}
	}
	return false
}
