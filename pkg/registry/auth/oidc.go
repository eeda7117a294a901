// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/datawire/island/pkg/registry/store"
)

// OIDCConfig configures trusted-publisher token verification.
type OIDCConfig struct {
	// Issuer is the expected "iss" claim, e.g.
	// "https://token.actions.githubusercontent.com".
	Issuer string
	// Audience, when set, is required in the token's "aud" claim.
	Audience string
	// JWKSURL overrides the default {Issuer}/.well-known/jwks
	// discovery; used by tests.
	JWKSURL string
	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
}

// OIDCClaims are the CI-provenance claims the registry consumes.
type OIDCClaims struct {
	Subject    string
	Repository string
	// Workflow is the basename of the workflow file, ".yml"/".yaml"
	// kept.
	Workflow string
	SHA      string
	Ref      string
}

// OIDCVerifier validates CI-issued JWTs against the issuer's JWKS.
type OIDCVerifier struct {
	config OIDCConfig

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewOIDCVerifier returns a verifier for the configured issuer.
func NewOIDCVerifier(config OIDCConfig) *OIDCVerifier {
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if config.JWKSURL == "" {
		config.JWKSURL = strings.TrimRight(config.Issuer, "/") + "/.well-known/jwks"
	}
	return &OIDCVerifier{config: config}
}

// Verify checks the token's signature against the issuer's published
// keys and validates iss, aud, and exp.  It returns the provenance
// claims.
func (v *OIDCVerifier) Verify(ctx context.Context, tokenString string) (*OIDCClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.config.Issuer),
		jwt.WithExpirationRequired(),
	}
	if v.config.Audience != "" {
		options = append(options, jwt.WithAudience(v.config.Audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		return v.key(ctx, kid)
	}, options...)
	if err != nil {
		return nil, fmt.Errorf("verify OIDC token: %w", err)
	}

	str := func(name string) string {
		s, _ := claims[name].(string)
		return s
	}
	out := &OIDCClaims{
		Subject:    str("sub"),
		Repository: str("repository"),
		SHA:        str("sha"),
		Ref:        str("ref"),
	}
	// "workflow_ref" looks like "owner/repo/.github/workflows/ci.yml@refs/...";
	// keep only the file basename.
	workflowRef := str("workflow_ref")
	if workflowRef == "" {
		workflowRef = str("workflow")
	}
	if at := strings.IndexByte(workflowRef, '@'); at >= 0 {
		workflowRef = workflowRef[:at]
	}
	out.Workflow = path.Base(workflowRef)
	if out.Repository == "" {
		return nil, errors.New("OIDC token carries no repository claim")
	}
	return out, nil
}

// key returns the RSA public key for kid, refreshing the JWKS cache
// when the kid is unknown or the cache is older than an hour.
func (v *OIDCVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if key, ok := v.keys[kid]; ok && time.Since(v.fetchedAt) < time.Hour {
		return key, nil
	}
	if err := v.fetchLocked(ctx); err != nil {
		return nil, err
	}
	key, ok := v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("no JWKS key with kid %q", kid)
	}
	return key, nil
}

func (v *OIDCVerifier) fetchLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.JWKSURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.config.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch JWKS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch JWKS: unexpected status %v", resp.Status)
	}

	var doc struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, jwk := range doc.Keys {
		if jwk.Kty != "RSA" {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(jwk.N)
		if err != nil {
			return fmt.Errorf("decode JWKS key %q: %w", jwk.Kid, err)
		}
		e, err := base64.RawURLEncoding.DecodeString(jwk.E)
		if err != nil {
			return fmt.Errorf("decode JWKS key %q: %w", jwk.Kid, err)
		}
		keys[jwk.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}
	}
	v.keys = keys
	v.fetchedAt = time.Now()
	return nil
}

// TrustedPublisherSubject turns verified OIDC claims into a Subject.
// Trusted publishers implicitly hold the upload scope.
func TrustedPublisherSubject(claims *OIDCClaims) *Subject {
	return &Subject{
		ID:         claims.Repository,
		Type:       "trusted_publisher",
		Scopes:     []string{ScopeUpload},
		Repository: claims.Repository,
		Workflow:   claims.Workflow,
		SHA:        claims.SHA,
	}
}

// MatchesPublisher reports whether a trusted-publisher subject is
// authorized by the stored publisher row: the repository must match,
// and when the row pins a workflow the basenames must match too.
func (s *Subject) MatchesPublisher(pub *store.Publisher) bool {
	if s.Type == "trusted_publisher" {
		if pub.PublisherType != "trusted_publisher" || pub.GitHubRepository != s.Repository {
			return false
		}
		if pub.GitHubWorkflow != "" && path.Base(pub.GitHubWorkflow) != s.Workflow {
			return false
		}
		return true
	}
	return pub.PublisherID == s.ID
}
