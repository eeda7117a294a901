// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/island/pkg/registry/auth"
	"github.com/datawire/island/pkg/registry/store"
)

func TestExtractToken(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		Header string
		Token  string
	}{
		"empty":         {Header: "", Token: ""},
		"bearer":        {Header: "Bearer isl_abc", Token: "isl_abc"},
		"bearer-lower":  {Header: "bearer isl_abc", Token: "isl_abc"},
		"token-scheme":  {Header: "Token apw_xyz", Token: "apw_xyz"},
		"raw-isl":       {Header: "isl_abc", Token: "isl_abc"},
		"raw-apw":       {Header: "apw_xyz", Token: "apw_xyz"},
		"raw-unknown":   {Header: "abc123", Token: ""},
		"basic-refused": {Header: "Basic dXNlcjpwYXNz", Token: ""},
		"padded":        {Header: "  Bearer isl_abc  ", Token: "isl_abc"},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.Token, auth.ExtractToken(tc.Header))
		})
	}
}

func TestMintAndAuthenticate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()

	plaintext, token, err := auth.MintToken(ctx, st, "alice", "ci", []string{"upload"}, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plaintext, auth.TokenPrefix))
	assert.NotContains(t, token.TokenHash, plaintext[len(auth.TokenPrefix):])
	assert.Equal(t, auth.HashToken(plaintext), token.TokenHash)

	subject, err := auth.AuthenticateToken(ctx, st, plaintext)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject.ID)
	assert.Equal(t, "user", subject.Type)
	assert.True(t, subject.HasScope(auth.ScopeUpload))
	assert.False(t, subject.HasScope("admin"))

	// last_used_at got stamped.
	stored, err := st.GetTokenByHash(ctx, token.TokenHash)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastUsedAt)

	_, err = auth.AuthenticateToken(ctx, st, "isl_wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestAuthenticateRevoked(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()

	plaintext, token, err := auth.MintToken(ctx, st, "alice", "", []string{"*"}, nil)
	require.NoError(t, err)
	require.NoError(t, st.RevokeToken(ctx, token.ID))

	_, err = auth.AuthenticateToken(ctx, st, plaintext)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestAuthenticateExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()

	past := time.Now().Add(-time.Hour)
	plaintext, _, err := auth.MintToken(ctx, st, "alice", "", []string{"*"}, &past)
	require.NoError(t, err)

	_, err = auth.AuthenticateToken(ctx, st, plaintext)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestWildcardScope(t *testing.T) {
	t.Parallel()
	subject := &auth.Subject{Scopes: []string{auth.ScopeAll}}
	assert.True(t, subject.HasScope("upload"))
	assert.True(t, subject.HasScope("anything"))
}

func TestMatchesPublisher(t *testing.T) {
	t.Parallel()
	userPub := &store.Publisher{PublisherID: "alice", PublisherType: "user", IsOwner: true}
	trustedPub := &store.Publisher{
		PublisherID:      "octo/game",
		PublisherType:    "trusted_publisher",
		GitHubRepository: "octo/game",
		GitHubWorkflow:   ".github/workflows/release.yml",
	}
	trustedAnyWorkflow := &store.Publisher{
		PublisherID:      "octo/game",
		PublisherType:    "trusted_publisher",
		GitHubRepository: "octo/game",
	}

	user := &auth.Subject{ID: "alice", Type: "user"}
	assert.True(t, user.MatchesPublisher(userPub))
	assert.False(t, user.MatchesPublisher(&store.Publisher{PublisherID: "bob"}))

	ci := &auth.Subject{
		ID:         "octo/game",
		Type:       "trusted_publisher",
		Repository: "octo/game",
		Workflow:   "release.yml",
	}
	assert.True(t, ci.MatchesPublisher(trustedPub))
	assert.True(t, ci.MatchesPublisher(trustedAnyWorkflow))

	wrongWorkflow := &auth.Subject{
		ID:         "octo/game",
		Type:       "trusted_publisher",
		Repository: "octo/game",
		Workflow:   "nightly.yml",
	}
	assert.False(t, wrongWorkflow.MatchesPublisher(trustedPub))
	assert.True(t, wrongWorkflow.MatchesPublisher(trustedAnyWorkflow))

	wrongRepo := &auth.Subject{
		ID:         "evil/game",
		Type:       "trusted_publisher",
		Repository: "evil/game",
		Workflow:   "release.yml",
	}
	assert.False(t, wrongRepo.MatchesPublisher(trustedPub))
	// A trusted-publisher subject never matches a user publisher row.
	assert.False(t, ci.MatchesPublisher(userPub))
}

func TestMayPublish(t *testing.T) {
	t.Parallel()
	subject := &auth.Subject{ID: "alice", Type: "user"}

	// No publishers yet: the name is unclaimed.
	assert.True(t, auth.MayPublish(subject, nil))
	assert.True(t, auth.MayPublish(subject,
		[]*store.Publisher{{PublisherID: "alice", IsOwner: true}}))
	assert.False(t, auth.MayPublish(subject,
		[]*store.Publisher{{PublisherID: "bob", IsOwner: true}}))

	assert.True(t, auth.IsOwner(subject,
		[]*store.Publisher{{PublisherID: "alice", IsOwner: true}}))
	assert.False(t, auth.IsOwner(subject,
		[]*store.Publisher{{PublisherID: "alice", IsOwner: false}}))
}
