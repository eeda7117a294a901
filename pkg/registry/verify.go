// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package registry implements the island package registry: a
// metadata-only HTTP service that verifies externally-hosted archives
// at registration time and redirects downloads to their origin.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/island/pkg/registry/api"
)

// Verifier checks that every distribution URL in a registration serves
// exactly the declared bytes.  Nothing is persisted until every URL
// passes.
type Verifier struct {
	// Client follows redirects; it needs no cookie jar.  Defaults to a
	// client with a 30s total timeout for HEAD and metadata requests.
	Client *http.Client
	// GetClient is used for full-body GETs, which may be large.
	// Defaults to a 300s-timeout client.
	GetClient *http.Client
}

func (v *Verifier) client() *http.Client {
	if v.Client != nil {
		return v.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (v *Verifier) getClient() *http.Client {
	if v.GetClient != nil {
		return v.GetClient
	}
	return &http.Client{Timeout: 300 * time.Second}
}

// VerifyAll checks every distribution concurrently: HEAD reachability
// first, then a full GET with size and SHA-256 comparison.  The first
// failure cancels the rest and is returned as a typed API error.
func (v *Verifier) VerifyAll(ctx context.Context, dists []api.RegistrationDistribution) error {
	group, ctx := errgroup.WithContext(ctx)
	for _, dist := range dists {
		dist := dist
		group.Go(func() error {
			return v.verifyHead(ctx, dist)
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	group, ctx = errgroup.WithContext(ctx)
	for _, dist := range dists {
		dist := dist
		group.Go(func() error {
			return v.verifyContent(ctx, dist)
		})
	}
	return group.Wait()
}

func (v *Verifier) verifyHead(ctx context.Context, dist api.RegistrationDistribution) error {
	dlog.Debugf(ctx, "HEAD %s", dist.URL)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, dist.URL, nil)
	if err != nil {
		return api.Errorf(api.CodeInvalidRequest, "distribution %q: invalid URL: %v", dist.Filename, err)
	}
	resp, err := v.client().Do(req)
	if err != nil {
		return api.Errorf(api.CodeInvalidRequest,
			"distribution %q: HEAD %s failed: %v", dist.Filename, dist.URL, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return api.Errorf(api.CodeInvalidRequest,
			"distribution %q: HEAD %s returned %s", dist.Filename, dist.URL, resp.Status)
	}
	return nil
}

func (v *Verifier) verifyContent(ctx context.Context, dist api.RegistrationDistribution) error {
	dlog.Debugf(ctx, "GET %s", dist.URL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dist.URL, nil)
	if err != nil {
		return api.Errorf(api.CodeInvalidRequest, "distribution %q: invalid URL: %v", dist.Filename, err)
	}
	resp, err := v.getClient().Do(req)
	if err != nil {
		return api.Errorf(api.CodeInvalidRequest,
			"distribution %q: GET %s failed: %v", dist.Filename, dist.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return api.Errorf(api.CodeInvalidRequest,
			"distribution %q: GET %s returned %s", dist.Filename, dist.URL, resp.Status)
	}

	hasher := sha256.New()
	size, err := io.Copy(hasher, resp.Body)
	if err != nil {
		return api.Errorf(api.CodeInvalidRequest,
			"distribution %q: reading %s failed: %v", dist.Filename, dist.URL, err)
	}
	if size != dist.Size {
		return api.Errorf(api.CodeChecksumMismatch,
			"distribution %q at %s: size mismatch: declared %d, served %d",
			dist.Filename, dist.URL, dist.Size, size)
	}
	actual := hex.EncodeToString(hasher.Sum(nil))
	if actual != dist.SHA256 {
		return api.Errorf(api.CodeChecksumMismatch,
			"distribution %q at %s: checksum mismatch: declared sha256 %s, served %s",
			dist.Filename, dist.URL, dist.SHA256, actual)
	}
	return nil
}
