// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package client talks to an island registry: publishing metadata and
// installing archives from their external origins.
package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/island/pkg/island"
	"github.com/datawire/island/pkg/registry/api"
)

// DefaultBaseURL is the public island registry.
const DefaultBaseURL = "https://islands.archipelago.gg"

// ErrChecksumMismatch reports a downloaded artifact whose SHA-256 does
// not match the registry's metadata.  The partial file has already
// been removed when this is returned.
var ErrChecksumMismatch = errors.New("downloaded file does not match its registered checksum")

// Client is an island registry API client.
type Client struct {
	// BaseURL is the registry root, e.g. "https://islands.example.com".
	BaseURL string
	// Token authenticates mutating calls; sent as a Bearer credential.
	Token string
	// HTTPClient defaults to a 30s-timeout client; downloads use
	// DownloadClient, defaulting to 300s.
	HTTPClient     *http.Client
	DownloadClient *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *Client) downloadClient() *http.Client {
	if c.DownloadClient != nil {
		return c.DownloadClient
	}
	return &http.Client{Timeout: 300 * time.Second}
}

func (c *Client) endpoint(parts ...string) string {
	base := strings.TrimRight(c.BaseURL, "/") + "/v1/island"
	for _, part := range parts {
		base += "/" + url.PathEscape(part)
	}
	return base
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope api.ErrorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error != nil {
			return envelope.Error
		}
		return fmt.Errorf("%s %s: unexpected status %s", method, endpoint, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Register publishes a version's metadata.  The archives themselves
// must already be reachable at their distribution URLs.
func (c *Client) Register(ctx context.Context, reg *api.PackageRegistration) (*api.RegisterResponse, error) {
	dlog.Infof(ctx, "registering %s %s with %s", reg.Name, reg.Version, c.BaseURL)
	var out api.RegisterResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint("register"), reg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPackage fetches a package's full metadata.
func (c *Client) GetPackage(ctx context.Context, name string) (*api.PackageDetail, error) {
	var out api.PackageDetail
	if err := c.do(ctx, http.MethodGet, c.endpoint("packages", name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetVersion fetches one version's metadata, including distributions.
func (c *Client) GetVersion(ctx context.Context, name, version string) (*api.VersionInfo, error) {
	var out api.VersionInfo
	if err := c.do(ctx, http.MethodGet, c.endpoint("packages", name, version), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LatestVersion resolves the newest non-yanked version string.
func (c *Client) LatestVersion(ctx context.Context, name string) (string, error) {
	var out api.VersionList
	if err := c.do(ctx, http.MethodGet, c.endpoint("packages", name, "versions"), nil, &out); err != nil {
		return "", err
	}
	if len(out.Versions) == 0 {
		return "", fmt.Errorf("package %q has no installable versions", name)
	}
	return out.Versions[0].Version, nil
}

// Yank marks a version as yanked.
func (c *Client) Yank(ctx context.Context, name, version, reason string) error {
	endpoint := c.endpoint("packages", name, version, "yank")
	return c.do(ctx, http.MethodDelete, endpoint, api.YankRequest{Reason: reason}, nil)
}

// InstallResult reports what Install wrote.
type InstallResult struct {
	Path     string
	Filename string
	Size     int64
	SHA256   string
}

// Install downloads name/version into outDir, verifying the archive
// against the registry's recorded checksum.  An empty version means
// the latest; platform narrows distribution choice.
func (c *Client) Install(ctx context.Context, name, version, platform, outDir string) (*InstallResult, error) {
	if version == "" {
		latest, err := c.LatestVersion(ctx, name)
		if err != nil {
			return nil, err
		}
		version = latest
		dlog.Infof(ctx, "resolved %s to version %s", name, version)
	}
	meta, err := c.GetVersion(ctx, name, version)
	if err != nil {
		return nil, err
	}
	dist, err := chooseDistribution(meta.Distributions, platform)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", name, version, err)
	}
	dlog.Infof(ctx, "downloading %s from %s", dist.Filename, dist.ExternalURL)
	return c.download(ctx, dist, outDir)
}

// chooseDistribution prefers an exact platform-tag match, then the
// universal tag, then any .island file.
func chooseDistribution(dists []api.DistributionInfo, platform string) (*api.DistributionInfo, error) {
	if len(dists) == 0 {
		return nil, errors.New("no distributions registered")
	}
	if platform != "" {
		for i := range dists {
			if dists[i].PlatformTag == platform {
				return &dists[i], nil
			}
		}
	}
	for i := range dists {
		if dists[i].PlatformTag == "py3-none-any" {
			return &dists[i], nil
		}
	}
	for i := range dists {
		if strings.HasSuffix(dists[i].Filename, island.Extension) {
			return &dists[i], nil
		}
	}
	return &dists[0], nil
}

func (c *Client) download(ctx context.Context, dist *api.DistributionInfo, outDir string) (*InstallResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dist.ExternalURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.downloadClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: unexpected status %s", dist.ExternalURL, resp.Status)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	outPath := filepath.Join(outDir, dist.Filename)
	file, err := os.Create(outPath)
	if err != nil {
		return nil, err
	}

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(file, hasher), resp.Body)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(outPath)
		return nil, err
	}

	actual := hex.EncodeToString(hasher.Sum(nil))
	if !strings.EqualFold(actual, dist.SHA256) {
		_ = os.Remove(outPath)
		return nil, fmt.Errorf("%s: %w: expected %s, got %s",
			dist.Filename, ErrChecksumMismatch, strings.ToLower(dist.SHA256), actual)
	}
	return &InstallResult{
		Path:     outPath,
		Filename: dist.Filename,
		Size:     size,
		SHA256:   actual,
	}, nil
}
