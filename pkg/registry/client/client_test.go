// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package client_test

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/island/pkg/registry/api"
	"github.com/datawire/island/pkg/registry/client"
)

// fakeRegistry serves canned version metadata and archive bytes.
type fakeRegistry struct {
	t *testing.T
	// archives maps origin path to content.
	archives map[string][]byte
	// versions maps "name/version" to metadata; "name" to a version
	// list.
	versions map[string]api.VersionInfo
	lists    map[string]api.VersionList

	server *httptest.Server
}

func newFakeRegistry(t *testing.T) *fakeRegistry {
	t.Helper()
	f := &fakeRegistry{
		t:        t,
		archives: make(map[string][]byte),
		versions: make(map[string]api.VersionInfo),
		lists:    make(map[string]api.VersionList),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/island/packages/{name}/versions", func(w http.ResponseWriter, r *http.Request) {
		f.reply(w, r.PathValue("name"), f.lists)
	})
	mux.HandleFunc("GET /v1/island/packages/{name}/{version}", func(w http.ResponseWriter, r *http.Request) {
		f.reply(w, r.PathValue("name")+"/"+r.PathValue("version"), f.versions)
	})
	mux.HandleFunc("GET /archives/{file}", func(w http.ResponseWriter, r *http.Request) {
		body, ok := f.archives[r.PathValue("file")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func reply[T any](t *testing.T, w http.ResponseWriter, key string, table map[string]T) {
	t.Helper()
	body, ok := table[key]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		envelope := api.ErrorEnvelope{Error: api.Errorf(api.CodePackageNotFound, "not found")}
		require.NoError(t, json.NewEncoder(w).Encode(envelope))
		return
	}
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func (f *fakeRegistry) reply(w http.ResponseWriter, key string, table interface{}) {
	switch table := table.(type) {
	case map[string]api.VersionInfo:
		reply(f.t, w, key, table)
	case map[string]api.VersionList:
		reply(f.t, w, key, table)
	}
}

// serve publishes body as an archive and returns its DistributionInfo.
func (f *fakeRegistry) serve(filename string, body []byte, platformTag string) api.DistributionInfo {
	f.archives[filename] = body
	sum := sha256.Sum256(body)
	return api.DistributionInfo{
		Filename:    filename,
		SHA256:      hex.EncodeToString(sum[:]),
		Size:        int64(len(body)),
		PlatformTag: platformTag,
		ExternalURL: f.server.URL + "/archives/" + filename,
		URLStatus:   "active",
	}
}

func TestInstall(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	f := newFakeRegistry(t)

	body := []byte("the archive bytes")
	dist := f.serve("sample_game-1.0.0-py3-none-any.island", body, "py3-none-any")
	f.versions["sample-game/1.0.0"] = api.VersionInfo{
		Version:       "1.0.0",
		PublishedAt:   time.Now(),
		Distributions: []api.DistributionInfo{dist},
	}

	c := &client.Client{BaseURL: f.server.URL}
	outDir := t.TempDir()
	result, err := c.Install(ctx, "sample-game", "1.0.0", "", outDir)
	require.NoError(t, err)

	assert.Equal(t, "sample_game-1.0.0-py3-none-any.island", result.Filename)
	assert.Equal(t, int64(len(body)), result.Size)
	assert.Equal(t, dist.SHA256, result.SHA256)
	written, err := os.ReadFile(filepath.Join(outDir, result.Filename))
	require.NoError(t, err)
	assert.Equal(t, body, written)
}

func TestInstallLatest(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	f := newFakeRegistry(t)

	body := []byte("v2 bytes")
	dist := f.serve("sample_game-2.0.0-py3-none-any.island", body, "py3-none-any")
	f.lists["sample-game"] = api.VersionList{
		PackageName: "sample-game",
		Versions:    []api.VersionInfo{{Version: "2.0.0"}, {Version: "1.0.0"}},
		Total:       2,
	}
	f.versions["sample-game/2.0.0"] = api.VersionInfo{
		Version:       "2.0.0",
		Distributions: []api.DistributionInfo{dist},
	}

	c := &client.Client{BaseURL: f.server.URL}
	result, err := c.Install(ctx, "sample-game", "", "", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "sample_game-2.0.0-py3-none-any.island", result.Filename)
}

func TestInstallPlatformChoice(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	f := newFakeRegistry(t)

	universal := f.serve("g-1.0.0-py3-none-any.island", []byte("universal"), "py3-none-any")
	windows := f.serve("g-1.0.0-cp311-cp311-win_amd64.island", []byte("windows"), "cp311-cp311-win_amd64")
	f.versions["g/1.0.0"] = api.VersionInfo{
		Version:       "1.0.0",
		Distributions: []api.DistributionInfo{universal, windows},
	}

	c := &client.Client{BaseURL: f.server.URL}

	// Exact platform match preferred.
	result, err := c.Install(ctx, "g", "1.0.0", "cp311-cp311-win_amd64", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, windows.Filename, result.Filename)

	// No platform given: the universal build.
	result, err = c.Install(ctx, "g", "1.0.0", "", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, universal.Filename, result.Filename)

	// Unmatched platform falls back to universal.
	result, err = c.Install(ctx, "g", "1.0.0", "cp311-cp311-manylinux_2_17_x86_64", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, universal.Filename, result.Filename)
}

func TestInstallChecksumMismatch(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	f := newFakeRegistry(t)

	dist := f.serve("sample_game-1.0.0-py3-none-any.island", []byte("actual bytes"), "py3-none-any")
	dist.SHA256 = strings.Repeat("00", 32)
	f.versions["sample-game/1.0.0"] = api.VersionInfo{
		Version:       "1.0.0",
		Distributions: []api.DistributionInfo{dist},
	}

	c := &client.Client{BaseURL: f.server.URL}
	outDir := t.TempDir()
	_, err := c.Install(ctx, "sample-game", "1.0.0", "", outDir)
	require.ErrorIs(t, err, client.ErrChecksumMismatch)

	// The partial file was removed.
	assert.NoFileExists(t, filepath.Join(outDir, dist.Filename))
}

func TestInstallChecksumCaseInsensitive(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	f := newFakeRegistry(t)

	dist := f.serve("sample_game-1.0.0-py3-none-any.island", []byte("bytes"), "py3-none-any")
	dist.SHA256 = strings.ToUpper(dist.SHA256)
	f.versions["sample-game/1.0.0"] = api.VersionInfo{
		Version:       "1.0.0",
		Distributions: []api.DistributionInfo{dist},
	}

	c := &client.Client{BaseURL: f.server.URL}
	_, err := c.Install(ctx, "sample-game", "1.0.0", "", t.TempDir())
	require.NoError(t, err)
}

func TestInstallNotFound(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	f := newFakeRegistry(t)

	c := &client.Client{BaseURL: f.server.URL}
	_, err := c.Install(ctx, "nope", "1.0.0", "", t.TempDir())
	require.Error(t, err)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.CodePackageNotFound, apiErr.Code)
}
