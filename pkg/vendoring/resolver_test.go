// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package vendoring_test

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/island/pkg/python/pep503"
	"github.com/datawire/island/pkg/vendoring"
)

// fakeWheel describes a synthetic distribution served by fakeDownloader.
type fakeWheel struct {
	Name     string
	Version  string
	Tag      string // "py3-none-any" etc.
	Requires []string
	// Files maps archive member path to content; dist-info is generated.
	Files map[string]string
	// TopLevel, if set, is written as dist-info/top_level.txt.
	TopLevel []string
}

func (w fakeWheel) filename() string {
	name := strings.ReplaceAll(w.Name, "-", "_")
	return fmt.Sprintf("%s-%s-%s.whl", name, w.Version, w.Tag)
}

func (w fakeWheel) write(t *testing.T, destDir string) {
	t.Helper()
	file, err := os.Create(filepath.Join(destDir, w.filename()))
	require.NoError(t, err)
	defer file.Close()

	zw := zip.NewWriter(file)
	writeMember := func(name, content string) {
		member, err := zw.Create(name)
		require.NoError(t, err)
		_, err = member.Write([]byte(content))
		require.NoError(t, err)
	}
	for path, content := range w.Files {
		writeMember(path, content)
	}
	distInfo := fmt.Sprintf("%s-%s.dist-info", strings.ReplaceAll(w.Name, "-", "_"), w.Version)
	metadata := fmt.Sprintf("Metadata-Version: 2.1\nName: %s\nVersion: %s\n", w.Name, w.Version)
	for _, req := range w.Requires {
		metadata += "Requires-Dist: " + req + "\n"
	}
	writeMember(distInfo+"/METADATA", metadata)
	if len(w.TopLevel) > 0 {
		writeMember(distInfo+"/top_level.txt", strings.Join(w.TopLevel, "\n")+"\n")
	}
	require.NoError(t, zw.Close())
}

// fakeDownloader serves fakeWheels by normalized requirement name.
type fakeDownloader struct {
	t      *testing.T
	wheels map[string]fakeWheel
	// calls records each Download invocation's requirement list.
	calls [][]string
}

func (d *fakeDownloader) Download(_ context.Context, requirements []string, destDir string) error {
	d.calls = append(d.calls, requirements)
	for _, req := range requirements {
		wheel, ok := d.wheels[pep503.ParseRequirementName(req)]
		if !ok {
			return fmt.Errorf("no distribution found for %q", req)
		}
		wheel.write(d.t, destDir)
	}
	return nil
}

func newFakeDownloader(t *testing.T, wheels ...fakeWheel) *fakeDownloader {
	t.Helper()
	d := &fakeDownloader{t: t, wheels: make(map[string]fakeWheel)}
	for _, wheel := range wheels {
		d.wheels[pep503.Normalize(wheel.Name)] = wheel
	}
	return d
}

func TestResolve(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)

	downloader := newFakeDownloader(t,
		fakeWheel{Name: "requests", Version: "2.31.0", Tag: "py3-none-any",
			Requires: []string{"urllib3 (<3,>=1.21.1)", "idna", "PySocks ; extra == 'socks'"}},
		fakeWheel{Name: "urllib3", Version: "2.1.0", Tag: "py3-none-any"},
		fakeWheel{Name: "idna", Version: "3.6", Tag: "py3-none-any"},
	)
	resolver := &vendoring.Resolver{Downloader: downloader}

	graph, err := resolver.Resolve(ctx, []string{"requests>=2.0"}, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, []string{"requests"}, graph.Roots)
	assert.Equal(t, []string{"idna", "requests", "urllib3"}, graph.Names())
	assert.Equal(t, []string{"urllib3", "idna"}, graph.Packages["requests"].Requires)
	assert.True(t, graph.IsPurePython())
	// Roots downloaded first, then the undownloaded dependency frontier.
	require.Len(t, downloader.calls, 2)
	assert.Equal(t, []string{"requests>=2.0"}, downloader.calls[0])
	assert.ElementsMatch(t, []string{"urllib3", "idna"}, downloader.calls[1])
}

func TestResolveFiltered(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)

	downloader := newFakeDownloader(t,
		fakeWheel{Name: "my-lib", Version: "1.0.0", Tag: "py3-none-any",
			Requires: []string{"pyyaml", "host-core", "secret-sauce"}},
		fakeWheel{Name: "pyyaml", Version: "6.0.1", Tag: "py3-none-any"},
		fakeWheel{Name: "secret-sauce", Version: "0.1.0", Tag: "py3-none-any"},
		fakeWheel{Name: "host-core", Version: "1.0.0", Tag: "py3-none-any",
			Requires: []string{"websockets"}},
		fakeWheel{Name: "websockets", Version: "12.0", Tag: "py3-none-any"},
	)
	resolver := &vendoring.Resolver{
		Downloader:      downloader,
		Exclude:         []string{"Secret_Sauce"},
		HostCorePackage: "host-core",
	}

	graph, err := resolver.ResolveFiltered(ctx, []string{"my-lib"}, t.TempDir())
	require.NoError(t, err)

	// host-core and its closure (websockets) are gone, as is the explicit
	// exclude; edges to them are dropped from survivors.
	assert.Equal(t, []string{"my-lib", "pyyaml"}, graph.Names())
	assert.Equal(t, []string{"pyyaml"}, graph.Packages["my-lib"].Requires)
}

func TestResolveDownloadFailure(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)

	resolver := &vendoring.Resolver{Downloader: newFakeDownloader(t)}
	_, err := resolver.Resolve(ctx, []string{"does-not-exist"}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does-not-exist")
}

func TestResolveEmpty(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)

	resolver := &vendoring.Resolver{Downloader: newFakeDownloader(t)}
	graph, err := resolver.Resolve(ctx, nil, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, graph.Packages)
}
