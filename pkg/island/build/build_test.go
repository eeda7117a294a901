// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package build_test

import (
	"archive/zip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/island/pkg/island/build"
	"github.com/datawire/island/pkg/python"
	"github.com/datawire/island/pkg/python/pep425"
	"github.com/datawire/island/pkg/testutil"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for relPath, content := range files {
		fullPath := filepath.Join(root, filepath.FromSlash(relPath))
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0o755))
		require.NoError(t, os.WriteFile(fullPath, []byte(content), 0o644))
	}
}

func testConfig(sourceDir string) build.Config {
	return build.Config{
		Name:              "My-Game",
		Version:           "1.2.3",
		GameName:          "My Game",
		SourceDir:         sourceDir,
		Description:       "A test world",
		Authors:           []string{"Someone <someone@example.com>"},
		SchemaVersion:     7,
		CompatibleVersion: 7,
	}
}

func testEntryPoints() map[string]map[string]string {
	return map[string]map[string]string{
		"ap-island": {"my_game": "my_game.world:MyGameWorld"},
	}
}

func readArchive(t *testing.T, path string) (names []string, contents map[string][]byte) {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	contents = make(map[string][]byte)
	for _, zf := range zr.File {
		names = append(names, zf.Name)
		rc, err := zf.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		require.NoError(t, err)
		contents[zf.Name] = data
	}
	return names, contents
}

func TestBuild(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)

	sourceDir := t.TempDir()
	writeTree(t, sourceDir, map[string]string{
		"__init__.py":          "from .world import MyGameWorld\n",
		"world.py":             "class MyGameWorld: pass\n",
		"data/items.json":      `{"items": []}`,
		"__pycache__/w.pyc":    "junk",
		".git/config":          "junk",
		"notes/scratch.secret": "junk",
	})

	cfg := testConfig(sourceDir)
	cfg.Exclude = []string{"*.secret"}

	result, err := build.Build(ctx, cfg, build.Options{
		OutputDir:   t.TempDir(),
		EntryPoints: testEntryPoints(),
	})
	require.NoError(t, err)

	assert.Equal(t, "my_game-1.2.3-py3-none-any.island", result.Filename)
	assert.True(t, result.IsPurePython)
	assert.Equal(t, pep425.Universal(), result.PlatformTag)
	assert.Positive(t, result.Size)

	names, contents := readArchive(t, result.Path)
	assert.Equal(t, []string{
		"my_game/__init__.py",
		"my_game/data/items.json",
		"my_game/world.py",
		"my_game-1.2.3.dist-info/WHEEL",
		"my_game-1.2.3.dist-info/METADATA",
		"my_game-1.2.3.dist-info/entry_points.txt",
		"my_game-1.2.3.dist-info/island.json",
		"my_game-1.2.3.dist-info/RECORD",
	}, names)

	wheel := string(contents["my_game-1.2.3.dist-info/WHEEL"])
	assert.Equal(t,
		"Wheel-Version: 1.0\n"+
			"Generator: island-build\n"+
			"Root-Is-Purelib: true\n"+
			"Tag: py3-none-any\n",
		wheel)

	metadata := string(contents["my_game-1.2.3.dist-info/METADATA"])
	assert.Contains(t, metadata, "Name: My-Game\n")
	assert.Contains(t, metadata, "Version: 1.2.3\n")
	assert.NotContains(t, metadata, "Requires-Dist")

	entryPoints := string(contents["my_game-1.2.3.dist-info/entry_points.txt"])
	assert.Contains(t, entryPoints, "[ap-island]\n")
	assert.Contains(t, entryPoints, "my_game = my_game.world:MyGameWorld\n")

	var mf map[string]interface{}
	require.NoError(t, json.Unmarshal(contents["my_game-1.2.3.dist-info/island.json"], &mf))
	assert.Equal(t, "My Game", mf["game"])
	assert.Equal(t, float64(7), mf["version"])
	assert.Equal(t, "1.2.3", mf["world_version"])
	assert.Equal(t, true, mf["pure_python"])
}

func TestBuildRecord(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)

	sourceDir := t.TempDir()
	writeTree(t, sourceDir, map[string]string{
		"__init__.py": "print('hello')\n",
	})

	result, err := build.Build(ctx, testConfig(sourceDir), build.Options{
		OutputDir:   t.TempDir(),
		EntryPoints: testEntryPoints(),
	})
	require.NoError(t, err)

	_, contents := readArchive(t, result.Path)
	recordPath := "my_game-1.2.3.dist-info/RECORD"
	record := string(contents[recordPath])
	lines := strings.Split(strings.TrimRight(record, "\n"), "\n")

	// Every archive member appears; RECORD itself is last with empty hash
	// and size.
	require.Len(t, lines, len(contents))
	assert.Equal(t, recordPath+",,", lines[len(lines)-1])
	for _, line := range lines[:len(lines)-1] {
		parts := strings.Split(line, ",")
		require.Len(t, parts, 3)
		expected := python.RecordSHA256(contents[parts[0]])
		assert.Equal(t, expected, parts[1])
	}
}

func TestBuildDeterministic(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)

	sourceDir := t.TempDir()
	writeTree(t, sourceDir, map[string]string{
		"__init__.py": "x = 1\n",
		"world.py":    "y = 2\n",
	})
	cfg := testConfig(sourceDir)

	build1, err := build.Build(ctx, cfg, build.Options{
		OutputDir:   t.TempDir(),
		EntryPoints: testEntryPoints(),
	})
	require.NoError(t, err)
	build2, err := build.Build(ctx, cfg, build.Options{
		OutputDir:   t.TempDir(),
		EntryPoints: testEntryPoints(),
	})
	require.NoError(t, err)

	testutil.AssertEqualArchives(t, build1.Path, build2.Path)

	bytes1, err := os.ReadFile(build1.Path)
	require.NoError(t, err)
	bytes2, err := os.ReadFile(build2.Path)
	require.NoError(t, err)
	assert.Equal(t, bytes1, bytes2)
}

func TestBuildWithVendor(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)

	sourceDir := t.TempDir()
	writeTree(t, sourceDir, map[string]string{
		"__init__.py": "\n",
	})
	vendorDir := t.TempDir()
	writeTree(t, vendorDir, map[string]string{
		"__init__.py":         "\n",
		"yaml/__init__.py":    "\n",
		"vendor_manifest.json": `{
			"vendored_packages": {"pyyaml": {"version": "6.0.1", "modules": ["yaml"]}},
			"dependency_graph": {"pyyaml": []},
			"root_dependencies": ["pyyaml"],
			"is_pure_python": true,
			"effective_platform_tag": "py3-none-any"
		}`,
	})

	result, err := build.Build(ctx, testConfig(sourceDir), build.Options{
		OutputDir:   t.TempDir(),
		VendorDir:   vendorDir,
		EntryPoints: testEntryPoints(),
	})
	require.NoError(t, err)
	assert.True(t, result.IsPurePython)

	names, contents := readArchive(t, result.Path)
	assert.Contains(t, names, "my_game/_vendor/yaml/__init__.py")
	assert.NotContains(t, names, "my_game/_vendor/vendor_manifest.json")

	var mf map[string]interface{}
	require.NoError(t, json.Unmarshal(contents["my_game-1.2.3.dist-info/island.json"], &mf))
	vendored, ok := mf["vendored_dependencies"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, vendored, "vendored_packages")
	assert.Equal(t, []interface{}{"pyyaml"}, vendored["root_dependencies"])
}

func TestBuildRewritesSourceImports(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)

	sourceDir := t.TempDir()
	writeTree(t, sourceDir, map[string]string{
		"__init__.py": "import yaml\n",
		"world.py":    "from yaml import safe_load\nimport os\n",
	})
	vendorDir := t.TempDir()
	writeTree(t, vendorDir, map[string]string{
		"__init__.py":      "\n",
		"yaml/__init__.py": "import os\n",
		"vendor_manifest.json": `{
			"vendored_packages": {"pyyaml": {"version": "6.0.1", "modules": ["yaml"]}},
			"dependency_graph": {"pyyaml": []},
			"root_dependencies": ["pyyaml"],
			"is_pure_python": true,
			"effective_platform_tag": "py3-none-any"
		}`,
	})

	result, err := build.Build(ctx, testConfig(sourceDir), build.Options{
		OutputDir:   t.TempDir(),
		VendorDir:   vendorDir,
		EntryPoints: testEntryPoints(),
	})
	require.NoError(t, err)

	_, contents := readArchive(t, result.Path)
	assert.Equal(t, "from my_game._vendor import yaml\n",
		string(contents["my_game/__init__.py"]))
	assert.Equal(t, "from my_game._vendor.yaml import safe_load\nimport os\n",
		string(contents["my_game/world.py"]))
	// The vendor tree itself is embedded as-is; it was already rewritten
	// when it was vendored.
	assert.Equal(t, "import os\n", string(contents["my_game/_vendor/yaml/__init__.py"]))
}

func TestBuildRewritesSourceWithoutManifest(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)

	sourceDir := t.TempDir()
	writeTree(t, sourceDir, map[string]string{
		"__init__.py": "import yaml\n",
	})
	// A hand-assembled vendor dir with no vendor_manifest.json: the
	// module set comes from the tree itself.
	vendorDir := t.TempDir()
	writeTree(t, vendorDir, map[string]string{
		"__init__.py":      "\n",
		"yaml/__init__.py": "\n",
		"six.py":           "\n",
	})

	result, err := build.Build(ctx, testConfig(sourceDir), build.Options{
		OutputDir:   t.TempDir(),
		VendorDir:   vendorDir,
		EntryPoints: testEntryPoints(),
	})
	require.NoError(t, err)

	_, contents := readArchive(t, result.Path)
	assert.Equal(t, "from my_game._vendor import yaml\n",
		string(contents["my_game/__init__.py"]))
}

func TestBuildNativeVendor(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)

	sourceDir := t.TempDir()
	writeTree(t, sourceDir, map[string]string{"__init__.py": "\n"})
	vendorDir := t.TempDir()
	writeTree(t, vendorDir, map[string]string{
		"_yaml/_yaml.so": "\x7fELF",
		"vendor_manifest.json": `{
			"is_pure_python": false,
			"effective_platform_tag": "cp311-cp311-manylinux_2_17_x86_64"
		}`,
	})

	result, err := build.Build(ctx, testConfig(sourceDir), build.Options{
		OutputDir:   t.TempDir(),
		VendorDir:   vendorDir,
		EntryPoints: testEntryPoints(),
	})
	require.NoError(t, err)
	assert.False(t, result.IsPurePython)
	assert.Equal(t, "cp311-cp311-manylinux_2_17_x86_64", result.PlatformTag.String())
	assert.Equal(t, "my_game-1.2.3-cp311-cp311-manylinux_2_17_x86_64.island", result.Filename)

	_, contents := readArchive(t, result.Path)
	wheel := string(contents["my_game-1.2.3.dist-info/WHEEL"])
	assert.Contains(t, wheel, "Root-Is-Purelib: false\n")
	assert.Contains(t, wheel, "Tag: cp311-cp311-manylinux_2_17_x86_64\n")
}

func TestBuildExplicitTag(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)

	sourceDir := t.TempDir()
	writeTree(t, sourceDir, map[string]string{"__init__.py": "\n"})

	tag := pep425.Tag{Python: "cp311", ABI: "abi3", Platform: "win_amd64"}
	result, err := build.Build(ctx, testConfig(sourceDir), build.Options{
		OutputDir:   t.TempDir(),
		PlatformTag: &tag,
		EntryPoints: testEntryPoints(),
	})
	require.NoError(t, err)
	assert.Equal(t, tag, result.PlatformTag)
}

func TestBuildMissingSource(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)

	cfg := testConfig(filepath.Join(t.TempDir(), "does-not-exist"))
	_, err := build.Build(ctx, cfg, build.Options{OutputDir: t.TempDir()})
	assert.Error(t, err)
}

func TestBuildEmptySourceSet(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)

	// Every source file excluded; the archive still carries its dist-info.
	sourceDir := t.TempDir()
	writeTree(t, sourceDir, map[string]string{"junk.pyc": "junk"})

	result, err := build.Build(ctx, testConfig(sourceDir), build.Options{
		OutputDir:   t.TempDir(),
		EntryPoints: testEntryPoints(),
	})
	require.NoError(t, err)
	names, _ := readArchive(t, result.Path)
	assert.Equal(t, []string{
		"my_game-1.2.3.dist-info/WHEEL",
		"my_game-1.2.3.dist-info/METADATA",
		"my_game-1.2.3.dist-info/entry_points.txt",
		"my_game-1.2.3.dist-info/island.json",
		"my_game-1.2.3.dist-info/RECORD",
	}, names)
}

func TestValidateEntryPoints(t *testing.T) {
	t.Parallel()
	assert.NoError(t, build.ValidateEntryPoints(testEntryPoints()))
	assert.Error(t, build.ValidateEntryPoints(nil))
	assert.Error(t, build.ValidateEntryPoints(map[string]map[string]string{
		"console_scripts": {"x": "a.b:c"},
	}))
	assert.Error(t, build.ValidateEntryPoints(map[string]map[string]string{
		"ap-island": {"x": "not a path"},
	}))
}
