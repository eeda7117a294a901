// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package build assembles .island binary distributions.
//
// An .island file is a ZIP in the style of a PEP 427 wheel: the package
// source (plus optionally a vendored-dependency subtree) under a top-level
// directory named for the package, and a dist-info directory with WHEEL,
// METADATA, entry_points.txt, the island.json manifest, and a RECORD of
// SHA-256 checksums.  Entries are written in a fixed sorted order and with a
// fixed timestamp, so rebuilding the same inputs yields a byte-identical
// archive.
package build

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/datawire/dlib/dlog"
	"github.com/gobwas/glob"

	"github.com/datawire/island/pkg/island"
	"github.com/datawire/island/pkg/island/manifest"
	"github.com/datawire/island/pkg/python/pep425"
	"github.com/datawire/island/pkg/reproducible"
	"github.com/datawire/island/pkg/vendoring/rewrite"
)

// Config is the package metadata and file-selection configuration for a
// build, typically loaded from an island.yaml.
type Config struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	GameName string `json:"game_name"`

	SourceDir string `json:"source_dir,omitempty"`

	Description string   `json:"description,omitempty"`
	Authors     []string `json:"authors,omitempty"`
	License     string   `json:"license,omitempty"`
	Homepage    string   `json:"homepage,omitempty"`
	Repository  string   `json:"repository,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`

	Dependencies     []string `json:"dependencies,omitempty"`
	MinimumAPVersion string   `json:"minimum_ap_version,omitempty"`
	MaximumAPVersion string   `json:"maximum_ap_version,omitempty"`
	Platforms        []string `json:"platforms,omitempty"`

	SchemaVersion     int `json:"schema_version,omitempty"`
	CompatibleVersion int `json:"compatible_version,omitempty"`

	Include       []string `json:"include,omitempty"`
	Exclude       []string `json:"exclude,omitempty"`
	VendorExclude []string `json:"vendor_exclude,omitempty"`
}

// Options are the per-invocation arguments to Build, as opposed to the
// package metadata in Config.
type Options struct {
	// OutputDir is where the .island file is written.
	OutputDir string
	// VendorDir, if set, is a tree of already-vendored dependencies to
	// embed under {name}/_vendor/.
	VendorDir string
	// VendorInfo is the vendor-manifest JSON to embed verbatim under the
	// manifest's vendored_dependencies key.  If empty, Build looks for
	// vendor_manifest.json in VendorDir.
	VendorInfo json.RawMessage
	// PlatformTag overrides tag auto-detection.
	PlatformTag *pep425.Tag
	// EntryPoints maps group name to entry name to "module:attr".
	EntryPoints map[string]map[string]string
}

// Result describes a successfully built archive.
type Result struct {
	Path     string
	Filename string
	// Files lists the archive member paths, in archive order.
	Files        []string
	Manifest     *manifest.Manifest
	Size         int64
	IsPurePython bool
	PlatformTag  pep425.Tag
}

// VendorManifestFilename is the conventional name of the vendor-manifest
// file inside a vendor directory.
const VendorManifestFilename = "vendor_manifest.json"

// nativeExtensions are the file suffixes that mark a tree as containing
// native code.
//
//nolint:gochecknoglobals // Would be 'const'.
var nativeExtensions = map[string]struct{}{
	".so":    {},
	".dylib": {},
	".dll":   {},
	".pyd":   {},
}

// DefaultExcludes are always applied on top of Config.Exclude.
//
//nolint:gochecknoglobals // Would be 'const'.
var DefaultExcludes = []string{
	"__pycache__",
	"*.pyc",
	"*.pyo",
	".git",
	".gitignore",
	".hg",
	".svn",
	".tox",
	".nox",
	".pytest_cache",
	".mypy_cache",
	".ruff_cache",
	".DS_Store",
	"*.egg-info",
}

// Build assembles the .island archive described by cfg and opts.
func Build(ctx context.Context, cfg Config, opts Options) (*Result, error) {
	if cfg.SourceDir == "" {
		return nil, fmt.Errorf("build: no source directory configured")
	}
	if _, err := os.Stat(cfg.SourceDir); err != nil {
		return nil, fmt.Errorf("build: source directory: %w", err)
	}

	normName, err := island.NormalizeName(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	normVersion, err := island.NormalizeVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}

	excluder, err := compileGlobs(append(append([]string{}, DefaultExcludes...), cfg.Exclude...))
	if err != nil {
		return nil, fmt.Errorf("build: exclude patterns: %w", err)
	}
	includer, err := compileGlobs(cfg.Include)
	if err != nil {
		return nil, fmt.Errorf("build: include patterns: %w", err)
	}

	sourceFiles, err := collectFiles(cfg.SourceDir, excluder, includer)
	if err != nil {
		return nil, fmt.Errorf("build: collect source files: %w", err)
	}
	var vendorFiles []string
	if opts.VendorDir != "" {
		if _, err := os.Stat(opts.VendorDir); err == nil {
			vendorFiles, err = collectFiles(opts.VendorDir, excluder, nil)
			if err != nil {
				return nil, fmt.Errorf("build: collect vendor files: %w", err)
			}
		}
	}

	vendorInfo := opts.VendorInfo
	if len(vendorInfo) == 0 && opts.VendorDir != "" {
		if data, err := os.ReadFile(filepath.Join(opts.VendorDir, VendorManifestFilename)); err == nil {
			vendorInfo = data
		}
	}

	isPure, tag := resolvePlatform(cfg.SourceDir, opts.VendorDir, vendorInfo, opts.PlatformTag)

	// When dependencies are embedded they live under the vendor
	// namespace, so the package's own imports of them must be rewritten
	// the same way the vendor tree's already were.
	var rewriteOpts *rewrite.Options
	if vendored := vendoredModules(vendorInfo, opts.VendorDir); len(vendored) > 0 {
		rewriteOpts = &rewrite.Options{
			VendoredModules: vendored,
			Namespace:       normName + "._vendor",
		}
	}

	filename, err := island.BuildFilename(cfg.Name, cfg.Version, tag)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	mf := buildManifest(cfg, opts.EntryPoints, vendorInfo, isPure)

	dlog.Infof(ctx, "building %s (%d source files, %d vendored files)",
		filename, len(sourceFiles), len(vendorFiles))

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	archivePath := filepath.Join(opts.OutputDir, filename)
	ret, err := writeArchive(ctx, archivePath, archiveLayout{
		normName:    normName,
		normVersion: normVersion,
		sourceDir:   cfg.SourceDir,
		sourceFiles: sourceFiles,
		vendorDir:   opts.VendorDir,
		vendorFiles: vendorFiles,
		cfg:         cfg,
		manifest:    mf,
		entryPoints: opts.EntryPoints,
		tag:         tag,
		isPure:      isPure,
		rewriteOpts: rewriteOpts,
	})
	if err != nil {
		_ = os.Remove(archivePath)
		return nil, err
	}
	ret.Path = archivePath
	ret.Filename = filename
	ret.Manifest = mf
	ret.IsPurePython = isPure
	ret.PlatformTag = tag
	return ret, nil
}

type archiveLayout struct {
	normName    string
	normVersion string
	sourceDir   string
	sourceFiles []string
	vendorDir   string
	vendorFiles []string
	cfg         Config
	manifest    *manifest.Manifest
	entryPoints map[string]map[string]string
	tag         pep425.Tag
	isPure      bool
	// rewriteOpts, when non-nil, has source imports of vendored modules
	// redirected into the vendor namespace as files are archived.
	rewriteOpts *rewrite.Options
}

func writeArchive(ctx context.Context, archivePath string, layout archiveLayout) (*Result, error) {
	file, err := os.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	defer file.Close()

	zw := zip.NewWriter(file)
	ret := &Result{}
	rec := &record{}

	writeEntry := func(arcname string, content []byte) error {
		header := &zip.FileHeader{
			Name:     arcname,
			Method:   zip.Deflate,
			Modified: reproducible.Now(),
		}
		header.SetMode(0o644)
		w, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("build: write %s: %w", arcname, err)
		}
		if _, err := w.Write(content); err != nil {
			return fmt.Errorf("build: write %s: %w", arcname, err)
		}
		ret.Files = append(ret.Files, arcname)
		return nil
	}
	writeHashedEntry := func(arcname string, content []byte) error {
		if err := writeEntry(arcname, content); err != nil {
			return err
		}
		rec.Add(arcname, content)
		return nil
	}
	writeDiskFile := func(dir, relPath, arcname string) error {
		content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(relPath)))
		if err != nil {
			return fmt.Errorf("build: %w", err)
		}
		return writeHashedEntry(arcname, content)
	}

	for _, relPath := range layout.sourceFiles {
		content, err := os.ReadFile(filepath.Join(layout.sourceDir, filepath.FromSlash(relPath)))
		if err != nil {
			return nil, fmt.Errorf("build: %w", err)
		}
		if layout.rewriteOpts != nil && strings.HasSuffix(relPath, ".py") {
			content, _, err = rewrite.Source(ctx, content, *layout.rewriteOpts)
			if err != nil {
				return nil, fmt.Errorf("build: rewrite %s: %w", relPath, err)
			}
		}
		if err := writeHashedEntry(layout.normName+"/"+relPath, content); err != nil {
			return nil, err
		}
	}
	for _, relPath := range layout.vendorFiles {
		if relPath == VendorManifestFilename {
			// Embedded in island.json instead.
			continue
		}
		if err := writeDiskFile(layout.vendorDir, relPath, layout.normName+"/_vendor/"+relPath); err != nil {
			return nil, err
		}
	}

	distInfo := layout.normName + "-" + layout.normVersion + ".dist-info"

	if err := writeHashedEntry(distInfo+"/WHEEL", []byte(wheelFile(layout.tag, layout.isPure))); err != nil {
		return nil, err
	}
	if err := writeHashedEntry(distInfo+"/METADATA", []byte(metadataFile(layout.cfg))); err != nil {
		return nil, err
	}
	if eps := entryPointsFile(layout.entryPoints); eps != "" {
		if err := writeHashedEntry(distInfo+"/entry_points.txt", []byte(eps)); err != nil {
			return nil, err
		}
	}
	manifestJSON, err := json.MarshalIndent(layout.manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("build: marshal island.json: %w", err)
	}
	if err := writeHashedEntry(distInfo+"/island.json", manifestJSON); err != nil {
		return nil, err
	}
	recordPath := distInfo + "/RECORD"
	if err := writeEntry(recordPath, []byte(rec.Render(recordPath))); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	ret.Size = info.Size()
	dlog.Debugf(ctx, "wrote %s (%d bytes, %d entries)", archivePath, ret.Size, len(ret.Files))
	return ret, nil
}

// buildManifest assembles the island.json contents from the build config.
func buildManifest(
	cfg Config,
	entryPoints map[string]map[string]string,
	vendorInfo json.RawMessage,
	isPure bool,
) *manifest.Manifest {
	mf := &manifest.Manifest{
		Game:                 cfg.GameName,
		Version:              cfg.SchemaVersion,
		CompatibleVersion:    cfg.CompatibleVersion,
		EntryPoints:          entryPoints,
		WorldVersion:         cfg.Version,
		MinimumAPVersion:     cfg.MinimumAPVersion,
		MaximumAPVersion:     cfg.MaximumAPVersion,
		Authors:              cfg.Authors,
		Description:          cfg.Description,
		License:              cfg.License,
		Homepage:             cfg.Homepage,
		Repository:           cfg.Repository,
		Keywords:             cfg.Keywords,
		Platforms:            cfg.Platforms,
		PurePython:           &isPure,
		VendoredDependencies: vendorInfo,
	}
	mf.ApplyDefaults()
	return mf
}

// vendoredModules is the set of top-level modules the vendor tree
// provides, from the vendor manifest when present, otherwise from the
// tree itself.
func vendoredModules(vendorInfo json.RawMessage, vendorDir string) map[string]struct{} {
	ret := make(map[string]struct{})
	if len(vendorInfo) > 0 {
		var info struct {
			VendoredPackages map[string]struct {
				Modules []string `json:"modules"`
			} `json:"vendored_packages"`
		}
		if err := json.Unmarshal(vendorInfo, &info); err == nil {
			for _, pkg := range info.VendoredPackages {
				for _, module := range pkg.Modules {
					ret[module] = struct{}{}
				}
			}
		}
	}
	if len(ret) > 0 || vendorDir == "" {
		return ret
	}
	entries, err := os.ReadDir(vendorDir)
	if err != nil {
		return ret
	}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir():
			ret[name] = struct{}{}
		case name != "__init__.py" && strings.HasSuffix(name, ".py"):
			ret[strings.TrimSuffix(name, ".py")] = struct{}{}
		}
	}
	return ret
}

// resolvePlatform decides whether the archive is pure Python and what tag it
// carries: an explicit tag always wins; otherwise a non-pure vendor tree
// passes its effective tag down; otherwise the package is universal (or, if
// its own source carries native code, tagged for the build host).
func resolvePlatform(
	sourceDir, vendorDir string,
	vendorInfo json.RawMessage,
	explicit *pep425.Tag,
) (isPure bool, tag pep425.Tag) {
	hasNative := hasNativeExtensions(sourceDir)
	if vendorDir != "" {
		hasNative = hasNative || hasNativeExtensions(vendorDir)
	}

	vendorPure := true
	var vendorTag pep425.Tag
	if len(vendorInfo) > 0 {
		var info struct {
			IsPurePython         *bool  `json:"is_pure_python"`
			EffectivePlatformTag string `json:"effective_platform_tag"`
		}
		if err := json.Unmarshal(vendorInfo, &info); err == nil {
			if info.IsPurePython != nil {
				vendorPure = *info.IsPurePython
			}
			if parsed, err := pep425.ParseTag(info.EffectivePlatformTag); err == nil {
				vendorTag = parsed
			}
		}
	}

	isPure = !hasNative && vendorPure

	switch {
	case explicit != nil:
		tag = *explicit
	case isPure:
		tag = pep425.Universal()
	case vendorTag != (pep425.Tag{}) && !vendorTag.IsPure():
		tag = vendorTag
	default:
		tag = hostPlatformTag()
	}
	return isPure, tag
}

// hasNativeExtensions walks dir looking for compiled-extension suffixes.
func hasNativeExtensions(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil //nolint:nilerr // A vanished file is not native code.
		}
		if _, ok := nativeExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	return found
}

// hostPlatformTag tags a native build for the machine doing the building,
// for when no vendor tag is available to inherit.
func hostPlatformTag() pep425.Tag {
	var plat string
	switch runtime.GOOS {
	case "windows":
		switch runtime.GOARCH {
		case "amd64":
			plat = "win_amd64"
		case "arm64":
			plat = "win_arm64"
		default:
			plat = "win_" + runtime.GOARCH
		}
	case "darwin":
		if runtime.GOARCH == "arm64" {
			plat = "macosx_11_0_arm64"
		} else {
			plat = "macosx_11_0_x86_64"
		}
	case "linux":
		switch runtime.GOARCH {
		case "amd64":
			plat = "manylinux_2_17_x86_64"
		case "arm64":
			plat = "manylinux_2_17_aarch64"
		default:
			plat = "linux_" + runtime.GOARCH
		}
	default:
		plat = runtime.GOOS + "_" + runtime.GOARCH
	}
	return pep425.Tag{Python: "py3", ABI: "none", Platform: plat}
}

// matcher is a compiled glob set.
type matcher []glob.Glob

func compileGlobs(patterns []string) (matcher, error) {
	ret := make(matcher, 0, len(patterns))
	for _, pattern := range patterns {
		compiled, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		ret = append(ret, compiled)
	}
	return ret, nil
}

func (m matcher) Match(str string) bool {
	for _, compiled := range m {
		if compiled.Match(str) {
			return true
		}
	}
	return false
}

// collectFiles walks dir and returns the sorted slash-separated relative
// paths that survive exclusion.  Exclude patterns are applied to the relative
// path and to every individual path segment; a directory whose name matches
// is not descended into.  If include is non-empty, a file must additionally
// match one of its patterns.
func collectFiles(dir string, exclude, include matcher) ([]string, error) {
	var ret []string
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)
		if exclude.Match(relPath) || exclude.Match(entry.Name()) {
			if entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		if len(include) > 0 && !include.Match(relPath) && !include.Match(entry.Name()) {
			return nil
		}
		ret = append(ret, relPath)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ret)
	return ret, nil
}
