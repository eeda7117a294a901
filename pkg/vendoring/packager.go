// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package vendoring

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/datawire/dlib/dlog"
	"golang.org/x/sync/errgroup"

	"github.com/datawire/island/pkg/python/pep425"
	"github.com/datawire/island/pkg/vendoring/rewrite"
)

// ManifestFilename is the vendor-manifest file written into the vendor
// directory.
const ManifestFilename = "vendor_manifest.json"

// VendoredPackage records one distribution that was copied into the vendor
// tree.
type VendoredPackage struct {
	Name    string
	Version string
	// Modules are the top-level Python module names the distribution
	// provides.
	Modules []string
}

// Result is what Vendor produced.
type Result struct {
	Graph        *Graph
	Packages     []VendoredPackage
	IsPurePython bool
	EffectiveTag pep425.Tag
	RewriteStats rewrite.Stats
}

// Packager drives the whole vendoring pipeline: resolve, unpack, copy,
// rewrite, and emit the vendor manifest.
type Packager struct {
	Resolver *Resolver
	// OwnerPackage is the normalized name of the package the dependencies
	// are vendored into; rewrites target "{OwnerPackage}._vendor".
	OwnerPackage string
}

// Vendor resolves requirements and materializes them under targetDir.
func (p *Packager) Vendor(ctx context.Context, requirements []string, targetDir string) (*Result, error) {
	scratchDir, err := os.MkdirTemp("", "island-vendor-")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = os.RemoveAll(scratchDir)
	}()

	graph, err := p.Resolver.ResolveFiltered(ctx, requirements, scratchDir)
	if err != nil {
		return nil, err
	}
	if err := graph.CheckPlatformCompatibility(); err != nil {
		return nil, fmt.Errorf("vendor: %w", err)
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, err
	}

	ret := &Result{Graph: graph}
	for _, name := range graph.Topological() {
		dep := graph.Packages[name]
		modules, err := p.installPackage(ctx, dep, scratchDir, targetDir)
		if err != nil {
			return nil, &ChainError{
				Package: name,
				Chain:   graph.DependencyChain(name),
				Err:     err,
			}
		}
		ret.Packages = append(ret.Packages, VendoredPackage{
			Name:    dep.Name,
			Version: dep.Version,
			Modules: modules,
		})
	}

	if err := p.writeVendorInit(targetDir); err != nil {
		return nil, err
	}

	vendored := make(map[string]struct{})
	for _, pkg := range ret.Packages {
		for _, module := range pkg.Modules {
			vendored[module] = struct{}{}
		}
	}
	hostModules := make(map[string]struct{})
	for _, module := range p.Resolver.HostModules {
		hostModules[module] = struct{}{}
	}
	ret.RewriteStats, err = RewriteTree(ctx, targetDir, rewrite.Options{
		VendoredModules: vendored,
		Namespace:       p.OwnerPackage + "._vendor",
		HostModules:     hostModules,
	})
	if err != nil {
		return nil, err
	}

	ret.IsPurePython = graph.IsPurePython()
	ret.EffectiveTag = graph.MostRestrictiveTag()

	manifestPath := filepath.Join(targetDir, ManifestFilename)
	if err := writeVendorManifest(manifestPath, ret); err != nil {
		return nil, err
	}
	dlog.Infof(ctx, "vendored %d packages into %s (pure=%v, tag=%s)",
		len(ret.Packages), targetDir, ret.IsPurePython, ret.EffectiveTag)
	return ret, nil
}

// installPackage unpacks a dependency's wheel and copies its top-level
// modules into the vendor tree.
func (p *Packager) installPackage(ctx context.Context, dep *ResolvedDependency, scratchDir, targetDir string) ([]string, error) {
	extractDir := filepath.Join(scratchDir, "unpack", dep.Name)
	if err := extractWheel(dep.WheelPath, extractDir); err != nil {
		return nil, fmt.Errorf("unpack wheel: %w", err)
	}
	modules, err := topLevelModules(extractDir)
	if err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		dlog.Warnf(ctx, "wheel for %q provides no top-level modules", dep.Name)
		return nil, nil
	}
	for _, module := range modules {
		srcDir := filepath.Join(extractDir, module)
		if info, err := os.Stat(srcDir); err == nil && info.IsDir() {
			if err := copyTree(srcDir, filepath.Join(targetDir, module)); err != nil {
				return nil, err
			}
			continue
		}
		srcFile := filepath.Join(extractDir, module+".py")
		if _, err := os.Stat(srcFile); err == nil {
			if err := copyFile(srcFile, filepath.Join(targetDir, module+".py")); err != nil {
				return nil, err
			}
		}
	}
	return modules, nil
}

func (p *Packager) writeVendorInit(targetDir string) error {
	initPath := filepath.Join(targetDir, "__init__.py")
	if _, err := os.Stat(initPath); err == nil {
		return nil
	}
	content := "\"\"\"Vendored dependencies for this island package.\"\"\"\n"
	return os.WriteFile(initPath, []byte(content), 0o644)
}

// RewriteTree rewrites every .py file under dir in place, in parallel.
func RewriteTree(ctx context.Context, dir string, opts rewrite.Options) (rewrite.Stats, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".py") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return rewrite.Stats{}, err
	}
	sort.Strings(paths)

	perFile := make([]rewrite.Stats, len(paths))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		i, path := i, path
		group.Go(func() error {
			source, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			out, stats, err := rewrite.Source(ctx, source, opts)
			if err != nil {
				return fmt.Errorf("rewrite %s: %w", path, err)
			}
			perFile[i] = stats
			if stats.Rewritten == 0 {
				return nil
			}
			return os.WriteFile(path, out, 0o644)
		})
	}
	if err := group.Wait(); err != nil {
		return rewrite.Stats{}, err
	}
	var total rewrite.Stats
	for i := range perFile {
		perFile[i].AddTo(&total)
	}
	return total, nil
}

// vendorManifest is the on-disk shape of vendor_manifest.json, embedded
// verbatim into island.json by the archive builder.
type vendorManifest struct {
	VendoredPackages     map[string]vendorManifestPackage `json:"vendored_packages"`
	DependencyGraph      map[string][]string              `json:"dependency_graph"`
	RootDependencies     []string                         `json:"root_dependencies"`
	IsPurePython         bool                             `json:"is_pure_python"`
	EffectivePlatformTag string                           `json:"effective_platform_tag"`
}

type vendorManifestPackage struct {
	Version            string   `json:"version"`
	Modules            []string `json:"modules"`
	IsPurePython       bool     `json:"is_pure_python"`
	PlatformTags       []string `json:"platform_tags"`
	DirectDependencies []string `json:"direct_dependencies"`
}

func writeVendorManifest(path string, result *Result) error {
	manifest := vendorManifest{
		VendoredPackages:     make(map[string]vendorManifestPackage),
		DependencyGraph:      make(map[string][]string),
		RootDependencies:     result.Graph.Roots,
		IsPurePython:         result.IsPurePython,
		EffectivePlatformTag: result.EffectiveTag.String(),
	}
	if manifest.RootDependencies == nil {
		manifest.RootDependencies = []string{}
	}
	for _, pkg := range result.Packages {
		dep := result.Graph.Packages[pkg.Name]
		tags := make([]string, 0, len(dep.PlatformTags))
		for _, tag := range dep.PlatformTags {
			tags = append(tags, tag.String())
		}
		requires := dep.Requires
		if requires == nil {
			requires = []string{}
		}
		modules := pkg.Modules
		if modules == nil {
			modules = []string{}
		}
		manifest.VendoredPackages[pkg.Name] = vendorManifestPackage{
			Version:            pkg.Version,
			Modules:            modules,
			IsPurePython:       dep.IsPurePython,
			PlatformTags:       tags,
			DirectDependencies: requires,
		}
		manifest.DependencyGraph[pkg.Name] = requires
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// extractWheel unpacks a .whl into destDir.
func extractWheel(wheelPath, destDir string) error {
	zr, err := zip.OpenReader(wheelPath)
	if err != nil {
		return err
	}
	defer zr.Close()
	for _, zf := range zr.File {
		// Guard against zip-slip.
		destPath := filepath.Join(destDir, filepath.FromSlash(zf.Name))
		if !strings.HasPrefix(destPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("wheel member escapes destination: %q", zf.Name)
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return err
		}
		rc, err := zf.Open()
		if err != nil {
			return err
		}
		out, err := os.Create(destPath)
		if err != nil {
			_ = rc.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		_ = rc.Close()
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// topLevelModules determines what a wheel provides: the dist-info
// top_level.txt when present, otherwise directory inspection.
func topLevelModules(extractDir string) ([]string, error) {
	entries, err := os.ReadDir(extractDir)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasSuffix(entry.Name(), ".dist-info") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(extractDir, entry.Name(), "top_level.txt"))
		if err != nil {
			continue
		}
		var modules []string
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				modules = append(modules, line)
			}
		}
		if len(modules) > 0 {
			sort.Strings(modules)
			return modules, nil
		}
	}

	// No top_level.txt; anything that looks like a module at the wheel root
	// is one.
	var modules []string
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".dist-info"), strings.HasSuffix(name, ".data"):
			continue
		case entry.IsDir():
			modules = append(modules, name)
		case strings.HasSuffix(name, ".py"):
			modules = append(modules, strings.TrimSuffix(name, ".py"))
		}
	}
	sort.Strings(modules)
	return modules, nil
}

// copyTree copies a directory recursively.
func copyTree(srcDir, destDir string) error {
	return filepath.WalkDir(srcDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		destPath := filepath.Join(destDir, relPath)
		if entry.IsDir() {
			return os.MkdirAll(destPath, 0o755)
		}
		return copyFile(path, destPath)
	})
}

func copyFile(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	dest, err := os.Create(destPath)
	if err != nil {
		return err
	}
	_, err = io.Copy(dest, src)
	if closeErr := dest.Close(); err == nil {
		err = closeErr
	}
	return err
}
