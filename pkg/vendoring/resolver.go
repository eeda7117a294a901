// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package vendoring

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/island/pkg/python/pep345"
	"github.com/datawire/island/pkg/python/pep425"
	"github.com/datawire/island/pkg/python/pep503"
)

// A Downloader fetches built distributions for a set of pip-style
// requirement strings into a destination directory, without recursing into
// their dependencies.  The resolver walks the dependency closure itself,
// calling Download once per frontier.
type Downloader interface {
	Download(ctx context.Context, requirements []string, destDir string) error
}

// PipDownloader shells out to "python -m pip download".
type PipDownloader struct {
	// Python is the interpreter to invoke; "python3" if empty.
	Python string
}

func (d PipDownloader) Download(ctx context.Context, requirements []string, destDir string) error {
	python := d.Python
	if python == "" {
		python = "python3"
	}
	args := append([]string{
		"-m", "pip", "download",
		"--dest", destDir,
		"--only-binary=:all:",
		"--no-deps",
		"--quiet",
	}, requirements...)
	cmd := dexec.CommandContext(ctx, python, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pip download failed: %w\n%s", err, out)
	}
	return nil
}

// ChainError wraps a per-package failure with the dependency chain that
// pulled the package in, so that "why is this even being vendored?" is
// answerable from the error text alone.
type ChainError struct {
	Package string
	Chain   []string
	Err     error
}

func (e *ChainError) Error() string {
	chain := strings.Join(e.Chain, " -> ")
	if chain == "" {
		chain = e.Package
	}
	return fmt.Sprintf("failed to vendor %q (dependency chain: %s): %v",
		e.Package, chain, e.Err)
}

func (e *ChainError) Unwrap() error { return e.Err }

// Resolver builds a filtered dependency graph from root requirement strings.
type Resolver struct {
	Downloader Downloader

	// Exclude lists package names never to vendor, regardless of what
	// requires them.
	Exclude []string
	// HostModules are module names provided by the host runtime; they are
	// excluded from vendoring, and the rewriter leaves imports of them
	// alone.
	HostModules []string
	// HostCorePackage is the name of a meta-package describing the host
	// runtime; it and its whole transitive closure are excluded.
	HostCorePackage string

	coreClosure map[string]struct{}
}

// Resolve downloads the transitive closure of requirements and returns the
// unfiltered graph.  The caller owns cleaning up via the graph nodes'
// WheelPath scratch directory, which lives under scratchDir.
func (r *Resolver) Resolve(ctx context.Context, requirements []string, scratchDir string) (*Graph, error) {
	graph := NewGraph()
	if len(requirements) == 0 {
		return graph, nil
	}
	for _, req := range requirements {
		graph.Roots = append(graph.Roots, pep503.ParseRequirementName(req))
	}

	pending := append([]string(nil), requirements...)
	queued := make(map[string]struct{})
	for _, root := range graph.Roots {
		queued[root] = struct{}{}
	}

	for round := 0; len(pending) > 0; round++ {
		wheelDir := filepath.Join(scratchDir, fmt.Sprintf("round-%d", round))
		if err := os.MkdirAll(wheelDir, 0o755); err != nil {
			return nil, err
		}
		if err := r.Downloader.Download(ctx, pending, wheelDir); err != nil {
			return nil, fmt.Errorf("resolve %v: %w", pending, err)
		}

		wheels, err := filepath.Glob(filepath.Join(wheelDir, "*.whl"))
		if err != nil {
			return nil, err
		}
		sort.Strings(wheels)

		var next []string
		for _, wheelPath := range wheels {
			dep, err := parseWheel(wheelPath)
			if err != nil {
				dlog.Warnf(ctx, "skipping unparseable wheel %s: %v",
					filepath.Base(wheelPath), err)
				continue
			}
			if graph.Has(dep.Name) {
				continue
			}
			graph.Add(dep)
			for _, req := range dep.Requires {
				if _, seen := queued[req]; seen {
					continue
				}
				queued[req] = struct{}{}
				next = append(next, req)
			}
		}
		pending = next
	}
	return graph, nil
}

// ResolveFiltered resolves requirements and strips everything the host
// already provides: explicit excludes, host modules, and the host-core
// meta-package together with its own transitive closure.
func (r *Resolver) ResolveFiltered(ctx context.Context, requirements []string, scratchDir string) (*Graph, error) {
	graph, err := r.Resolve(ctx, requirements, scratchDir)
	if err != nil {
		return nil, err
	}
	exclusions, err := r.exclusions(ctx, scratchDir)
	if err != nil {
		return nil, err
	}
	return graph.Filter(exclusions), nil
}

// exclusions computes the full exclusion set.  The host-core closure is
// resolved at most once; a host-core package that cannot be resolved (for
// example, not published to the index in use) just contributes nothing.
func (r *Resolver) exclusions(ctx context.Context, scratchDir string) (map[string]struct{}, error) {
	ret := make(map[string]struct{})
	for _, name := range r.Exclude {
		ret[pep503.Normalize(name)] = struct{}{}
	}
	for _, name := range r.HostModules {
		ret[pep503.Normalize(name)] = struct{}{}
	}
	if r.HostCorePackage == "" {
		return ret, nil
	}

	coreName := pep503.Normalize(r.HostCorePackage)
	ret[coreName] = struct{}{}
	if r.coreClosure == nil {
		r.coreClosure = make(map[string]struct{})
		coreScratch := filepath.Join(scratchDir, "host-core")
		coreGraph, err := r.Resolve(ctx, []string{coreName}, coreScratch)
		if err != nil {
			dlog.Warnf(ctx, "could not resolve host-core package %q; not excluding its dependencies: %v",
				coreName, err)
		} else {
			for name := range coreGraph.Packages {
				r.coreClosure[name] = struct{}{}
			}
		}
	}
	for name := range r.coreClosure {
		ret[name] = struct{}{}
	}
	return ret, nil
}

// parseWheel extracts a graph node from a downloaded wheel: name, version,
// and direct dependencies from its METADATA; platform tags from its
// filename.
func parseWheel(wheelPath string) (*ResolvedDependency, error) {
	zr, err := zip.OpenReader(wheelPath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var metadataFile *zip.File
	for _, zf := range zr.File {
		if strings.HasSuffix(zf.Name, ".dist-info/METADATA") {
			metadataFile = zf
			break
		}
	}
	if metadataFile == nil {
		return nil, fmt.Errorf("no .dist-info/METADATA member")
	}
	rc, err := metadataFile.Open()
	if err != nil {
		return nil, err
	}
	md, err := pep345.Parse(rc)
	_ = rc.Close()
	if err != nil {
		return nil, err
	}

	tags, isPure := parseWheelTags(filepath.Base(wheelPath))
	version := md.Version
	if version == "" {
		version = "unknown"
	}
	return &ResolvedDependency{
		Name:         pep503.Normalize(md.Name),
		Version:      version,
		Requires:     md.DirectDependencies(),
		PlatformTags: tags,
		IsPurePython: isPure,
		WheelPath:    wheelPath,
	}, nil
}

// parseWheelTags pulls the platform-tag triple out of a wheel filename
// ({dist}-{ver}(-{build})?-{py}-{abi}-{plat}.whl).  A name too mangled to
// parse is treated as universal rather than failing the whole resolve.
func parseWheelTags(filename string) ([]pep425.Tag, bool) {
	stem := strings.TrimSuffix(filename, ".whl")
	parts := strings.Split(stem, "-")
	if len(parts) < 5 {
		return []pep425.Tag{pep425.Universal()}, true
	}
	tag := pep425.Tag{
		Python:   parts[len(parts)-3],
		ABI:      parts[len(parts)-2],
		Platform: parts[len(parts)-1],
	}
	return []pep425.Tag{tag}, tag.IsPure()
}
