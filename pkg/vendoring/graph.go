// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package vendoring resolves, downloads, and repackages a package's Python
// dependencies under its private _vendor namespace.
package vendoring

import (
	"sort"

	"github.com/datawire/island/pkg/python/pep425"
)

// ResolvedDependency is one node of a dependency graph: a single
// distribution, as resolved from a downloaded wheel.
type ResolvedDependency struct {
	// Name is the PEP 503 normalized distribution name.
	Name    string
	Version string
	// Requires lists the normalized names of direct dependencies.
	Requires []string
	// PlatformTags are the tags of the wheels seen for this distribution.
	PlatformTags []pep425.Tag
	IsPurePython bool
	// WheelPath is where the downloaded wheel sits on disk; valid until the
	// resolver's scratch directory is cleaned up.
	WheelPath string
}

// Filter returns a copy of the graph with the named packages removed, along
// with any edges that pointed at them.  Roots are filtered too.
func (g *Graph) Filter(exclude map[string]struct{}) *Graph {
	filtered := NewGraph()
	for _, root := range g.Roots {
		if _, drop := exclude[root]; !drop {
			filtered.Roots = append(filtered.Roots, root)
		}
	}
	for name, dep := range g.Packages {
		if _, drop := exclude[name]; drop {
			continue
		}
		kept := *dep
		kept.Requires = nil
		for _, req := range dep.Requires {
			if _, drop := exclude[req]; !drop {
				kept.Requires = append(kept.Requires, req)
			}
		}
		filtered.Add(&kept)
	}
	return filtered
}

// Graph is a resolved dependency graph: nodes keyed by normalized name, plus
// the ordered list of root dependencies that resolution started from.
type Graph struct {
	Packages map[string]*ResolvedDependency
	Roots    []string
}

func NewGraph() *Graph {
	return &Graph{Packages: make(map[string]*ResolvedDependency)}
}

func (g *Graph) Add(dep *ResolvedDependency) {
	g.Packages[dep.Name] = dep
}

func (g *Graph) Has(name string) bool {
	_, ok := g.Packages[name]
	return ok
}

// Names returns all node names, sorted.
func (g *Graph) Names() []string {
	ret := make([]string, 0, len(g.Packages))
	for name := range g.Packages {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// TransitiveClosure returns the set of nodes reachable from name, name
// itself included (if present).  Edges to packages that were filtered out of
// the graph are ignored.
func (g *Graph) TransitiveClosure(name string) map[string]struct{} {
	ret := make(map[string]struct{})
	var walk func(string)
	walk = func(cur string) {
		if _, done := ret[cur]; done {
			return
		}
		dep, ok := g.Packages[cur]
		if !ok {
			return
		}
		ret[cur] = struct{}{}
		for _, next := range dep.Requires {
			walk(next)
		}
	}
	walk(name)
	return ret
}

// Topological returns the node names ordered so that every node appears
// after its dependencies.  Cycles (which pip can produce) are broken
// arbitrarily but deterministically.
func (g *Graph) Topological() []string {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(g.Packages))
	ret := make([]string, 0, len(g.Packages))
	var visit func(string)
	visit = func(name string) {
		if state[name] != unvisited {
			return
		}
		state[name] = visiting
		if dep, ok := g.Packages[name]; ok {
			deps := append([]string(nil), dep.Requires...)
			sort.Strings(deps)
			for _, next := range deps {
				if g.Has(next) && state[next] == unvisited {
					visit(next)
				}
			}
		}
		state[name] = visited
		ret = append(ret, name)
	}
	for _, name := range g.Names() {
		visit(name)
	}
	return ret
}

// DependencyChain returns the shortest path from some root down to name, for
// embedding in error messages ("root -> middle -> broken-pkg").  If name is
// itself a root, or unreachable, the chain is just [name].
func (g *Graph) DependencyChain(name string) []string {
	for _, root := range g.Roots {
		if root == name {
			return []string{name}
		}
	}

	// BFS from the roots.
	parent := make(map[string]string)
	queue := make([]string, 0, len(g.Roots))
	for _, root := range g.Roots {
		if g.Has(root) {
			parent[root] = ""
			queue = append(queue, root)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == name {
			var chain []string
			for at := name; at != ""; at = parent[at] {
				chain = append([]string{at}, chain...)
			}
			return chain
		}
		dep := g.Packages[cur]
		deps := append([]string(nil), dep.Requires...)
		sort.Strings(deps)
		for _, next := range deps {
			if !g.Has(next) {
				continue
			}
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = cur
			queue = append(queue, next)
		}
	}
	return []string{name}
}

// IsPurePython reports whether every node in the graph is pure Python.
func (g *Graph) IsPurePython() bool {
	for _, dep := range g.Packages {
		if !dep.IsPurePython {
			return false
		}
	}
	return true
}

// PlatformSpecific returns the non-pure nodes, sorted by name.
func (g *Graph) PlatformSpecific() []*ResolvedDependency {
	var ret []*ResolvedDependency
	for _, name := range g.Names() {
		if dep := g.Packages[name]; !dep.IsPurePython {
			ret = append(ret, dep)
		}
	}
	return ret
}

// allTags returns every platform tag in the graph.
func (g *Graph) allTags() []pep425.Tag {
	var ret []pep425.Tag
	for _, name := range g.Names() {
		ret = append(ret, g.Packages[name].PlatformTags...)
	}
	return ret
}

// CheckPlatformCompatibility returns an error if the graph mixes wheels from
// incompatible platform families (a linux wheel and a win wheel cannot load
// into one process).
func (g *Graph) CheckPlatformCompatibility() error {
	return pep425.CheckFamilies(g.allTags())
}

// MostRestrictiveTag computes the effective platform tag of the whole graph:
// universal when everything is pure Python, otherwise the most specific of
// the platform-specific tags.
func (g *Graph) MostRestrictiveTag() pep425.Tag {
	if g.IsPurePython() {
		return pep425.Universal()
	}
	return pep425.MostRestrictive(g.allTags())
}
