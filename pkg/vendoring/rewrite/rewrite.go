// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package rewrite rewrites Python import statements so that vendored
// dependencies are addressed through a package-private namespace.
//
// Given a vendor namespace of "my_game._vendor":
//
//	import yaml                  => from my_game._vendor import yaml
//	import yaml.parser as yp     => from my_game._vendor.yaml import parser as yp
//	from yaml import safe_load   => from my_game._vendor.yaml import safe_load
//
// Imports of host-provided modules and relative imports are left untouched.
// The transformation is source-level: statements are located with a concrete
// syntax tree and spliced by byte range, so the rest of the file keeps its
// exact bytes.
package rewrite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Options configure one rewriting pass.
type Options struct {
	// VendoredModules is the set of top-level module names that live under
	// the vendor namespace.
	VendoredModules map[string]struct{}
	// Namespace is the full vendor namespace ("my_game._vendor").
	Namespace string
	// HostModules are top-level module names provided by the host runtime;
	// they are never rewritten, even if also listed as vendored.
	HostModules map[string]struct{}
}

// shouldRewrite applies the host-wins precedence rule.
func (o Options) shouldRewrite(module string) bool {
	if module == "" {
		return false
	}
	top, _, _ := strings.Cut(module, ".")
	if _, host := o.HostModules[top]; host {
		return false
	}
	_, vendored := o.VendoredModules[top]
	return vendored
}

// Stats counts what one pass did.
type Stats struct {
	Rewritten int
	Preserved int
}

// AddTo accumulates s into total.
func (s *Stats) AddTo(total *Stats) {
	total.Rewritten += s.Rewritten
	total.Preserved += s.Preserved
}

// edit is a byte-range splice.
type edit struct {
	start, end uint32
	text       string
}

// Source rewrites a single Python source text.  A file that does not parse
// is a hard error naming nothing but the syntax problem; callers attach the
// path.
func Source(ctx context.Context, source []byte, opts Options) ([]byte, Stats, error) {
	var stats Stats

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, stats, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, stats, fmt.Errorf("syntax error (near byte %d)", firstErrorOffset(root))
	}

	var edits []edit
	// Only module-level statements are rewritten; imports inside functions
	// or conditionals are dynamic enough that rewriting them is not safe.
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "import_statement":
			edits = append(edits, rewriteImport(node, source, opts, &stats)...)
		case "import_from_statement":
			edits = append(edits, rewriteImportFrom(node, source, opts, &stats)...)
		}
	}

	if len(edits) == 0 {
		return source, stats, nil
	}
	// Apply back to front so earlier offsets stay valid.
	sort.Slice(edits, func(i, j int) bool { return edits[i].start > edits[j].start })
	out := append([]byte(nil), source...)
	for _, e := range edits {
		out = append(out[:e.start], append([]byte(e.text), out[e.end:]...)...)
	}
	return out, stats, nil
}

// rewriteImport handles "import a.b as c, d" statements.  Any alias needing
// rewriting forces the whole statement to be regenerated, since a plain
// import and a from-import cannot share a statement.
func rewriteImport(node *sitter.Node, source []byte, opts Options, stats *Stats) []edit {
	type importedName struct {
		module string
		alias  string
	}
	var names []importedName
	rewriteAny := false
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		var name importedName
		switch child.Type() {
		case "dotted_name":
			name.module = child.Content(source)
		case "aliased_import":
			name.module = child.ChildByFieldName("name").Content(source)
			if aliasNode := child.ChildByFieldName("alias"); aliasNode != nil {
				name.alias = aliasNode.Content(source)
			}
		default:
			continue
		}
		names = append(names, name)
		if opts.shouldRewrite(name.module) {
			rewriteAny = true
		}
	}
	if !rewriteAny {
		stats.Preserved += len(names)
		return nil
	}

	var stmts []string
	for _, name := range names {
		if !opts.shouldRewrite(name.module) {
			stats.Preserved++
			stmt := "import " + name.module
			if name.alias != "" {
				stmt += " as " + name.alias
			}
			stmts = append(stmts, stmt)
			continue
		}
		stats.Rewritten++
		parts := strings.Split(name.module, ".")
		switch {
		case len(parts) == 1 && name.alias == "":
			stmts = append(stmts, fmt.Sprintf("from %s import %s", opts.Namespace, name.module))
		case len(parts) == 1:
			stmts = append(stmts, fmt.Sprintf("from %s import %s as %s",
				opts.Namespace, name.module, name.alias))
		case name.alias != "":
			// import a.b.c as x  =>  from ns.a.b import c as x
			stmts = append(stmts, fmt.Sprintf("from %s.%s import %s as %s",
				opts.Namespace, strings.Join(parts[:len(parts)-1], "."),
				parts[len(parts)-1], name.alias))
		default:
			// import a.b binds "a" and registers submodule "b" on it.
			// Import the full chain under the namespace, then bind the
			// top-level name.
			stmts = append(stmts,
				fmt.Sprintf("import %s.%s", opts.Namespace, name.module),
				fmt.Sprintf("from %s import %s", opts.Namespace, parts[0]))
		}
	}
	return []edit{{
		start: node.StartByte(),
		end:   node.EndByte(),
		text:  strings.Join(stmts, "\n"+indentOf(node, source)),
	}}
}

// rewriteImportFrom handles "from a.b import c" statements; only the module
// path needs splicing, the imported names are untouched.
func rewriteImportFrom(node *sitter.Node, source []byte, opts Options, stats *Stats) []edit {
	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode == nil || moduleNode.Type() == "relative_import" {
		stats.Preserved++
		return nil
	}
	module := moduleNode.Content(source)
	if !opts.shouldRewrite(module) {
		stats.Preserved++
		return nil
	}
	stats.Rewritten++
	return []edit{{
		start: moduleNode.StartByte(),
		end:   moduleNode.EndByte(),
		text:  opts.Namespace + "." + module,
	}}
}

// indentOf returns the whitespace prefix of the line the node starts on, so
// that a statement split into several keeps its column.
func indentOf(node *sitter.Node, source []byte) string {
	start := int(node.StartByte())
	lineStart := start
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	indent := source[lineStart:start]
	for _, c := range indent {
		if c != ' ' && c != '\t' {
			return ""
		}
	}
	return string(indent)
}

func firstErrorOffset(node *sitter.Node) uint32 {
	if node.Type() == "ERROR" || node.IsMissing() {
		return node.StartByte()
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child.HasError() {
			return firstErrorOffset(child)
		}
	}
	return node.StartByte()
}
