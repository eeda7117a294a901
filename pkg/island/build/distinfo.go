// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package build

import (
	"fmt"
	"sort"
	"strings"

	"github.com/datawire/island/pkg/island/manifest"
	"github.com/datawire/island/pkg/python"
	"github.com/datawire/island/pkg/python/pep425"
)

// Generator is the value of the WHEEL file's "Generator" field.
const Generator = "island-build"

const wheelVersion = "1.0"

// wheelFile renders the PEP 427 WHEEL file.
func wheelFile(tag pep425.Tag, purelib bool) string {
	return "" +
		"Wheel-Version: " + wheelVersion + "\n" +
		"Generator: " + Generator + "\n" +
		"Root-Is-Purelib: " + fmt.Sprintf("%v", purelib) + "\n" +
		"Tag: " + tag.String() + "\n"
}

// metadataFile renders the PEP 566 METADATA file.
//
// There is never a Requires-Dist field; an island package vendors its
// dependencies instead of declaring them.
func metadataFile(cfg Config) string {
	lines := []string{
		"Metadata-Version: 2.1",
		"Name: " + cfg.Name,
		"Version: " + cfg.Version,
	}
	if cfg.Description != "" {
		lines = append(lines, "Summary: "+cfg.Description)
	}
	if len(cfg.Authors) > 0 {
		lines = append(lines, "Author: "+strings.Join(cfg.Authors, ", "))
	}
	if cfg.License != "" {
		lines = append(lines, "License: "+cfg.License)
	}
	if len(cfg.Keywords) > 0 {
		lines = append(lines, "Keywords: "+strings.Join(cfg.Keywords, ","))
	}
	if cfg.Homepage != "" {
		lines = append(lines, "Home-page: "+cfg.Homepage)
		lines = append(lines, "Project-URL: Homepage, "+cfg.Homepage)
	}
	if cfg.Repository != "" {
		lines = append(lines, "Project-URL: Repository, "+cfg.Repository)
	}
	if cfg.Description != "" {
		lines = append(lines,
			"Description-Content-Type: text/plain",
			"",
			cfg.Description)
	}
	return strings.Join(lines, "\n") + "\n"
}

// entryPointsFile renders entry_points.txt: INI, groups and entries in sorted
// order, a blank line after each group.  Empty input renders to "".
func entryPointsFile(entryPoints map[string]map[string]string) string {
	if len(entryPoints) == 0 {
		return ""
	}
	groups := make([]string, 0, len(entryPoints))
	for group := range entryPoints {
		groups = append(groups, group)
	}
	sort.Strings(groups)

	var sb strings.Builder
	for _, group := range groups {
		fmt.Fprintf(&sb, "[%s]\n", group)
		names := make([]string, 0, len(entryPoints[group]))
		for name := range entryPoints[group] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "%s = %s\n", name, entryPoints[group][name])
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// ValidateEntryPoints enforces what the registry will later check: at least
// one "ap-island" entry, every value a well-formed "module.path:attr".  It is
// separate from Build so that test fixtures can be built unvalidated.
func ValidateEntryPoints(entryPoints map[string]map[string]string) error {
	group := entryPoints[manifest.EntryPointGroup]
	if len(group) == 0 {
		return fmt.Errorf("entry points must contain at least one %q entry",
			manifest.EntryPointGroup)
	}
	names := make([]string, 0, len(group))
	for name := range group {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !manifest.ValidEntryPoint(group[name]) {
			return fmt.Errorf("entry point %q: invalid value %q (want \"module.path:attr\")",
				name, group[name])
		}
	}
	return nil
}

// record accumulates RECORD rows as archive members are written.
type record struct {
	rows []string
}

func (r *record) Add(path string, content []byte) {
	r.rows = append(r.rows, fmt.Sprintf("%s,%s,%d",
		path, python.RecordSHA256(content), len(content)))
}

// Render emits the RECORD file content; RECORD itself is the final row, with
// empty hash and size.
func (r *record) Render(recordPath string) string {
	return strings.Join(append(r.rows, recordPath+",,"), "\n") + "\n"
}
