// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package manifest implements the "island.json" manifest schema.
package manifest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/datawire/dlib/derror"

	"github.com/datawire/island/pkg/island/version"
)

// SchemaVersion is the manifest schema version that this code writes.
const SchemaVersion = 7

// MinCompatibleVersion and MaxCompatibleVersion bound the
// "compatible_version" field; a manifest claiming compatibility outside this
// window is from a different era of the format and must be rejected rather
// than misread.
const (
	MinCompatibleVersion = 5
	MaxCompatibleVersion = 7
)

// EntryPointGroup is the entry-point group that every island package must
// populate; it is what the host runtime looks up to load the world.
const EntryPointGroup = "ap-island"

const (
	maxGameLen        = 100
	maxDescriptionLen = 500
	maxKeywordLen     = 50
)

// reEntryPoint matches "dotted.module.path:attr".
var reEntryPoint = regexp.MustCompile(`^[A-Za-z_][\w]*(\.[A-Za-z_][\w]*)*:[A-Za-z_][\w]*$`)

// knownPlatforms is the set of values permitted in the "platforms" list.
//
//nolint:gochecknoglobals // Would be 'const'.
var knownPlatforms = map[string]struct{}{
	"windows": {},
	"macos":   {},
	"linux":   {},
}

// Manifest is a parsed island.json.
//
// Unknown keys survive an unmarshal/marshal round-trip so that a newer
// manifest passed through an older tool is not silently stripped.
type Manifest struct {
	Game              string `json:"game"`
	Version           int    `json:"version"`
	CompatibleVersion int    `json:"compatible_version"`

	// EntryPoints maps group name to entry name to "module:attr".
	EntryPoints map[string]map[string]string `json:"entry_points"`

	WorldVersion     string   `json:"world_version,omitempty"`
	MinimumAPVersion string   `json:"minimum_ap_version,omitempty"`
	MaximumAPVersion string   `json:"maximum_ap_version,omitempty"`
	Authors          []string `json:"authors,omitempty"`
	Description      string   `json:"description,omitempty"`
	License          string   `json:"license,omitempty"`
	Homepage         string   `json:"homepage,omitempty"`
	Repository       string   `json:"repository,omitempty"`
	Keywords         []string `json:"keywords,omitempty"`
	Platforms        []string `json:"platforms,omitempty"`
	PurePython       *bool    `json:"pure_python,omitempty"`

	// VendoredDependencies is either the enhanced vendor-manifest object or
	// the legacy {name: version} map; it is embedded verbatim.
	VendoredDependencies json.RawMessage `json:"vendored_dependencies,omitempty"`

	// Extra holds keys this schema version doesn't know about.
	Extra map[string]json.RawMessage `json:"-"`
}

// FieldError is a validation failure attributed to a single manifest field.
type FieldError struct {
	Field string
	Msg   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// fieldErrf appends a FieldError to errs.
func fieldErrf(errs *derror.MultiError, field, format string, args ...interface{}) {
	*errs = append(*errs, &FieldError{Field: field, Msg: fmt.Sprintf(format, args...)})
}

// manifestAlias avoids UnmarshalJSON recursion.
type manifestAlias Manifest

// knownKeys returns the JSON keys that map to typed Manifest fields.
func knownKeys() map[string]struct{} {
	return map[string]struct{}{
		"game":                  {},
		"version":               {},
		"compatible_version":    {},
		"entry_points":          {},
		"world_version":         {},
		"minimum_ap_version":    {},
		"maximum_ap_version":    {},
		"authors":               {},
		"description":           {},
		"license":               {},
		"homepage":              {},
		"repository":            {},
		"keywords":              {},
		"platforms":             {},
		"pure_python":           {},
		"vendored_dependencies": {},
	}
}

func (m *Manifest) UnmarshalJSON(data []byte) error {
	var alias manifestAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	known := knownKeys()
	for key, val := range raw {
		if _, ok := known[key]; ok {
			continue
		}
		if alias.Extra == nil {
			alias.Extra = make(map[string]json.RawMessage)
		}
		alias.Extra[key] = val
	}

	*m = Manifest(alias)
	return nil
}

func (m Manifest) MarshalJSON() ([]byte, error) {
	typed, err := json.Marshal(manifestAlias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return typed, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(typed, &merged); err != nil {
		return nil, err
	}
	for key, val := range m.Extra {
		if _, ok := merged[key]; !ok {
			merged[key] = val
		}
	}
	return json.Marshal(merged)
}

// Parse unmarshals and applies defaults, but does not validate.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse island.json: %w", err)
	}
	m.ApplyDefaults()
	return &m, nil
}

// ApplyDefaults fills in schema-version fields that an author is allowed to
// omit.
func (m *Manifest) ApplyDefaults() {
	if m.Version == 0 {
		m.Version = SchemaVersion
	}
	if m.CompatibleVersion == 0 {
		m.CompatibleVersion = SchemaVersion
	}
}

// Validate checks the manifest against the schema.  It accumulates every
// problem it finds, rather than stopping at the first, so that an author gets
// one actionable report.
func (m *Manifest) Validate() error {
	var errs derror.MultiError

	if m.Game == "" {
		fieldErrf(&errs, "game", "is required")
	} else if len(m.Game) > maxGameLen {
		fieldErrf(&errs, "game", "must be at most %d characters, got %d", maxGameLen, len(m.Game))
	}

	if m.Version != SchemaVersion {
		fieldErrf(&errs, "version", "must be %d, got %d", SchemaVersion, m.Version)
	}
	if m.CompatibleVersion < MinCompatibleVersion || m.CompatibleVersion > MaxCompatibleVersion {
		fieldErrf(&errs, "compatible_version", "must be between %d and %d, got %d",
			MinCompatibleVersion, MaxCompatibleVersion, m.CompatibleVersion)
	}

	m.validateEntryPoints(&errs)

	for field, val := range map[string]string{
		"world_version":      m.WorldVersion,
		"minimum_ap_version": m.MinimumAPVersion,
		"maximum_ap_version": m.MaximumAPVersion,
	} {
		if val != "" && !version.IsValid(val) {
			fieldErrf(&errs, field, "must be a semantic version, got %q", val)
		}
	}

	if len(m.Description) > maxDescriptionLen {
		fieldErrf(&errs, "description", "must be at most %d characters, got %d",
			maxDescriptionLen, len(m.Description))
	}
	for i, keyword := range m.Keywords {
		if len(keyword) > maxKeywordLen {
			fieldErrf(&errs, fmt.Sprintf("keywords[%d]", i),
				"must be at most %d characters, got %d", maxKeywordLen, len(keyword))
		}
	}
	for i, platform := range m.Platforms {
		if _, ok := knownPlatforms[platform]; !ok {
			fieldErrf(&errs, fmt.Sprintf("platforms[%d]", i),
				"must be one of windows, macos, linux; got %q", platform)
		}
	}

	if len(m.VendoredDependencies) > 0 {
		if err := validateVendoredDependencies(m.VendoredDependencies); err != nil {
			fieldErrf(&errs, "vendored_dependencies", "%v", err)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (m *Manifest) validateEntryPoints(errs *derror.MultiError) {
	group := m.EntryPoints[EntryPointGroup]
	if len(group) == 0 {
		fieldErrf(errs, "entry_points."+EntryPointGroup, "must contain at least one entry")
		return
	}
	names := make([]string, 0, len(group))
	for name := range group {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !ValidEntryPoint(group[name]) {
			fieldErrf(errs, "entry_points."+EntryPointGroup+"."+name,
				"must look like \"module.path:attr\", got %q", group[name])
		}
	}
}

// ValidEntryPoint reports whether str is a well-formed "module.path:attr"
// entry-point value.
func ValidEntryPoint(str string) bool {
	return reEntryPoint.MatchString(str)
}

// validateVendoredDependencies accepts either the enhanced vendor-manifest
// object or the legacy {name: version-string} map.
func validateVendoredDependencies(raw json.RawMessage) error {
	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asObject); err != nil {
		return fmt.Errorf("must be an object")
	}

	var legacy map[string]string
	if err := json.Unmarshal(raw, &legacy); err == nil {
		return nil
	}

	// Enhanced form: each value (apart from the graph-level keys) must at
	// least carry a version.
	for key, val := range asObject {
		switch key {
		case "vendored_packages", "dependency_graph", "root_dependencies",
			"is_pure_python", "effective_platform_tag":
			continue
		}
		var pkg struct {
			Version string `json:"version"`
		}
		if err := json.Unmarshal(val, &pkg); err != nil {
			return fmt.Errorf("entry %q is neither a version string nor a package object", key)
		}
	}
	return nil
}
