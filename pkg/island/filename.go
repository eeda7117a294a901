// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package island implements the .island distribution naming conventions.
//
// An island package is named like a PEP 427 wheel:
//
//	{name}-{version}(-{build})?-{python}-{abi}-{platform}.island
//
// and a source distribution is named {name}-{version}.tar.gz.
package island

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/datawire/island/pkg/python/pep425"
)

// Extension is the archive filename extension, dot included.
const Extension = ".island"

// SdistExtension is the source distribution filename extension.
const SdistExtension = ".tar.gz"

var (
	reName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_]*$`)

	reSeparators  = regexp.MustCompile(`[-._\s]+`)
	reUnderscores = regexp.MustCompile(`_+`)

	reFilename = regexp.MustCompile(`` +
		`^(?P<name>[a-zA-Z0-9][a-zA-Z0-9_]*)` +
		`-(?P<version>[^-]+)` +
		`(?:-(?P<build>\d+))?` +
		`-(?P<python>[a-z0-9]+)` +
		`-(?P<abi>[a-z0-9_]+)` +
		`-(?P<platform>[a-z0-9_]+)` +
		`\.island$`)

	reSdistFilename = regexp.MustCompile(`` +
		`^(?P<name>[a-zA-Z0-9][a-zA-Z0-9_]*)` +
		`-(?P<version>[^/]+)` +
		`\.tar\.gz$`)
)

// NormalizeName normalizes a package name for use in filenames and archive
// member paths: lowercase, with runs of separator characters ("-", ".", "_",
// whitespace) replaced by a single underscore.
func NormalizeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("package name cannot be empty")
	}
	normalized := strings.ToLower(name)
	normalized = reSeparators.ReplaceAllLiteralString(normalized, "_")
	normalized = reUnderscores.ReplaceAllLiteralString(normalized, "_")
	normalized = strings.Trim(normalized, "_")
	if normalized == "" || !reName.MatchString(normalized) {
		return "", fmt.Errorf("invalid package name: %q", name)
	}
	return normalized, nil
}

// NormalizeVersion normalizes a version string for use in filenames; the "-"
// pre-release separator would collide with the filename field separator, so
// it becomes "_".
func NormalizeVersion(version string) (string, error) {
	if version == "" {
		return "", fmt.Errorf("version cannot be empty")
	}
	return strings.ReplaceAll(version, "-", "_"), nil
}

// FilenameData is the parsed form of an .island filename.
type FilenameData struct {
	Name    string
	Version string
	// Build is the optional numeric build tag; nil when absent.
	Build *int
	Tag   pep425.Tag
}

// BuildFilename assembles an .island filename from a package name, a semver
// version string, and a compatibility tag; the zero Tag means universal.
func BuildFilename(name, version string, tag pep425.Tag) (string, error) {
	if (tag == pep425.Tag{}) {
		tag = pep425.Universal()
	}
	normName, err := NormalizeName(name)
	if err != nil {
		return "", err
	}
	normVersion, err := NormalizeVersion(version)
	if err != nil {
		return "", err
	}
	return normName + "-" + normVersion + "-" + tag.String() + Extension, nil
}

// BuildSdistFilename assembles a source distribution filename.
func BuildSdistFilename(name, version string) (string, error) {
	normName, err := NormalizeName(name)
	if err != nil {
		return "", err
	}
	normVersion, err := NormalizeVersion(version)
	if err != nil {
		return "", err
	}
	return normName + "-" + normVersion + SdistExtension, nil
}

// ParseFilename parses an .island filename into its components.
func ParseFilename(filename string) (*FilenameData, error) {
	match := reFilename.FindStringSubmatch(filename)
	if match == nil {
		return nil, fmt.Errorf("invalid island filename: %q", filename)
	}
	ret := &FilenameData{
		Name:    match[reFilename.SubexpIndex("name")],
		Version: match[reFilename.SubexpIndex("version")],
		Tag: pep425.Tag{
			Python:   match[reFilename.SubexpIndex("python")],
			ABI:      match[reFilename.SubexpIndex("abi")],
			Platform: match[reFilename.SubexpIndex("platform")],
		},
	}
	if buildStr := match[reFilename.SubexpIndex("build")]; buildStr != "" {
		build, _ := strconv.Atoi(buildStr)
		ret.Build = &build
	}
	return ret, nil
}

// SdistFilenameData is the parsed form of a source distribution filename.
type SdistFilenameData struct {
	Name    string
	Version string
}

// ParseSdistFilename parses a source distribution filename.
func ParseSdistFilename(filename string) (*SdistFilenameData, error) {
	match := reSdistFilename.FindStringSubmatch(filename)
	if match == nil {
		return nil, fmt.Errorf("invalid sdist filename: %q", filename)
	}
	return &SdistFilenameData{
		Name:    match[reSdistFilename.SubexpIndex("name")],
		Version: match[reSdistFilename.SubexpIndex("version")],
	}, nil
}
