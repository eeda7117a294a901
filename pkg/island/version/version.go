// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package version handles island package versions: Semantic Versioning 2.0.0,
// strictly.
//
// SemVer precedence already gives the ordering the registry cares about:
// numeric identifiers compare numerically, "alpha" < "beta" < "rc"
// lexically, and a release outranks any of its pre-releases.
package version

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// Parse parses a strict SemVer 2.0 version ("1.2.3", "1.2.3-rc.1+build.5").
// Loose forms ("v1.2", "1.0") are rejected.
func Parse(str string) (*semver.Version, error) {
	ver, err := semver.StrictNewVersion(str)
	if err != nil {
		return nil, fmt.Errorf("invalid semver %q: %w", str, err)
	}
	return ver, nil
}

// IsValid reports whether str is a strict SemVer 2.0 version.
func IsValid(str string) bool {
	_, err := semver.StrictNewVersion(str)
	return err == nil
}

// Compare compares two version strings; it returns <0, 0, or >0.  An error
// means one of the inputs is not valid SemVer.
func Compare(a, b string) (int, error) {
	av, err := Parse(a)
	if err != nil {
		return 0, err
	}
	bv, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return av.Compare(bv), nil
}

// Sort sorts version strings ascending by SemVer precedence.  Invalid
// versions sort first, among themselves by plain string ordering, so that a
// single stray row cannot panic a listing.
func Sort(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		iv, iErr := semver.StrictNewVersion(versions[i])
		jv, jErr := semver.StrictNewVersion(versions[j])
		switch {
		case iErr != nil && jErr != nil:
			return versions[i] < versions[j]
		case iErr != nil:
			return true
		case jErr != nil:
			return false
		default:
			return iv.LessThan(jv)
		}
	})
}

// InRange reports whether ver satisfies min and max bounds (inclusive); empty
// bounds are unbounded.
func InRange(ver, min, max string) (bool, error) {
	v, err := Parse(ver)
	if err != nil {
		return false, err
	}
	if min != "" {
		minV, err := Parse(min)
		if err != nil {
			return false, err
		}
		if v.LessThan(minV) {
			return false, nil
		}
	}
	if max != "" {
		maxV, err := Parse(max)
		if err != nil {
			return false, err
		}
		if v.GreaterThan(maxV) {
			return false, nil
		}
	}
	return true, nil
}
