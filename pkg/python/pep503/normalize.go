// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep503 implements the name normalization rules from PEP 503 --
// Simple Repository API.
//
// https://www.python.org/dev/peps/pep-0503/
package pep503

import (
	"regexp"
)

var (
	reSeparators = regexp.MustCompile(`[-_.]+`)
	reReqName    = regexp.MustCompile(`^[a-zA-Z0-9][-a-zA-Z0-9._]*`)
)

// Normalize lowercases a distribution name and collapses runs of the
// equivalent separator characters ("-", "_", ".") to a single "-".
func Normalize(name string) string {
	return toLowerASCII(reSeparators.ReplaceAllLiteralString(name, "-"))
}

// ParseRequirementName extracts the normalized distribution name from a
// pip-style requirement string; extras, version specifiers, and environment
// markers are discarded ("requests[security]>=2.0; python_version>'3'" =>
// "requests").
func ParseRequirementName(requirement string) string {
	if match := reReqName.FindString(requirement); match != "" {
		return Normalize(match)
	}
	return Normalize(requirement)
}

// strings.ToLower allocates for non-ASCII; distribution names are ASCII-only,
// but don't corrupt bad input either.
func toLowerASCII(str string) string {
	buf := []byte(str)
	for i, c := range buf {
		if 'A' <= c && c <= 'Z' {
			buf[i] = c + ('a' - 'A')
		}
	}
	return string(buf)
}
