// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep345 implements core-metadata ("METADATA"/"PKG-INFO") parsing.
//
// Just enough of the metadata specifications (PEP 345 and successors) to pull
// the name, version, and dependency list out of a wheel.
//
// https://packaging.python.org/en/latest/specifications/core-metadata/
package pep345

import (
	"bufio"
	"fmt"
	"io"
	"net/textproto"
	"strings"

	"github.com/datawire/island/pkg/python/pep503"
)

// Metadata is the subset of a distribution's core metadata that the vendoring
// pipeline consumes.
type Metadata struct {
	Name         string
	Version      string
	RequiresDist []Requirement
}

// Requirement is a single Requires-Dist entry.
type Requirement struct {
	// Name is the PEP 503 normalized distribution name.
	Name string
	// Marker is the raw environment marker, if any ("extra == 'dev'").
	Marker string
	// Raw is the entry as it appeared in the metadata.
	Raw string
}

// ExtraOnly reports whether the requirement only applies when an extra is
// requested, and therefore is not a dependency of a default install.
func (r Requirement) ExtraOnly() bool {
	return strings.Contains(strings.ToLower(r.Marker), "extra")
}

// Parse reads an RFC 822-style METADATA file.  The body (the description) is
// ignored.
func Parse(reader io.Reader) (*Metadata, error) {
	// textproto wants a blank line between header and body; METADATA files
	// without a description may lack one, so pad the tail.
	mimeReader := textproto.NewReader(bufio.NewReader(io.MultiReader(
		reader,
		strings.NewReader("\r\n\r\n"),
	)))
	header, err := mimeReader.ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("parse METADATA: %w", err)
	}

	ret := &Metadata{
		Name:    header.Get("Name"),
		Version: header.Get("Version"),
	}
	if ret.Name == "" {
		return nil, fmt.Errorf("parse METADATA: missing Name field")
	}

	for _, raw := range header.Values("Requires-Dist") {
		req := Requirement{Raw: raw}
		if pkgPart, marker, ok := strings.Cut(raw, ";"); ok {
			req.Marker = strings.TrimSpace(marker)
			req.Name = pep503.ParseRequirementName(strings.TrimSpace(pkgPart))
		} else {
			req.Name = pep503.ParseRequirementName(strings.TrimSpace(raw))
		}
		if req.Name == "" {
			continue
		}
		ret.RequiresDist = append(ret.RequiresDist, req)
	}

	return ret, nil
}

// DirectDependencies returns the normalized names of the requirements that
// apply to a default (no extras) install.
func (md *Metadata) DirectDependencies() []string {
	var ret []string
	for _, req := range md.RequiresDist {
		if req.ExtraOnly() {
			continue
		}
		ret = append(ret, req.Name)
	}
	return ret
}
