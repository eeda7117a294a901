// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io/fs"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/datawire/island/pkg/island/build"
)

// buildFile is the on-disk island.yaml build configuration: the builder
// config plus the entry points to ship in entry_points.txt.
type buildFile struct {
	build.Config

	// EntryPoints maps group name to entry name to "module:attr".
	EntryPoints map[string]map[string]string `json:"entry_points,omitempty"`
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func loadBuildFile(filename string) (*buildFile, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, &fs.PathError{
			Op:   "load build config",
			Path: filename,
			Err:  err,
		}
	}
	var file buildFile
	if err := yaml.UnmarshalStrict(raw, &file); err != nil {
		return nil, fmt.Errorf("load build config %q: %w", filename, err)
	}
	return &file, nil
}
