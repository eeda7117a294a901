// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/datawire/island/pkg/cliutil"
	"github.com/datawire/island/pkg/island"
)

func init() {
	cmd := &cobra.Command{
		Use:   "inspect [flags] ARCHIVE.island",
		Short: "Verify and describe an .island archive",

		Long: "Open an .island archive and verify it: the filename grammar, every " +
			"RECORD hash and size, the island.json manifest, and the entry-points " +
			"file.  On success a YAML summary is written to stdout; on failure every " +
			"problem found is reported, not just the first.",

		Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := island.Inspect(args[0])
			if err != nil {
				return err
			}

			summary := struct {
				Name        string                       `json:"name"`
				Version     string                       `json:"version"`
				PlatformTag string                       `json:"platform_tag"`
				Game        string                       `json:"game"`
				EntryPoints map[string]map[string]string `json:"entry_points,omitempty"`
				Files       []string                     `json:"files"`
			}{
				Name:        archive.Filename.Name,
				Version:     archive.Filename.Version,
				PlatformTag: archive.Filename.Tag.String(),
				Game:        archive.Manifest.Game,
				EntryPoints: archive.EntryPoints,
				Files:       archive.Files,
			}
			out, err := yaml.Marshal(summary)
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(out); err != nil {
				return err
			}
			return nil
		},
	}

	argparser.AddCommand(cmd)
}
