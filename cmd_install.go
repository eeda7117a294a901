// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/datawire/island/pkg/cliutil"
	"github.com/datawire/island/pkg/registry/client"
)

func init() {
	var flags struct {
		Version   string
		Platform  string
		OutputDir string
		Registry  string
	}
	cmd := &cobra.Command{
		Use:   "install [flags] NAME",
		Short: "Download a package's .island archive from the registry",

		Long: "Look up a package on the registry, pick the best distribution for " +
			"the requested platform (an exact tag match, else the universal " +
			"py3-none-any build), download it, and verify its SHA-256 checksum.  " +
			"A checksum mismatch deletes the partial download.",

		Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c := &client.Client{BaseURL: flags.Registry}
			result, err := c.Install(ctx, args[0], flags.Version, flags.Platform, flags.OutputDir)
			if err != nil {
				return err
			}

			dlog.Infof(ctx, "installed %s (%d bytes, sha256 %s)",
				result.Filename, result.Size, result.SHA256)
			fmt.Fprintln(cmd.OutOrStdout(), result.Path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&flags.Version, "version", "v", "",
		"Package `VERSION` to install (default: the latest non-yanked version)")
	cmd.Flags().StringVarP(&flags.Platform, "platform", "p", "",
		"Preferred `PYTHON-ABI-PLATFORM` compatibility tag")
	cmd.Flags().StringVarP(&flags.OutputDir, "output-dir", "o", ".",
		"Write the downloaded archive to `DIR`")
	cmd.Flags().StringVarP(&flags.Registry, "registry", "r", envOr("ISLAND_REGISTRY", client.DefaultBaseURL),
		"Registry base `URL`")

	argparser.AddCommand(cmd)
}
