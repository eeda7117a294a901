// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/datawire/island/pkg/cliutil"
	"github.com/datawire/island/pkg/island/build"
	"github.com/datawire/island/pkg/python/pep425"
)

func init() {
	var flags struct {
		Config    string
		OutputDir string
		VendorDir string
		Platform  string
	}
	cmd := &cobra.Command{
		Use:   "build [flags]",
		Short: "Build an .island archive from an island.yaml build config",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),

		Long: "Build a binary .island distribution from the package source tree " +
			"described by island.yaml.  If a vendor directory is given, its contents " +
			"are embedded under {package}/_vendor/ and its vendor manifest is folded " +
			"into island.json.",

		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			file, err := loadBuildFile(flags.Config)
			if err != nil {
				return err
			}

			opts := build.Options{
				OutputDir:   flags.OutputDir,
				VendorDir:   flags.VendorDir,
				EntryPoints: file.EntryPoints,
			}
			if flags.Platform != "" {
				tag, err := pep425.ParseTag(flags.Platform)
				if err != nil {
					return err
				}
				opts.PlatformTag = &tag
			}

			result, err := build.Build(ctx, file.Config, opts)
			if err != nil {
				return err
			}

			dlog.Infof(ctx, "built %s (%d files, %d bytes, tag %s)",
				result.Filename, len(result.Files), result.Size, result.PlatformTag)
			fmt.Fprintln(cmd.OutOrStdout(), result.Path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&flags.Config, "config", "c", "island.yaml",
		"Build configuration `FILE`")
	cmd.Flags().StringVarP(&flags.OutputDir, "output-dir", "o", "dist",
		"Write the .island file to `DIR`")
	cmd.Flags().StringVar(&flags.VendorDir, "vendor-dir", "",
		"Embed the vendored dependencies in `DIR` (as produced by `island vendor`)")
	cmd.Flags().StringVar(&flags.Platform, "platform", "",
		"Override the `PYTHON-ABI-PLATFORM` compatibility tag instead of auto-detecting it")

	argparser.AddCommand(cmd)
}
