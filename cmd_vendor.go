// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/datawire/island/pkg/island"
	"github.com/datawire/island/pkg/vendoring"
)

func init() {
	var flags struct {
		Config      string
		Out         string
		Python      string
		Exclude     []string
		HostModules []string
		HostCore    string
	}
	cmd := &cobra.Command{
		Use:   "vendor [flags] [REQUIREMENT...]",
		Short: "Vendor pip dependencies into a directory",

		Long: "Resolve the package's dependencies, download their wheels with pip, " +
			"copy their module trees into a vendor directory, and rewrite the " +
			"vendored imports to the {package}._vendor namespace.  With no " +
			"REQUIREMENT arguments, the dependency list comes from island.yaml.",

		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			file, err := loadBuildFile(flags.Config)
			if err != nil {
				return err
			}
			owner, err := island.NormalizeName(file.Name)
			if err != nil {
				return err
			}

			requirements := args
			if len(requirements) == 0 {
				requirements = file.Dependencies
			}
			if len(requirements) == 0 {
				dlog.Infof(ctx, "nothing to vendor")
				return nil
			}

			packager := &vendoring.Packager{
				Resolver: &vendoring.Resolver{
					Downloader:      vendoring.PipDownloader{Python: flags.Python},
					Exclude:         append(file.VendorExclude, flags.Exclude...),
					HostModules:     flags.HostModules,
					HostCorePackage: flags.HostCore,
				},
				OwnerPackage: owner,
			}
			result, err := packager.Vendor(ctx, requirements, flags.Out)
			if err != nil {
				return err
			}

			for _, pkg := range result.Packages {
				dlog.Infof(ctx, "vendored %s %s (modules %v)", pkg.Name, pkg.Version, pkg.Modules)
			}
			dlog.Infof(ctx, "rewrote %d files (%d untouched); effective tag %s",
				result.RewriteStats.Rewritten, result.RewriteStats.Preserved, result.EffectiveTag)
			fmt.Fprintln(cmd.OutOrStdout(), flags.Out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&flags.Config, "config", "c", "island.yaml",
		"Build configuration `FILE`")
	cmd.Flags().StringVarP(&flags.Out, "out", "o", "_vendor",
		"Write the vendored tree to `DIR`")
	cmd.Flags().StringVar(&flags.Python, "python", "",
		"Python `INTERPRETER` to run pip with (default \"python3\")")
	cmd.Flags().StringSliceVar(&flags.Exclude, "exclude", nil,
		"Additional package `NAMES` never to vendor")
	cmd.Flags().StringSliceVar(&flags.HostModules, "host-module", nil,
		"Module `NAMES` provided by the host runtime; not vendored, imports left alone")
	cmd.Flags().StringVar(&flags.HostCore, "host-core", "",
		"Meta-package `NAME` whose whole dependency closure the host runtime provides")

	argparser.AddCommand(cmd)
}
