// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/datawire/island/pkg/cliutil"
	"github.com/datawire/island/pkg/island"
	"github.com/datawire/island/pkg/registry/api"
	"github.com/datawire/island/pkg/registry/client"
)

// entryPointGroup is the entry-point group a registration advertises.
const entryPointGroup = "ap-island"

func init() {
	var flags struct {
		Config   string
		URLs     []string
		Files    []string
		Registry string
		Token    string
		DryRun   bool
	}
	cmd := &cobra.Command{
		Use:   "register [flags]",
		Short: "Register a package version with the registry",

		Long: "Register a package version by pointing the registry at " +
			"externally-hosted distribution files (for example GitHub release " +
			"artifacts).  Each --url is paired positionally with a --file, from " +
			"which the SHA-256 checksum and size are computed; the registry " +
			"re-verifies both against the live URL before accepting the " +
			"registration.  Package metadata comes from island.yaml.",

		Args: cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if len(flags.URLs) == 0 {
				return fmt.Errorf("at least one --url is required")
			}
			if len(flags.Files) != len(flags.URLs) {
				return fmt.Errorf("got %d --url flags but %d --file flags; they pair up one-to-one",
					len(flags.URLs), len(flags.Files))
			}

			file, err := loadBuildFile(flags.Config)
			if err != nil {
				return err
			}
			registration, err := buildRegistration(file, flags.URLs, flags.Files)
			if err != nil {
				return err
			}

			if flags.DryRun {
				payload, err := json.MarshalIndent(registration, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(payload))
				return nil
			}

			token := flags.Token
			if token == "" {
				return fmt.Errorf("authentication required; pass --token or set ISLAND_TOKEN")
			}
			c := &client.Client{BaseURL: flags.Registry, Token: token}
			resp, err := c.Register(ctx, registration)
			if err != nil {
				return err
			}
			dlog.Infof(ctx, "registered %s %s (%d distributions)",
				resp.PackageName, resp.Version, len(resp.RegisteredDistributions))
			fmt.Fprintln(cmd.OutOrStdout(), resp.RegistryURL)
			return nil
		},
	}
	cmd.Flags().StringVarP(&flags.Config, "config", "c", "island.yaml",
		"Build configuration `FILE`")
	cmd.Flags().StringSliceVarP(&flags.URLs, "url", "u", nil,
		"HTTPS `URL` of a hosted distribution file (repeatable)")
	cmd.Flags().StringSliceVarP(&flags.Files, "file", "f", nil,
		"Local `FILE` to compute the paired URL's checksum and size from (repeatable)")
	cmd.Flags().StringVarP(&flags.Registry, "registry", "r", envOr("ISLAND_REGISTRY", client.DefaultBaseURL),
		"Registry base `URL`")
	cmd.Flags().StringVarP(&flags.Token, "token", "t", os.Getenv("ISLAND_TOKEN"),
		"API `TOKEN` for authentication")
	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false,
		"Print the registration payload without submitting it")

	argparser.AddCommand(cmd)
}

func buildRegistration(file *buildFile, urls, files []string) (*api.PackageRegistration, error) {
	entryPoints := file.EntryPoints[entryPointGroup]
	if len(entryPoints) == 0 {
		return nil, fmt.Errorf("no %q entry points in the build config", entryPointGroup)
	}

	distributions := make([]api.RegistrationDistribution, 0, len(urls))
	for i, assetURL := range urls {
		filename := assetURL[strings.LastIndexByte(assetURL, '/')+1:]
		sha256sum, size, err := fileDigest(files[i])
		if err != nil {
			return nil, err
		}
		distributions = append(distributions, api.RegistrationDistribution{
			Filename:    filename,
			URL:         assetURL,
			SHA256:      sha256sum,
			Size:        size,
			PlatformTag: distributionPlatformTag(filename),
		})
	}

	return &api.PackageRegistration{
		Name:             file.Name,
		Version:          file.Version,
		Game:             file.GameName,
		Description:      file.Description,
		Authors:          file.Authors,
		MinimumAPVersion: file.MinimumAPVersion,
		MaximumAPVersion: file.MaximumAPVersion,
		Keywords:         file.Keywords,
		Homepage:         file.Homepage,
		Repository:       file.Repository,
		License:          file.License,
		EntryPoints:      entryPoints,
		Distributions:    distributions,
	}, nil
}

// distributionPlatformTag extracts the compatibility tag from a
// distribution filename; sdists get the tag "source".
func distributionPlatformTag(filename string) string {
	if strings.HasSuffix(filename, island.SdistExtension) {
		return "source"
	}
	if data, err := island.ParseFilename(filename); err == nil {
		return data.Tag.String()
	}
	return "py3-none-any"
}

func fileDigest(filename string) (string, int64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()
	hasher := sha256.New()
	size, err := io.Copy(hasher, file)
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w", filename, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}
