// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/datawire/dlib/dhttp"
	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/datawire/island/pkg/cliutil"
	"github.com/datawire/island/pkg/registry"
	"github.com/datawire/island/pkg/registry/auth"
	"github.com/datawire/island/pkg/registry/store"
)

var argparserRegistry = &cobra.Command{
	Use:   "registry {[flags]|SUBCOMMAND...}",
	Short: "Run and administer an island package registry",

	Args: cliutil.OnlySubcommands,
	RunE: cliutil.RunSubcommands,
}

var argparserToken = &cobra.Command{
	Use:   "token {[flags]|SUBCOMMAND...}",
	Short: "Manage registry API tokens",

	Args: cliutil.OnlySubcommands,
	RunE: cliutil.RunSubcommands,
}

func init() {
	argparser.AddCommand(argparserRegistry)
	argparserRegistry.AddCommand(argparserToken)
}

// openStore connects to Postgres, or falls back to the in-memory store
// when no DSN is given.
func openStore(cmd *cobra.Command, dsn string) (store.Store, error) {
	ctx := cmd.Context()
	if dsn == "" {
		dlog.Warnf(ctx, "no --database given; using a non-persistent in-memory store")
		return store.NewMemory(), nil
	}
	pg, err := store.NewPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		return nil, err
	}
	return pg, nil
}

func init() {
	var flags struct {
		Listen       string
		Database     string
		BaseURL      string
		OIDCIssuer   string
		OIDCAudience string
	}
	cmd := &cobra.Command{
		Use:   "serve [flags]",
		Short: "Run the registry HTTP service",

		Long: "Serve the /v1/island API: registration with URL verification, " +
			"package discovery, redirect downloads, yanking, and collaborator " +
			"management.  With --oidc-issuer set, CI-issued OIDC tokens are " +
			"accepted for trusted publishing alongside API tokens.",

		Args: cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := openStore(cmd, flags.Database)
			if err != nil {
				return err
			}

			authn := &auth.Authenticator{Store: st}
			if flags.OIDCIssuer != "" {
				authn.OIDC = auth.NewOIDCVerifier(auth.OIDCConfig{
					Issuer:   flags.OIDCIssuer,
					Audience: flags.OIDCAudience,
				})
			}

			service := &registry.Service{
				Store:    st,
				Auth:     authn,
				Verifier: &registry.Verifier{},
				BaseURL:  flags.BaseURL,
			}

			dlog.Infof(ctx, "listening on %s", flags.Listen)
			sc := &dhttp.ServerConfig{Handler: service.Handler()}
			return sc.ListenAndServe(ctx, flags.Listen)
		},
	}
	cmd.Flags().StringVarP(&flags.Listen, "listen", "l", ":8080",
		"Listen `ADDRESS`")
	cmd.Flags().StringVar(&flags.Database, "database", envOr("ISLAND_DATABASE", ""),
		"Postgres `DSN`; empty runs an in-memory store for development")
	cmd.Flags().StringVar(&flags.BaseURL, "base-url", "",
		"Externally visible `URL` of this registry, reported in registration responses")
	cmd.Flags().StringVar(&flags.OIDCIssuer, "oidc-issuer", "",
		"OIDC issuer `URL` to accept trusted-publisher tokens from")
	cmd.Flags().StringVar(&flags.OIDCAudience, "oidc-audience", "",
		"Required `AUDIENCE` claim for trusted-publisher tokens")

	argparserRegistry.AddCommand(cmd)
}

func init() {
	var flags struct {
		Database string
		User     string
		Name     string
		Scopes   []string
		TTL      time.Duration
	}
	cmd := &cobra.Command{
		Use:   "mint [flags]",
		Short: "Mint a new API token",

		Long: "Mint an API token for a user.  The plaintext token is printed " +
			"exactly once; only its SHA-256 hash is stored.",

		Args: cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := openStore(cmd, flags.Database)
			if err != nil {
				return err
			}

			var expiresAt *time.Time
			if flags.TTL > 0 {
				expiry := time.Now().Add(flags.TTL)
				expiresAt = &expiry
			}
			plaintext, token, err := auth.MintToken(ctx, st, flags.User, flags.Name, flags.Scopes, expiresAt)
			if err != nil {
				return err
			}

			dlog.Infof(ctx, "minted token %d (%s) for %s", token.ID, token.Name, token.UserID)
			fmt.Fprintln(cmd.OutOrStdout(), plaintext)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.Database, "database", envOr("ISLAND_DATABASE", ""),
		"Postgres `DSN`")
	cmd.Flags().StringVar(&flags.User, "user", "",
		"`USER` the token authenticates as")
	cmd.Flags().StringVar(&flags.Name, "name", "",
		"Human-readable token `NAME`")
	cmd.Flags().StringSliceVar(&flags.Scopes, "scope", []string{auth.ScopeAll},
		"Token `SCOPES`")
	cmd.Flags().DurationVar(&flags.TTL, "ttl", 0,
		"Token lifetime; 0 means no expiry")
	_ = cmd.MarkFlagRequired("user")

	argparserToken.AddCommand(cmd)
}

func init() {
	var flags struct {
		Database string
	}
	cmd := &cobra.Command{
		Use:   "revoke [flags] TOKEN_ID",
		Short: "Revoke an API token",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid token ID %q: %w", args[0], err)
			}
			st, err := openStore(cmd, flags.Database)
			if err != nil {
				return err
			}
			if err := st.RevokeToken(ctx, id); err != nil {
				return err
			}
			dlog.Infof(ctx, "revoked token %d", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.Database, "database", envOr("ISLAND_DATABASE", ""),
		"Postgres `DSN`")

	argparserToken.AddCommand(cmd)
}
