package cli

import (
	"context"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/bootstrap"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/config"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/identity"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/infrastructure/telemetry"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "serve",
		Short:         "Run the HTTP API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "config error", err)
			}
			logger := rootOpts.logger(cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := telemetry.Init(ctx, telemetry.Options{
				Enabled:     cfg.OTelEnabled,
				Stdout:      cfg.OTelStdout,
				ServiceName: "nexus-experience",
			}); err != nil {
				return WrapExitError(ExitCommandError, "telemetry error", err)
			}
			defer telemetry.Shutdown(context.Background())

			rt, err := bootstrap.Open(ctx, cfg, logger)
			if err != nil {
				return WrapExitError(ExitCommandError, "startup error", err)
			}
			defer rt.Close()
			return bootstrap.Serve(ctx, rt, cfg, logger)
		},
	}
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:           "catalog",
		Short:         "Show demos, badges and gating rules",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &config.Config{CatalogPath: path}
			rt, err := bootstrap.Open(cmd.Context(), cfg, rootOpts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load catalog", err)
			}
			defer rt.Close()
			cat := rt.Engine.Catalog
			return rootOpts.formatter(cmd).Success(map[string]interface{}{
				"demos":  cat.Demos(),
				"badges": cat.Badges.All(),
				"gating": cat.Rules,
			}, func(w io.Writer) error { return RenderCatalog(w, cat) })
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "catalog YAML file (defaults to the built-in catalog)")
	return cmd
}

// NewAccountCommand creates the account command.
func NewAccountCommand(rootOpts *RootOptions) *cobra.Command {
	var wallet string
	cmd := &cobra.Command{
		Use:           "account",
		Short:         "Show a wallet's progression",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "config error", err)
			}
			rt, err := bootstrap.Open(cmd.Context(), cfg, rootOpts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return WrapExitError(ExitCommandError, "startup error", err)
			}
			defer rt.Close()

			sum, err := rt.Engine.Summary(cmd.Context(), identity.Connected(wallet))
			if err != nil {
				return WrapExitError(ExitFailure, "failed to load account", err)
			}
			return rootOpts.formatter(cmd).Success(sum, func(w io.Writer) error { return RenderSummary(w, sum) })
		},
	}
	cmd.Flags().StringVar(&wallet, "wallet", "", "wallet address (required)")
	_ = cmd.MarkFlagRequired("wallet")
	return cmd
}
