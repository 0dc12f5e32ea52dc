package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/datawallet/internal/buildinfo"
	"github.com/dmitrijs2005/datawallet/internal/logging"
	"github.com/dmitrijs2005/datawallet/internal/server"
	"github.com/dmitrijs2005/datawallet/internal/server/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "datawallet-server",
		Short:         "Datawallet backbone",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

// Flags are parsed by config.LoadConfig so that a config file and the
// command line share one precedence order.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "serve [flags]",
		Short:              "Run migrations and serve the HTTP API",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			buildinfo.PrintBuildData(cmd.OutOrStdout())
			app, logger, err := newApp(args)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			if err := app.Migrate(ctx); err != nil {
				return err
			}
			if err := app.Run(ctx); err != nil {
				logger.Error(ctx, "server stopped", "error", err)
				return err
			}
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "migrate [flags]",
		Short:              "Apply database migrations and exit",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := newApp(args)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Migrate(cmd.Context())
		},
	}
}

func newApp(args []string) (*server.App, logging.Logger, error) {
	cfg, err := config.LoadConfig(args)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	app, err := server.NewApp(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return app, logger, nil
}
