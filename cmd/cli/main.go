package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/datawallet/internal/buildinfo"
	"github.com/dmitrijs2005/datawallet/internal/client/account"
	"github.com/dmitrijs2005/datawallet/internal/client/backbone"
	"github.com/dmitrijs2005/datawallet/internal/client/cli"
	"github.com/dmitrijs2005/datawallet/internal/client/config"
	"github.com/dmitrijs2005/datawallet/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	connector := &account.BackboneConnector{
		BaseURL: cfg.BackboneURL,
		Credentials: backbone.ClientCredentials{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
		},
		RequestsPerSecond: cfg.RequestsPerSecond,
		Push:              cfg.PushNotifications,
		Logger:            logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cli.NewApp(cfg, connector, os.Stdin, os.Stdout, logger)
	if err := app.Run(ctx); err != nil {
		logger.Error(ctx, "shutdown", "error", err)
		os.Exit(1)
	}
}
