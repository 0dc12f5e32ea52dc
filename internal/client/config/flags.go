package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/datawallet/internal/flagx"
)

var ownFlags = []string{
	"-a", "-d", "-client-id", "-client-secret",
	"-page-size", "-batch-size", "-policy", "-push", "-rps",
	"-log-level", "-log-format",
}

// parseFlags overlays cfg with command-line flags. Flags owned by other
// loaders are filtered out first.
//
//	-a string              backbone base url
//	-d string              data directory
//	-client-id string      OAuth2 client id
//	-client-secret string  OAuth2 client secret
//	-page-size int         events and modifications per page
//	-batch-size int        modifications per push request
//	-policy string         "block" or "skip" on permanently failing events
//	-push                  listen for push notifications
//	-rps float             backbone requests per second, 0 for unlimited
//	-log-level string      debug, info, warn or error
//	-log-format string     text or json
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("walletcli", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BackboneURL, "a", cfg.BackboneURL, "backbone base url")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.ClientID, "client-id", cfg.ClientID, "OAuth2 client id")
	fs.StringVar(&cfg.ClientSecret, "client-secret", cfg.ClientSecret, "OAuth2 client secret")
	fs.IntVar(&cfg.PageSize, "page-size", cfg.PageSize, "events and modifications per page")
	fs.IntVar(&cfg.PushBatchSize, "batch-size", cfg.PushBatchSize, "modifications per push request")
	fs.StringVar(&cfg.FailurePolicy, "policy", cfg.FailurePolicy, "block or skip permanently failing events")
	fs.BoolVar(&cfg.PushNotifications, "push", cfg.PushNotifications, "listen for push notifications")
	fs.Float64Var(&cfg.RequestsPerSecond, "rps", cfg.RequestsPerSecond, "backbone requests per second")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format")

	if err := fs.Parse(flagx.FilterArgs(args, ownFlags)); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
