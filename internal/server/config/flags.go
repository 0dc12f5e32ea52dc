package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/datawallet/internal/flagx"
)

var ownFlags = []string{
	"-a", "-d", "-s", "-t", "-r", "-u", "-p", "-b", "-g", "-e",
	"-client-id", "-client-secret", "-host", "-admin-secret", "-log-level", "-log-format",
}

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags:
//
//	-a string              HTTP bind address (e.g., ":8080")
//	-d string              PostgreSQL DSN
//	-s string              JWT HMAC secret key
//	-t int                 access token validity, minutes
//	-r int                 refresh token validity, minutes
//	-u string              S3 root user
//	-p string              S3 root password
//	-b string              S3 bucket name
//	-g string              S3 region
//	-e string              S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-client-id string      accepted OAuth2 client id
//	-client-secret string  accepted OAuth2 client secret
//	-host string           host part of identity addresses
//	-admin-secret string   enables the admin endpoints
//	-log-level string      debug, info, warn or error
//	-log-format string     text or json
//
// Duration flags are accepted as integers in minutes.
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("backbone", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.ListenAddr, "a", config.ListenAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.ClientID, "client-id", config.ClientID, "OAuth2 client id")
	fs.StringVar(&config.ClientSecret, "client-secret", config.ClientSecret, "OAuth2 client secret")
	fs.StringVar(&config.AddressHost, "host", config.AddressHost, "address host")
	fs.StringVar(&config.AdminSecret, "admin-secret", config.AdminSecret, "admin secret")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "log-format", config.LogFormat, "log format")

	if err := fs.Parse(flagx.FilterArgs(args, ownFlags)); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
	return nil
}
