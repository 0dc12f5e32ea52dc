package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/dmitrijs2005/datawallet/internal/client/syncer"
	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/flagx"
)

// Config holds the runtime settings of the wallet client.
type Config struct {
	BackboneURL  string
	ClientID     string
	ClientSecret string
	DataDir      string

	PageSize               int
	PushBatchSize          int
	FetchTimeout           time.Duration
	PushTimeout            time.Duration
	RunTimeout             time.Duration
	MaxSyncErrorCount      int
	FailurePolicy          string
	Coalesce               bool
	DatawalletSyncInterval time.Duration

	PushNotifications bool
	RequestsPerSecond float64

	LogLevel  string
	LogFormat string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	sc := syncer.DefaultConfig()

	c.BackboneURL = "http://127.0.0.1:8080"
	c.ClientID = "datawallet-cli"
	c.ClientSecret = ""
	c.DataDir = ".datawallet"

	c.PageSize = sc.PageSize
	c.PushBatchSize = sc.PushBatchSize
	c.FetchTimeout = sc.FetchTimeout
	c.PushTimeout = sc.PushTimeout
	c.RunTimeout = sc.RunTimeout
	c.MaxSyncErrorCount = sc.MaxSyncErrorCount
	c.FailurePolicy = string(sc.FailurePolicy)
	c.Coalesce = true
	c.DatawalletSyncInterval = sc.DatawalletSyncInterval

	c.PushNotifications = true
	c.RequestsPerSecond = 10

	c.LogLevel = "info"
	c.LogFormat = "text"
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackboneURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backbone url %q: %w", c.BackboneURL, common.ErrValidation)
	}
	if c.PageSize <= 0 || c.PushBatchSize <= 0 {
		return fmt.Errorf("page size %d, push batch size %d: %w", c.PageSize, c.PushBatchSize, common.ErrValidation)
	}
	if c.MaxSyncErrorCount <= 0 {
		return fmt.Errorf("max sync error count %d: %w", c.MaxSyncErrorCount, common.ErrValidation)
	}
	if !syncer.FailurePolicy(c.FailurePolicy).Valid() {
		return fmt.Errorf("failure policy %q: %w", c.FailurePolicy, common.ErrValidation)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log format %q: %w", c.LogFormat, common.ErrValidation)
	}
	return nil
}

// SyncConfig returns the coordinator settings.
func (c *Config) SyncConfig() syncer.Config {
	return syncer.Config{
		PageSize:               c.PageSize,
		PushBatchSize:          c.PushBatchSize,
		FetchTimeout:           c.FetchTimeout,
		PushTimeout:            c.PushTimeout,
		RunTimeout:             c.RunTimeout,
		MaxSyncErrorCount:      c.MaxSyncErrorCount,
		FailurePolicy:          syncer.FailurePolicy(c.FailurePolicy),
		DatawalletSyncInterval: c.DatawalletSyncInterval,
	}
}

// LoadConfig applies defaults, then the config file named by -c/-config
// (if any), then command-line flags. Later sources take precedence.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseFile(cfg, flagx.ConfigFile(args)); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
