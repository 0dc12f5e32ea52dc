package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dmitrijs2005/datawallet/internal/timex"
)

// fileConfig is the on-disk shape, shared by JSON and TOML. Absent keys
// leave the current value alone, which is why the scalars are pointers.
type fileConfig struct {
	BackboneURL  *string `json:"backbone_url" toml:"backbone_url"`
	ClientID     *string `json:"client_id" toml:"client_id"`
	ClientSecret *string `json:"client_secret" toml:"client_secret"`
	DataDir      *string `json:"data_dir" toml:"data_dir"`

	PageSize               *int            `json:"page_size" toml:"page_size"`
	PushBatchSize          *int            `json:"push_batch_size" toml:"push_batch_size"`
	FetchTimeout           *timex.Duration `json:"fetch_timeout" toml:"fetch_timeout"`
	PushTimeout            *timex.Duration `json:"push_timeout" toml:"push_timeout"`
	RunTimeout             *timex.Duration `json:"run_timeout" toml:"run_timeout"`
	MaxSyncErrorCount      *int            `json:"max_sync_error_count" toml:"max_sync_error_count"`
	FailurePolicy          *string         `json:"failure_policy" toml:"failure_policy"`
	Coalesce               *bool           `json:"coalesce" toml:"coalesce"`
	DatawalletSyncInterval *timex.Duration `json:"datawallet_sync_interval" toml:"datawallet_sync_interval"`

	PushNotifications *bool    `json:"push_notifications" toml:"push_notifications"`
	RequestsPerSecond *float64 `json:"requests_per_second" toml:"requests_per_second"`

	LogLevel  *string `json:"log_level" toml:"log_level"`
	LogFormat *string `json:"log_format" toml:"log_format"`
}

// parseFile overlays cfg with the file at path. Files ending in .toml are
// TOML, everything else is JSON. An empty path loads nothing.
func parseFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &fc)
	} else {
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	fc.apply(cfg)
	return nil
}

func (fc *fileConfig) apply(cfg *Config) {
	set(&cfg.BackboneURL, fc.BackboneURL)
	set(&cfg.ClientID, fc.ClientID)
	set(&cfg.ClientSecret, fc.ClientSecret)
	set(&cfg.DataDir, fc.DataDir)
	set(&cfg.PageSize, fc.PageSize)
	set(&cfg.PushBatchSize, fc.PushBatchSize)
	setDuration(&cfg.FetchTimeout, fc.FetchTimeout)
	setDuration(&cfg.PushTimeout, fc.PushTimeout)
	setDuration(&cfg.RunTimeout, fc.RunTimeout)
	set(&cfg.MaxSyncErrorCount, fc.MaxSyncErrorCount)
	set(&cfg.FailurePolicy, fc.FailurePolicy)
	set(&cfg.Coalesce, fc.Coalesce)
	setDuration(&cfg.DatawalletSyncInterval, fc.DatawalletSyncInterval)
	set(&cfg.PushNotifications, fc.PushNotifications)
	set(&cfg.RequestsPerSecond, fc.RequestsPerSecond)
	set(&cfg.LogLevel, fc.LogLevel)
	set(&cfg.LogFormat, fc.LogFormat)
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}
