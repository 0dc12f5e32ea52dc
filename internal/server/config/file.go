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

// fileConfig is the on-disk shape. It uses timex.Duration for lifetimes,
// which accepts both strings such as "15m" and integer nanoseconds.
type fileConfig struct {
	ListenAddr                   *string         `json:"listen_addr" toml:"listen_addr"`
	DatabaseDSN                  *string         `json:"database_dsn" toml:"database_dsn"`
	SecretKey                    *string         `json:"secret_key" toml:"secret_key"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration" toml:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration" toml:"refresh_token_validity_duration"`
	ClientID                     *string         `json:"client_id" toml:"client_id"`
	ClientSecret                 *string         `json:"client_secret" toml:"client_secret"`
	AddressHost                  *string         `json:"address_host" toml:"address_host"`
	AdminSecret                  *string         `json:"admin_secret" toml:"admin_secret"`
	S3RootUser                   *string         `json:"s3_root_user" toml:"s3_root_user"`
	S3RootPassword               *string         `json:"s3_root_password" toml:"s3_root_password"`
	S3Bucket                     *string         `json:"s3_bucket" toml:"s3_bucket"`
	S3Region                     *string         `json:"s3_region" toml:"s3_region"`
	S3BaseEndpoint               *string         `json:"s3_base_endpoint" toml:"s3_base_endpoint"`
	PresignExpiry                *timex.Duration `json:"presign_expiry" toml:"presign_expiry"`
	LogLevel                     *string         `json:"log_level" toml:"log_level"`
	LogFormat                    *string         `json:"log_format" toml:"log_format"`
}

// parseFile overlays cfg with the file at path; .toml files are TOML,
// anything else JSON.
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

	set(&cfg.ListenAddr, fc.ListenAddr)
	set(&cfg.DatabaseDSN, fc.DatabaseDSN)
	set(&cfg.SecretKey, fc.SecretKey)
	setDuration(&cfg.AccessTokenValidityDuration, fc.AccessTokenValidityDuration)
	setDuration(&cfg.RefreshTokenValidityDuration, fc.RefreshTokenValidityDuration)
	set(&cfg.ClientID, fc.ClientID)
	set(&cfg.ClientSecret, fc.ClientSecret)
	set(&cfg.AddressHost, fc.AddressHost)
	set(&cfg.AdminSecret, fc.AdminSecret)
	set(&cfg.S3RootUser, fc.S3RootUser)
	set(&cfg.S3RootPassword, fc.S3RootPassword)
	set(&cfg.S3Bucket, fc.S3Bucket)
	set(&cfg.S3Region, fc.S3Region)
	set(&cfg.S3BaseEndpoint, fc.S3BaseEndpoint)
	setDuration(&cfg.PresignExpiry, fc.PresignExpiry)
	set(&cfg.LogLevel, fc.LogLevel)
	set(&cfg.LogFormat, fc.LogFormat)
	return nil
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
