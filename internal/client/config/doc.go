// Package config loads runtime configuration for the wallet CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with -c or -config. Files ending in
//     .toml are read as TOML, any other as JSON.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// # File schema
//
// Durations are strings like "30s" (JSON also accepts integer nanoseconds):
//
//	backbone_url = "https://backbone.example"
//	client_id = "datawallet-cli"
//	data_dir = "/var/lib/datawallet"
//	page_size = 100
//	push_batch_size = 50
//	fetch_timeout = "30s"
//	failure_policy = "block"
//	datawallet_sync_interval = "1m"
//	push_notifications = true
//	log_format = "json"
//
// Keys missing from the file keep their default.
package config
