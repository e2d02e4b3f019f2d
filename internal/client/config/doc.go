// Package config loads runtime configuration for the QuickChat CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with -c / -config, or the
//     QUICKCHAT_CONFIG environment variable. ".yaml"/".yml" files are
//     decoded as YAML, anything else as JSON.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the chat server
//	-w string   realtime channel URL
//	-d string   path to the local SQLite database
//	-t int      request timeout (seconds)
//	-l string   log level
//	-i int      realtime channel check interval (seconds)
//
// # File schema
//
//	{
//	  "server_url": "http://localhost:5000",
//	  "realtime_url": "ws://localhost:5000",
//	  "db_path": "quickchat.db",
//	  "request_timeout": "10s",
//	  "log_level": "info",
//	  "log_format": "json",
//	  "channel_check_interval": "5s"
//	}
package config
