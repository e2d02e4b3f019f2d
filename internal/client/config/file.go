package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/quickchat/internal/flagx"
	"github.com/dmitrijs2005/quickchat/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. Durations use
// timex.Duration so either "10s" or integer nanoseconds are accepted.
// Zero values leave the corresponding setting untouched.
type FileConfig struct {
	ServerURL      string         `json:"server_url" yaml:"server_url"`
	RealtimeURL    string         `json:"realtime_url" yaml:"realtime_url"`
	DBPath         string         `json:"db_path" yaml:"db_path"`
	RequestTimeout timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	LogLevel       string         `json:"log_level" yaml:"log_level"`
	LogFormat      string         `json:"log_format" yaml:"log_format"`

	ChannelCheckInterval timex.Duration `json:"channel_check_interval" yaml:"channel_check_interval"`
}

// parseFile overlays cfg with the file named by -c/-config (or
// $QUICKCHAT_CONFIG). Files ending in .yaml or .yml are read as YAML,
// everything else as JSON. Read or decode errors panic.
func parseFile(cfg *Config) {
	path := flagx.ConfigFile()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		panic(err)
	}

	fc.apply(cfg)
}

func (fc FileConfig) apply(cfg *Config) {
	if fc.ServerURL != "" {
		cfg.ServerURL = fc.ServerURL
	}
	if fc.RealtimeURL != "" {
		cfg.RealtimeURL = fc.RealtimeURL
	}
	if fc.DBPath != "" {
		cfg.DBPath = fc.DBPath
	}
	if fc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = fc.RequestTimeout.Duration
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.LogFormat != "" {
		cfg.LogFormat = fc.LogFormat
	}
	if fc.ChannelCheckInterval.Duration > 0 {
		cfg.ChannelCheckInterval = fc.ChannelCheckInterval.Duration
	}
}
