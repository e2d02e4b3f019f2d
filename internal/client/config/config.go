package config

import "time"

// Config holds runtime settings for the QuickChat CLI.
//
// Fields:
//   - ServerURL: base URL of the chat backend HTTP API.
//   - RealtimeURL: URL of the realtime channel; empty means ServerURL.
//   - DBPath: SQLite file that keeps the session token between runs.
//   - RequestTimeout: per-request HTTP timeout.
//   - ChannelCheckInterval: how often the client checks that the realtime
//     channel is still up and redials it when not.
//   - LogLevel, LogFormat: slog level name and handler ("text" or "json").
type Config struct {
	ServerURL      string
	RealtimeURL    string
	DBPath         string
	RequestTimeout time.Duration
	LogLevel       string
	LogFormat      string

	ChannelCheckInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://localhost:5000"
	c.RealtimeURL = ""
	c.DBPath = "quickchat.db"
	c.RequestTimeout = 10 * time.Second
	c.LogLevel = "warn"
	c.LogFormat = "text"
	c.ChannelCheckInterval = 5 * time.Second
}

// ChannelURL is the address the realtime channel dials.
func (c *Config) ChannelURL() string {
	if c.RealtimeURL != "" {
		return c.RealtimeURL
	}
	return c.ServerURL
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// a config file (if present) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}
