package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/quickchat/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string   base URL of the chat server
//	-w string   realtime channel URL
//	-d string   path to the local SQLite database
//	-t int      request timeout (in seconds)
//	-l string   log level (debug, info, warn, error)
//	-i int      realtime channel check interval (in seconds)
//
// os.Args is filtered with flagx.FilterArgs first so flags owned by other
// components do not break parsing.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-w", "-d", "-t", "-l", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the chat server")
	fs.StringVar(&cfg.RealtimeURL, "w", cfg.RealtimeURL, "realtime channel URL (defaults to the server URL)")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "path to the local database")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	checkInterval := fs.Int("i", int(cfg.ChannelCheckInterval.Seconds()), "realtime channel check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
	cfg.ChannelCheckInterval = time.Duration(*checkInterval) * time.Second
}
