package config

import (
	"flag"
	"os"
	"time"

	"github.com/noteforge/core/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags:
//
//	-a string   server endpoint address
//	-d string   sqlite database path
//	-i int      online-check interval, in seconds
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "sync server endpoint address")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local sqlite database path")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
