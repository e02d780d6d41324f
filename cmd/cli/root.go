package main

import (
	"context"
	"fmt"
	"os"

	appconfig "github.com/noteforge/core/internal/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cfg := &appconfig.Config{}
	cfg.LoadDefaults()

	root := &cobra.Command{
		Use:   "noteforge",
		Short: "End-to-end encrypted note sync client",
	}
	root.PersistentFlags().StringVar(&cfg.ServerEndpointAddr, "server", cfg.ServerEndpointAddr, "sync server endpoint")
	root.PersistentFlags().StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "local sqlite database path")

	root.AddCommand(newReplCmd(cfg))
	root.AddCommand(newSyncCmd(cfg))
	return root
}

func newReplCmd(cfg *appconfig.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			a.repl(ctx)
			return nil
		},
	}
}

func newSyncCmd(cfg *appconfig.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			a.login(ctx)
			if !a.loggedIn() {
				return fmt.Errorf("login required")
			}
			return a.engine.Sync(ctx)
		},
	}
}

func run() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
