// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command mattermost-extchat links CasualChat, a Mattermost-based chat
// platform, with Telegram accounts reached through a TDLib JSON gateway.
// Messages are relayed both ways under one linked identity per user.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aiku/mattermost-extchat/pkg/bridge"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const Version = "0.1.0"

var (
	configPath     string
	generateConfig bool
	noUpdate       bool
)

var rootCmd = &cobra.Command{
	Use:           "mattermost-extchat",
	Short:         "A CasualChat-Telegram bridge",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("mattermost-extchat %s (tag %s, commit %s, built %s)\n", Version, Tag, Commit, BuildTime)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "the path to your config file")
	rootCmd.Flags().BoolVarP(&generateConfig, "generate-example-config", "e", false, "save the example config to the config path and quit")
	rootCmd.Flags().BoolVarP(&noUpdate, "no-update", "n", false, "don't save updated config to disk")
	rootCmd.AddCommand(versionCmd)
}

func run(cmd *cobra.Command, _ []string) error {
	if generateConfig {
		if err := os.WriteFile(configPath, []byte(bridge.ExampleConfig), 0o600); err != nil {
			return fmt.Errorf("failed to write example config: %w", err)
		}
		cmd.Printf("Wrote example config to %s\n", configPath)
		return nil
	}

	cfg, err := bridge.Load(configPath, !noUpdate)
	if err != nil {
		return err
	}
	log, err := cfg.Logging.Compile()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	br := bridge.New(cfg, *log, Version)
	if err := br.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	log.Info().Msg("Shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	br.Stop(stopCtx)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
