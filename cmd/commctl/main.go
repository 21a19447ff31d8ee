// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command commctl runs, probes and serves commpump endpoints.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/someonegg/commpump/config"
)

// Version information set at build time.
var version = "dev"

type globals struct {
	configPath string
	logLevel   string
}

// logger builds the logger of cfg, --log-level wins over the file.
func (g *globals) logger(cfg config.LogConfig) (*zap.Logger, error) {
	if g.logLevel != "" {
		cfg.Level = g.logLevel
	}
	return cfg.Build()
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "commctl",
		Short: "Resilient byte messaging over tcp, udp and serial links",
		Long: `commctl drives commpump communicators.

  run     runs every endpoint of a YAML config file, exporting metrics
  send    connects to one address and sends a payload
  listen  accepts tcp connections and dumps what they send`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		runCmd(g),
		sendCmd(g),
		listenCmd(g),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
