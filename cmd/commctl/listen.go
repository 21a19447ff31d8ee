// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/someonegg/commpump"
	"github.com/someonegg/commpump/config"
)

func listenCmd(g *globals) *cobra.Command {
	var (
		echo       bool
		inactivity time.Duration
	)

	cmd := &cobra.Command{
		Use:   "listen ADDRESS",
		Short: "Accept tcp connections and dump what they send",
		Long: `Listen accepts tcp connections on ADDRESS (host:port) and dumps every
received chunk to stdout, optionally echoing it back.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := g.logger(config.Default().Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			srv := &commpump.Server{
				Logger:     logger,
				Inactivity: inactivity,
			}
			dump := &commpump.Dump{Dump: cmd.OutOrStdout()}
			if echo {
				srv.Observer = echoObserver{dump, srv}
			} else {
				srv.Observer = dump
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				srv.Close()
			}()

			logger.Info("listening", zap.String("addr", args[0]))
			if err := srv.ListenAndServe(args[0]); !errors.Is(err, commpump.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&echo, "echo", false, "send every received chunk back")
	cmd.Flags().DurationVar(&inactivity, "inactivity", 0, "drop connections silent for this long")
	return cmd
}

type echoObserver struct {
	*commpump.Dump
	srv *commpump.Server
}

func (o echoObserver) DataReady(e *commpump.DataEvent) {
	o.Dump.DataReady(e)
	if c := o.srv.Client(e.PeerID); c != nil {
		c.SendAsync(e.Data)
	}
}
