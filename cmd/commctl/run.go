// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/someonegg/commpump"
	"github.com/someonegg/commpump/config"
	"github.com/someonegg/commpump/framing"
	"github.com/someonegg/commpump/metrics"
)

func runCmd(g *globals) *cobra.Command {
	var dump bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the endpoints of the config file",
		Long: `Run starts one communicator per configured endpoint and keeps them
running until interrupted. Metrics are served when metrics.addr is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			if len(cfg.Endpoints) == 0 {
				return errors.New("no endpoints configured")
			}
			logger, err := g.logger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			var w io.Writer
			if dump {
				w = cmd.OutOrStdout()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger, w)
		},
	}

	cmd.Flags().BoolVar(&dump, "dump", false, "dump received data to stdout")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, dump io.Writer) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	col := metrics.NewCollector(cfg.Metrics.Namespace, reg, logger)

	var comms []*commpump.Communicator
	defer func() {
		for _, c := range comms {
			c.Close()
			col.Forget(c.ID())
		}
	}()
	for _, e := range cfg.Endpoints {
		c := newEndpoint(e, logger, col, dump)
		c.Start()
		comms = append(comms, c)
	}

	eg, ctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		eg.Go(func() error {
			logger.Info("serving metrics", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down", zap.Int("endpoints", len(comms)))
		return nil
	})

	return eg.Wait()
}

func newEndpoint(e config.EndpointConfig, logger *zap.Logger, col *metrics.Collector, dump io.Writer) *commpump.Communicator {
	q := e.NewQueue()
	opts := []commpump.Option{
		commpump.WithLogger(logger),
		commpump.WithObserver(col),
	}
	if dump != nil {
		d := &commpump.Dump{Dump: dump}
		q = &commpump.DumpQueue{Queue: q, D: d, ID: e.ID}
		opts = append(opts, commpump.WithObserver(d))
	}
	opts = append(opts, e.Options(q)...)

	frames := framing.HandlerFunc[[]byte](func(id string, m []byte) {
		logger.Info("frame", zap.String("id", id), zap.Int("bytes", len(m)))
	})
	if fw := e.NewFrameWrapper(frames, logger); fw != nil {
		opts = append(opts, commpump.WithFrameWrapper(fw))
	}

	c := commpump.New(opts...)
	c.Init(e.Address, e.Persistent, e.ID, e.Inactivity, e.SendGap)
	return c
}
