// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/someonegg/commpump"
	"github.com/someonegg/commpump/config"
	"github.com/someonegg/commpump/framing"
)

func sendCmd(g *globals) *cobra.Command {
	var (
		isHex   bool
		framed  bool
		timeout time.Duration
		wait    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send ADDRESS PAYLOAD",
		Short: "Send one payload to an address",
		Long: `Send connects to ADDRESS, sends PAYLOAD once and, with --wait, dumps
what the peer sends back during that time.

  commctl send tcp://127.0.0.1:7000 hello
  commctl send --hex udp://127.0.0.1:9002:0.0.0.0:9001 010203`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := []byte(args[1])
			if isHex {
				var err error
				if payload, err = hex.DecodeString(args[1]); err != nil {
					return fmt.Errorf("bad hex payload: %w", err)
				}
			}

			logger, err := g.logger(config.Default().Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			up := make(chan struct{}, 1)
			opts := []commpump.Option{
				commpump.WithLogger(logger),
				commpump.WithConnectTimeout(timeout),
				commpump.WithObserver(commpump.ObserverFuncs{
					OnConnection: func(id string, addr commpump.Address, connected bool) {
						if connected {
							select {
							case up <- struct{}{}:
							default:
							}
						}
					},
				}),
				commpump.WithObserver(&commpump.Dump{Dump: cmd.OutOrStdout()}),
			}

			c := commpump.New(opts...)
			c.Init(args[0], false, "commctl", 0, 0)
			if c.ID() == "" {
				return fmt.Errorf("%w: %s", commpump.ErrInvalidAddress, args[0])
			}
			c.Start()
			defer c.Close()

			select {
			case <-up:
			case <-time.After(timeout):
				return fmt.Errorf("%w: %s", commpump.ErrConnectTimeout, args[0])
			}

			out := payload
			if framed {
				if out, err = (lengthEncoder{}).Data2BytesSync(payload); err != nil {
					return err
				}
			}
			if !c.SendSync(out) {
				return errors.New("send failed")
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "sent %d bytes to %s\n", len(out), c.Address())

			if wait > 0 {
				time.Sleep(wait)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&isHex, "hex", false, "PAYLOAD is hex encoded")
	cmd.Flags().BoolVar(&framed, "length-prefixed", false, "prefix PAYLOAD with its 4-byte little-endian length")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "connect timeout")
	cmd.Flags().DurationVar(&wait, "wait", 0, "time to dump replies after sending")
	return cmd
}

// lengthEncoder frames payloads the way framing.LengthPrefixed decodes them.
type lengthEncoder struct{}

func (lengthEncoder) Data2BytesSync(m []byte) ([]byte, error) {
	return framing.LengthPrefixed{}.Encode(nil, m)
}
