// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commpump

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.bug.st/serial"
)

type serialLink struct {
	device string
	baud   int
}

func (l *serialLink) open(ctx context.Context) (handle, error) {
	port, err := serial.Open(l.device, &serial.Mode{
		BaudRate: l.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %v: %v", ErrTransportFault, l.device, err)
	}
	return &serialHandle{port}, nil
}

func (l *serialLink) datagram() bool { return false }
func (l *serialLink) reusable() bool { return true }

type serialHandle struct {
	port serial.Port
}

func (h *serialHandle) Receive(p []byte) (int, net.Addr, error) {
	n, err := h.port.Read(p)
	return n, nil, err
}

func (h *serialHandle) Write(p []byte) (int, error) { return h.port.Write(p) }

// SetWriteDeadline is a no-op, serial writes are bounded by the baud rate.
func (h *serialHandle) SetWriteDeadline(t time.Time) error { return nil }

func (h *serialHandle) Close() error { return h.port.Close() }
