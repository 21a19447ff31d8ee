// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commpump

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// handle is one open transport, owned by the receiving loop until it is
// detached from the peer.
type handle interface {
	// Receive reads the next chunk. from is the sender when the call
	// captured it, nil otherwise.
	Receive(p []byte) (n int, from net.Addr, err error)
	Write(p []byte) (int, error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// link opens handles to one Address.
type link interface {
	open(ctx context.Context) (handle, error)
	// datagram links count as connected on the first receive.
	datagram() bool
	// reusable is false when the link can open a single handle only.
	reusable() bool
}

func newLink(addr Address, o *options) (link, error) {
	switch addr.Scheme {
	case TCP:
		l := &tcpLink{addr: addr.HostPort(), timeout: o.connectTimeout}
		if b := addr.BindHostPort(); b != "" {
			ta, err := net.ResolveTCPAddr("tcp", b)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
			}
			l.bind = ta
		}
		return l, nil
	case UDP:
		return newUDPLink(addr, o)
	case Serial:
		return &serialLink{device: addr.Device, baud: addr.Baud}, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, addr)
}

type tcpLink struct {
	addr    string
	bind    *net.TCPAddr
	timeout time.Duration
}

func (l *tcpLink) open(ctx context.Context) (handle, error) {
	d := net.Dialer{Timeout: l.timeout}
	if l.bind != nil {
		d.LocalAddr = l.bind
	}
	conn, err := d.DialContext(ctx, "tcp", l.addr)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransportFault, err)
	}
	return &streamHandle{conn}, nil
}

func (l *tcpLink) datagram() bool { return false }
func (l *tcpLink) reusable() bool { return true }

// connLink serves a connection accepted elsewhere.
type connLink struct {
	conn net.Conn
	used atomic.Bool
}

func (l *connLink) open(ctx context.Context) (handle, error) {
	if l.used.Swap(true) {
		return nil, errConnUsed
	}
	return &streamHandle{l.conn}, nil
}

func (l *connLink) datagram() bool { return false }
func (l *connLink) reusable() bool { return false }

type streamHandle struct {
	conn net.Conn
}

func (h *streamHandle) Receive(p []byte) (int, net.Addr, error) {
	n, err := h.conn.Read(p)
	return n, nil, err
}

func (h *streamHandle) Write(p []byte) (int, error)        { return h.conn.Write(p) }
func (h *streamHandle) SetWriteDeadline(t time.Time) error { return h.conn.SetWriteDeadline(t) }
func (h *streamHandle) Close() error                       { return h.conn.Close() }
