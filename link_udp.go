// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commpump

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"
)

// DefaultMulticastTTL is the TTL of datagrams sent to a multicast group.
const DefaultMulticastTTL = 25

type udpLink struct {
	remote *net.UDPAddr
	bind   string
	group  *net.UDPAddr
	ttl    int
}

func newUDPLink(addr Address, o *options) (*udpLink, error) {
	l := &udpLink{bind: addr.BindHostPort(), ttl: o.multicastTTL}
	if l.bind == "" {
		l.bind = ":0"
	}
	if addr.Host != "" {
		ra, err := net.ResolveUDPAddr("udp", addr.HostPort())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		l.remote = ra
		if ra.IP.IsMulticast() {
			port := addr.BindPort
			if port == 0 {
				port = addr.Port
			}
			l.group = &net.UDPAddr{IP: ra.IP, Port: port}
		}
	}
	return l, nil
}

func (l *udpLink) open(ctx context.Context) (handle, error) {
	if l.group != nil {
		conn, err := net.ListenMulticastUDP("udp4", nil, l.group)
		if err != nil {
			return nil, fmt.Errorf("%w: join %v: %v", ErrTransportFault, l.group, err)
		}
		if err := ipv4.NewPacketConn(conn).SetMulticastTTL(l.ttl); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: multicast ttl: %v", ErrTransportFault, err)
		}
		return &udpHandle{conn: conn, remote: l.remote}, nil
	}

	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", l.bind)
	if err != nil {
		return nil, fmt.Errorf("%w: bind %v: %v", ErrTransportFault, l.bind, err)
	}
	return &udpHandle{conn: pc.(*net.UDPConn), remote: l.remote}, nil
}

func (l *udpLink) datagram() bool { return true }
func (l *udpLink) reusable() bool { return true }

type udpHandle struct {
	conn   *net.UDPConn
	remote *net.UDPAddr

	// only touched by the receiving loop
	captured bool
}

func (h *udpHandle) Receive(p []byte) (int, net.Addr, error) {
	if !h.captured {
		n, from, err := h.conn.ReadFromUDP(p)
		if err != nil {
			return n, nil, err
		}
		h.captured = true
		return n, from, nil
	}
	n, err := h.conn.Read(p)
	return n, nil, err
}

func (h *udpHandle) Write(p []byte) (int, error) {
	if h.remote == nil {
		return 0, errNoRemote
	}
	return h.conn.WriteToUDP(p, h.remote)
}

func (h *udpHandle) SetWriteDeadline(t time.Time) error { return h.conn.SetWriteDeadline(t) }
func (h *udpHandle) Close() error                       { return h.conn.Close() }
