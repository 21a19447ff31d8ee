// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commpump

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// peer is the remote end of one Communicator.
type peer struct {
	id         string
	addr       Address
	persistent bool

	mu        sync.Mutex
	h         handle
	connected bool
	srcIP     string
	srcPort   int
	srcOctets [4]byte

	lastActivity atomic.Int64
}

func newPeer(id string, addr Address, persistent bool) *peer {
	p := &peer{id: id, addr: addr, persistent: persistent}
	p.setSource(nil)
	return p
}

// attach installs h as the current handle.
func (p *peer) attach(h handle) {
	p.mu.Lock()
	p.h = h
	p.mu.Unlock()
}

// current returns the current handle, nil when detached.
func (p *peer) current() handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.h
}

// up marks the peer connected, reports whether that is a transition.
func (p *peer) up() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected || p.h == nil {
		return false
	}
	p.connected = true
	return true
}

// detach removes h if it is still the current handle. ok is false when h was
// already detached; wasUp reports whether the peer was connected.
func (p *peer) detach(h handle) (wasUp, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.h == nil || p.h != h {
		return false, false
	}
	p.h = nil
	wasUp = p.connected
	p.connected = false
	return wasUp, true
}

func (p *peer) isConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// setSource records the sender of the first datagram, nil restores the
// configured remote.
func (p *peer) setSource(from net.Addr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ua, ok := from.(*net.UDPAddr); ok {
		p.srcIP = ua.IP.String()
		p.srcPort = ua.Port
		p.srcOctets = octets(ua.IP)
		return
	}
	p.srcIP, p.srcPort, p.srcOctets = p.addr.Host, p.addr.Port, p.addr.Octets()
}

func (p *peer) source() (ip string, port int, o [4]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.srcIP, p.srcPort, p.srcOctets
}

func (p *peer) touch(now time.Time) {
	p.lastActivity.Store(now.UnixNano())
}

func (p *peer) idle(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, p.lastActivity.Load()))
}
