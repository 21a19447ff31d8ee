// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commpump

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Scheme names the transport of an Address.
type Scheme string

const (
	TCP    Scheme = "tcp"
	UDP    Scheme = "udp"
	Serial Scheme = "serial"
)

// Address is a parsed endpoint address. Its syntax is:
//   tcp://host:port[:bindHost:bindPort]
//   udp://host:port[:bindHost[:bindPort]]
//   serial://device:baudrate
//
// A udp host may carry a leading '@' (udp://@239.1.1.1:5000), and may be
// empty for a receive-only endpoint.
type Address struct {
	Scheme Scheme

	Host     string
	Port     int
	BindHost string
	BindPort int

	Device string
	Baud   int
}

// ParseAddress parses s. Errors wrap ErrInvalidAddress.
func ParseAddress(s string) (Address, error) {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return Address{}, fmt.Errorf("%w: %q: missing scheme", ErrInvalidAddress, s)
	}

	a := Address{Scheme: Scheme(strings.ToLower(scheme))}
	switch a.Scheme {
	case TCP, UDP:
		parts := strings.Split(rest, ":")
		if len(parts) < 2 || len(parts) > 4 || (a.Scheme == TCP && len(parts) == 3) {
			return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		a.Host = strings.TrimPrefix(parts[0], "@")
		if a.Scheme == TCP && a.Host == "" {
			return Address{}, fmt.Errorf("%w: %q: missing host", ErrInvalidAddress, s)
		}
		var err error
		if a.Port, err = parsePort(parts[1]); err != nil {
			return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
		}
		if a.Scheme == TCP && a.Port == 0 {
			return Address{}, fmt.Errorf("%w: %q: missing port", ErrInvalidAddress, s)
		}
		if len(parts) >= 3 {
			a.BindHost = parts[2]
		}
		if len(parts) == 4 {
			if a.BindPort, err = parsePort(parts[3]); err != nil {
				return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
			}
		}
	case Serial:
		i := strings.LastIndexByte(rest, ':')
		if i <= 0 {
			return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		a.Device = rest[:i]
		baud, err := strconv.Atoi(rest[i+1:])
		if err != nil || baud <= 0 {
			return Address{}, fmt.Errorf("%w: %q: bad baud rate", ErrInvalidAddress, s)
		}
		a.Baud = baud
	default:
		return Address{}, fmt.Errorf("%w: %q: unknown scheme", ErrInvalidAddress, s)
	}
	return a, nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil || p < 0 || p > 65535 {
		return 0, fmt.Errorf("bad port %q", s)
	}
	return p, nil
}

// addressOf builds the tcp Address of a connection's remote end.
func addressOf(a net.Addr) Address {
	host, port, _ := net.SplitHostPort(a.String())
	p, _ := strconv.Atoi(port)
	return Address{Scheme: TCP, Host: host, Port: p}
}

// HostPort returns the remote "host:port".
func (a Address) HostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// BindHostPort returns the local "host:port" to bind, "" when unset.
func (a Address) BindHostPort() string {
	if a.BindHost == "" && a.BindPort == 0 {
		return ""
	}
	return net.JoinHostPort(a.BindHost, strconv.Itoa(a.BindPort))
}

// Octets returns the IPv4 octets of Host, zero when Host is not IPv4.
func (a Address) Octets() [4]byte {
	return octets(net.ParseIP(a.Host))
}

func octets(ip net.IP) (o [4]byte) {
	if ip4 := ip.To4(); ip4 != nil {
		copy(o[:], ip4)
	}
	return
}

func (a Address) String() string {
	switch a.Scheme {
	case Serial:
		return fmt.Sprintf("serial://%s:%d", a.Device, a.Baud)
	case TCP, UDP:
		s := fmt.Sprintf("%s://%s:%d", a.Scheme, a.Host, a.Port)
		if a.BindHost != "" || a.BindPort != 0 {
			s += fmt.Sprintf(":%s:%d", a.BindHost, a.BindPort)
		}
		return s
	}
	return ""
}
