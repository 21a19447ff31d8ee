// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commpump

import (
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/someonegg/gox/syncx"
	"go.uber.org/zap"
)

// Server accepts tcp connections and runs one Communicator per connection,
// identified by the remote "host:port".
//
// A Communicator is closed and forgotten when its connection goes down.
type Server struct {
	// Observer, if set, observes every accepted Communicator.
	Observer Observer
	// NewFrameWrapper, if set, creates the FrameWrapper of each connection.
	NewFrameWrapper func(id string) FrameWrapper
	// Options are applied to every accepted Communicator.
	Options []Option
	// Inactivity is passed to Init of every accepted Communicator.
	Inactivity time.Duration
	Logger     *zap.Logger

	mu      sync.Mutex
	l       net.Listener
	clients map[string]*Communicator
	closed  bool
	stopD   syncx.DoneChan
}

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("commpump: server closed")

// ListenAndServe listens on the tcp address laddr and calls Serve.
func (s *Server) ListenAndServe(laddr string) error {
	l, err := net.Listen("tcp", laddr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Close, it always closes l.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.init()
	s.l = l
	s.mu.Unlock()

	logger := s.logger().With(zap.Stringer("listen", l.Addr()))
	logger.Info("server started")
	defer l.Close()

	for {
		conn, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			logger.Error("accept failed", zap.Error(err))
			return err
		}
		s.accept(conn)
	}
}

func (s *Server) init() {
	if s.clients == nil {
		s.clients = make(map[string]*Communicator)
		s.stopD = syncx.NewDoneChan()
	}
}

func (s *Server) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger.With(zap.String("component", "server"))
	}
	return zap.NewNop()
}

func (s *Server) accept(conn net.Conn) {
	id := conn.RemoteAddr().String()

	var opts []Option
	if s.Logger != nil {
		opts = append(opts, WithLogger(s.Logger))
	}
	opts = append(opts, s.Options...)
	opts = append(opts, WithConn(conn))
	if s.NewFrameWrapper != nil {
		opts = append(opts, WithFrameWrapper(s.NewFrameWrapper(id)))
	}
	if s.Observer != nil {
		opts = append(opts, WithObserver(s.Observer))
	}

	c := New(opts...)
	c.Subscribe(ObserverFuncs{
		OnConnection: func(id string, _ Address, connected bool) {
			if !connected {
				// Close joins the receiving goroutine this runs on.
				go s.remove(id, c)
			}
		},
	})
	c.Init("", false, id, s.Inactivity, 0)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[id] = c
	s.mu.Unlock()

	c.Start()
}

func (s *Server) remove(id string, c *Communicator) {
	s.mu.Lock()
	if s.clients[id] == c {
		delete(s.clients, id)
	}
	s.mu.Unlock()
	c.Close()
}

// Clients returns the ids of the connected Communicators, sorted.
func (s *Server) Clients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Client returns the Communicator of id, nil if unknown.
func (s *Server) Client(id string) *Communicator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients[id]
}

// Broadcast queues p on every Communicator, it returns how many accepted it.
func (s *Server) Broadcast(p []byte) int {
	s.mu.Lock()
	cs := make([]*Communicator, 0, len(s.clients))
	for _, c := range s.clients {
		cs = append(cs, c)
	}
	s.mu.Unlock()

	n := 0
	for _, c := range cs {
		if c.SendAsync(p) {
			n++
		}
	}
	return n
}

// Close stops accepting and closes every Communicator.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.init()
	l := s.l
	cs := s.clients
	s.clients = map[string]*Communicator{}
	s.mu.Unlock()

	var err error
	if l != nil {
		err = l.Close()
	}
	for _, c := range cs {
		c.Close()
	}
	s.stopD.SetDone()
	return err
}

// StopD returns a done channel, it will be signaled when the server is closed.
func (s *Server) StopD() syncx.DoneChanR {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	return s.stopD.R()
}
