// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commpump

import (
	"sync"
	"sync/atomic"
	"time"
)

// DataEvent describes one received chunk.
//
// Data is only valid during the DataReady call, copy it to keep it.
type DataEvent struct {
	IP     string
	Port   int
	Time   time.Time
	Data   []byte
	PeerID string
	Octets [4]byte
}

// Observer receives the events of a Communicator.
//
// The calls are made on the Communicator's goroutines and should return as
// soon as possible. An Observer must not call Stop or Close of the
// Communicator it observes from inside a callback, the accessors are safe.
type Observer interface {
	// DataReady is called for every received chunk.
	DataReady(e *DataEvent)
	// ConnectionState is called on every connect and disconnect.
	ConnectionState(id string, addr Address, connected bool)
	// DataRate is called once per rate interval, rates are in Mbit/s.
	DataRate(id string, rxMbps, txMbps float64)
}

// ObserverFuncs is an adapter to allow the use of ordinary functions as
// an Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnData       func(e *DataEvent)
	OnConnection func(id string, addr Address, connected bool)
	OnRate       func(id string, rxMbps, txMbps float64)
}

func (f ObserverFuncs) DataReady(e *DataEvent) {
	if f.OnData != nil {
		f.OnData(e)
	}
}

func (f ObserverFuncs) ConnectionState(id string, addr Address, connected bool) {
	if f.OnConnection != nil {
		f.OnConnection(id, addr, connected)
	}
}

func (f ObserverFuncs) DataRate(id string, rxMbps, txMbps float64) {
	if f.OnRate != nil {
		f.OnRate(id, rxMbps, txMbps)
	}
}

// Subscription is the registration of one Observer.
type Subscription struct {
	set *observers
	key uint64
}

// Unsubscribe removes the Observer, it is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.set != nil {
		s.set.remove(s.key)
	}
}

type observerEntry struct {
	key uint64
	o   Observer
}

// observers is a copy-on-write list, firing never takes a lock.
type observers struct {
	mu   sync.Mutex
	next uint64
	list atomic.Pointer[[]observerEntry]

	panicLogF func(interface{})
}

func (s *observers) add(o Observer) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	var l []observerEntry
	if old := s.list.Load(); old != nil {
		l = append(l, (*old)...)
	}
	l = append(l, observerEntry{s.next, o})
	s.list.Store(&l)
	return &Subscription{set: s, key: s.next}
}

func (s *observers) remove(key uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.list.Load()
	if old == nil {
		return
	}
	l := make([]observerEntry, 0, len(*old))
	for _, e := range *old {
		if e.key != key {
			l = append(l, e)
		}
	}
	s.list.Store(&l)
}

func (s *observers) clear() {
	s.mu.Lock()
	s.list.Store(nil)
	s.mu.Unlock()
}

func (s *observers) each(f func(o Observer)) {
	l := s.list.Load()
	if l == nil {
		return
	}
	for _, e := range *l {
		s.call(f, e.o)
	}
}

func (s *observers) call(f func(o Observer), o Observer) {
	defer func() {
		if e := recover(); e != nil && s.panicLogF != nil {
			s.panicLogF(e)
		}
	}()
	f(o)
}

func (s *observers) dataReady(e *DataEvent) {
	s.each(func(o Observer) { o.DataReady(e) })
}

func (s *observers) connectionState(id string, addr Address, connected bool) {
	s.each(func(o Observer) { o.ConnectionState(id, addr, connected) })
}

func (s *observers) dataRate(id string, rx, tx float64) {
	s.each(func(o Observer) { o.DataRate(id, rx, tx) })
}
