// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package commpump provides a resilient byte-messaging facility.
//
// A Communicator exchanges byte chunks with one peer after startup. It
// connects, reconnects, detects inactivity and meters throughput by itself,
// the application only sends bytes and observes events.
//
// The transport is chosen by the address:
//   tcp://host:port[:bindHost:bindPort]
//   udp://host:port[:bindHost[:bindPort]]
//   serial://device:baudrate
//
// Outbound chunks go through a queue.Queue drained by the sender goroutine
// (SendAsync), or straight to the link (SendSync). Inbound chunks fire the
// Observer's DataReady and feed the optional FrameWrapper, which turns the
// byte stream into messages (see package framing).
//
// Here is a quick example.
//
//  c := commpump.New(commpump.WithObserver(commpump.ObserverFuncs{
//  	OnData: func(e *commpump.DataEvent) {
//  		log.Printf("from %v:%v: %x", e.IP, e.Port, e.Data)
//  	},
//  	OnConnection: func(id string, addr commpump.Address, connected bool) {
//  		log.Printf("%v %v connected: %v", id, addr, connected)
//  	},
//  }))
//
//  c.Init("udp://127.0.0.1:9002:127.0.0.1:9001", true, "plc-1", 0, 0)
//  c.Start()
//  defer c.Stop()
//
//  c.SendAsync([]byte{1, 2, 3})
//
// Server accepts tcp connections and runs one Communicator for each.
package commpump
