// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commpump

import (
	"fmt"
	"io"
	"sync"

	"github.com/someonegg/commpump/queue"
)

// Dump is a debugging helper, it implements the Observer interface and
// dumps every received chunk and connection change.
//
// The dump format is:
//	 R:ID:Size\nData\n\n
//	 C:ID:up|down\n\n
type Dump struct {
	Dump io.Writer

	// Filter can be nil. If nil, dump all chunks.
	Filter func(id string, data []byte, read bool) bool

	mu sync.Mutex
}

func (d *Dump) needDump(id string, data []byte, read bool) bool {
	if d.Filter != nil {
		return d.Filter(id, data, read)
	}
	return true
}

func (d *Dump) write(tag byte, id string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.Dump, "%c:%v:%v\n", tag, id, len(data))
	d.Dump.Write(data)
	fmt.Fprintf(d.Dump, "\n\n")
}

func (d *Dump) DataReady(e *DataEvent) {
	if !d.needDump(e.PeerID, e.Data, true) {
		return
	}
	d.write('R', e.PeerID, e.Data)
}

func (d *Dump) ConnectionState(id string, addr Address, connected bool) {
	state := "down"
	if connected {
		state = "up"
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.Dump, "C:%v:%v\n\n", id, state)
}

func (d *Dump) DataRate(id string, rxMbps, txMbps float64) {}

// DumpQueue implements the queue.Queue interface and dumps every frame
// accepted by Put to the same Dump in the W:ID:Size form.
type DumpQueue struct {
	queue.Queue
	D  *Dump
	ID string
}

func (q *DumpQueue) Put(b []byte, length int) int {
	n := q.Queue.Put(b, length)
	if n == 0 || !q.D.needDump(q.ID, b[:length], false) {
		return n
	}
	q.D.write('W', q.ID, b[:length])
	return n
}
