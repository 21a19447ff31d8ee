// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commpump

import "go.uber.org/zap"

// Encoder serializes outbound messages, framing.Wrapper implements it.
type Encoder[T any] interface {
	Data2BytesSync(m T) ([]byte, error)
}

// SendMessageSync encodes m with e and transmits it with SendSync.
func SendMessageSync[T any](c *Communicator, e Encoder[T], m T) bool {
	b, ok := encode(c, e, m)
	return ok && c.SendSync(b)
}

// SendMessageAsync encodes m with e and queues it with SendAsync.
func SendMessageAsync[T any](c *Communicator, e Encoder[T], m T) bool {
	b, ok := encode(c, e, m)
	return ok && c.SendAsync(b)
}

func encode[T any](c *Communicator, e Encoder[T], m T) ([]byte, bool) {
	b, err := e.Data2BytesSync(m)
	if err != nil {
		c.log().Warn("encode failed", zap.Error(err))
		return nil, false
	}
	return b, true
}
