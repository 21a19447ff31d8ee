// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framing

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

// Proto frames protobuf messages with a varint length prefix, the layout
// written by protodelim.MarshalTo.
type Proto[T proto.Message] struct {
	// New returns an empty message to unmarshal into.
	New func() T
	// MaxLength bounds a decoded message. Zero means DefaultMaxLength.
	MaxLength int
}

// NewProto returns a Proto codec allocating messages with newFn.
func NewProto[T proto.Message](newFn func() T) Proto[T] {
	return Proto[T]{New: newFn}
}

func (c Proto[T]) max() int {
	if c.MaxLength > 0 {
		return c.MaxLength
	}
	return DefaultMaxLength
}

func (c Proto[T]) FrameSize(p []byte) (int, bool) {
	l, n := protowire.ConsumeVarint(p)
	if n < 0 || l > uint64(c.max()) {
		return 0, false
	}
	return n + int(l), true
}

func (c Proto[T]) MaxFrameSize() int {
	return protowire.SizeVarint(uint64(c.max())) + c.max()
}

func (c Proto[T]) Decode(p []byte) (T, int, error) {
	var zero T

	l, n := protowire.ConsumeVarint(p)
	if n < 0 {
		err := protowire.ParseError(n)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return zero, 0, ErrIncomplete
		}
		return zero, len(p), fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if l > uint64(c.max()) {
		return zero, len(p), fmt.Errorf("%w: length %d", ErrMalformed, l)
	}

	end := n + int(l)
	if len(p) < end {
		return zero, 0, ErrIncomplete
	}

	m := c.New()
	if err := proto.Unmarshal(p[n:end], m); err != nil {
		return zero, end, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, end, nil
}

func (c Proto[T]) Encode(dst []byte, m T) ([]byte, error) {
	size := proto.Size(m)
	if size > c.max() {
		return dst, fmt.Errorf("%w: length %d", ErrMalformed, size)
	}
	dst = protowire.AppendVarint(dst, uint64(size))
	return proto.MarshalOptions{}.MarshalAppend(dst, m)
}
