// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framing

import (
	"errors"
	"fmt"

	"github.com/someonegg/commpump/internal/wire"
)

var (
	// ErrIncomplete reports that more bytes are needed to decode a message.
	ErrIncomplete = errors.New("framing: incomplete data")
	// ErrMalformed reports corrupt data. The span reported by Decode is
	// discarded.
	ErrMalformed = errors.New("framing: malformed frame")
)

// Codec converts between a byte stream and messages of type T.
type Codec[T any] interface {
	// Decode decodes one message from the head of p and returns it with the
	// number of bytes consumed. It returns ErrIncomplete when p holds only
	// part of a message, and an error wrapping ErrMalformed together with the
	// number of bytes to drop when the head of p is corrupt.
	Decode(p []byte) (m T, n int, err error)
	// Encode appends the wire form of m to dst.
	Encode(dst []byte, m T) ([]byte, error)
}

// Sizer is implemented by codecs that can tell a frame's full size from its
// header, before the payload arrives.
type Sizer interface {
	// FrameSize returns the encoded size of the frame at the head of p. ok is
	// false while the header is incomplete or when it is malformed.
	FrameSize(p []byte) (n int, ok bool)
	// MaxFrameSize returns the largest encoded frame Decode accepts.
	MaxFrameSize() int
}

// DefaultMaxLength is the largest payload LengthPrefixed accepts by default.
const DefaultMaxLength = 32 * 1024 * 1024

// LengthPrefixed frames raw payloads as:
//   Length(4-bytes int, little-endian)Payload
type LengthPrefixed struct {
	// MaxLength bounds a decoded payload. Zero means DefaultMaxLength.
	MaxLength int
}

func (c LengthPrefixed) max() int {
	if c.MaxLength > 0 {
		return c.MaxLength
	}
	return DefaultMaxLength
}

func (c LengthPrefixed) FrameSize(p []byte) (int, bool) {
	if len(p) < wire.HeaderSize {
		return 0, false
	}
	l := wire.Len(p)
	if l < 0 || l > c.max() {
		return 0, false
	}
	return wire.HeaderSize + l, true
}

func (c LengthPrefixed) MaxFrameSize() int {
	return wire.HeaderSize + c.max()
}

func (c LengthPrefixed) Decode(p []byte) ([]byte, int, error) {
	if len(p) < wire.HeaderSize {
		return nil, 0, ErrIncomplete
	}

	l := wire.Len(p)
	if l < 0 || l > c.max() {
		// No resync marker exists, the whole buffered span is lost.
		return nil, len(p), fmt.Errorf("%w: length %d", ErrMalformed, l)
	}

	end := wire.HeaderSize + l
	if len(p) < end {
		return nil, 0, ErrIncomplete
	}

	m := make([]byte, l)
	copy(m, p[wire.HeaderSize:end])
	return m, end, nil
}

func (c LengthPrefixed) Encode(dst []byte, m []byte) ([]byte, error) {
	if len(m) > c.max() {
		return dst, fmt.Errorf("%w: length %d", ErrMalformed, len(m))
	}
	dst = wire.AppendLen(dst, len(m))
	return append(dst, m...), nil
}
