// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wire holds the fixed-width length header shared by the transport
// queue and the length-prefixed frame codec.
package wire

import "encoding/binary"

// HeaderSize is the size of an encoded length header.
const HeaderSize = 4

// MaxLen is the largest length a header can carry.
const MaxLen = 1<<31 - 1

// PutLen writes n as a little-endian uint32 into b[:HeaderSize].
func PutLen(b []byte, n int) {
	binary.LittleEndian.PutUint32(b, uint32(n))
}

// Len reads a little-endian uint32 length from b[:HeaderSize].
func Len(b []byte) int {
	return int(binary.LittleEndian.Uint32(b))
}

// AppendLen appends the header for n to b.
func AppendLen(b []byte, n int) []byte {
	return binary.LittleEndian.AppendUint32(b, uint32(n))
}
