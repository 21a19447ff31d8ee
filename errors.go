// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commpump

import "errors"

var (
	// ErrInvalidAddress reports an address string that cannot be parsed or
	// resolved. A Communicator initialized with one stays idle.
	ErrInvalidAddress = errors.New("commpump: invalid address")

	// ErrConnectTimeout reports a connect attempt that ran out of time.
	ErrConnectTimeout = errors.New("commpump: connect timeout")

	// ErrTransportFault reports a failed open, read or write on a link.
	ErrTransportFault = errors.New("commpump: transport fault")

	errUnknownPanic = errors.New("unknown panic")
	errNoRemote     = errors.New("no remote address")
	errConnUsed     = errors.New("accepted connection already served")
)
