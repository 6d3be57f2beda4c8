// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package http2

// flow is a flow-control window, as used for both the connection-level
// and stream-level windows described in spec.md section 3. It tracks a
// signed 32-bit available count (RFC 7540 section 6.9 permits the
// window to go negative after a SETTINGS_INITIAL_WINDOW_SIZE decrease)
// and, for stream windows, a link to the connection's window so a
// single send can be charged against both at once.
//
// All access to a flow happens from the connection's single run-loop
// goroutine, so no locking is needed here; the zero value is usable.
type flow struct {
	// n is the number of bytes we're allowed to send (if this flow is
	// the sender's outbound window) or the number of bytes the peer is
	// allowed to send us (if this is our advertised inbound window).
	n int32

	// conn points to the connection-level flow this stream-level flow
	// is nested under. nil for the connection's own flow.
	conn *flow
}

// newFlow returns a flow with an initial window of n, optionally
// parented under a connection-level flow.
func newFlow(n int32, conn *flow) flow {
	return flow{n: n, conn: conn}
}

// available returns the number of bytes currently available to send,
// which is the minimum of this window and its parent's, if any.
func (f *flow) available() int32 {
	n := f.n
	if f.conn != nil && f.conn.n < n {
		n = f.conn.n
	}
	return n
}

// take charges n bytes against this window and its parent, if any. The
// caller must have already checked available() >= n.
func (f *flow) take(n int32) {
	if n > f.available() {
		panic("internal error: took more than available")
	}
	f.n -= n
	if f.conn != nil {
		f.conn.n -= n
	}
}

// add adds n bytes to the window, as from a WINDOW_UPDATE frame or an
// initial-window-size settings delta. It reports whether the window
// remains within the legal signed 31-bit range; a false return means
// the connection (or stream) must be torn down with FLOW_CONTROL_ERROR.
func (f *flow) add(n int32) bool {
	sum := f.n + n
	if (sum > f.n) == (n > 0) {
		f.n = sum
		return true
	}
	return false
}
