// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package http2

// readLoop is the reader task of spec.md section 4.7. Under the
// single-owner redesign spec.md section 9 directs, it does not decode
// HPACK or apply flow control itself — those require the run loop's
// exclusive ownership of the HPACK contexts and stream set (invariant
// I6) — it only frames the wire and does the one piece of stateless,
// context-free validation spec.md section 4.6 assigns to the
// handshake: the first frame from the peer, in either role, must be a
// non-ACK SETTINGS (RFC 7540 section 3.5).
//
// Grounded on server.go's readFrames() goroutine (a dedicated ingress
// task feeding the run loop over a channel) and
// bradfitz-http2__conn.go's readFrames(), both generalized from their
// gate/processed-buffer handshake (needed only because those designs
// reused a single scratch buffer) since this package's Framer already
// allocates a fresh payload per frame.
func (c *Connection) readLoop() {
	first := true
	for {
		f, err := c.fr.ReadFrame()
		if err == nil && first {
			first = false
			if sf, ok := f.(*SettingsFrame); !ok || sf.IsAck() {
				err = ConnectionError(ErrCodeProtocol)
			}
		}
		select {
		case c.readFrame <- readResult{f, err}:
		case <-c.closed:
			return
		}
		if err != nil {
			// A StreamError leaves the framing intact: the run loop
			// resets that one stream and reading goes on.
			if _, ok := err.(StreamError); ok {
				continue
			}
			return
		}
	}
}
