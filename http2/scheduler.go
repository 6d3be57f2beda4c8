// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package http2

// scheduler implements spec.md section 4.3: given the current
// connection and per-stream send windows and queued data, it emits
// DATA frames respecting both caps and MAX_FRAME_SIZE. It is driven
// exclusively by the connection's run loop.
type scheduler struct {
	fr           *Framer
	maxFrameSize uint32

	// writeTrailers emits a deferred trailer block as HEADERS
	// (+ CONTINUATION as needed), per spec.md section 4.3. Set by the
	// connection, which owns the HPACK encode context.
	writeTrailers func(streamID uint32, trailers []HeaderField) error
}

// sendStream runs the single-stream procedure of spec.md section 4.3
// for st, writing as many DATA frames (and, if the body just drained,
// the deferred trailers) as the current windows allow.
func (sc *scheduler) sendStream(st *stream) error {
	for {
		bodyDrained := st.out.done && len(st.out.buf) == 0
		trailersPending := bodyDrained && len(st.trailers) > 0

		// A drained body with trailers still queued needs no further
		// send-window: trailers go out as HEADERS, not DATA, and there
		// is no more body data competing for the window.
		if trailersPending {
			trailers := st.trailers
			st.trailers = nil
			if err := sc.writeTrailers(st.id, trailers); err != nil {
				return err
			}
			st.endStream = true
			if err := st.transition(evRecvEndStream, true); err != nil {
				return err
			}
			return nil
		}

		avail := st.sendFlow.available()
		if avail <= 0 {
			return nil
		}
		m := avail
		if uint32(m) > sc.maxFrameSize {
			m = int32(sc.maxFrameSize)
		}
		if int(m) > len(st.out.buf) {
			m = int32(len(st.out.buf))
		}
		if m == 0 && !bodyDrained {
			return nil
		}

		chunk := st.out.buf[:m]
		st.out.buf = st.out.buf[m:]

		bodyDrained = st.out.done && len(st.out.buf) == 0
		endStream := bodyDrained && len(st.trailers) == 0 && !st.endStream

		if m > 0 {
			st.sendFlow.take(m)
		}
		if m == 0 && !endStream {
			// Nothing to send and no END_STREAM to flush; avoid an
			// empty DATA frame.
			return nil
		}
		if err := sc.fr.WriteData(st.id, endStream, chunk); err != nil {
			return err
		}
		if endStream {
			st.endStream = true
			if err := st.transition(evRecvEndStream, true); err != nil {
				return err
			}
			return nil
		}
		// Reaching here with the body drained means trailers are
		// queued (the endStream branch above would have fired
		// otherwise); loop back so the top-of-loop check flushes them.
		// Otherwise the body isn't drained yet and there's more to send.
	}
}

// sweepAll runs spec.md section 4.3's connection-level sweep: theirs
// then mine, in id order, stopping once the connection window is
// exhausted.
func (sc *scheduler) sweepAll(ss *streamSet, connWindow *flow) error {
	for _, st := range ss.activeStreamsInOrder() {
		if connWindow.available() <= 0 {
			return nil
		}
		if len(st.out.buf) == 0 && !(st.out.done && !st.endStream) {
			continue
		}
		if err := sc.sendStream(st); err != nil {
			return err
		}
	}
	return nil
}
