// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package http2

import "fmt"

// streamState is the per-stream state machine of spec.md section 4.5,
// following RFC 7540 section 5.1.
type streamState uint8

const (
	stateIdle streamState = iota
	stateReservedLocal
	stateReservedRemote
	stateOpen
	stateHalfClosedLocal
	stateHalfClosedRemote
	stateClosed
)

func (s streamState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateReservedLocal:
		return "reserved_local"
	case stateReservedRemote:
		return "reserved_remote"
	case stateOpen:
		return "open"
	case stateHalfClosedLocal:
		return "half_closed_local"
	case stateHalfClosedRemote:
		return "half_closed_remote"
	case stateClosed:
		return "closed"
	default:
		return "unknown_state"
	}
}

// queuedData is the stream's outbound body buffer. The nil/done
// distinction mirrors spec.md's "undefined | done | bytes" union: an
// empty, non-done buffer still has more writes coming.
type queuedData struct {
	buf  []byte
	done bool
}

// StreamCallback is the pluggable application-layer handler spec.md
// section 1 treats as an external collaborator. The connection invokes
// it from the stream's own goroutine, never from the run loop.
type StreamCallback interface {
	// Headers is called once, with the fully reassembled and
	// HPACK-decoded request or response header list.
	Headers(s *Stream, headers []HeaderField)
	// Data is called for each DATA frame payload in order.
	Data(s *Stream, p []byte)
	// Trailers is called at most once, after the last Data call.
	Trailers(s *Stream, trailers []HeaderField)
	// Closed is called exactly once, however the stream ended.
	Closed(s *Stream, err error)
}

// stream is the run-loop-owned half of a stream's state: everything
// the connection touches directly. Its exported face is *Stream,
// handed to the application callback and to stream-initiating callers.
// A stream holds no reference back to the connection, so there is no
// ownership cycle between them.
type stream struct {
	id    uint32
	state streamState

	sendFlow flow
	recvFlow flow

	out       queuedData
	trailers  []HeaderField // deferred; emitted once out drains
	endStream bool          // local END_STREAM has been scheduled

	reqHeaders []HeaderField

	// Inbound response accumulation, used only when this stream was
	// locally initiated (client role) and the connection is not
	// configured with GarbageOnEnd — see spec.md section 6's
	// get_response and section 3's "closed" stream variant.
	gotHeaders   bool
	respHeaders  []HeaderField
	respBody     []byte
	respTrailers []HeaderField

	cb StreamCallback

	// events is the bounded channel the connection posts decoded
	// ingress events to; the per-stream goroutine drains it and calls
	// back into cb. Back-pressure is via this channel, not shared
	// memory, per spec.md section 9.
	events chan streamEvent

	// headersDelivered distinguishes the first Headers callback from a
	// later Trailers callback on the same events stream.
	headersDelivered bool

	// finishErr is set by the connection immediately before closing
	// events, and read by runCallback only after ranging over events
	// completes — so no synchronization beyond the channel is needed.
	finishErr error

	handle *Stream
}

// streamEvent is one ingress input to the per-stream state machine,
// matching spec.md section 4.5's input set.
type streamEvent struct {
	kind streamEventKind

	headers  []HeaderField
	data     []byte
	endSent  bool // recv_es
	rstCode  ErrCode
	promised []HeaderField
}

type streamEventKind uint8

const (
	evRecvHeaders streamEventKind = iota
	evRecvData
	evRecvEndStream
	evRecvPushPromise
	evRecvRST
)

func newStream(cb StreamCallback, iws int32, conn *flow) *stream {
	st := &stream{
		cb:       cb,
		sendFlow: newFlow(iws, conn),
		recvFlow: newFlow(iws, nil),
		events:   make(chan streamEvent, 16),
	}
	st.handle = &Stream{st: st}
	go st.runCallback()
	return st
}

// deliver posts an ingress event to the stream's own goroutine. It
// blocks if the stream is slow to drain, providing the back-pressure
// spec.md section 9 asks for instead of shared memory.
func (st *stream) deliver(ev streamEvent) {
	st.events <- ev
}

// runCallback drains events and invokes the application callback,
// exactly once per event, on a goroutine independent of the
// connection's run loop, per spec.md section 4.5 and section 9.
func (st *stream) runCallback() {
	for ev := range st.events {
		switch ev.kind {
		case evRecvHeaders:
			if !st.headersDelivered {
				st.headersDelivered = true
				st.cb.Headers(st.handle, ev.headers)
			} else {
				st.cb.Trailers(st.handle, ev.headers)
			}
		case evRecvPushPromise:
			st.headersDelivered = true
			st.cb.Headers(st.handle, ev.promised)
		case evRecvData:
			st.cb.Data(st.handle, ev.data)
		case evRecvEndStream, evRecvRST:
			// state transition already applied by the run loop;
			// nothing to deliver beyond the eventual Closed call.
		}
	}
	st.cb.Closed(st.handle, st.finishErr)
}

// transition applies one RFC 7540 section 5.1 edge. illegal inputs for
// the current state return a StreamError describing the RST_STREAM to
// emit, per spec.md section 4.5.
func (st *stream) transition(input streamEventKind, local bool) error {
	switch input {
	case evRecvHeaders:
		switch st.state {
		case stateIdle:
			st.state = stateOpen
		case stateReservedRemote:
			st.state = stateOpen // trailers/second headers on a push response
		case stateOpen, stateHalfClosedLocal:
			// trailers; state unchanged until end-stream
		default:
			return StreamError{st.id, ErrCodeStreamClosed, nil}
		}
	case evRecvData:
		switch st.state {
		case stateOpen, stateHalfClosedLocal:
		default:
			return StreamError{st.id, ErrCodeStreamClosed, nil}
		}
	case evRecvEndStream:
		switch st.state {
		case stateOpen:
			if local {
				st.state = stateHalfClosedLocal
			} else {
				st.state = stateHalfClosedRemote
			}
		case stateHalfClosedLocal:
			if !local {
				st.state = stateClosed
			}
		case stateHalfClosedRemote:
			if local {
				st.state = stateClosed
			}
		default:
			return StreamError{st.id, ErrCodeStreamClosed, nil}
		}
	case evRecvRST:
		st.state = stateClosed
	case evRecvPushPromise:
		if st.state != stateIdle {
			return StreamError{st.id, ErrCodeProtocol, nil}
		}
		st.state = stateReservedRemote
	}
	return nil
}

func (st *stream) isClosed() bool { return st.state == stateClosed }

// Stream is the handle exposed to the application callback and to
// stream-initiating callers (NewStream's return value), per spec.md
// section 6's new_stream/send_headers/... surface. It never exposes
// st directly so the connection remains the only mutator.
type Stream struct {
	st *stream
}

// ID returns the stream's identifier.
func (s *Stream) ID() uint32 { return s.st.id }

// State reports the current RFC 7540 section 5.1 state, useful mostly
// for tests and diagnostics.
func (s *Stream) State() string { return s.st.state.String() }

func (s *Stream) String() string {
	return fmt.Sprintf("stream %d (%s)", s.st.id, s.st.state)
}
