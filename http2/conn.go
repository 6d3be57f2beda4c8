// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package http2

import (
	"bufio"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/trace"
)

// enableTracing gates whether connections record events via
// golang.org/x/net/trace; off by default, as with other debug logging
// in this package.
var enableTracing = false

// Role distinguishes the two sides of a connection, per spec.md
// section 3's client/server split.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// connState is the connection-level state machine of spec.md section
// 4.6.
type connState uint8

const (
	stateListen connState = iota
	stateHandshake
	stateConnected
	stateContinuation
	stateClosing
)

func (s connState) String() string {
	switch s {
	case stateListen:
		return "listen"
	case stateHandshake:
		return "handshake"
	case stateConnected:
		return "connected"
	case stateContinuation:
		return "continuation"
	case stateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

const clientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// pendingPing is one outstanding SendPing round trip (spec.md section
// 3's "pending pings (mapping 8-byte opaque -> (notifier, monotonic_ts))").
type pendingPing struct {
	done chan error
	sent time.Time
}

// continuationState tracks the in-flight HEADERS/PUSH_PROMISE +
// CONTINUATION sequence named in spec.md section 3 and enforced as
// invariant (I5).
type continuationState struct {
	active      bool
	streamID    uint32
	kind        continuationKind
	promisedID  uint32
	block       []byte
	endStream   bool
	priorityHdr []byte

	// resetAfterDecode, when set, means the stream-state machine
	// already rejected this header block (e.g. HEADERS arriving after
	// the peer's own END_STREAM); the block still needs to be run
	// through HPACK to keep the connection's compression context in
	// sync with the peer, but the result is discarded and the stream
	// is reset with resetCode instead of delivered.
	resetAfterDecode bool
	resetCode        ErrCode
}

type continuationKind uint8

const (
	continuationHeaders continuationKind = iota
	continuationTrailers
	continuationPushPromise
)

// connCall is a request to run fn on the connection's own run-loop
// goroutine and report the error back on done. This is how every
// exported operation (NewStream, SendHeaders, SendPing, ...) crosses
// from a caller's goroutine into the single owner of connection state,
// grounded on bradfitz-http2__conn.go's testHookCh dispatch generalized
// from a debug-only hook into the connection's general request path.
type connCall struct {
	fn   func(c *Connection) error
	done chan error
}

// Connection is the per-connection HTTP/2 protocol engine described by
// spec.md section 1. Its run goroutine is the sole owner of every
// mutable field below; everything else communicates with it over
// channels, per the single-owner actor model spec.md section 9 calls
// for.
type Connection struct {
	role Role
	cfg  Config

	transport Transport
	fr        *Framer
	bw        *bufio.Writer

	peerIdentity interface{}

	self Settings
	peer Settings

	pendingSettings []pendingSettings
	settingsTimer   *time.Timer

	pendingPings map[[8]byte]*pendingPing

	streams   *streamSet
	sched     *scheduler
	connSend  flow
	connRecv  flow
	decoder   *hpackDecoder
	encoder   *hpackEncoder
	canonHdr  map[string]string

	cont continuationState

	state          connState
	handshakeTimer *time.Timer
	lastStreamID   uint32 // highest peer-initiated id we've processed, for GOAWAY

	calls     chan connCall
	readFrame chan readResult
	streamFin chan streamFinished

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error

	// sendWindowHint mirrors connSend.n atomically so a stream-handler
	// goroutine deciding whether to enqueue more body data can peek at
	// it without round-tripping through the run loop, per spec.md
	// section 5's atomics carve-out.
	sendWindowHint atomic.Int32

	events trace.EventLog

	testHook func(string) // exercised only by tests; nil in production
}

type readResult struct {
	frame Frame
	err   error
}

type streamFinished struct {
	id  uint32
	err error
}

// newConnection builds the shared state for both StartClient/Become
// (client.go) and StartServer/Become (server.go).
func newConnection(r Role, t Transport, cfg Config) *Connection {
	self := cfg.settingsOrDefault()
	c := &Connection{
		role:         r,
		cfg:          cfg,
		transport:    t,
		fr:           NewFramer(nil, t),
		bw:           bufio.NewWriter(t),
		self:         self,
		peer:         defaultSettings(),
		pendingPings: make(map[[8]byte]*pendingPing),
		streams:      newStreamSet(r),
		decoder:      newHPACKDecoder(self.MaxHeaderListSize),
		encoder:      newHPACKEncoder(),
		canonHdr:     make(map[string]string),
		state:        stateHandshake,
		calls:        make(chan connCall),
		readFrame:    make(chan readResult),
		streamFin:    make(chan streamFinished),
		closed:       make(chan struct{}),
	}
	c.connSend = newFlow(initialWindowSize, nil)
	c.connRecv = newFlow(initialWindowSize, nil)
	c.fr = NewFramer(c.bw, t)
	c.fr.MaxReadFrameSize = self.MaxFrameSize
	c.sched = &scheduler{fr: c.fr, maxFrameSize: defaultMaxFrameSize, writeTrailers: c.writeTrailersLocked}
	if ts := t.PeerIdentity(); ts != nil {
		c.peerIdentity = ts
	}
	if enableTracing {
		c.events = trace.NewEventLog(fmt.Sprintf("http2.Connection.%v", r), "")
	}
	return c
}

func (c *Connection) traceEventf(format string, args ...interface{}) {
	if c.events != nil {
		c.events.Printf(format, args...)
	}
}

// run is the connection's single-owner loop, grounded on
// bradfitz-http2__conn.go's run() and the teacher's server.go serve()
// loop. It exits when the connection is torn down for any reason.
func (c *Connection) run() {
	defer c.teardown()

	if err := c.handshake(); err != nil {
		c.closeErr = err
		return
	}

	go c.readLoop()

	if err := c.sendInitialSettings(); err != nil {
		c.closeErr = err
		return
	}
	c.state = stateConnected

	for {
		select {
		case rr := <-c.readFrame:
			if rr.err != nil {
				switch e := rr.err.(type) {
				case ConnectionError:
					// A framing-level error (bad PING length, an
					// oversized frame, ...) is still a connection
					// error under RFC 7540 section 5.4.1 and gets the
					// same GOAWAY treatment as one caught during
					// dispatch.
					c.abort(e)
					return
				case StreamError:
					// A malformed frame scoped to one stream (e.g. a
					// zero-increment WINDOW_UPDATE) only resets that
					// stream, per errors.go's StreamError contract;
					// the connection keeps running.
					c.rstStreamLocked(e.StreamID, e.Code)
					continue
				default:
					// A bare I/O error (EOF, a closed socket) has no
					// error code to report and the peer is already
					// gone.
					c.closeErr = rr.err
					return
				}
			}
			if err := c.dispatch(rr.frame); err != nil {
				if se, ok := err.(StreamError); ok {
					c.rstStreamLocked(se.StreamID, se.Code)
				} else {
					c.abort(err)
					return
				}
			}
			if c.state == stateClosing {
				return
			}
		case call := <-c.calls:
			err := call.fn(c)
			call.done <- err
			if c.state == stateClosing {
				return
			}
		case fin := <-c.streamFin:
			c.finishStream(fin.id, fin.err)
		case <-c.settingsTimerC():
			c.abort(ConnectionError(ErrCodeSettingsTimeout))
			return
		case <-c.handshakeTimerC():
			c.abort(ConnectionError(ErrCodeProtocol))
			return
		case <-c.closed:
			return
		}
	}
}

func (c *Connection) settingsTimerC() <-chan time.Time {
	if c.settingsTimer == nil {
		return nil
	}
	return c.settingsTimer.C
}

func (c *Connection) handshakeTimerC() <-chan time.Time {
	if c.handshakeTimer == nil {
		return nil
	}
	return c.handshakeTimer.C
}

// stopHandshakeTimer defuses the handshake deadline once the peer has
// made real progress past it (its first SETTINGS frame), or once the
// connection is tearing down for an unrelated reason.
func (c *Connection) stopHandshakeTimer() {
	if c.handshakeTimer != nil {
		c.handshakeTimer.Stop()
		c.handshakeTimer = nil
	}
}

// handshake performs the preface exchange (spec.md section 4.6's
// listen->handshake transition). The 4.5s timer started here is only
// observed by run's loop, so it bounds the wait for the peer's first
// SETTINGS frame, not a server's blocking read of the client preface;
// it isn't stopped until processSettings sees that frame, or the
// connection tears down some other way.
func (c *Connection) handshake() error {
	timeout := c.cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	c.handshakeTimer = time.NewTimer(timeout)

	if c.role == RoleServer {
		buf := make([]byte, len(clientPreface))
		if _, err := io.ReadFull(c.transport, buf); err != nil {
			c.condlogf(err, "http2: error reading client preface: %v", err)
			return err
		}
		if string(buf) != clientPreface {
			// Scenario 1: preface rejection. Close without advancing
			// past listen/handshake.
			err := errors.New("http2: client sent an invalid preface")
			c.logf("%v", err)
			return err
		}
	} else {
		if _, err := io.WriteString(c.bw, clientPreface); err != nil {
			c.condlogf(err, "http2: error writing client preface: %v", err)
			return err
		}
	}
	return nil
}

func (c *Connection) sendInitialSettings() error {
	if err := c.fr.WriteSettings(c.self.asFrame()...); err != nil {
		return err
	}
	c.pendingSettings = append(c.pendingSettings, pendingSettings{sent: c.self})
	c.armSettingsTimer()
	return c.flush()
}

func (c *Connection) armSettingsTimer() {
	if c.settingsTimer != nil {
		c.settingsTimer.Stop()
	}
	timeout := c.cfg.SettingsAckTimeout
	if timeout <= 0 {
		timeout = defaultSettingsACKTimeout
	}
	c.settingsTimer = time.NewTimer(timeout)
}

func (c *Connection) flush() error {
	return c.bw.Flush()
}

// dispatch implements the routing table of spec.md section 4.6.
func (c *Connection) dispatch(f Frame) error {
	h := f.Header()
	if c.state == stateContinuation {
		cf, ok := f.(*ContinuationFrame)
		if !ok || h.StreamID != c.cont.streamID {
			return ConnectionError(ErrCodeProtocol)
		}
		return c.continueHeaderBlock(cf)
	}

	switch fr := f.(type) {
	case *SettingsFrame:
		return c.processSettings(fr)
	case *HeadersFrame:
		return c.processHeaders(fr)
	case *ContinuationFrame:
		return ConnectionError(ErrCodeProtocol) // no block in progress
	case *DataFrame:
		return c.processData(fr)
	case *PriorityFrame:
		return nil // parsed, validated on read, otherwise ignored
	case *RSTStreamFrame:
		return c.processRSTStream(fr)
	case *PushPromiseFrame:
		return c.processPushPromise(fr)
	case *PingFrame:
		return c.processPing(fr)
	case *GoAwayFrame:
		c.state = stateClosing
		c.traceEventf("received GOAWAY code=%s", fr.ErrCode)
		return nil
	case *WindowUpdateFrame:
		return c.processWindowUpdate(fr)
	case *UnknownFrame:
		return nil // extension-friendly: silently ignore
	default:
		return nil
	}
}

// processSettings implements the SETTINGS routing of spec.md section
// 4.6: non-ACK applies peer settings and ACKs; ACK dequeues the FIFO
// head and applies our own pending Δ_iws.
func (c *Connection) processSettings(f *SettingsFrame) error {
	if f.IsAck() {
		return c.processSettingsAck()
	}
	c.stopHandshakeTimer()
	oldIWS := c.peer.InitialWindowSize
	err := f.ForeachSetting(func(s Setting) error {
		_, err := c.peer.apply(s)
		return err
	})
	if err != nil {
		return err
	}
	delta := int32(c.peer.InitialWindowSize) - int32(oldIWS)
	if delta != 0 {
		if bad := c.streams.updateAllSendWindows(delta); len(bad) > 0 {
			for _, id := range bad {
				c.rstStreamLocked(id, ErrCodeFlowControl)
			}
		}
	}
	c.encoder.setMaxTableSize(c.peer.HeaderTableSize)
	// The peer's advertised MAX_CONCURRENT_STREAMS caps streams we
	// initiate, i.e. the "mine" partition.
	c.streams.updateMyMaxActive(c.peer.MaxConcurrentStreams)
	c.sched.maxFrameSize = c.peer.MaxFrameSize
	c.traceEventf("applied peer SETTINGS")
	if err := c.fr.WriteSettingsAck(); err != nil {
		return err
	}
	return c.flush()
}

func (c *Connection) processSettingsAck() error {
	if len(c.pendingSettings) == 0 {
		return ConnectionError(ErrCodeProtocol)
	}
	applied := c.pendingSettings[0]
	c.pendingSettings = c.pendingSettings[1:]
	if len(c.pendingSettings) == 0 {
		if c.settingsTimer != nil {
			c.settingsTimer.Stop()
			c.settingsTimer = nil
		}
	} else {
		c.armSettingsTimer()
	}

	oldIWS := c.self.InitialWindowSize
	c.self = applied.sent
	delta := int32(c.self.InitialWindowSize) - int32(oldIWS)
	if delta != 0 {
		if bad := c.streams.updateAllRecvWindows(delta); len(bad) > 0 {
			for _, id := range bad {
				c.rstStreamLocked(id, ErrCodeFlowControl)
			}
		}
		if delta > 0 {
			if err := c.fr.WriteWindowUpdate(0, uint32(delta)); err != nil {
				return err
			}
			if err := c.flush(); err != nil {
				return err
			}
		}
	}
	c.decoder.setMaxTableSize(c.self.HeaderTableSize)
	// Our own advertised MAX_CONCURRENT_STREAMS, now confirmed applied,
	// caps streams the peer initiates, i.e. the "theirs" partition.
	c.streams.updateTheirMaxActive(c.self.MaxConcurrentStreams)
	c.fr.MaxReadFrameSize = c.self.MaxFrameSize
	return nil
}

// processHeaders implements spec.md section 4.6's HEADERS routing.
func (c *Connection) processHeaders(f *HeadersFrame) error {
	id := f.Header().StreamID
	if c.role == RoleServer && id%2 == 0 {
		return ConnectionError(ErrCodeProtocol)
	}
	if id > c.lastStreamID {
		c.lastStreamID = id
	}

	rec := c.streams.get(id)
	var resetAfterDecode bool
	var resetCode ErrCode
	if c.role == RoleServer && rec.kind == streamIdle {
		st := newStream(c.newStreamCallback(), int32(c.self.InitialWindowSize), &c.connSend)
		st.recvFlow = newFlow(int32(c.self.InitialWindowSize), nil)
		if err := c.streams.admitRemoteStream(id, st); err != nil {
			return c.refuseLocked(id, err)
		}
		if err := st.transition(evRecvHeaders, false); err != nil {
			resetAfterDecode, resetCode = true, err.(StreamError).Code
		}
	} else if rec.kind == streamActive {
		if err := rec.st.transition(evRecvHeaders, false); err != nil {
			resetAfterDecode, resetCode = true, err.(StreamError).Code
		}
	}

	// The header block still needs to be decoded even when the stream
	// state machine already rejects it: HPACK's dynamic table is
	// shared across the whole connection, and skipping the decode
	// would desync it from the peer's own table for every later
	// stream, not just this one.
	c.cont = continuationState{
		active:           true,
		streamID:         id,
		kind:             continuationHeaders,
		block:            append([]byte(nil), f.HeaderBlockFragment()...),
		endStream:        f.StreamEnded(),
		resetAfterDecode: resetAfterDecode,
		resetCode:        resetCode,
	}
	if !f.HeadersEnded() {
		c.state = stateContinuation
		return nil
	}
	return c.finishHeaderBlock()
}

func (c *Connection) continueHeaderBlock(f *ContinuationFrame) error {
	c.cont.block = append(c.cont.block, f.HeaderBlockFragment()...)
	if !f.HeadersEnded() {
		return nil
	}
	c.state = stateConnected
	return c.finishHeaderBlock()
}

// finishHeaderBlock runs the accumulated block through HPACK and
// delivers it, closing out invariant (I5).
func (c *Connection) finishHeaderBlock() error {
	cont := c.cont
	c.cont = continuationState{}

	fields, err := c.decoder.decode(cont.block)
	if err != nil {
		return err
	}

	rec := c.streams.get(cont.streamID)
	if rec.kind != streamActive {
		return nil // stream was reset concurrently; drop headers
	}
	st := rec.st

	if cont.resetAfterDecode {
		c.rstStreamLocked(cont.streamID, cont.resetCode)
		return nil
	}

	if c.role == RoleClient {
		if !st.gotHeaders {
			st.gotHeaders = true
			st.respHeaders = fields
		} else {
			st.respTrailers = fields
		}
	}
	st.deliver(streamEvent{kind: evRecvHeaders, headers: fields})
	if cont.endStream {
		if err := st.transition(evRecvEndStream, false); err != nil {
			c.rstStreamLocked(cont.streamID, err.(StreamError).Code)
			return nil
		}
		st.deliver(streamEvent{kind: evRecvEndStream})
		if st.isClosed() {
			c.finishStream(cont.streamID, nil)
		}
	}
	return nil
}

func (c *Connection) processData(f *DataFrame) error {
	id := f.Header().StreamID
	n := int32(len(f.Data()))
	if !c.connRecv.add(-n) {
		return ConnectionError(ErrCodeFlowControl)
	}
	rec := c.streams.get(id)
	switch rec.kind {
	case streamIdle:
		return ConnectionError(ErrCodeProtocol)
	case streamClosed:
		// DATA racing a stream's close is ordinary under RFC 7540
		// section 6.1; reset just this stream and keep going.
		c.rstStreamLocked(id, ErrCodeStreamClosed)
		return nil
	}
	if !rec.st.recvFlow.add(-n) {
		c.rstStreamLocked(id, ErrCodeFlowControl)
		return nil
	}
	if err := rec.st.transition(evRecvData, false); err != nil {
		c.rstStreamLocked(id, err.(StreamError).Code)
		return nil
	}
	if c.role == RoleClient && !c.cfg.GarbageOnEnd {
		rec.st.respBody = append(rec.st.respBody, f.Data()...)
	}
	rec.st.deliver(streamEvent{kind: evRecvData, data: f.Data()})
	if c.cfg.ClientFlowControl != FlowControlManual {
		c.autoWindowUpdate(id, n)
	}
	if f.StreamEnded() {
		if err := rec.st.transition(evRecvEndStream, false); err != nil {
			c.rstStreamLocked(id, err.(StreamError).Code)
			return nil
		}
		rec.st.deliver(streamEvent{kind: evRecvEndStream})
		if rec.st.isClosed() {
			c.finishStream(id, nil)
		}
	}
	return nil
}

func (c *Connection) autoWindowUpdate(id uint32, n int32) error {
	if n <= 0 {
		return nil
	}
	c.connRecv.add(n)
	if err := c.fr.WriteWindowUpdate(0, uint32(n)); err != nil {
		return err
	}
	rec := c.streams.get(id)
	if rec.kind == streamActive {
		rec.st.recvFlow.add(n)
		if err := c.fr.WriteWindowUpdate(id, uint32(n)); err != nil {
			return err
		}
	}
	return c.flush()
}

func (c *Connection) processRSTStream(f *RSTStreamFrame) error {
	id := f.Header().StreamID
	rec := c.streams.get(id)
	if rec.kind == streamIdle {
		return ConnectionError(ErrCodeProtocol)
	}
	if rec.kind == streamActive {
		if err := rec.st.transition(evRecvRST, false); err != nil {
			return err
		}
		rec.st.deliver(streamEvent{kind: evRecvRST, rstCode: f.ErrCode})
		c.finishStream(id, StreamError{id, f.ErrCode, nil})
	}
	return nil
}

func (c *Connection) processPushPromise(f *PushPromiseFrame) error {
	if c.role == RoleServer {
		return ConnectionError(ErrCodeProtocol)
	}
	promised := f.PromiseID
	if c.streams.get(promised).kind != streamIdle {
		return ConnectionError(ErrCodeProtocol)
	}
	st := newStream(c.newStreamCallback(), int32(c.self.InitialWindowSize), &c.connSend)
	st.recvFlow = newFlow(int32(c.self.InitialWindowSize), nil)
	if err := c.streams.admitRemoteStream(promised, st); err != nil {
		return nil // REFUSED locally; nothing more to do per spec
	}
	if err := st.transition(evRecvPushPromise, false); err != nil {
		c.rstStreamLocked(promised, err.(StreamError).Code)
		return nil
	}
	c.cont = continuationState{
		active:     true,
		streamID:   f.Header().StreamID,
		kind:       continuationPushPromise,
		promisedID: promised,
		block:      append([]byte(nil), f.HeaderBlockFragment()...),
	}
	if !f.HeadersEnded() {
		c.state = stateContinuation
		return nil
	}
	fields, err := c.decoder.decode(c.cont.block)
	c.cont = continuationState{}
	if err != nil {
		return err
	}
	st.deliver(streamEvent{kind: evRecvPushPromise, promised: fields})
	return nil
}

func (c *Connection) processPing(f *PingFrame) error {
	if f.Header().StreamID != 0 {
		return ConnectionError(ErrCodeProtocol)
	}
	if f.IsAck() {
		if p, ok := c.pendingPings[f.Data]; ok {
			delete(c.pendingPings, f.Data)
			p.done <- nil
		}
		return nil
	}
	if err := c.fr.WritePing(true, f.Data); err != nil {
		return err
	}
	return c.flush()
}

func (c *Connection) processWindowUpdate(f *WindowUpdateFrame) error {
	id := f.Header().StreamID
	if id == 0 {
		if !c.connSend.add(int32(f.Increment)) {
			return ConnectionError(ErrCodeFlowControl)
		}
		c.sendWindowHint.Store(c.connSend.n)
		if err := c.sched.sweepAll(c.streams, &c.connSend); err != nil {
			return err
		}
		return c.flush()
	}
	rec := c.streams.get(id)
	switch rec.kind {
	case streamIdle:
		return ConnectionError(ErrCodeProtocol)
	case streamClosed:
		c.rstStreamLocked(id, ErrCodeStreamClosed)
		return nil
	default:
		if !rec.st.sendFlow.add(int32(f.Increment)) {
			c.rstStreamLocked(id, ErrCodeFlowControl)
			return nil
		}
		if err := c.sched.sendStream(rec.st); err != nil {
			return err
		}
		return c.flush()
	}
}

// refuseLocked implements spec.md section 4.6's "if REFUSED, locally
// RST" clause.
func (c *Connection) refuseLocked(id uint32, cause error) error {
	if err := c.fr.WriteRSTStream(id, ErrCodeRefusedStream); err != nil {
		return err
	}
	return c.flush()
}

func (c *Connection) rstStreamLocked(id uint32, code ErrCode) {
	c.streams.close(id, true)
	c.fr.WriteRSTStream(id, code)
	c.flush()
}

// abort tears the connection down with a GOAWAY carrying err's code,
// per spec.md section 7's connection-error propagation policy.
func (c *Connection) abort(err error) {
	var code ErrCode
	switch e := err.(type) {
	case ConnectionError:
		code = ErrCode(e)
	case StreamError:
		code = e.Code
	default:
		code = ErrCodeInternal
	}
	c.traceEventf("aborting: %v", err)
	c.vlogf("http2: aborting connection, GOAWAY code %v: %v", code, err)
	c.fr.WriteGoAway(c.lastStreamID, code, nil)
	c.flush()
	c.state = stateClosing
	c.closeErr = err
}

func (c *Connection) teardown() {
	c.stopHandshakeTimer()
	c.closeOnce.Do(func() { close(c.closed) })
	c.condlogf(c.closeErr, "http2: connection closed: %v", c.closeErr)
	c.transport.Close()
	if c.events != nil {
		c.events.Finish()
	}
	c.streamFin = nil
}

// newStreamCallback constructs the application-layer handler for a
// freshly admitted stream via the configured factory.
func (c *Connection) newStreamCallback() StreamCallback {
	if c.cfg.Callback == nil {
		return noopCallback{}
	}
	return c.cfg.Callback()
}

type noopCallback struct{}

func (noopCallback) Headers(*Stream, []HeaderField)  {}
func (noopCallback) Data(*Stream, []byte)            {}
func (noopCallback) Trailers(*Stream, []HeaderField) {}
func (noopCallback) Closed(*Stream, error)            {}

// finishStream posts {stream_finished, id, ...} handling from spec.md
// section 4.5: the connection calls StreamSet.close.
func (c *Connection) finishStream(id uint32, err error) {
	rec := c.streams.get(id)
	if rec.kind != streamActive {
		return
	}
	rec.st.finishErr = err
	close(rec.st.events)
	if c.role == RoleClient {
		resp := &Response{
			Headers:  rec.st.respHeaders,
			Header:   c.canonicalHeaderMap(rec.st.respHeaders),
			Body:     rec.st.respBody,
			Trailers: rec.st.respTrailers,
		}
		c.streams.closeWithResponse(id, c.cfg.GarbageOnEnd, resp)
	} else {
		c.streams.close(id, c.cfg.GarbageOnEnd)
	}
}

// writeTrailersLocked is the scheduler's callback for emitting a
// deferred trailer block (spec.md section 4.3), run only from the run
// loop, so it may use the shared HPACK encode context directly.
func (c *Connection) writeTrailersLocked(streamID uint32, trailers []HeaderField) error {
	block, err := c.encoder.encode(trailers)
	if err != nil {
		return err
	}
	first, rest := splitHeaderBlock(block, c.effectiveMaxFrameSize())
	if err := c.fr.WriteHeaders(HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: first,
		EndStream:     true,
		EndHeaders:    len(rest) == 0,
	}); err != nil {
		return err
	}
	for i, chunk := range rest {
		if err := c.fr.WriteContinuation(streamID, i == len(rest)-1, chunk); err != nil {
			return err
		}
	}
	return c.flush()
}

// canonicalHeader mirrors server.go's canonicalHeader: an incoming
// lowercase HTTP/2 header name is canonicalized once per connection and
// cached, avoiding a repeat http.CanonicalHeaderKey allocation on the
// hot path (spec.md section 5's supplemented "canonical header cache").
func (c *Connection) canonicalHeader(v string) string {
	cv, ok := c.canonHdr[v]
	if !ok {
		cv = http.CanonicalHeaderKey(v)
		c.canonHdr[v] = cv
	}
	return cv
}

// canonicalHeaderMap renders fields as a net/http-shaped Header, for
// callers that want to reuse net/http-based logic (cookie jars,
// multipart parsers, ...) against a recorded response.
func (c *Connection) canonicalHeaderMap(fields []HeaderField) http.Header {
	h := make(http.Header, len(fields))
	for _, f := range fields {
		if len(f.Name) > 0 && f.Name[0] == ':' {
			continue // pseudo-headers have no net/http equivalent
		}
		h.Add(c.canonicalHeader(f.Name), f.Value)
	}
	return h
}

func (c *Connection) effectiveMaxFrameSize() uint32 {
	if c.peer.MaxFrameSize == 0 {
		return defaultMaxFrameSize
	}
	return c.peer.MaxFrameSize
}

// do runs fn on the run-loop goroutine and waits for it to finish,
// the synchronous "call" form spec.md section 9 keeps (dropping the
// duplicative "cast" form).
func (c *Connection) do(fn func(c *Connection) error) error {
	done := make(chan error, 1)
	select {
	case c.calls <- connCall{fn: fn, done: done}:
	case <-c.closed:
		return c.terminalError()
	}
	select {
	case err := <-done:
		return err
	case <-c.closed:
		return c.terminalError()
	}
}

func (c *Connection) terminalError() error {
	if c.closeErr != nil {
		return c.closeErr
	}
	return errors.New("http2: connection closed")
}

func randPingData() ([8]byte, error) {
	var b [8]byte
	_, err := rand.Read(b[:])
	return b, err
}
