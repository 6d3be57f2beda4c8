// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package http2

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"time"
)

// SendOpts mirrors spec.md section 6's send_opts: `{send_end_stream, bool}`.
type SendOpts struct {
	SendEndStream bool
}

// ErrRefused is returned by NewStream when the peer's
// MAX_CONCURRENT_STREAMS cap is already reached (spec.md invariant I4).
var ErrRefused = ConnectionError(ErrCodeRefusedStream)

// NewStream implements spec.md section 6's new_stream in its "call"
// form only (synchronous, returns a result) — the duplicative "cast"
// clause named in spec.md section 9 is intentionally not exposed.
func (c *Connection) NewStream(headers []HeaderField, body []byte, opts SendOpts) (*Stream, error) {
	var out *Stream
	err := c.do(func(c *Connection) error {
		st := newStream(c.newStreamCallback(), int32(c.peer.InitialWindowSize), &c.connSend)
		id, err := c.streams.newLocalStream(st)
		if err != nil {
			return err
		}
		st.reqHeaders = headers
		if err := st.transition(evRecvHeaders, true); err != nil {
			return err
		}
		block, err := c.encoder.encode(headers)
		if err != nil {
			return err
		}
		endStream := opts.SendEndStream && len(body) == 0
		first, rest := splitHeaderBlock(block, c.effectiveMaxFrameSize())
		if err := c.fr.WriteHeaders(HeadersFrameParam{
			StreamID:      id,
			BlockFragment: first,
			EndStream:     endStream,
			EndHeaders:    len(rest) == 0,
		}); err != nil {
			return err
		}
		for i, chunk := range rest {
			if err := c.fr.WriteContinuation(id, i == len(rest)-1, chunk); err != nil {
				return err
			}
		}
		if endStream {
			if err := st.transition(evRecvEndStream, true); err != nil {
				return err
			}
			st.endStream = true
		}
		if err := c.flush(); err != nil {
			return err
		}
		if len(body) > 0 {
			st.out = queuedData{buf: body, done: opts.SendEndStream}
			if err := c.sched.sendStream(st); err != nil {
				return err
			}
			if err := c.flush(); err != nil {
				return err
			}
		}
		out = st.handle
		return nil
	})
	return out, err
}

// SendHeaders implements spec.md section 6's send_headers.
func (c *Connection) SendHeaders(id uint32, headers []HeaderField, opts SendOpts) error {
	return c.do(func(c *Connection) error {
		rec := c.streams.get(id)
		if rec.kind != streamActive {
			return StreamError{id, ErrCodeStreamClosed, nil}
		}
		block, err := c.encoder.encode(headers)
		if err != nil {
			return err
		}
		first, rest := splitHeaderBlock(block, c.effectiveMaxFrameSize())
		if err := c.fr.WriteHeaders(HeadersFrameParam{
			StreamID:      id,
			BlockFragment: first,
			EndStream:     opts.SendEndStream,
			EndHeaders:    len(rest) == 0,
		}); err != nil {
			return err
		}
		for i, chunk := range rest {
			if err := c.fr.WriteContinuation(id, i == len(rest)-1, chunk); err != nil {
				return err
			}
		}
		if opts.SendEndStream {
			if err := rec.st.transition(evRecvEndStream, true); err != nil {
				c.rstStreamLocked(id, err.(StreamError).Code)
				return err
			}
			rec.st.endStream = true
		}
		return c.flush()
	})
}

// SendBody implements spec.md section 6's send_body: bytes are queued
// and the scheduler is invoked immediately to send whatever the
// current flow-control windows allow.
func (c *Connection) SendBody(id uint32, data []byte, opts SendOpts) error {
	return c.do(func(c *Connection) error {
		rec := c.streams.get(id)
		if rec.kind != streamActive {
			return StreamError{id, ErrCodeStreamClosed, nil}
		}
		rec.st.out.buf = append(rec.st.out.buf, data...)
		if opts.SendEndStream {
			rec.st.out.done = true
		}
		err := c.sched.sendStream(rec.st)
		c.sendWindowHint.Store(c.connSend.n)
		if err != nil {
			return err
		}
		return c.flush()
	})
}

// SendTrailers implements spec.md section 6's send_trailers: the
// trailer block is deferred until the queued body drains, per section
// 4.3.
func (c *Connection) SendTrailers(id uint32, trailers []HeaderField) error {
	return c.do(func(c *Connection) error {
		rec := c.streams.get(id)
		if rec.kind != streamActive {
			return StreamError{id, ErrCodeStreamClosed, nil}
		}
		rec.st.out.done = true
		rec.st.trailers = trailers
		return c.sched.sendStream(rec.st)
	})
}

// SendInterimResponse emits an interim `:status: 100` HEADERS frame
// ahead of the real response, for a server stream handler answering a
// request that carried `Expect: 100-continue`. Grounded on
// write100ContinueHeadersFrame; spec.md section 5's supplemented
// 100-continue feature.
func (c *Connection) SendInterimResponse(id uint32) error {
	return c.do(func(c *Connection) error {
		rec := c.streams.get(id)
		if rec.kind != streamActive {
			return StreamError{id, ErrCodeStreamClosed, nil}
		}
		block, err := c.encoder.encode([]HeaderField{{Name: ":status", Value: "100"}})
		if err != nil {
			return err
		}
		if err := c.fr.WriteHeaders(HeadersFrameParam{
			StreamID:      id,
			BlockFragment: block,
			EndStream:     false,
			EndHeaders:    true,
		}); err != nil {
			return err
		}
		return c.flush()
	})
}

// RstStream implements spec.md section 6's rst_stream.
func (c *Connection) RstStream(id uint32, code ErrCode) error {
	return c.do(func(c *Connection) error {
		rec := c.streams.get(id)
		if rec.kind != streamActive {
			return nil
		}
		if err := rec.st.transition(evRecvRST, true); err != nil {
			return err
		}
		if err := c.fr.WriteRSTStream(id, code); err != nil {
			return err
		}
		if err := c.flush(); err != nil {
			return err
		}
		c.finishStream(id, StreamError{id, code, nil})
		return nil
	})
}

// SendPromise implements spec.md section 6's send_promise (server
// push): it reserves newID as locally-initiated-but-peer-visible and
// emits a PUSH_PROMISE on id.
func (c *Connection) SendPromise(id, newID uint32, headers []HeaderField) error {
	return c.do(func(c *Connection) error {
		if c.role != RoleServer {
			return errors.New("http2: only a server may push")
		}
		st := newStream(c.newStreamCallback(), int32(c.peer.InitialWindowSize), &c.connSend)
		p := c.streams.partitionFor(newID)
		if p.maxActive != 0 && p.activeCount >= p.maxActive {
			return ErrRefused
		}
		st.id = newID
		p.insertActive(newID, st)
		if err := st.transition(evRecvPushPromise, true); err != nil {
			return err
		}
		block, err := c.encoder.encode(headers)
		if err != nil {
			return err
		}
		first, rest := splitHeaderBlock(block, c.effectiveMaxFrameSize())
		if err := c.fr.WritePushPromise(id, newID, len(rest) == 0, first); err != nil {
			return err
		}
		for i, chunk := range rest {
			if err := c.fr.WriteContinuation(id, i == len(rest)-1, chunk); err != nil {
				return err
			}
		}
		return c.flush()
	})
}

// GetResponse implements spec.md section 6's get_response. It is only
// meaningful once the stream's Closed callback has fired; callers
// typically call it from within, or after, that callback.
type Response struct {
	Headers  []HeaderField
	Header   http.Header // canonicalized view of Headers, per server.go's canonicalHeader
	Body     []byte
	Trailers []HeaderField
	Garbage  bool
}

// ErrNotReady is returned by GetResponse while the stream is still open.
var ErrNotReady = errors.New("http2: response not ready")

// GetResponse implements spec.md section 6's get_response: not_ready
// until the stream has closed, then the recorded headers/body/trailers
// (or Garbage if the connection is configured with GarbageOnEnd).
// Content-Encoding decompression (spec.md section 6) is applied here,
// per bodycodec.go.
func (c *Connection) GetResponse(id uint32) (*Response, error) {
	var out *Response
	var notReady bool
	err := c.do(func(c *Connection) error {
		rec := c.streams.get(id)
		switch rec.kind {
		case streamClosed:
			out = rec.resp
		default:
			notReady = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if notReady {
		return nil, ErrNotReady
	}
	if out == nil {
		return &Response{Garbage: true}, nil
	}
	if !out.Garbage {
		decodeResponseBody(out)
	}
	return out, nil
}

// SendPing implements spec.md section 6's send_ping: it round-trips
// opaque bytes and reports the result once the PONG arrives or the
// connection closes, per (R2).
func (c *Connection) SendPing(timeout time.Duration) error {
	data, err := randPingData()
	if err != nil {
		return err
	}
	pending := &pendingPing{done: make(chan error, 1), sent: time.Now()}
	err = c.do(func(c *Connection) error {
		c.pendingPings[data] = pending
		if err := c.fr.WritePing(false, data); err != nil {
			return err
		}
		return c.flush()
	})
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	select {
	case err := <-pending.done:
		return err
	case <-time.After(timeout):
		return errors.New("http2: PING timed out")
	case <-c.closed:
		return c.terminalError()
	}
}

// UpdateSettings implements spec.md section 6's update_settings.
func (c *Connection) UpdateSettings(s Settings) error {
	return c.do(func(c *Connection) error {
		if err := c.fr.WriteSettings(s.asFrame()...); err != nil {
			return err
		}
		c.pendingSettings = append(c.pendingSettings, pendingSettings{sent: s})
		c.armSettingsTimer()
		return c.flush()
	})
}

// SendWindowUpdate implements spec.md section 6's send_window_update
// on the connection (stream 0).
func (c *Connection) SendWindowUpdate(size uint32) error {
	return c.do(func(c *Connection) error {
		c.connRecv.add(int32(size))
		if err := c.fr.WriteWindowUpdate(0, size); err != nil {
			return err
		}
		return c.flush()
	})
}

// Stop implements spec.md section 6's stop: it sends a graceful GOAWAY
// and tears the connection down.
func (c *Connection) Stop() error {
	return c.do(func(c *Connection) error {
		c.abort(ConnectionError(ErrCodeNo))
		return nil
	})
}

// GetStreams implements spec.md section 6's get_streams.
func (c *Connection) GetStreams() []*Stream {
	var out []*Stream
	c.do(func(c *Connection) error {
		for _, st := range c.streams.activeStreamsInOrder() {
			out = append(out, st.handle)
		}
		return nil
	})
	return out
}

// GetPeer implements spec.md section 6's get_peer: it reports the
// transport-level identity established at handshake time.
func (c *Connection) GetPeer() *tls.ConnectionState {
	if ts, ok := c.peerIdentity.(*tls.ConnectionState); ok {
		return ts
	}
	return nil
}

// GetPeerCert implements spec.md section 6's get_peercert.
func (c *Connection) GetPeerCert() *x509.Certificate {
	ts := c.GetPeer()
	if ts == nil || len(ts.PeerCertificates) == 0 {
		return nil
	}
	return ts.PeerCertificates[0]
}
