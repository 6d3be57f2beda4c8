// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package http2

import (
	"encoding/binary"
	"fmt"
	"io"
)

// frameHeaderLen is the 9-byte fixed frame header defined in RFC 7540
// section 4.1: a 24-bit length, an 8-bit type, an 8-bit flags field, and
// a 31-bit stream identifier (plus a reserved top bit).
const frameHeaderLen = 9

// FrameType identifies the type of an HTTP/2 frame, per RFC 7540 section 11.2.
type FrameType uint8

const (
	FrameData         FrameType = 0x0
	FrameHeaders      FrameType = 0x1
	FramePriority     FrameType = 0x2
	FrameRSTStream    FrameType = 0x3
	FrameSettings     FrameType = 0x4
	FramePushPromise  FrameType = 0x5
	FramePing         FrameType = 0x6
	FrameGoAway       FrameType = 0x7
	FrameWindowUpdate FrameType = 0x8
	FrameContinuation FrameType = 0x9
)

func (t FrameType) String() string {
	switch t {
	case FrameData:
		return "DATA"
	case FrameHeaders:
		return "HEADERS"
	case FramePriority:
		return "PRIORITY"
	case FrameRSTStream:
		return "RST_STREAM"
	case FrameSettings:
		return "SETTINGS"
	case FramePushPromise:
		return "PUSH_PROMISE"
	case FramePing:
		return "PING"
	case FrameGoAway:
		return "GOAWAY"
	case FrameWindowUpdate:
		return "WINDOW_UPDATE"
	case FrameContinuation:
		return "CONTINUATION"
	default:
		return fmt.Sprintf("UNKNOWN_%d", uint8(t))
	}
}

// Flags is a bitmask of frame-type-specific flags.
type Flags uint8

const (
	FlagDataEndStream  Flags = 0x1
	FlagDataPadded     Flags = 0x8
	FlagHeadersEndStream  Flags = 0x1
	FlagHeadersEndHeaders Flags = 0x4
	FlagHeadersPadded     Flags = 0x8
	FlagHeadersPriority   Flags = 0x20
	FlagSettingsAck             Flags = 0x1
	FlagPingAck                 Flags = 0x1
	FlagPushPromiseEndHeaders   Flags = 0x4
	FlagPushPromisePadded       Flags = 0x8
	FlagContinuationEndHeaders  Flags = 0x4
)

func (f Flags) Has(v Flags) bool { return f&v != 0 }

// FrameHeader is the 9-byte header shared by every HTTP/2 frame.
type FrameHeader struct {
	Length   uint32 // 24-bit
	Type     FrameType
	Flags    Flags
	StreamID uint32 // 31-bit
}

func readFrameHeader(buf []byte, r io.Reader) (FrameHeader, error) {
	_, err := io.ReadFull(r, buf[:frameHeaderLen])
	if err != nil {
		return FrameHeader{}, err
	}
	return FrameHeader{
		Length:   uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2]),
		Type:     FrameType(buf[3]),
		Flags:    Flags(buf[4]),
		StreamID: binary.BigEndian.Uint32(buf[5:9]) & 0x7fffffff,
	}, nil
}

func (h FrameHeader) writeTo(buf []byte) {
	buf[0] = byte(h.Length >> 16)
	buf[1] = byte(h.Length >> 8)
	buf[2] = byte(h.Length)
	buf[3] = byte(h.Type)
	buf[4] = byte(h.Flags)
	binary.BigEndian.PutUint32(buf[5:9], h.StreamID&0x7fffffff)
}

// Frame is implemented by every concrete frame type.
type Frame interface {
	Header() FrameHeader
}

// streamEnder is implemented by frame types that can carry END_STREAM.
type streamEnder interface {
	StreamEnded() bool
}

// ErrFrameTooLarge is returned by ReadFrame when the peer sent a frame
// whose length exceeds our advertised SETTINGS_MAX_FRAME_SIZE. The frame
// payload is not consumed; per RFC 7540 section 4.2 this is a
// FRAME_SIZE_ERROR connection error, so a GOAWAY is still owed.
var ErrFrameTooLarge = ConnectionError(ErrCodeFrameSize)

// Framer reads and writes HTTP/2 frames on a single connection.
//
// A Framer is not safe for concurrent reads, nor for concurrent writes,
// but a single reader and a single writer may use it concurrently with
// each other (they touch disjoint state).
type Framer struct {
	r io.Reader
	w io.Writer

	// MaxReadFrameSize enforces spec.md section 4.1: incoming frame
	// length is checked against our own advertised MAX_FRAME_SIZE.
	MaxReadFrameSize uint32

	headerBuf [frameHeaderLen]byte

	// wbuf accumulates one outgoing frame at a time.
	wbuf []byte
}

// NewFramer returns a Framer that writes to w and reads from r.
func NewFramer(w io.Writer, r io.Reader) *Framer {
	return &Framer{
		w:                w,
		r:                r,
		MaxReadFrameSize: defaultMaxReadFrameSize,
	}
}

const defaultMaxReadFrameSize = 16 << 10 // RFC 7540 section 6.5.2 default

// ReadFrame reads a single frame. The returned Frame is valid only until
// the next call to ReadFrame.
func (fr *Framer) ReadFrame() (Frame, error) {
	fh, err := readFrameHeader(fr.headerBuf[:], fr.r)
	if err != nil {
		return nil, err
	}
	if fh.Length > fr.MaxReadFrameSize {
		// Per spec.md section 4.1, do not consume the payload; the
		// connection is going away regardless.
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, fh.Length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		return nil, err
	}
	return parsePayload(fh, payload)
}

func parsePayload(fh FrameHeader, p []byte) (Frame, error) {
	switch fh.Type {
	case FrameData:
		return parseDataFrame(fh, p)
	case FrameHeaders:
		return parseHeadersFrame(fh, p)
	case FramePriority:
		return parsePriorityFrame(fh, p)
	case FrameRSTStream:
		return parseRSTStreamFrame(fh, p)
	case FrameSettings:
		return parseSettingsFrame(fh, p)
	case FramePushPromise:
		return parsePushPromiseFrame(fh, p)
	case FramePing:
		return parsePingFrame(fh, p)
	case FrameGoAway:
		return parseGoAwayFrame(fh, p)
	case FrameWindowUpdate:
		return parseWindowUpdateFrame(fh, p)
	case FrameContinuation:
		return parseContinuationFrame(fh, p)
	default:
		// "Implementations MUST ignore and discard any frame that has
		// a type that is unknown." RFC 7540 section 4.1.
		return &UnknownFrame{fh, p}, nil
	}
}

// UnknownFrame is any frame type this package doesn't recognize.
// Per spec.md section 4.6, these are silently ignored by the connection.
type UnknownFrame struct {
	FrameHeader
	Payload []byte
}

func (f *UnknownFrame) Header() FrameHeader { return f.FrameHeader }

func readPadded(fh FrameHeader, p []byte, padded bool) (data []byte, err error) {
	if !padded {
		return p, nil
	}
	if len(p) == 0 {
		return nil, ConnectionError(ErrCodeProtocol)
	}
	padLen := int(p[0])
	p = p[1:]
	if padLen > len(p) {
		return nil, ConnectionError(ErrCodeProtocol)
	}
	return p[:len(p)-padLen], nil
}

// ---- DATA ----

type DataFrame struct {
	FrameHeader
	data []byte
}

func parseDataFrame(fh FrameHeader, p []byte) (*DataFrame, error) {
	if fh.StreamID == 0 {
		return nil, ConnectionError(ErrCodeProtocol)
	}
	data, err := readPadded(fh, p, fh.Flags.Has(FlagDataPadded))
	if err != nil {
		return nil, err
	}
	return &DataFrame{fh, data}, nil
}

func (f *DataFrame) Header() FrameHeader { return f.FrameHeader }
func (f *DataFrame) Data() []byte        { return f.data }
func (f *DataFrame) StreamEnded() bool   { return f.Flags.Has(FlagDataEndStream) }

func (fr *Framer) WriteData(streamID uint32, endStream bool, data []byte) error {
	var flags Flags
	if endStream {
		flags |= FlagDataEndStream
	}
	return fr.writeFrame(FrameHeader{
		Length:   uint32(len(data)),
		Type:     FrameData,
		Flags:    flags,
		StreamID: streamID,
	}, data)
}

// ---- HEADERS ----

type HeadersFrame struct {
	FrameHeader
	headerFragment []byte
	Priority       PriorityParam
	hasPriority    bool
}

func parseHeadersFrame(fh FrameHeader, p []byte) (*HeadersFrame, error) {
	if fh.StreamID == 0 {
		return nil, ConnectionError(ErrCodeProtocol)
	}
	frag, err := readPadded(fh, p, fh.Flags.Has(FlagHeadersPadded))
	if err != nil {
		return nil, err
	}
	f := &HeadersFrame{FrameHeader: fh}
	if fh.Flags.Has(FlagHeadersPriority) {
		if len(frag) < 5 {
			return nil, ConnectionError(ErrCodeFrameSize)
		}
		f.hasPriority = true
		f.Priority = parsePriorityParam(frag[:5])
		frag = frag[5:]
	}
	f.headerFragment = frag
	return f, nil
}

func (f *HeadersFrame) Header() FrameHeader          { return f.FrameHeader }
func (f *HeadersFrame) HeaderBlockFragment() []byte  { return f.headerFragment }
func (f *HeadersFrame) HeadersEnded() bool           { return f.Flags.Has(FlagHeadersEndHeaders) }
func (f *HeadersFrame) StreamEnded() bool            { return f.Flags.Has(FlagHeadersEndStream) }
func (f *HeadersFrame) HasPriority() bool            { return f.hasPriority }

type HeadersFrameParam struct {
	StreamID      uint32
	BlockFragment []byte
	EndStream     bool
	EndHeaders    bool
	Priority      PriorityParam
	HasPriority   bool
}

func (fr *Framer) WriteHeaders(p HeadersFrameParam) error {
	var flags Flags
	if p.EndStream {
		flags |= FlagHeadersEndStream
	}
	if p.EndHeaders {
		flags |= FlagHeadersEndHeaders
	}
	payload := p.BlockFragment
	if p.HasPriority {
		flags |= FlagHeadersPriority
		buf := make([]byte, 5+len(p.BlockFragment))
		p.Priority.writeTo(buf[:5])
		copy(buf[5:], p.BlockFragment)
		payload = buf
	}
	return fr.writeFrame(FrameHeader{
		Length:   uint32(len(payload)),
		Type:     FrameHeaders,
		Flags:    flags,
		StreamID: p.StreamID,
	}, payload)
}

// ---- PRIORITY ----

type PriorityParam struct {
	StreamDep uint32
	Exclusive bool
	Weight    uint8
}

func parsePriorityParam(p []byte) PriorityParam {
	dep := binary.BigEndian.Uint32(p[:4])
	return PriorityParam{
		StreamDep: dep & 0x7fffffff,
		Exclusive: dep&0x80000000 != 0,
		Weight:    p[4],
	}
}

func (pp PriorityParam) writeTo(buf []byte) {
	dep := pp.StreamDep & 0x7fffffff
	if pp.Exclusive {
		dep |= 0x80000000
	}
	binary.BigEndian.PutUint32(buf[:4], dep)
	buf[4] = pp.Weight
}

type PriorityFrame struct {
	FrameHeader
	PriorityParam
}

func parsePriorityFrame(fh FrameHeader, p []byte) (*PriorityFrame, error) {
	if fh.StreamID == 0 {
		return nil, ConnectionError(ErrCodeProtocol)
	}
	if len(p) != 5 {
		return nil, ConnectionError(ErrCodeFrameSize)
	}
	return &PriorityFrame{fh, parsePriorityParam(p)}, nil
}

func (f *PriorityFrame) Header() FrameHeader { return f.FrameHeader }

func (fr *Framer) WritePriority(streamID uint32, p PriorityParam) error {
	buf := make([]byte, 5)
	p.writeTo(buf)
	return fr.writeFrame(FrameHeader{Length: 5, Type: FramePriority, StreamID: streamID}, buf)
}

// ---- RST_STREAM ----

type RSTStreamFrame struct {
	FrameHeader
	ErrCode ErrCode
}

func parseRSTStreamFrame(fh FrameHeader, p []byte) (*RSTStreamFrame, error) {
	if fh.StreamID == 0 {
		return nil, ConnectionError(ErrCodeProtocol)
	}
	if len(p) != 4 {
		return nil, ConnectionError(ErrCodeFrameSize)
	}
	return &RSTStreamFrame{fh, ErrCode(binary.BigEndian.Uint32(p))}, nil
}

func (f *RSTStreamFrame) Header() FrameHeader { return f.FrameHeader }

func (fr *Framer) WriteRSTStream(streamID uint32, code ErrCode) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(code))
	return fr.writeFrame(FrameHeader{Length: 4, Type: FrameRSTStream, StreamID: streamID}, buf)
}

// ---- SETTINGS ----

// SettingID identifies an entry in a SETTINGS frame, per RFC 7540 section 6.5.2.
type SettingID uint16

const (
	SettingHeaderTableSize      SettingID = 0x1
	SettingEnablePush           SettingID = 0x2
	SettingMaxConcurrentStreams SettingID = 0x3
	SettingInitialWindowSize    SettingID = 0x4
	SettingMaxFrameSize         SettingID = 0x5
	SettingMaxHeaderListSize    SettingID = 0x6
)

func (s SettingID) String() string {
	switch s {
	case SettingHeaderTableSize:
		return "HEADER_TABLE_SIZE"
	case SettingEnablePush:
		return "ENABLE_PUSH"
	case SettingMaxConcurrentStreams:
		return "MAX_CONCURRENT_STREAMS"
	case SettingInitialWindowSize:
		return "INITIAL_WINDOW_SIZE"
	case SettingMaxFrameSize:
		return "MAX_FRAME_SIZE"
	case SettingMaxHeaderListSize:
		return "MAX_HEADER_LIST_SIZE"
	default:
		return fmt.Sprintf("UNKNOWN_SETTING_%d", uint16(s))
	}
}

type Setting struct {
	ID  SettingID
	Val uint32
}

func (s Setting) Valid() error {
	switch s.ID {
	case SettingEnablePush:
		if s.Val != 0 && s.Val != 1 {
			return ConnectionError(ErrCodeProtocol)
		}
	case SettingInitialWindowSize:
		if s.Val > 1<<31-1 {
			return ConnectionError(ErrCodeFlowControl)
		}
	case SettingMaxFrameSize:
		if s.Val < 1<<14 || s.Val > 1<<24-1 {
			return ConnectionError(ErrCodeProtocol)
		}
	}
	return nil
}

type SettingsFrame struct {
	FrameHeader
	p []byte
}

func parseSettingsFrame(fh FrameHeader, p []byte) (*SettingsFrame, error) {
	if fh.StreamID != 0 {
		return nil, ConnectionError(ErrCodeProtocol)
	}
	if fh.Flags.Has(FlagSettingsAck) {
		if len(p) != 0 {
			return nil, ConnectionError(ErrCodeFrameSize)
		}
		return &SettingsFrame{fh, nil}, nil
	}
	if len(p)%6 != 0 {
		return nil, ConnectionError(ErrCodeFrameSize)
	}
	return &SettingsFrame{fh, p}, nil
}

func (f *SettingsFrame) Header() FrameHeader { return f.FrameHeader }
func (f *SettingsFrame) IsAck() bool         { return f.Flags.Has(FlagSettingsAck) }

func (f *SettingsFrame) NumSettings() int { return len(f.p) / 6 }

func (f *SettingsFrame) Setting(i int) Setting {
	p := f.p[i*6 : i*6+6]
	return Setting{
		ID:  SettingID(binary.BigEndian.Uint16(p[:2])),
		Val: binary.BigEndian.Uint32(p[2:6]),
	}
}

// ForeachSetting calls fn for each setting, in wire order, stopping (and
// returning) on the first error fn returns.
func (f *SettingsFrame) ForeachSetting(fn func(Setting) error) error {
	for i := 0; i < f.NumSettings(); i++ {
		if err := fn(f.Setting(i)); err != nil {
			return err
		}
	}
	return nil
}

func (fr *Framer) WriteSettings(settings ...Setting) error {
	buf := make([]byte, 6*len(settings))
	for i, s := range settings {
		p := buf[i*6 : i*6+6]
		binary.BigEndian.PutUint16(p[:2], uint16(s.ID))
		binary.BigEndian.PutUint32(p[2:6], s.Val)
	}
	return fr.writeFrame(FrameHeader{Length: uint32(len(buf)), Type: FrameSettings}, buf)
}

func (fr *Framer) WriteSettingsAck() error {
	return fr.writeFrame(FrameHeader{Type: FrameSettings, Flags: FlagSettingsAck}, nil)
}

// ---- PUSH_PROMISE ----

type PushPromiseFrame struct {
	FrameHeader
	PromiseID      uint32
	headerFragment []byte
}

func parsePushPromiseFrame(fh FrameHeader, p []byte) (*PushPromiseFrame, error) {
	if fh.StreamID == 0 {
		return nil, ConnectionError(ErrCodeProtocol)
	}
	frag, err := readPadded(fh, p, fh.Flags.Has(FlagPushPromisePadded))
	if err != nil {
		return nil, err
	}
	if len(frag) < 4 {
		return nil, ConnectionError(ErrCodeFrameSize)
	}
	promised := binary.BigEndian.Uint32(frag[:4]) & 0x7fffffff
	return &PushPromiseFrame{fh, promised, frag[4:]}, nil
}

func (f *PushPromiseFrame) Header() FrameHeader         { return f.FrameHeader }
func (f *PushPromiseFrame) HeaderBlockFragment() []byte { return f.headerFragment }
func (f *PushPromiseFrame) HeadersEnded() bool          { return f.Flags.Has(FlagPushPromiseEndHeaders) }

func (fr *Framer) WritePushPromise(streamID, promiseID uint32, endHeaders bool, block []byte) error {
	var flags Flags
	if endHeaders {
		flags |= FlagPushPromiseEndHeaders
	}
	buf := make([]byte, 4+len(block))
	binary.BigEndian.PutUint32(buf[:4], promiseID&0x7fffffff)
	copy(buf[4:], block)
	return fr.writeFrame(FrameHeader{
		Length:   uint32(len(buf)),
		Type:     FramePushPromise,
		Flags:    flags,
		StreamID: streamID,
	}, buf)
}

// ---- PING ----

type PingFrame struct {
	FrameHeader
	Data [8]byte
}

func parsePingFrame(fh FrameHeader, p []byte) (*PingFrame, error) {
	if fh.StreamID != 0 {
		return nil, ConnectionError(ErrCodeProtocol)
	}
	if len(p) != 8 {
		return nil, ConnectionError(ErrCodeFrameSize)
	}
	f := &PingFrame{FrameHeader: fh}
	copy(f.Data[:], p)
	return f, nil
}

func (f *PingFrame) Header() FrameHeader { return f.FrameHeader }
func (f *PingFrame) IsAck() bool         { return f.Flags.Has(FlagPingAck) }

func (fr *Framer) WritePing(ack bool, data [8]byte) error {
	var flags Flags
	if ack {
		flags |= FlagPingAck
	}
	return fr.writeFrame(FrameHeader{Length: 8, Type: FramePing, Flags: flags}, data[:])
}

// ---- GOAWAY ----

type GoAwayFrame struct {
	FrameHeader
	LastStreamID uint32
	ErrCode      ErrCode
	debugData    []byte
}

func parseGoAwayFrame(fh FrameHeader, p []byte) (*GoAwayFrame, error) {
	if fh.StreamID != 0 {
		return nil, ConnectionError(ErrCodeProtocol)
	}
	if len(p) < 8 {
		return nil, ConnectionError(ErrCodeFrameSize)
	}
	return &GoAwayFrame{
		FrameHeader:  fh,
		LastStreamID: binary.BigEndian.Uint32(p[:4]) & 0x7fffffff,
		ErrCode:      ErrCode(binary.BigEndian.Uint32(p[4:8])),
		debugData:    p[8:],
	}, nil
}

func (f *GoAwayFrame) Header() FrameHeader { return f.FrameHeader }
func (f *GoAwayFrame) DebugData() []byte   { return f.debugData }

func (fr *Framer) WriteGoAway(lastStreamID uint32, code ErrCode, debugData []byte) error {
	buf := make([]byte, 8+len(debugData))
	binary.BigEndian.PutUint32(buf[:4], lastStreamID&0x7fffffff)
	binary.BigEndian.PutUint32(buf[4:8], uint32(code))
	copy(buf[8:], debugData)
	return fr.writeFrame(FrameHeader{Length: uint32(len(buf)), Type: FrameGoAway}, buf)
}

// ---- WINDOW_UPDATE ----

type WindowUpdateFrame struct {
	FrameHeader
	Increment uint32
}

func parseWindowUpdateFrame(fh FrameHeader, p []byte) (*WindowUpdateFrame, error) {
	if len(p) != 4 {
		return nil, ConnectionError(ErrCodeFrameSize)
	}
	inc := binary.BigEndian.Uint32(p) & 0x7fffffff
	if inc == 0 {
		if fh.StreamID == 0 {
			return nil, ConnectionError(ErrCodeProtocol)
		}
		return nil, StreamError{fh.StreamID, ErrCodeProtocol, nil}
	}
	return &WindowUpdateFrame{fh, inc}, nil
}

func (f *WindowUpdateFrame) Header() FrameHeader { return f.FrameHeader }

func (fr *Framer) WriteWindowUpdate(streamID, increment uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, increment&0x7fffffff)
	return fr.writeFrame(FrameHeader{Length: 4, Type: FrameWindowUpdate, StreamID: streamID}, buf)
}

// ---- CONTINUATION ----

type ContinuationFrame struct {
	FrameHeader
	headerFragment []byte
}

func parseContinuationFrame(fh FrameHeader, p []byte) (*ContinuationFrame, error) {
	if fh.StreamID == 0 {
		return nil, ConnectionError(ErrCodeProtocol)
	}
	return &ContinuationFrame{fh, p}, nil
}

func (f *ContinuationFrame) Header() FrameHeader         { return f.FrameHeader }
func (f *ContinuationFrame) HeaderBlockFragment() []byte { return f.headerFragment }
func (f *ContinuationFrame) HeadersEnded() bool          { return f.Flags.Has(FlagContinuationEndHeaders) }

func (fr *Framer) WriteContinuation(streamID uint32, endHeaders bool, block []byte) error {
	var flags Flags
	if endHeaders {
		flags |= FlagContinuationEndHeaders
	}
	return fr.writeFrame(FrameHeader{
		Length:   uint32(len(block)),
		Type:     FrameContinuation,
		Flags:    flags,
		StreamID: streamID,
	}, block)
}

// writeFrame serializes a header+payload pair directly to the
// underlying writer. Callers are responsible for coalescing writes (via
// a *bufio.Writer, per the teacher's convention) if that matters.
func (fr *Framer) writeFrame(h FrameHeader, payload []byte) error {
	if fr.wbuf == nil || cap(fr.wbuf) < frameHeaderLen {
		fr.wbuf = make([]byte, frameHeaderLen)
	}
	fr.wbuf = fr.wbuf[:frameHeaderLen]
	h.writeTo(fr.wbuf)
	if _, err := fr.w.Write(fr.wbuf); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := fr.w.Write(payload)
	return err
}
