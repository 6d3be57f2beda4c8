// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package http2

import (
	"bytes"

	"golang.org/x/net/http2/hpack"
)

// HeaderField is a decoded or to-be-encoded header, as exchanged with
// the application-layer callback.
type HeaderField = hpack.HeaderField

// hpackDecoder wraps hpack.Decoder with the connection's own
// bookkeeping: it is never reimplemented (HPACK is treated as an
// opaque collaborator), only driven.
type hpackDecoder struct {
	dec    *hpack.Decoder
	fields []HeaderField
}

func newHPACKDecoder(maxHeaderListSize uint32) *hpackDecoder {
	d := &hpackDecoder{}
	d.dec = hpack.NewDecoder(initialHeaderTableSize, d.onField)
	if maxHeaderListSize > 0 {
		d.dec.SetMaxStringLength(int(maxHeaderListSize))
	}
	return d
}

func (d *hpackDecoder) onField(f HeaderField) {
	d.fields = append(d.fields, f)
}

// decode consumes one accumulated HEADERS+CONTINUATION block and
// returns its header list, or a COMPRESSION_ERROR per spec.md section 7.
func (d *hpackDecoder) decode(block []byte) ([]HeaderField, error) {
	d.fields = d.fields[:0]
	if _, err := d.dec.Write(block); err != nil {
		return nil, ConnectionError(ErrCodeCompression)
	}
	// Write keeps a field cut off at the end of the block for a later
	// call; Close reports it, since a header block is always complete.
	if err := d.dec.Close(); err != nil {
		return nil, ConnectionError(ErrCodeCompression)
	}
	out := d.fields
	d.fields = nil
	return out, nil
}

// setMaxTableSize applies our own advertised HEADER_TABLE_SIZE, once
// the peer has ACKed it, to the decode side's dynamic table.
func (d *hpackDecoder) setMaxTableSize(n uint32) {
	d.dec.SetMaxDynamicTableSize(n)
}

// hpackEncoder wraps hpack.Encoder. It produces one contiguous header
// block; splitHeaderBlock breaks that block into HEADERS + CONTINUATION
// payloads at the connection's outbound MAX_FRAME_SIZE.
type hpackEncoder struct {
	enc *hpack.Encoder
	buf bytes.Buffer
}

func newHPACKEncoder() *hpackEncoder {
	e := &hpackEncoder{}
	e.enc = hpack.NewEncoder(&e.buf)
	return e
}

func (e *hpackEncoder) setMaxTableSize(n uint32) {
	e.enc.SetMaxDynamicTableSize(n)
}

// encode renders fields into one contiguous header block. Splitting
// into HEADERS/CONTINUATION frame-sized chunks happens in the writer
// path (frame.go's WriteHeaders / WriteContinuation callers), not here,
// matching spec.md's description of encode returning a frame_list that
// the caller then emits.
func (e *hpackEncoder) encode(fields []HeaderField) ([]byte, error) {
	e.buf.Reset()
	for _, f := range fields {
		if err := e.enc.WriteField(f); err != nil {
			return nil, err
		}
	}
	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	return out, nil
}

// splitHeaderBlock breaks a header block into a HEADERS frame payload
// and zero or more CONTINUATION payloads, each at most maxFrameSize
// bytes, per spec.md section 4.4's frame_list contract.
func splitHeaderBlock(block []byte, maxFrameSize uint32) (first []byte, rest [][]byte) {
	if uint32(len(block)) <= maxFrameSize {
		return block, nil
	}
	first = block[:maxFrameSize]
	block = block[maxFrameSize:]
	for uint32(len(block)) > maxFrameSize {
		rest = append(rest, block[:maxFrameSize])
		block = block[maxFrameSize:]
	}
	if len(block) > 0 {
		rest = append(rest, block)
	}
	return first, rest
}
