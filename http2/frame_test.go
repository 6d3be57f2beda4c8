// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package http2

import (
	"bytes"
	"reflect"
	"testing"
)

func testFramer() (*Framer, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	return NewFramer(buf, buf), buf
}

func TestWriteRST(t *testing.T) {
	fr, _ := testFramer()
	if err := fr.WriteRSTStream(42, ErrCodeCancel); err != nil {
		t.Fatal(err)
	}
	f, err := fr.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	rf, ok := f.(*RSTStreamFrame)
	if !ok {
		t.Fatalf("got %T, want *RSTStreamFrame", f)
	}
	if rf.Header().StreamID != 42 || rf.ErrCode != ErrCodeCancel {
		t.Errorf("got streamID=%d code=%s; want 42, CANCEL", rf.Header().StreamID, rf.ErrCode)
	}
}

func TestWriteData(t *testing.T) {
	fr, buf := testFramer()
	data := []byte("ABC")
	if err := fr.WriteData(3, true, data); err != nil {
		t.Fatal(err)
	}
	const wantEnc = "\x00\x00\x03\x00\x01\x00\x00\x00\x03ABC"
	if buf.String() != wantEnc {
		t.Errorf("encoded as %q; want %q", buf.Bytes(), wantEnc)
	}
	f, err := fr.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	df, ok := f.(*DataFrame)
	if !ok {
		t.Fatalf("got %T, want *DataFrame", f)
	}
	if !bytes.Equal(df.Data(), data) {
		t.Errorf("data = %q; want %q", df.Data(), data)
	}
	if !df.StreamEnded() {
		t.Error("StreamEnded() = false; want true")
	}
}

func TestWriteHeadersRoundTrip(t *testing.T) {
	fr, _ := testFramer()
	block := []byte("fake-hpack-block")
	err := fr.WriteHeaders(HeadersFrameParam{
		StreamID:      1,
		BlockFragment: block,
		EndStream:     true,
		EndHeaders:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	f, err := fr.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	hf, ok := f.(*HeadersFrame)
	if !ok {
		t.Fatalf("got %T, want *HeadersFrame", f)
	}
	if !bytes.Equal(hf.HeaderBlockFragment(), block) {
		t.Errorf("fragment = %q; want %q", hf.HeaderBlockFragment(), block)
	}
	if !hf.StreamEnded() || !hf.HeadersEnded() {
		t.Error("expected both END_STREAM and END_HEADERS set")
	}
}

func TestHeadersWithPriority(t *testing.T) {
	fr, _ := testFramer()
	pri := PriorityParam{StreamDep: 7, Exclusive: true, Weight: 200}
	err := fr.WriteHeaders(HeadersFrameParam{
		StreamID:      5,
		BlockFragment: []byte("x"),
		EndHeaders:    true,
		HasPriority:   true,
		Priority:      pri,
	})
	if err != nil {
		t.Fatal(err)
	}
	f, err := fr.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	hf := f.(*HeadersFrame)
	if !hf.HasPriority() {
		t.Fatal("HasPriority() = false; want true")
	}
	if !reflect.DeepEqual(hf.Priority, pri) {
		t.Errorf("Priority = %+v; want %+v", hf.Priority, pri)
	}
	if string(hf.HeaderBlockFragment()) != "x" {
		t.Errorf("fragment = %q; want %q", hf.HeaderBlockFragment(), "x")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	fr, _ := testFramer()
	settings := []Setting{
		{SettingHeaderTableSize, 4096},
		{SettingInitialWindowSize, 65535},
		{SettingMaxFrameSize, 16384},
	}
	if err := fr.WriteSettings(settings...); err != nil {
		t.Fatal(err)
	}
	f, err := fr.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	sf := f.(*SettingsFrame)
	if sf.IsAck() {
		t.Fatal("IsAck() = true; want false")
	}
	if sf.NumSettings() != len(settings) {
		t.Fatalf("NumSettings() = %d; want %d", sf.NumSettings(), len(settings))
	}
	for i, want := range settings {
		if got := sf.Setting(i); got != want {
			t.Errorf("Setting(%d) = %+v; want %+v", i, got, want)
		}
	}
}

func TestSettingsAck(t *testing.T) {
	fr, buf := testFramer()
	if err := fr.WriteSettingsAck(); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != frameHeaderLen {
		t.Fatalf("wrote %d bytes; want exactly a 9-byte header", buf.Len())
	}
	f, err := fr.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if !f.(*SettingsFrame).IsAck() {
		t.Error("IsAck() = false; want true")
	}
}

func TestSettingsFrameOddLengthRejected(t *testing.T) {
	fr, buf := testFramer()
	// A hand-crafted SETTINGS frame with a length not a multiple of 6.
	buf.Write([]byte{0x00, 0x00, 0x05, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00})
	buf.Write([]byte{1, 2, 3, 4, 5})
	if _, err := fr.ReadFrame(); err == nil {
		t.Fatal("expected an error for a non-multiple-of-6 SETTINGS payload")
	}
}

func TestPingRoundTrip(t *testing.T) {
	fr, _ := testFramer()
	var data [8]byte
	copy(data[:], "PINGDATA")
	if err := fr.WritePing(false, data); err != nil {
		t.Fatal(err)
	}
	f, err := fr.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	pf := f.(*PingFrame)
	if pf.IsAck() {
		t.Error("IsAck() = true; want false")
	}
	if pf.Data != data {
		t.Errorf("Data = %q; want %q", pf.Data, data)
	}
}

func TestPingWrongLengthRejected(t *testing.T) {
	fr, buf := testFramer()
	buf.Write([]byte{0x00, 0x00, 0x09, 0x06, 0x00, 0x00, 0x00, 0x00, 0x00})
	buf.Write(make([]byte, 9))
	if _, err := fr.ReadFrame(); err == nil {
		t.Fatal("expected FRAME_SIZE_ERROR for a 9-byte PING payload")
	}
}

func TestGoAwayRoundTrip(t *testing.T) {
	fr, _ := testFramer()
	if err := fr.WriteGoAway(17, ErrCodeProtocol, []byte("bye")); err != nil {
		t.Fatal(err)
	}
	f, err := fr.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	gf := f.(*GoAwayFrame)
	if gf.LastStreamID != 17 || gf.ErrCode != ErrCodeProtocol {
		t.Errorf("got LastStreamID=%d ErrCode=%s; want 17, PROTOCOL_ERROR", gf.LastStreamID, gf.ErrCode)
	}
	if string(gf.DebugData()) != "bye" {
		t.Errorf("DebugData = %q; want %q", gf.DebugData(), "bye")
	}
}

func TestWindowUpdateRoundTrip(t *testing.T) {
	fr, _ := testFramer()
	if err := fr.WriteWindowUpdate(3, 100); err != nil {
		t.Fatal(err)
	}
	f, err := fr.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	wf := f.(*WindowUpdateFrame)
	if wf.Header().StreamID != 3 || wf.Increment != 100 {
		t.Errorf("got streamID=%d increment=%d; want 3, 100", wf.Header().StreamID, wf.Increment)
	}
}

func TestWindowUpdateZeroIncrementRejected(t *testing.T) {
	fr, buf := testFramer()
	buf.Write([]byte{0x00, 0x00, 0x04, 0x08, 0x00, 0x00, 0x00, 0x00, 0x01})
	buf.Write([]byte{0, 0, 0, 0})
	_, err := fr.ReadFrame()
	if err == nil {
		t.Fatal("expected an error for a zero-increment WINDOW_UPDATE")
	}
	if _, ok := err.(StreamError); !ok {
		t.Errorf("got %T; want StreamError (stream-scoped, since StreamID != 0)", err)
	}
}

func TestContinuationRoundTrip(t *testing.T) {
	fr, _ := testFramer()
	if err := fr.WriteContinuation(9, true, []byte("more-hpack")); err != nil {
		t.Fatal(err)
	}
	f, err := fr.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	cf := f.(*ContinuationFrame)
	if !cf.HeadersEnded() {
		t.Error("HeadersEnded() = false; want true")
	}
	if string(cf.HeaderBlockFragment()) != "more-hpack" {
		t.Errorf("fragment = %q; want %q", cf.HeaderBlockFragment(), "more-hpack")
	}
}

func TestUnknownFrameTypeIgnored(t *testing.T) {
	fr, buf := testFramer()
	// A made-up frame type 0x20, per RFC 7540 section 4.1's "MUST ignore".
	buf.Write([]byte{0x00, 0x00, 0x02, 0x20, 0x00, 0x00, 0x00, 0x00, 0x00})
	buf.Write([]byte{0xAB, 0xCD})
	f, err := fr.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	uf, ok := f.(*UnknownFrame)
	if !ok {
		t.Fatalf("got %T, want *UnknownFrame", f)
	}
	if !bytes.Equal(uf.Payload, []byte{0xAB, 0xCD}) {
		t.Errorf("Payload = %v; want [0xAB 0xCD]", uf.Payload)
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	fr, buf := testFramer()
	fr.MaxReadFrameSize = 16
	buf.Write([]byte{0x00, 0x00, 0x20, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01})
	buf.Write(make([]byte, 0x20))
	if _, err := fr.ReadFrame(); err != ErrFrameTooLarge {
		t.Errorf("got %v; want ErrFrameTooLarge", err)
	}
}

func TestDataFrameStreamZeroRejected(t *testing.T) {
	fr, buf := testFramer()
	buf.Write([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00})
	if _, err := fr.ReadFrame(); err == nil {
		t.Fatal("expected PROTOCOL_ERROR for DATA on stream 0")
	}
}
