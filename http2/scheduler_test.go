// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package http2

import (
	"bytes"
	"testing"
)

func testScheduler() (*scheduler, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	fr := NewFramer(buf, buf)
	return &scheduler{fr: fr, maxFrameSize: defaultMaxFrameSize}, buf
}

func readAllDataFrames(t *testing.T, fr *Framer) []*DataFrame {
	t.Helper()
	var out []*DataFrame
	for {
		f, err := fr.ReadFrame()
		if err != nil {
			break
		}
		df, ok := f.(*DataFrame)
		if !ok {
			t.Fatalf("got non-DATA frame %T mid-stream", f)
		}
		out = append(out, df)
	}
	return out
}

// Scenario 3: 100,000-byte body, INITIAL_WINDOW_SIZE=65535,
// MAX_FRAME_SIZE=16384. First pass emits ceil(65535/16384)=4 DATA frames
// summing to exactly 65535 bytes, and blocks.
func TestSendStreamRespectsWindowAndFrameSize(t *testing.T) {
	sc, buf := testScheduler()
	body := bytes.Repeat([]byte{'x'}, 100000)
	st := &stream{
		id:       1,
		state:    stateOpen,
		sendFlow: newFlow(65535, nil),
		out:      queuedData{buf: body, done: true},
		events:   make(chan streamEvent, 16),
	}
	if err := sc.sendStream(st); err != nil {
		t.Fatal(err)
	}

	fr := NewFramer(nil, bytes.NewReader(buf.Bytes()))
	frames := readAllDataFrames(t, fr)
	if len(frames) != 4 {
		t.Fatalf("emitted %d DATA frames; want 4", len(frames))
	}
	var total int
	for i, f := range frames {
		total += len(f.Data())
		if i < 3 && len(f.Data()) != 16384 {
			t.Errorf("frame %d has %d bytes; want 16384", i, len(f.Data()))
		}
		if f.StreamEnded() {
			t.Errorf("frame %d has END_STREAM set; stream should still be blocked", i)
		}
	}
	if total != 65535 {
		t.Fatalf("total bytes emitted = %d; want 65535", total)
	}
	if st.sendFlow.available() != 0 {
		t.Errorf("remaining window = %d; want 0", st.sendFlow.available())
	}
	if len(st.out.buf) != 100000-65535 {
		t.Errorf("remaining queued bytes = %d; want %d", len(st.out.buf), 100000-65535)
	}

	// A WINDOW_UPDATE of +34465 on the stream (and, in the real
	// connection, an identical one on stream 0) unblocks the rest: 3
	// frames, the last carrying END_STREAM.
	st.sendFlow.add(34465)
	buf.Reset()
	if err := sc.sendStream(st); err != nil {
		t.Fatal(err)
	}
	fr = NewFramer(nil, bytes.NewReader(buf.Bytes()))
	frames = readAllDataFrames(t, fr)
	if len(frames) != 3 {
		t.Fatalf("second pass emitted %d DATA frames; want 3", len(frames))
	}
	total = 0
	for i, f := range frames {
		total += len(f.Data())
		last := i == len(frames)-1
		if f.StreamEnded() != last {
			t.Errorf("frame %d StreamEnded() = %v; want %v", i, f.StreamEnded(), last)
		}
	}
	if total != 34465 {
		t.Fatalf("second pass total = %d; want 34465", total)
	}
	if len(st.out.buf) != 0 {
		t.Errorf("queued bytes left = %d; want 0", len(st.out.buf))
	}
}

func TestSendStreamDefersTrailersUntilBodyDrains(t *testing.T) {
	sc, buf := testScheduler()
	var trailerCalls int
	var trailerStreamID uint32
	sc.writeTrailers = func(id uint32, trailers []HeaderField) error {
		trailerCalls++
		trailerStreamID = id
		return nil
	}
	st := &stream{
		id:       7,
		state:    stateOpen,
		sendFlow: newFlow(1000, nil),
		out:      queuedData{buf: []byte("abc"), done: true},
		trailers: []HeaderField{{Name: "x-trailer", Value: "1"}},
		events:   make(chan streamEvent, 16),
	}
	if err := sc.sendStream(st); err != nil {
		t.Fatal(err)
	}
	if trailerCalls != 1 {
		t.Fatalf("writeTrailers called %d times; want 1", trailerCalls)
	}
	if trailerStreamID != 7 {
		t.Errorf("writeTrailers called for stream %d; want 7", trailerStreamID)
	}
	if !st.endStream {
		t.Error("endStream = false after trailers flushed; want true")
	}
	if st.trailers != nil {
		t.Error("trailers not cleared after being written")
	}

	fr := NewFramer(nil, bytes.NewReader(buf.Bytes()))
	frames := readAllDataFrames(t, fr)
	if len(frames) != 1 {
		t.Fatalf("got %d DATA frames; want 1 (the body, without END_STREAM)", len(frames))
	}
	if frames[0].StreamEnded() {
		t.Error("DATA frame carries END_STREAM; it must not, since trailers follow")
	}
}

// Regression: trailers set by a SendTrailers call that arrives after
// the body was already fully drained by an earlier, separate
// sendStream call must still be flushed, not dropped. This differs
// from TestSendStreamDefersTrailersUntilBodyDrains in that the body
// drain and the trailers arrival happen in two distinct sendStream
// calls rather than being observed together within one.
func TestSendStreamFlushesTrailersAfterSeparateDrainCall(t *testing.T) {
	sc, _ := testScheduler()
	var trailerCalls int
	sc.writeTrailers = func(id uint32, trailers []HeaderField) error {
		trailerCalls++
		return nil
	}
	st := &stream{
		id:       9,
		state:    stateOpen,
		sendFlow: newFlow(1000, nil),
		out:      queuedData{buf: []byte("abc"), done: false},
		events:   make(chan streamEvent, 16),
	}
	// First call: drains the body, but done is still false (more body
	// bytes could still arrive), so no END_STREAM or trailers fire.
	if err := sc.sendStream(st); err != nil {
		t.Fatal(err)
	}
	if len(st.out.buf) != 0 {
		t.Fatalf("body not drained: %d bytes left", len(st.out.buf))
	}
	if trailerCalls != 0 {
		t.Fatalf("writeTrailers called %d times before trailers even arrived", trailerCalls)
	}

	// A later, separate SendTrailers call sets done=true and trailers,
	// then re-invokes sendStream, mirroring api.go's SendTrailers.
	st.out.done = true
	st.trailers = []HeaderField{{Name: "x-trailer", Value: "1"}}
	if err := sc.sendStream(st); err != nil {
		t.Fatal(err)
	}
	if trailerCalls != 1 {
		t.Fatalf("writeTrailers called %d times; want 1", trailerCalls)
	}
	if !st.endStream {
		t.Error("endStream = false after trailers flushed; want true")
	}
	if st.trailers != nil {
		t.Error("trailers not cleared after being written")
	}
}

func TestSendStreamNoDataYetSendsNothing(t *testing.T) {
	sc, buf := testScheduler()
	st := &stream{
		id:       1,
		state:    stateOpen,
		sendFlow: newFlow(1000, nil),
		events:   make(chan streamEvent, 16),
	}
	if err := sc.sendStream(st); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes for an empty, not-done stream; want 0", buf.Len())
	}
}

func TestSendStreamEmptyBodyWithEndStream(t *testing.T) {
	sc, buf := testScheduler()
	st := &stream{
		id:       1,
		state:    stateOpen,
		sendFlow: newFlow(1000, nil),
		out:      queuedData{done: true},
		events:   make(chan streamEvent, 16),
	}
	if err := sc.sendStream(st); err != nil {
		t.Fatal(err)
	}
	fr := NewFramer(nil, bytes.NewReader(buf.Bytes()))
	frames := readAllDataFrames(t, fr)
	if len(frames) != 1 {
		t.Fatalf("got %d DATA frames; want exactly 1 empty END_STREAM frame", len(frames))
	}
	if len(frames[0].Data()) != 0 || !frames[0].StreamEnded() {
		t.Errorf("frame = %+v; want empty payload with END_STREAM", frames[0])
	}
}
