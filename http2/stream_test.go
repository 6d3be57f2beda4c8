// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package http2

import (
	"errors"
	"testing"
	"time"
)

type recordingCallback struct {
	headers  chan []HeaderField
	data     chan []byte
	trailers chan []HeaderField
	closed   chan error
}

func newRecordingCallback() *recordingCallback {
	return &recordingCallback{
		headers:  make(chan []HeaderField, 4),
		data:     make(chan []byte, 4),
		trailers: make(chan []HeaderField, 4),
		closed:   make(chan error, 1),
	}
}

func (r *recordingCallback) Headers(s *Stream, h []HeaderField)  { r.headers <- h }
func (r *recordingCallback) Data(s *Stream, p []byte)            { r.data <- append([]byte(nil), p...) }
func (r *recordingCallback) Trailers(s *Stream, h []HeaderField) { r.trailers <- h }
func (r *recordingCallback) Closed(s *Stream, err error)         { r.closed <- err }

func TestStreamStateMachineOpenToClosed(t *testing.T) {
	st := &stream{events: make(chan streamEvent, 16)}
	if st.state != stateIdle {
		t.Fatalf("zero value state = %v; want idle", st.state)
	}
	if err := st.transition(evRecvHeaders, false); err != nil {
		t.Fatal(err)
	}
	if st.state != stateOpen {
		t.Fatalf("state after recv headers = %v; want open", st.state)
	}
	if err := st.transition(evRecvEndStream, false); err != nil {
		t.Fatal(err)
	}
	if st.state != stateHalfClosedRemote {
		t.Fatalf("state after recv end_stream = %v; want half_closed_remote", st.state)
	}
	if err := st.transition(evRecvEndStream, true); err != nil {
		t.Fatal(err)
	}
	if st.state != stateClosed {
		t.Fatalf("state after local end_stream on half_closed_remote = %v; want closed", st.state)
	}
}

func TestStreamStateMachineLocalFirst(t *testing.T) {
	st := &stream{state: stateOpen, events: make(chan streamEvent, 16)}
	if err := st.transition(evRecvEndStream, true); err != nil {
		t.Fatal(err)
	}
	if st.state != stateHalfClosedLocal {
		t.Fatalf("state = %v; want half_closed_local", st.state)
	}
	if err := st.transition(evRecvData, false); err != nil {
		t.Fatal(err)
	}
	if err := st.transition(evRecvEndStream, false); err != nil {
		t.Fatal(err)
	}
	if st.state != stateClosed {
		t.Fatalf("state = %v; want closed", st.state)
	}
}

func TestStreamRejectsDataAfterClose(t *testing.T) {
	st := &stream{state: stateClosed, events: make(chan streamEvent, 16)}
	err := st.transition(evRecvData, false)
	se, ok := err.(StreamError)
	if !ok {
		t.Fatalf("got %T; want StreamError", err)
	}
	if se.Code != ErrCodeStreamClosed {
		t.Errorf("code = %s; want STREAM_CLOSED", se.Code)
	}
}

func TestPushPromiseReservesRemote(t *testing.T) {
	st := &stream{events: make(chan streamEvent, 16)}
	if err := st.transition(evRecvPushPromise, false); err != nil {
		t.Fatal(err)
	}
	if st.state != stateReservedRemote {
		t.Fatalf("state = %v; want reserved_remote", st.state)
	}
	// Headers (the pushed response) move it to open.
	if err := st.transition(evRecvHeaders, false); err != nil {
		t.Fatal(err)
	}
	if st.state != stateOpen {
		t.Fatalf("state = %v; want open", st.state)
	}
}

func TestRunCallbackDeliversInOrderThenCloses(t *testing.T) {
	cb := newRecordingCallback()
	st := newStream(cb, 65535, nil)

	st.deliver(streamEvent{kind: evRecvHeaders, headers: []HeaderField{{Name: ":status", Value: "200"}}})
	st.deliver(streamEvent{kind: evRecvData, data: []byte("payload")})
	st.deliver(streamEvent{kind: evRecvHeaders, headers: []HeaderField{{Name: "grpc-status", Value: "0"}}})
	st.finishErr = nil
	close(st.events)

	select {
	case h := <-cb.headers:
		if len(h) != 1 || h[0].Value != "200" {
			t.Errorf("first Headers call = %v; want :status=200", h)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Headers callback")
	}
	select {
	case p := <-cb.data:
		if string(p) != "payload" {
			t.Errorf("Data call = %q; want %q", p, "payload")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Data callback")
	}
	select {
	case tr := <-cb.trailers:
		if len(tr) != 1 || tr[0].Name != "grpc-status" {
			t.Errorf("Trailers call = %v; want grpc-status", tr)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Trailers callback (second Headers event)")
	}
	select {
	case err := <-cb.closed:
		if err != nil {
			t.Errorf("Closed(err) = %v; want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Closed callback")
	}
}

func TestRunCallbackReportsFinishError(t *testing.T) {
	cb := newRecordingCallback()
	st := newStream(cb, 65535, nil)
	wantErr := errors.New("boom")
	st.finishErr = wantErr
	close(st.events)

	select {
	case err := <-cb.closed:
		if err != wantErr {
			t.Errorf("Closed(err) = %v; want %v", err, wantErr)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Closed callback")
	}
}
